package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"statusbar/internal/config"
	logx "statusbar/pkg/logx"
)

const watchdogEventID = "systemd-watchdog"

// notifier wraps sd_notify. Without NOTIFY_SOCKET every call is a no-op.
type notifier struct {
	log    logx.Logger
	notify func(state string) (bool, error)
	// watchdog reports WATCHDOG_USEC, 0 when systemd does not expect pings.
	watchdog func() (time.Duration, error)
}

func newNotifier(log logx.Logger) *notifier {
	return &notifier{
		log:      log,
		notify:   func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		watchdog: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
	}
}

func (n *notifier) send(cfg config.SystemdConfig, state string) {
	if !cfg.Notify {
		return
	}
	sent, err := n.notify(state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *notifier) ready(cfg config.SystemdConfig)     { n.send(cfg, daemon.SdNotifyReady) }
func (n *notifier) stopping(cfg config.SystemdConfig)  { n.send(cfg, daemon.SdNotifyStopping) }
func (n *notifier) reloading(cfg config.SystemdConfig) { n.send(cfg, daemon.SdNotifyReloading) }

// watchdogInterval is half of WATCHDOG_USEC rounded down to whole seconds,
// never below one second. Zero means no watchdog.
func (n *notifier) watchdogInterval(cfg config.SystemdConfig) time.Duration {
	if !cfg.Watchdog {
		return 0
	}
	d, err := n.watchdog()
	if err != nil {
		n.log.Warn("watchdog query failed", logx.Err(err))
		return 0
	}
	if d <= 0 {
		return 0
	}
	every := (d / 2).Truncate(time.Second)
	if every < time.Second {
		every = time.Second
	}
	return every
}

// ping is scheduled as a repeatable event, so a stuck tick loop stops the
// pings and systemd restarts the unit.
func (n *notifier) ping(_ context.Context) error {
	_, err := n.notify(daemon.SdNotifyWatchdog)
	return err
}
