package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"statusbar/internal/metrics"
	logx "statusbar/pkg/logx"
)

// Config controls the optional HTTP API. A non-loopback Addr needs a Token
// unless AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

const defaultAddr = "127.0.0.1:7070"

func (c Config) addr() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return defaultAddr
}

func (c Config) router() RouterConfig {
	return RouterConfig{Token: c.Token, RequestTimeout: c.RequestTimeout, Pprof: c.Pprof}
}

// listenerKey holds the settings baked into the listener and http.Server.
// Anything else is applied by swapping the handler.
type listenerKey struct {
	addr              string
	read, write, idle time.Duration
}

func (c Config) key() listenerKey {
	return listenerKey{addr: c.addr(), read: c.ReadTimeout, write: c.WriteTimeout, idle: c.IdleTimeout}
}

// exposed rejects a non-loopback address that has neither a token nor
// allow_insecure.
func (c Config) exposed() error {
	if c.Token != "" || c.AllowInsecure || isLoopbackAddr(c.addr()) {
		return nil
	}
	return fmt.Errorf("http api: %s is not loopback; set a token or allow_insecure", c.addr())
}

type running struct {
	key  listenerKey
	ln   net.Listener
	srv  *http.Server
	done chan struct{} // closed when Serve returns
}

// Service runs the API server. Start, Stop and Reconfigure are serialized.
type Service struct {
	src     Sources
	metrics *metrics.Metrics
	log     logx.Logger

	life    sync.Mutex
	cfg     Config
	handler atomic.Pointer[http.Handler]

	cur atomic.Pointer[running]
}

func New(cfg Config, src Sources, m *metrics.Metrics, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, metrics: m, log: log.With(logx.String("comp", "http"))}
}

// Addr returns the bound address, or "" when not serving.
func (s *Service) Addr() string {
	if r := s.cur.Load(); r != nil {
		return r.ln.Addr().String()
	}
	return ""
}

func (s *Service) setHandler(cfg Config) {
	h := http.Handler(NewRouter(s.src, s.metrics, s.log, cfg.router()))
	s.handler.Store(&h)
}

func (s *Service) serve(w http.ResponseWriter, r *http.Request) {
	(*s.handler.Load()).ServeHTTP(w, r)
}

// Start serves the current config in the background. Disabled or already
// running is not an error.
func (s *Service) Start(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	cfg := s.cfg
	if !cfg.Enabled || s.cur.Load() != nil {
		return nil
	}
	if err := cfg.exposed(); err != nil {
		s.log.Error("http api refused to start", logx.Err(err))
		return err
	}
	addr := cfg.addr()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.log.Error("http api listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	s.setHandler(cfg)
	r := &running{
		key: cfg.key(),
		ln:  ln,
		srv: &http.Server{
			Handler:           http.HandlerFunc(s.serve),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		done: make(chan struct{}),
	}
	s.cur.Store(r)

	go func() {
		defer close(r.done)
		if err := r.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http api serve failed", logx.Err(err))
		}
	}()
	s.log.Info("http api listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token", cfg.Token != ""),
		logx.Bool("pprof", cfg.Pprof))
	return nil
}

// Stop shuts the server down, closing it hard if ctx ends first.
func (s *Service) Stop(ctx context.Context) {
	s.life.Lock()
	defer s.life.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	r := s.cur.Swap(nil)
	if r == nil {
		return
	}
	if err := r.srv.Shutdown(ctx); err != nil {
		s.log.Warn("http api shutdown timed out; closing", logx.Err(err))
		_ = r.srv.Close()
	}
	select {
	case <-r.done:
	case <-ctx.Done():
	}
	s.log.Info("http api stopped")
}

// Reconfigure applies cfg during a hot reload. Router settings (token,
// pprof, request timeout) are swapped in place; a new address or server
// timeout restarts the listener.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.life.Lock()
	defer s.life.Unlock()
	s.cfg = cfg

	r := s.cur.Load()
	switch {
	case !cfg.Enabled:
		s.stopLocked(ctx)
		return
	case r != nil && r.key == cfg.key():
		if err := cfg.exposed(); err != nil {
			s.log.Error("http api stopped by reload", logx.Err(err))
			s.stopLocked(ctx)
			return
		}
		s.setHandler(cfg)
		s.log.Debug("http api handler reloaded")
		return
	case r != nil:
		s.stopLocked(ctx)
	}
	if err := s.startLocked(ctx); err != nil {
		s.log.Warn("http api not restarted", logx.Err(err))
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
