//go:build linux

package units

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager reads unit state from the system bus.
type Manager struct {
	mu   sync.RWMutex
	conn *dbus.Conn
}

// Open connects to the systemd system bus.
func Open(ctx context.Context) (Reader, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}

// Status uses ListUnitsByPatterns for the cheap core state and fetches the
// property map only for units that are not active.
func (m *Manager) Status(ctx context.Context, name string) (Status, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return Status{}, fmt.Errorf("systemd connection is closed")
	}

	unit := unitName(name)
	list, err := conn.ListUnitsByPatternsContext(ctx, nil, []string{unit})
	if err == nil && len(list) > 0 {
		u := list[0]
		for _, x := range list {
			if x.Name == unit {
				u = x
				break
			}
		}
		st := Status{
			Name:        name,
			Active:      u.ActiveState,
			SubState:    u.SubState,
			LoadState:   u.LoadState,
			Description: u.Description,
		}
		if st.LoadState == "not-found" {
			return notFound(name), nil
		}
		if st.Healthy() {
			return st, nil
		}
	}

	// Units that are not loaded are missing from ListUnits; ask directly.
	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return notFound(name), nil
		}
		return Status{}, fmt.Errorf("failed to get status for %s: %w", name, err)
	}
	return statusFromProps(name, props), nil
}
