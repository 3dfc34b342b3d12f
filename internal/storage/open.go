package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	logx "statusbar/pkg/logx"
)

// Store keeps run history for the recorder and the HTTP API.
type Store interface {
	AppendRun(ctx context.Context, e RunEntry) error
	RecentRuns(ctx context.Context, q RunQuery) ([]RunEntry, error)
	Close() error
}

type opener func(Config, logx.Logger) (Store, error)

var drivers = map[string]opener{
	"file":    openFile,
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
}

// Open returns the store for cfg.Driver, or nil with no error when the
// driver is blank or "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	open, ok := drivers[name]
	if !ok {
		known := make([]string, 0, len(drivers))
		for k := range drivers {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("storage driver %q not one of %s", name, strings.Join(known, ", "))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return open(cfg, log.With(logx.String("store", name)))
}
