package netspeed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"
)

// Measurement is one completed speed test.
type Measurement struct {
	At       time.Time
	DownMbps float64
	UpMbps   float64
	Ping     time.Duration
	ISP      string
	Server   string
}

// Measurer runs a speed test.
type Measurer interface {
	Measure(ctx context.Context) (Measurement, error)
}

// speedtestMeasurer measures against speedtest.net servers: the nearest
// candidates are pinged concurrently and the fastest one gets the full
// download and upload test.
type speedtestMeasurer struct {
	candidates     int
	maxConnections int
	now            func() time.Time
}

func (r speedtestMeasurer) Measure(ctx context.Context) (Measurement, error) {
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A dedicated client per run; the package-level helpers keep state.
	stc := st.New(st.WithUserConfig(&st.UserConfig{MaxConnections: r.maxConnections}))
	stc.SetNThread(r.maxConnections)
	defer func() {
		stc.Snapshots().Clean()
		stc.Reset()
	}()

	user, err := stc.FetchUserInfoContext(ctx)
	if err != nil {
		return Measurement{}, fmt.Errorf("fetch user info: %w", err)
	}
	servers, err := stc.FetchServerListContext(ctx)
	if err != nil {
		return Measurement{}, fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return Measurement{}, errors.New("no servers available")
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	pinged := pingAll(ctx, servers[:min(r.candidates, len(servers))])
	if len(pinged) == 0 {
		return Measurement{}, errors.New("all latency tests failed")
	}
	best := pinged[0]

	if err := best.DownloadTestContext(ctx); err != nil {
		return Measurement{}, fmt.Errorf("download test: %w", err)
	}
	if err := best.UploadTestContext(ctx); err != nil {
		return Measurement{}, fmt.Errorf("upload test: %w", err)
	}

	return Measurement{
		At:       r.now(),
		DownMbps: best.DLSpeed.Mbps(),
		UpMbps:   best.ULSpeed.Mbps(),
		Ping:     best.Latency,
		ISP:      user.Isp,
		Server:   best.Sponsor + " (" + best.Country + ")",
	}, nil
}

// pingAll returns the servers that answered, lowest latency first.
func pingAll(ctx context.Context, servers []*st.Server) []*st.Server {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok = make([]*st.Server, 0, len(servers))
	)
	for _, s := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.PingTestContext(ctx, nil); err != nil || s.Latency <= 0 {
				return
			}
			mu.Lock()
			ok = append(ok, s)
			mu.Unlock()
		}()
	}
	wg.Wait()
	sort.Slice(ok, func(i, j int) bool { return ok[i].Latency < ok[j].Latency })
	return ok
}
