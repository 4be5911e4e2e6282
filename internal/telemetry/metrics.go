package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/logger"
)

const namespace = "blockforge"

// Metrics publishes snapshots on a private prometheus registry.
type Metrics struct {
	reg *prometheus.Registry

	fps          prometheus.Gauge
	frameTime    prometheus.Gauge
	maxFrameTime prometheus.Gauge
	blocks       prometheus.Gauge
	entities     prometheus.Gauge
	resident     prometheus.Gauge
	meshed       prometheus.Gauge
	rss          prometheus.Gauge

	mu     sync.Mutex
	server *http.Server
	log    *zap.Logger
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// NewMetrics creates and registers the gauges.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg:          prometheus.NewRegistry(),
		fps:          gauge("fps", "Frames per second over the last second."),
		frameTime:    gauge("frame_time_seconds", "Smoothed frame time."),
		maxFrameTime: gauge("max_frame_time_seconds", "Longest frame in the current window."),
		blocks:       gauge("blocks", "Non-empty voxels in the world."),
		entities:     gauge("entities", "Placed non-block entities."),
		resident:     gauge("resident_chunks", "Chunks held in memory."),
		meshed:       gauge("meshed_chunks", "Chunks with an up to date mesh."),
		rss:          gauge("process_rss_bytes", "Resident set size of the editor process."),
		log:          logger.Named("telemetry"),
	}
	m.reg.MustRegister(m.fps, m.frameTime, m.maxFrameTime, m.blocks, m.entities, m.resident, m.meshed, m.rss)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Observe sets every gauge from s.
func (m *Metrics) Observe(s Snapshot) {
	m.fps.Set(s.FPS)
	m.frameTime.Set(s.FrameTime.Seconds())
	m.maxFrameTime.Set(s.MaxFrameTime.Seconds())
	m.blocks.Set(float64(s.TotalBlocks))
	m.entities.Set(float64(s.Entities))
	m.resident.Set(float64(s.ResidentChunks))
	m.meshed.Set(float64(s.MeshedChunks))
	m.rss.Set(float64(s.RSS))
}

// Serve starts a /metrics endpoint on addr. It returns once the listener is
// bound; the server runs until Close.
func (m *Metrics) Serve(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	m.mu.Lock()
	m.server = srv
	m.mu.Unlock()

	m.log.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return ln.Addr(), nil
}

// Close shuts the endpoint down if it was started.
func (m *Metrics) Close(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ProcessSampler reads the process RSS at most once per interval.
type ProcessSampler struct {
	proc  *process.Process
	every time.Duration
	last  time.Time
	rss   uint64
}

// NewProcessSampler samples the current process.
func NewProcessSampler(every time.Duration) (*ProcessSampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessSampler{proc: p, every: every}, nil
}

// RSS returns the resident set size, refreshing it when the interval has passed.
func (p *ProcessSampler) RSS(now time.Time) uint64 {
	if p == nil {
		return 0
	}
	if !p.last.IsZero() && now.Sub(p.last) < p.every {
		return p.rss
	}
	p.last = now
	if mi, err := p.proc.MemoryInfo(); err == nil {
		p.rss = mi.RSS
	}
	return p.rss
}
