package workers

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"room-relay/observability"
)

// KeepAliveWorker periodically pings the relay's own public URL so
// free-tier hosts don't idle the instance out, and logs process health
// plus the relay counters alongside each ping.
type KeepAliveWorker struct {
	log      *slog.Logger
	url      string
	interval time.Duration
	client   *http.Client
	metrics  *observability.RelayMetrics
}

func NewKeepAliveWorker(log *slog.Logger, url string, interval time.Duration,
	metrics *observability.RelayMetrics) *KeepAliveWorker {
	return &KeepAliveWorker{
		log:      log,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		metrics:  metrics,
	}
}

func (w *KeepAliveWorker) Run(ctx context.Context) error {
	if w.url == "" {
		w.log.Info("KeepAlive disabled, no URL configured")
		return nil
	}
	w.log.Info("Starting keepalive worker", "url", w.url, "interval", w.interval)

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.ping(ctx)
			w.logSelfStats(p)
		}
	}
}

func (w *KeepAliveWorker) ping(ctx context.Context) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		w.log.Warn("KeepAlive request build failed", "error", err)
		return
	}
	response, err := w.client.Do(request)
	if err != nil {
		w.log.Warn("KeepAlive ping failed", "url", w.url, "error", err)
		return
	}
	_ = response.Body.Close()
	w.log.Info("KeepAlive pinged", "url", w.url, "status", response.StatusCode)
}

func (w *KeepAliveWorker) logSelfStats(p *process.Process) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		w.log.Warn("Failed to collect self stats", "error", err)
		return
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		w.log.Warn("Failed to collect self stats", "error", err)
		return
	}
	w.log.Info("Relay health",
		"ram_bytes", memInfo.RSS,
		"cpu_percent", cpuPercent,
		"counters", w.metrics.Snapshot(),
	)
}
