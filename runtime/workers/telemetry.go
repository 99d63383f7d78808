package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// TelemetryWorker periodically reports process health (RSS, CPU, status)
// together with the engine's event counters.
type TelemetryWorker struct {
	log       *slog.Logger
	interval  time.Duration
	published func() uint64
}

func NewTelemetryWorker(log *slog.Logger, interval time.Duration, published func() uint64) *TelemetryWorker {
	return &TelemetryWorker{log: log, interval: interval, published: published}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.log.Info("Engine telemetry",
				"ram_bytes", rss,
				"cpu_percent", cpu,
				"pid_status", status,
				"events_published", w.published(),
			)
		}
	}
}

// selfStats retrieves memory, CPU, and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
