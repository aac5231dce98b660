package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type perfGauges struct {
	cpu        metric.Float64Gauge
	memory     metric.Int64Gauge
	liveObject metric.Int64Gauge
	goroutines metric.Int64Gauge
}

func newPerfGauges() (perfGauges, error) {
	meter := otel.Meter("lodgemirror/perf_stats")

	var g perfGauges
	var err error
	g.cpu, err = meter.Float64Gauge("cpu_usage")
	if err != nil {
		return perfGauges{}, err
	}
	g.memory, err = meter.Int64Gauge("allocated_mb")
	if err != nil {
		return perfGauges{}, err
	}
	g.liveObject, err = meter.Int64Gauge("live_objects")
	if err != nil {
		return perfGauges{}, err
	}
	g.goroutines, err = meter.Int64Gauge("goroutine_count")
	if err != nil {
		return perfGauges{}, err
	}
	return g, nil
}

func (g perfGauges) record(ctx context.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// an interval of 0 compares against the previous call
	cpuUsage, err := cpu.Percent(0, false)
	if err == nil && len(cpuUsage) > 0 {
		g.cpu.Record(ctx, cpuUsage[0])
	} else if err != nil {
		slog.Debug("failed to read cpu usage", "err", err)
	}

	g.memory.Record(ctx, int64(memStats.Alloc/1_000_000))
	g.liveObject.Record(ctx, int64(memStats.Mallocs)-int64(memStats.Frees))
	g.goroutines.Record(ctx, int64(runtime.NumGoroutine()))
}

// InstrumentPerfStats records process gauges on the global meter every
// `interval` until ctx is done. The returned channel is closed once it stopped.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})

	gauges, err := newPerfGauges()
	if err != nil {
		slog.Warn("failed to create perf gauges", "err", err)
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		gauges.record(ctx)
		for {
			select {
			case <-ticker.C:
				gauges.record(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}
