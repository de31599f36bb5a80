package host

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Diagnostics снимает базовые метрики узла для команды status.
type Diagnostics struct {
	// Version попадает в снимок как есть.
	Version string
	started time.Time
}

// New создает источник диагностики; время старта фиксируется сейчас.
func New(version string) *Diagnostics {
	return &Diagnostics{Version: version, started: time.Now()}
}

// Snapshot реализует core.Diagnostics.
func (d *Diagnostics) Snapshot(ctx context.Context) (map[string]any, error) {
	hInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory info: %w", err)
	}
	snap := map[string]any{
		"version":      d.Version,
		"hostname":     hInfo.Hostname,
		"platform":     hInfo.Platform,
		"uptime_sec":   hInfo.Uptime,
		"mem_used_pct": vm.UsedPercent,
		"goroutines":   runtime.NumGoroutine(),
	}
	if !d.started.IsZero() {
		snap["process_uptime"] = time.Since(d.started).Round(time.Second).String()
	}
	// load average недоступен на Windows.
	if ld, err := load.AvgWithContext(ctx); err == nil {
		snap["load1"] = ld.Load1
		snap["load5"] = ld.Load5
	}
	return snap, nil
}
