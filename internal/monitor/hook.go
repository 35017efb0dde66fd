// Package monitor logs the lifecycle of pipeline runs together with the
// wall time and resident memory of every task.
package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultThresholdMB is the memory growth per task above which a task is
// flagged.
const DefaultThresholdMB = 1000

const banner = "============================================================"

// RunInfo describes a pipeline run.
type RunInfo struct {
	RunID    string
	Pipeline string
	Env      string
	Tags     []string
}

// TaskStats is what the hook measured for one task.
type TaskStats struct {
	Duration    time.Duration
	MemoryBytes uint64
	DeltaBytes  int64
	HighMemory  bool
}

type taskStart struct {
	at  time.Time
	mem uint64
}

// Hook implements the runner callbacks. Tasks may run concurrently, so
// per-task start state is keyed by task name. Memory is process-wide:
// deltas of overlapping tasks include each other's allocations.
type Hook struct {
	logger    *slog.Logger
	threshold uint64

	// ReadMemory returns the current resident set size in bytes.
	ReadMemory func() (uint64, error)
	// Now defaults to time.Now.
	Now func() time.Time

	mu            sync.Mutex
	pipelineStart time.Time
	tasks         map[string]taskStart
}

// NewHook creates a hook that flags tasks growing memory by more than
// thresholdMB megabytes. A non-positive threshold uses DefaultThresholdMB.
func NewHook(logger *slog.Logger, thresholdMB int) *Hook {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if thresholdMB <= 0 {
		thresholdMB = DefaultThresholdMB
	}
	return &Hook{
		logger:     logger,
		threshold:  uint64(thresholdMB) * humanize.MiByte,
		ReadMemory: residentMemory,
		Now:        time.Now,
		tasks:      make(map[string]taskStart),
	}
}

// Threshold returns the memory alert threshold in bytes.
func (h *Hook) Threshold() uint64 { return h.threshold }

func residentMemory() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

func (h *Hook) memory() uint64 {
	m, err := h.ReadMemory()
	if err != nil {
		h.logger.Debug("failed to read memory usage", slog.String("error", err.Error()))
		return 0
	}
	return m
}

// BeforePipelineRun logs the start of a run.
func (h *Hook) BeforePipelineRun(info RunInfo) {
	h.mu.Lock()
	h.pipelineStart = h.Now()
	h.mu.Unlock()

	tags := "all"
	if len(info.Tags) > 0 {
		tags = strings.Join(info.Tags, ",")
	}
	env := info.Env
	if env == "" {
		env = "local"
	}

	h.logger.Info(banner)
	h.logger.Info("starting pipeline run",
		slog.String("pipeline", info.Pipeline),
		slog.String("env", env),
		slog.String("tags", tags),
		slog.String("run_id", info.RunID),
		slog.String("memory_alert", humanize.IBytes(h.threshold)))
	h.logger.Info(banner)
}

func (h *Hook) elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Now().Sub(h.pipelineStart)
}

// AfterPipelineRun logs a successful run.
func (h *Hook) AfterPipelineRun(info RunInfo) {
	h.logger.Info(banner)
	h.logger.Info("pipeline finished",
		slog.String("pipeline", info.Pipeline),
		slog.String("duration", formatSeconds(h.elapsed())))
	h.logger.Info(banner)
}

// OnPipelineError logs a failed run.
func (h *Hook) OnPipelineError(info RunInfo, err error) {
	h.logger.Error(banner)
	h.logger.Error("pipeline failed",
		slog.String("pipeline", info.Pipeline),
		slog.String("duration", formatSeconds(h.elapsed())),
		slog.String("error", err.Error()))
	h.logger.Error(banner)
}

// BeforeTaskRun records the start time and memory of a task.
func (h *Hook) BeforeTaskRun(task string) {
	start := taskStart{at: h.Now(), mem: h.memory()}
	h.mu.Lock()
	h.tasks[task] = start
	h.mu.Unlock()
	h.logger.Info("running task", slog.String("task", task))
}

// AfterTaskRun logs the duration and memory growth of a task and flags
// growth above the threshold.
func (h *Hook) AfterTaskRun(task string) TaskStats {
	end := h.memory()
	now := h.Now()

	h.mu.Lock()
	start, ok := h.tasks[task]
	delete(h.tasks, task)
	h.mu.Unlock()
	if !ok {
		start = taskStart{at: now, mem: end}
	}

	stats := TaskStats{
		Duration:    now.Sub(start.at),
		MemoryBytes: end,
		DeltaBytes:  int64(end) - int64(start.mem), //nolint:gosec // RSS stays far below MaxInt64
	}
	stats.HighMemory = stats.DeltaBytes > 0 && uint64(stats.DeltaBytes) > h.threshold

	attrs := []any{
		slog.String("task", task),
		slog.String("duration", formatSeconds(stats.Duration)),
		slog.String("memory", humanize.IBytes(end)),
		slog.String("memory_delta", formatDelta(stats.DeltaBytes)),
	}
	if stats.HighMemory {
		h.logger.Warn("task finished HIGH MEMORY", attrs...)
	} else {
		h.logger.Info("task finished", attrs...)
	}
	return stats
}

// OnTaskError logs a failed task and forgets its start state.
func (h *Hook) OnTaskError(task string, err error) {
	h.mu.Lock()
	delete(h.tasks, task)
	h.mu.Unlock()
	h.logger.Error("task failed", slog.String("task", task), slog.String("error", err.Error()))
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func formatDelta(delta int64) string {
	if delta < 0 {
		return "-" + humanize.IBytes(uint64(-delta))
	}
	return "+" + humanize.IBytes(uint64(delta))
}
