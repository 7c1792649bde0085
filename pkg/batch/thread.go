package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Summary counts the outcome of a queue run
type Summary struct {
	Done, Failed, Canceled, Skipped int
}

// ActionThread runs queues of ActionTasks on a bounded worker pool
type ActionThread struct {
	settings QueueSettings
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewActionThread validates settings and creates the output directory
func NewActionThread(settings QueueSettings, logger *zap.Logger) (*ActionThread, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionThread{settings: settings, logger: logger}, nil
}

// Process runs every source through tools. emit is called from the worker
// goroutines but never concurrently. It returns ErrCanceled when the run was
// canceled through ctx or Cancel.
func (at *ActionThread) Process(ctx context.Context, sources []string, tools []Tool, emit func(ActionData)) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	at.mu.Lock()
	at.cancel = cancel
	at.mu.Unlock()
	defer func() {
		at.mu.Lock()
		at.cancel = nil
		at.mu.Unlock()
		cancel()
	}()

	var (
		emitMu  sync.Mutex
		summary Summary
	)
	safeEmit := func(d ActionData) {
		emitMu.Lock()
		defer emitMu.Unlock()
		switch d.Status {
		case ProcessDone:
			summary.Done++
		case ProcessFailed:
			summary.Failed++
		case ProcessCanceled:
			summary.Canceled++
		case ProcessSkipped:
			summary.Skipped++
		}
		if emit != nil {
			emit(d)
		}
	}

	tasks := at.plan(sources, tools, safeEmit)
	at.logger.Info("batch_started",
		zap.Int("items", len(sources)),
		zap.Int("tools", len(tools)),
		zap.Int("workers", at.settings.Workers()))

	var g errgroup.Group
	g.SetLimit(at.settings.Workers())
	for _, task := range tasks {
		g.Go(func() error {
			task.Run(ctx, safeEmit)
			return nil
		})
	}
	_ = g.Wait()

	at.logger.Info("batch_finished",
		zap.Int("done", summary.Done),
		zap.Int("failed", summary.Failed),
		zap.Int("canceled", summary.Canceled),
		zap.Int("skipped", summary.Skipped))
	if ctx.Err() != nil && summary.Canceled > 0 {
		return summary, ErrCanceled
	}
	return summary, nil
}

// Cancel stops the running queue; items in progress stop before their next tool
func (at *ActionThread) Cancel() {
	at.mu.Lock()
	defer at.mu.Unlock()
	if at.cancel != nil {
		at.cancel()
	}
}

// plan resolves the destination of every source in queue order so that
// renamed outputs do not depend on worker scheduling.
func (at *ActionThread) plan(sources []string, tools []Tool, emit func(ActionData)) []*ActionTask {
	reserved := make(map[string]struct{}, len(sources))
	tasks := make([]*ActionTask, 0, len(sources))
	for _, src := range sources {
		dest, ok := at.destination(src, reserved)
		if !ok {
			emit(ActionData{Source: src, Dest: dest, Status: ProcessSkipped})
			continue
		}
		reserved[dest] = struct{}{}
		tasks = append(tasks, &ActionTask{
			Source:   src,
			Dest:     dest,
			Tools:    tools,
			Settings: at.settings,
			logger:   at.logger,
		})
	}
	return tasks
}

func (at *ActionThread) destination(src string, reserved map[string]struct{}) (string, bool) {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	ext := at.settings.Format.Ext()
	dest := filepath.Join(at.settings.OutputDir, base+ext)

	taken := func(p string) bool {
		if _, ok := reserved[p]; ok {
			return true
		}
		_, err := os.Stat(p)
		return err == nil
	}
	if !taken(dest) {
		return dest, true
	}
	switch at.settings.Conflict {
	case ConflictOverwrite:
		if _, ok := reserved[dest]; !ok {
			return dest, true
		}
	case ConflictSkip:
		return dest, false
	}
	for i := 1; ; i++ {
		p := filepath.Join(at.settings.OutputDir, fmt.Sprintf("%s-%d%s", base, i, ext))
		if !taken(p) {
			return p, true
		}
	}
}
