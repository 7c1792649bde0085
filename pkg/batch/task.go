package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register WEBP decoder
)

// Status is the progress state reported for an item
type Status int

const (
	StartProcess Status = iota
	ToolDone
	ProcessDone
	ProcessFailed
	ProcessCanceled
	ProcessSkipped
)

func (s Status) String() string {
	switch s {
	case StartProcess:
		return "start"
	case ToolDone:
		return "tool_done"
	case ProcessDone:
		return "done"
	case ProcessFailed:
		return "failed"
	case ProcessCanceled:
		return "canceled"
	case ProcessSkipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Final reports whether no more data follows for the item
func (s Status) Final() bool {
	return s >= ProcessDone
}

// ActionData is a progress report for one item
type ActionData struct {
	Source string
	Dest   string
	Status Status
	Tool   string
	Err    error
}

// ActionTask processes one file through the tool chain
type ActionTask struct {
	Source   string
	Dest     string
	Tools    []Tool
	Settings QueueSettings

	logger *zap.Logger
}

// Run decodes the source, applies the tools in order and writes the result.
// Cancellation is checked before every tool.
func (t *ActionTask) Run(ctx context.Context, emit func(ActionData)) {
	logger := t.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	report := func(s Status, tool string, err error) {
		emit(ActionData{Source: t.Source, Dest: t.Dest, Status: s, Tool: tool, Err: err})
	}

	if ctx.Err() != nil {
		report(ProcessCanceled, "", ErrCanceled)
		return
	}
	report(StartProcess, "", nil)

	img, err := decodeFile(t.Source)
	if err != nil {
		logger.Warn("batch_decode_failed", zap.String("source", t.Source), zap.Error(err))
		report(ProcessFailed, "", err)
		return
	}

	for _, tool := range t.Tools {
		if ctx.Err() != nil {
			report(ProcessCanceled, tool.Name(), ErrCanceled)
			return
		}
		img, err = tool.Apply(ctx, img)
		if errors.Is(err, context.Canceled) {
			report(ProcessCanceled, tool.Name(), ErrCanceled)
			return
		}
		if err != nil {
			logger.Warn("batch_tool_failed",
				zap.String("source", t.Source),
				zap.String("tool", tool.Name()),
				zap.Error(err))
			report(ProcessFailed, tool.Name(), err)
			return
		}
		report(ToolDone, tool.Name(), nil)
	}

	if ctx.Err() != nil {
		report(ProcessCanceled, "", ErrCanceled)
		return
	}
	if err := writeImage(t.Dest, img, t.Settings); err != nil {
		logger.Warn("batch_write_failed", zap.String("dest", t.Dest), zap.Error(err))
		report(ProcessFailed, "", err)
		return
	}
	logger.Debug("batch_item_done", zap.String("source", t.Source), zap.String("dest", t.Dest))
	report(ProcessDone, "", nil)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode source image %s: %w", path, err)
	}
	return img, nil
}

// writeImage encodes into a temporary file next to dest and renames it
// into place.
func writeImage(dest string, img image.Image, s QueueSettings) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".batch_*"+s.Format.Ext())
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", dest, err)
	}
	tmpPath := tmpFile.Name()
	keepTemp := false
	closed := false
	defer func() {
		if !closed {
			_ = tmpFile.Close()
		}
		if !keepTemp {
			_ = os.Remove(tmpPath)
		}
	}()

	switch s.Format {
	case FormatPNG:
		err = png.Encode(tmpFile, img)
	default:
		err = jpeg.Encode(tmpFile, img, &jpeg.Options{Quality: s.JPEGQuality})
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", dest, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	closed = true

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("move %s into place: %w", dest, err)
	}
	keepTemp = true
	return nil
}
