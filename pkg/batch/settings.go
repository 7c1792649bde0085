// Package batch runs queues of image files through ordered chains of tools.
// Items are processed in parallel, the tools of one item strictly in order.
package batch

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var (
	ErrCanceled        = errors.New("batch canceled")
	ErrInvalidSettings = errors.New("invalid queue settings")
)

// Format is the output image format
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Ext returns the file extension of the format
func (f Format) Ext() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// ConflictRule decides what happens when the output file exists
type ConflictRule int

const (
	ConflictOverwrite ConflictRule = iota
	ConflictSkip
	ConflictRename
)

func (c ConflictRule) String() string {
	switch c {
	case ConflictOverwrite:
		return "overwrite"
	case ConflictSkip:
		return "skip"
	case ConflictRename:
		return "rename"
	}
	return fmt.Sprintf("ConflictRule(%d)", int(c))
}

// ParseConflictRule parses overwrite, skip or rename
func ParseConflictRule(s string) (ConflictRule, error) {
	switch strings.ToLower(s) {
	case "overwrite":
		return ConflictOverwrite, nil
	case "skip":
		return ConflictSkip, nil
	case "rename", "":
		return ConflictRename, nil
	}
	return 0, fmt.Errorf("unknown conflict rule %q", s)
}

const defaultJPEGQuality = 90

// QueueSettings configures one queue run
type QueueSettings struct {
	UseMultiCore bool
	OutputDir    string
	Format       Format
	JPEGQuality  int
	Conflict     ConflictRule
}

// DefaultSettings writes JPEG files next to the working directory, renaming on conflict
func DefaultSettings() QueueSettings {
	return QueueSettings{
		UseMultiCore: true,
		OutputDir:    ".",
		Format:       FormatJPEG,
		JPEGQuality:  defaultJPEGQuality,
		Conflict:     ConflictRename,
	}
}

// Validate checks the settings
func (s QueueSettings) Validate() error {
	if s.OutputDir == "" {
		return fmt.Errorf("%w: empty output directory", ErrInvalidSettings)
	}
	if s.Format != FormatJPEG && s.Format != FormatPNG {
		return fmt.Errorf("%w: format %q", ErrInvalidSettings, s.Format)
	}
	if s.Format == FormatJPEG && (s.JPEGQuality < 1 || s.JPEGQuality > 100) {
		return fmt.Errorf("%w: jpeg quality %d", ErrInvalidSettings, s.JPEGQuality)
	}
	return nil
}

// Workers returns the size of the worker pool
func (s QueueSettings) Workers() int {
	if s.UseMultiCore {
		return max(runtime.NumCPU(), 1)
	}
	return 1
}
