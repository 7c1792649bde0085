package batch

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Tool is one stage of an item's processing chain
type Tool interface {
	Name() string
	Apply(ctx context.Context, img image.Image) (image.Image, error)
}

// ResizeTool scales the image; a zero dimension keeps the aspect ratio
type ResizeTool struct {
	Width, Height uint
}

func (ResizeTool) Name() string { return "resize" }

func (t ResizeTool) Apply(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Width == 0 && t.Height == 0 {
		return nil, fmt.Errorf("resize: no target size")
	}
	return resize.Resize(t.Width, t.Height, img, resize.Lanczos3), nil
}

// GrayscaleTool converts the image to 8-bit gray
type GrayscaleTool struct{}

func (GrayscaleTool) Name() string { return "grayscale" }

func (GrayscaleTool) Apply(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out, nil
}

// FlipTool mirrors the image horizontally or vertically
type FlipTool struct {
	Vertical bool
}

func (FlipTool) Name() string { return "flip" }

func (t FlipTool) Apply(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	src := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(src.Bounds())
	for y := range h {
		for x := range w {
			sx, sy := w-1-x, y
			if t.Vertical {
				sx, sy = x, h-1-y
			}
			out.SetRGBA(x, y, src.RGBAAt(sx, sy))
		}
	}
	return out, nil
}

// CropTool keeps the part of the image inside Rect
type CropTool struct {
	Rect image.Rectangle
}

func (CropTool) Name() string { return "crop" }

func (t CropTool) Apply(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	r := t.Rect.Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("crop: %v outside image %v", t.Rect, b)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out, nil
}

// ParseTool builds a tool from its command line form: resize:WxH,
// grayscale, flip:h, flip:v or crop:X0,Y0,X1,Y1.
func ParseTool(s string) (Tool, error) {
	name, arg, _ := strings.Cut(s, ":")
	switch name {
	case "resize":
		ws, hs, ok := strings.Cut(arg, "x")
		if !ok {
			return nil, fmt.Errorf("resize wants WxH, got %q", arg)
		}
		w, err := parseUint(ws)
		if err != nil {
			return nil, fmt.Errorf("resize width: %w", err)
		}
		h, err := parseUint(hs)
		if err != nil {
			return nil, fmt.Errorf("resize height: %w", err)
		}
		return ResizeTool{Width: w, Height: h}, nil
	case "grayscale":
		return GrayscaleTool{}, nil
	case "flip":
		switch arg {
		case "", "h":
			return FlipTool{}, nil
		case "v":
			return FlipTool{Vertical: true}, nil
		}
		return nil, fmt.Errorf("flip wants h or v, got %q", arg)
	case "crop":
		parts := strings.Split(arg, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("crop wants X0,Y0,X1,Y1, got %q", arg)
		}
		var v [4]int
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("crop: %w", err)
			}
			v[i] = n
		}
		return CropTool{Rect: image.Rect(v[0], v[1], v[2], v[3])}, nil
	}
	return nil, fmt.Errorf("unknown tool %q", name)
}

func parseUint(s string) (uint, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	return uint(n), err
}
