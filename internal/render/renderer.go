package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"time"

	appLog "bibleclock/internal/log"
	"bibleclock/internal/model"
)

// Output file names inside the renderer's directory. frame.bin is the packed
// panel frame an external display daemon picks up; preview.png mirrors what
// the panel shows.
const (
	screenFile  = "screen.html"
	previewFile = "preview.png"
	frameFile   = "frame.bin"
	contentFile = "content.json"
)

// Renderer turns display content into panel artifacts: it writes the screen
// HTML, captures it with headless Chromium and packs the screenshot into a
// 1bpp frame.
type Renderer struct {
	dir       string
	width     int
	height    int
	threshold uint8
	timeout   time.Duration
}

// RenderOption adjusts a Renderer.
type RenderOption func(*Renderer)

// WithSize overrides the panel geometry.
func WithSize(width, height int) RenderOption {
	return func(r *Renderer) {
		if width > 0 && height > 0 {
			r.width = width
			r.height = height
		}
	}
}

// WithThreshold overrides the ink threshold.
func WithThreshold(t uint8) RenderOption {
	return func(r *Renderer) {
		if t > 0 {
			r.threshold = t
		}
	}
}

// WithCaptureTimeout bounds one Chromium capture.
func WithCaptureTimeout(d time.Duration) RenderOption {
	return func(r *Renderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRenderer writes its artifacts under dir, creating it if needed.
func NewRenderer(dir string, opts ...RenderOption) (*Renderer, error) {
	if dir == "" {
		return nil, fmt.Errorf("render: output dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("render: create output dir: %w", err)
	}
	r := &Renderer{
		dir:       dir,
		width:     PanelWidth,
		height:    PanelHeight,
		threshold: DefaultThreshold,
		timeout:   defaultCaptureTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name identifies the publisher in logs.
func (r *Renderer) Name() string { return "render" }

// Publish renders content to screen.html, preview.png and frame.bin.
func (r *Renderer) Publish(ctx context.Context, content model.DisplayContent) error {
	page, err := renderHTML(content, r.width, r.height)
	if err != nil {
		return fmt.Errorf("render: template: %w", err)
	}

	htmlPath := filepath.Join(r.dir, screenFile)
	if err := writeFileAtomic(htmlPath, page, 0o644); err != nil {
		return fmt.Errorf("render: write screen html: %w", err)
	}

	absPath, err := filepath.Abs(htmlPath)
	if err != nil {
		return fmt.Errorf("render: resolve screen path: %w", err)
	}
	shot, err := capturePNG(ctx, "file://"+absPath, r.width, r.height, r.timeout)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(r.dir, previewFile), shot, 0o644); err != nil {
		return fmt.Errorf("render: write preview: %w", err)
	}

	img, err := decodeNRGBA(shot)
	if err != nil {
		return fmt.Errorf("render: decode screenshot: %w", err)
	}
	frame, err := PackMono(img, r.threshold)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(r.dir, frameFile), frame, 0o644); err != nil {
		return fmt.Errorf("render: write frame: %w", err)
	}

	appLog.Debug("screen rendered", "title", content.Title(), "bytes", len(frame))
	return nil
}

// Simulation is the no-hardware publisher: it writes the screen HTML and the
// raw content JSON so development machines without Chromium still show what
// the panel would.
type Simulation struct {
	dir    string
	width  int
	height int
}

// NewSimulation writes its artifacts under dir, creating it if needed.
func NewSimulation(dir string) (*Simulation, error) {
	if dir == "" {
		return nil, fmt.Errorf("render: output dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("render: create output dir: %w", err)
	}
	return &Simulation{dir: dir, width: PanelWidth, height: PanelHeight}, nil
}

// Name identifies the publisher in logs.
func (s *Simulation) Name() string { return "simulation" }

// Publish writes screen.html and content.json.
func (s *Simulation) Publish(ctx context.Context, content model.DisplayContent) error {
	page, err := renderHTML(content, s.width, s.height)
	if err != nil {
		return fmt.Errorf("render: template: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, screenFile), page, 0o644); err != nil {
		return fmt.Errorf("render: write screen html: %w", err)
	}

	raw, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("render: marshal content: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, contentFile), raw, 0o644); err != nil {
		return fmt.Errorf("render: write content json: %w", err)
	}

	appLog.Info("simulated display", "title", content.Title(), "kind", content.Kind)
	return nil
}

// writeFileAtomic writes via a temp file in the same directory plus rename,
// so a display daemon reading frame.bin never sees a half-written file.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bibleclock-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// decodeNRGBA decodes a PNG into NRGBA regardless of its source color model.
func decodeNRGBA(data []byte) (*image.NRGBA, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, nil
}
