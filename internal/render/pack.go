package render

import (
	"fmt"
	"image"
)

// Panel geometry (7.5" mono, landscape).
const (
	PanelWidth      = 800
	PanelHeight     = 480
	PanelByteStride = PanelWidth / 8 // 100 bytes per row
	PanelFrameSize  = PanelByteStride * PanelHeight
)

// DefaultThreshold separates ink from paper when quantizing the rendered
// screen. Text is near-black on white, so the midpoint works.
const DefaultThreshold = 128

// PackMono converts an image.NRGBA into a packed 1bpp frame for the mono
// panel.
//
//   - img width must be exactly PanelWidth.
//   - img height must be >= PanelHeight; taller images are center-cropped.
//   - A pixel inks when its luma falls below threshold; transparent pixels
//     (alpha < 128) count as paper.
//
// Packing is y-major, MSB-first:
//
//	byteIndex = y*PanelByteStride + (x >> 3)
//	mask      = 0x80 >> (x & 7)
//
// Every bit starts at 1 (paper); inked pixels clear their bit.
func PackMono(img *image.NRGBA, threshold uint8) ([]byte, error) {
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()

	if w != PanelWidth {
		return nil, fmt.Errorf("render: expected width %d, got %d", PanelWidth, w)
	}
	if h < PanelHeight {
		return nil, fmt.Errorf("render: expected height >= %d, got %d", PanelHeight, h)
	}

	startY := b.Min.Y + (h-PanelHeight)/2

	frame := make([]byte, PanelFrameSize)
	for i := range frame {
		frame[i] = 0xFF
	}

	// Walk the pixel buffer directly; At() per pixel is too slow on a Pi.
	for py := 0; py < PanelHeight; py++ {
		rowOff := (startY - b.Min.Y + py) * img.Stride

		for px := 0; px < PanelWidth; px++ {
			i := rowOff + px*4

			r := img.Pix[i+0]
			g := img.Pix[i+1]
			bl := img.Pix[i+2]
			a := img.Pix[i+3]

			if a < 128 {
				continue
			}

			// Luma (perceptual brightness).
			y := (299*uint32(r) + 587*uint32(g) + 114*uint32(bl)) / 1000
			if y >= uint32(threshold) {
				continue
			}

			byteIndex := py*PanelByteStride + (px >> 3)
			frame[byteIndex] &^= byte(0x80 >> (px & 7))
		}
	}

	return frame, nil
}
