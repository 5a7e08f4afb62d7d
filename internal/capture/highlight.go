package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
)

var (
	outlineColor = color.RGBA{220, 38, 38, 255}
	rippleColor  = color.RGBA{66, 133, 244, 255}
)

const (
	outlineWidth = 3
	rippleRadius = 15
)

// Highlight outlines box on a PNG screenshot. A box outside the image leaves
// it unchanged.
func Highlight(screenshot []byte, box image.Rectangle) ([]byte, error) {
	img, err := decodeFrame(screenshot)
	if err != nil {
		return nil, err
	}
	marked := mark(img, box, false)

	var buf bytes.Buffer
	if err := png.Encode(&buf, marked); err != nil {
		return nil, fmt.Errorf("encode highlight: %w", err)
	}
	return buf.Bytes(), nil
}

// mark copies frame and outlines box, adding a click ripple at its center
// when ripple is set.
func mark(frame image.Image, box image.Rectangle, ripple bool) *image.RGBA {
	bounds := frame.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame, bounds.Min, draw.Src)

	if box.Empty() || !box.Overlaps(bounds) {
		return out
	}

	for i := 0; i < outlineWidth; i++ {
		r := box.Inset(i)
		if r.Empty() {
			break
		}
		x1, y1, x2, y2 := r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1
		drawLine(out, x1, y1, x2, y1, outlineColor)
		drawLine(out, x2, y1, x2, y2, outlineColor)
		drawLine(out, x2, y2, x1, y2, outlineColor)
		drawLine(out, x1, y2, x1, y1, outlineColor)
	}

	if ripple {
		c := image.Pt((box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2)
		drawRipple(out, c.X, c.Y)
	}
	return out
}

// drawLine draws a line between two points using Bresenham's algorithm.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy

	for {
		setPixelSafe(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func drawRipple(img *image.RGBA, x, y int) {
	for angle := 0.0; angle < 360; angle++ {
		rad := angle * math.Pi / 180
		px := x + int(float64(rippleRadius)*math.Cos(rad))
		py := y + int(float64(rippleRadius)*math.Sin(rad))
		setPixelSafe(img, px, py, rippleColor)
		setPixelSafe(img, px+1, py, rippleColor)
		setPixelSafe(img, px, py+1, rippleColor)
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
