package capture

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nfnt/resize"
)

// ReplayOptions configures replay GIF generation.
type ReplayOptions struct {
	FPS      int
	MaxWidth uint
}

// Replay collects one screenshot per executed step so a failing test can be
// written out as an animated GIF.
type Replay struct {
	mu     sync.Mutex
	frames []image.Image
}

// Add decodes a PNG screenshot and appends it as a frame.
func (r *Replay) Add(screenshot []byte) error {
	img, err := decodeFrame(screenshot)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, img)
	r.mu.Unlock()
	return nil
}

// AddMarked appends a screenshot with box outlined and a click ripple at its
// center.
func (r *Replay) AddMarked(screenshot []byte, box image.Rectangle) error {
	img, err := decodeFrame(screenshot)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, mark(img, box, true))
	r.mu.Unlock()
	return nil
}

// Len returns the number of frames.
func (r *Replay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Reset drops all frames.
func (r *Replay) Reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

// Write encodes the frames as a looping GIF and returns the file size.
func (r *Replay) Write(outputPath string, opts ReplayOptions) (int64, error) {
	r.mu.Lock()
	frames := append([]image.Image(nil), r.frames...)
	r.mu.Unlock()

	if len(frames) == 0 {
		return 0, ErrNoFrames
	}
	if opts.FPS <= 0 {
		opts.FPS = 1
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 800
	}

	// Delay is in 100ths of a second.
	delay := 100 / opts.FPS

	bounds := frames[0].Bounds()
	width := opts.MaxWidth
	if uint(bounds.Dx()) < width {
		width = uint(bounds.Dx())
	}
	height := uint(float64(width) * float64(bounds.Dy()) / float64(bounds.Dx()))
	if height == 0 {
		height = 1
	}

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	palette := framePalette(frames[0])
	for i, frame := range frames {
		resized := resize.Resize(width, height, frame, resize.Lanczos3)
		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})
		g.Image[i] = paletted
		g.Delay[i] = delay
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := gif.EncodeAll(f, g); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// framePalette builds a 256-color palette from the most frequent colors of
// img, sampling every 4th pixel.
func framePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int)
	const step = 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			counts[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}]++
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	ranked := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		ranked = append(ranked, colorCount{c, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		a, b := ranked[i].c, ranked[j].c
		return uint32(a.R)<<24|uint32(a.G)<<16|uint32(a.B)<<8|uint32(a.A) <
			uint32(b.R)<<24|uint32(b.G)<<16|uint32(b.B)<<8|uint32(b.A)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for i := 0; i < len(ranked) && len(palette) < 256; i++ {
		palette = append(palette, ranked[i].c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}
