package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnail_Downscales(t *testing.T) {
	data, err := Thumbnail(solidPNG(t, 640, 400, color.White), 320)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestThumbnail_KeepsSmallImages(t *testing.T) {
	data, err := Thumbnail(solidPNG(t, 100, 50, color.Black), 320)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestThumbnail_RejectsGarbage(t *testing.T) {
	_, err := Thumbnail([]byte("not a png"), 0)
	assert.Error(t, err)
}

func TestReplay_Write(t *testing.T) {
	var r Replay
	require.NoError(t, r.Add(solidPNG(t, 200, 100, color.White)))
	require.NoError(t, r.Add(solidPNG(t, 200, 100, color.RGBA{R: 255, A: 255})))
	assert.Equal(t, 2, r.Len())

	path := filepath.Join(t.TempDir(), "replay.gif")
	size, err := r.Write(path, ReplayOptions{FPS: 2, MaxWidth: 100})
	require.NoError(t, err)
	assert.Positive(t, size)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, g.Image, 2)
	assert.Equal(t, 50, g.Delay[0])
	assert.Equal(t, 100, g.Image[0].Bounds().Dx())
}

func TestReplay_Empty(t *testing.T) {
	var r Replay
	_, err := r.Write(filepath.Join(t.TempDir(), "x.gif"), ReplayOptions{})
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	path, err := WriteFile(dir, "x.png", []byte("data"))
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestHighlight_OutlinesBox(t *testing.T) {
	box := image.Rect(20, 10, 60, 40)
	out, err := Highlight(solidPNG(t, 100, 50, color.White), box)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), img.Bounds())

	r, g, b, _ := img.At(20, 10).RGBA()
	assert.Equal(t, [3]uint32{0xdcdc, 0x2626, 0x2626}, [3]uint32{r, g, b})
	r, g, b, _ = img.At(40, 25).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b}, "interior untouched")
}

func TestHighlight_BoxOutsideImage(t *testing.T) {
	src := solidPNG(t, 40, 40, color.White)
	out, err := Highlight(src, image.Rect(100, 100, 120, 120))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			require.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})
		}
	}
}

func TestHighlight_BadInput(t *testing.T) {
	_, err := Highlight([]byte("not a png"), image.Rect(0, 0, 5, 5))
	assert.Error(t, err)
}

func TestReplay_AddMarked(t *testing.T) {
	var r Replay
	require.NoError(t, r.AddMarked(solidPNG(t, 80, 80, color.White), image.Rect(10, 10, 70, 70)))
	assert.Equal(t, 1, r.Len())
	assert.Error(t, r.AddMarked([]byte("x"), image.Rect(0, 0, 1, 1)))
	assert.Equal(t, 1, r.Len())
}
