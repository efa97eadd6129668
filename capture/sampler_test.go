package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: byte(x), G: byte(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSampleGuard(t *testing.T) {
	s := NewSampler(Options{StreamURL: "https://example.invalid"}, nil)

	// Hold the guard as a running sample would; the overlapping call must
	// return immediately and count as skipped.
	s.inProgress.Store(true)
	_, err := s.SampleNow()
	assert.ErrorIs(t, err, ErrSampleInProgress)
	assert.Equal(t, uint64(1), s.Stats().Skipped)
	s.inProgress.Store(false)

	// Without a browser session the guarded path reports not-started and
	// releases the guard for the next tick.
	_, err = s.SampleNow()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = s.SampleNow()
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Equal(t, uint64(1), s.Stats().Skipped)
}

func TestInvalidateSelectorReprobes(t *testing.T) {
	s := NewSampler(Options{StreamURL: "https://example.invalid"}, nil)

	// Simulate a located video element, as a successful probe would leave it.
	sel := VideoSelectors[0]
	s.selector.Store(&sel)
	s.videoFound.Store(true)
	assert.True(t, s.Stats().VideoFound)
	assert.Equal(t, sel, s.Stats().Selector)

	// A failed screenshot drops the cache; the stale selector must not be
	// reported or reused by the next probe.
	s.invalidateSelector()
	assert.False(t, s.Stats().VideoFound)
	assert.Empty(t, s.Stats().Selector)
}

func TestLatestFrameEmpty(t *testing.T) {
	s := NewSampler(Options{}, nil)
	snap := s.LatestFrame()
	assert.Nil(t, snap.Image)
	assert.True(t, snap.CapturedAt.IsZero())
	assert.False(t, s.Running())
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage(encodePNG(t, 64, 36))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 36, img.Bounds().Dy())

	_, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestDownscale(t *testing.T) {
	src, err := DecodeImage(encodePNG(t, 200, 100))
	require.NoError(t, err)

	t.Run("shrinks wide frames", func(t *testing.T) {
		out := Downscale(src, 100)
		assert.Equal(t, 100, out.Bounds().Dx())
		assert.Equal(t, 50, out.Bounds().Dy())
	})

	t.Run("passes small frames through", func(t *testing.T) {
		out := Downscale(src, 400)
		assert.Equal(t, 200, out.Bounds().Dx())
		assert.Equal(t, 100, out.Bounds().Dy())
	})

	t.Run("zero width disables scaling", func(t *testing.T) {
		out := Downscale(src, 0)
		assert.Equal(t, 200, out.Bounds().Dx())
	})
}
