package engine

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	iface "github.com/thejagger/tft-overlay/interface"
)

const (
	testW = 640
	testH = 360
)

func uniformFrame(v byte) iface.Frame {
	pix := make([]byte, testW*testH)
	for i := range pix {
		pix[i] = v
	}
	return iface.Frame{Pix: pix, Width: testW, Height: testH}
}

// fillCheckerboard paints a 1px checkerboard into the given pixel rect so
// that every neighbor pair crosses the edge delta.
func fillCheckerboard(f iface.Frame, r iface.Rect) {
	for y := r.Y; y < r.Y+r.Height; y++ {
		for x := r.X; x < r.X+r.Width; x++ {
			if (x+y)%2 == 0 {
				f.Pix[y*f.Width+x] = 255
			} else {
				f.Pix[y*f.Width+x] = 0
			}
		}
	}
}

func fillBlock(f iface.Frame, r iface.Rect, v byte) {
	for y := r.Y; y < r.Y+r.Height; y++ {
		for x := r.X; x < r.X+r.Width; x++ {
			f.Pix[y*f.Width+x] = v
		}
	}
}

func TestDetector_All(t *testing.T) {
	d := &Detector{}

	t.Run("Test New", func(t *testing.T) {
		if !d.New() {
			t.Errorf("Detector.New() failed, expected true, got false")
		}
		assert.Equal(t, REGISTERED, d.State)
	})

	t.Run("Test Detect before Configure", func(t *testing.T) {
		ret := d.Detect(uniformFrame(128))
		assert.False(t, ret.Success)
		assert.Equal(t, "Regions not configured", ret.Data)
	})

	t.Run("Test Configure", func(t *testing.T) {
		err := d.Configure(DefaultSpecs())
		assert.NoError(t, err)
		assert.Equal(t, IDLE, d.State)
		assert.Len(t, d.CheckConfig(), 4)
	})

	t.Run("Test Detect uniform frame", func(t *testing.T) {
		ret := d.Detect(uniformFrame(128))
		assert.True(t, ret.Success)
		dict := ret.Data.(map[iface.ElementKind][]iface.Candidate)
		assert.Empty(t, dict[iface.KindAugment])
		assert.Empty(t, dict[iface.KindChampion])
		assert.Empty(t, dict[iface.KindShop])
		assert.Empty(t, dict[iface.KindGold])
	})

	t.Run("Test Detect busy", func(t *testing.T) {
		d.State = BUSY
		ret := d.Detect(uniformFrame(128))
		assert.False(t, ret.Success)
		assert.Equal(t, "Detector is busy", ret.Data)
		d.State = IDLE
	})

	t.Run("Test Detect malformed buffer", func(t *testing.T) {
		ret := d.Detect(iface.Frame{Pix: make([]byte, 100), Width: testW, Height: testH})
		assert.False(t, ret.Success)
		assert.Equal(t, "Malformed frame buffer", ret.Data)
		assert.Equal(t, IDLE, d.State)
	})

	t.Run("Test Destroy", func(t *testing.T) {
		d.Destroy()
		assert.Equal(t, UNREGISTERED, d.State)
		assert.Nil(t, d.Specs)
		ret := d.Detect(uniformFrame(0))
		assert.False(t, ret.Success)
		assert.Equal(t, "Detector not registered", ret.Data)
	})
}

func TestDetectAugmentRegion(t *testing.T) {
	frame := uniformFrame(40)
	specs := DefaultSpecs()
	augment := specs[0].Region
	fillCheckerboard(frame, augment.Pixels(testW, testH))

	d := &Detector{}
	d.New()
	assert.NoError(t, d.Configure(specs))

	ret := d.Detect(frame)
	assert.True(t, ret.Success)
	dict := ret.Data.(map[iface.ElementKind][]iface.Candidate)
	assert.NotEmpty(t, dict[iface.KindAugment])
	for _, c := range dict[iface.KindAugment] {
		assert.Equal(t, iface.KindAugment, c.Kind)
		assert.InDelta(t, 1.0, c.Confidence, 0.0001)
	}
}

func TestDetectGoldBrightness(t *testing.T) {
	frame := uniformFrame(20)
	specs := DefaultSpecs()
	gold := specs[3]
	fillBlock(frame, gold.Region.Pixels(testW, testH), 230)

	cands := DetectRegion(frame, gold.Region, gold.Params)
	assert.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Equal(t, iface.KindGold, c.Kind)
		assert.InDelta(t, 230.0/255.0, c.Confidence, 0.01)
		assert.Equal(t, gold.Params.MinWidth, c.Rect.Width)
		assert.Equal(t, gold.Params.MinHeight, c.Rect.Height)
	}
}

// Candidates must never leave the frame, whatever the frame contents.
func TestCandidatesStayInBounds(t *testing.T) {
	frame := uniformFrame(0)
	seed := uint32(0x9e3779b9)
	for i := range frame.Pix {
		seed = seed*1664525 + 1013904223
		frame.Pix[i] = byte(seed >> 24)
	}

	for _, spec := range DefaultSpecs() {
		spec := spec
		t.Run(string(spec.Region.Kind), func(t *testing.T) {
			cands := DetectRegion(frame, spec.Region, spec.Params)
			for _, c := range cands {
				assert.GreaterOrEqual(t, c.Rect.X, 0)
				assert.GreaterOrEqual(t, c.Rect.Y, 0)
				assert.LessOrEqual(t, c.Rect.X+c.Rect.Width, testW)
				assert.LessOrEqual(t, c.Rect.Y+c.Rect.Height, testH)
				assert.GreaterOrEqual(t, c.Confidence, 0.0)
				assert.LessOrEqual(t, c.Confidence, 1.0)
			}
		})
	}
}

// Confidence must grow with edge density: 1px stripes produce more
// neighbor transitions than 4px stripes.
func TestEdgeRatioMonotonic(t *testing.T) {
	dense := uniformFrame(0)
	sparse := uniformFrame(0)
	for y := 0; y < testH; y++ {
		for x := 0; x < testW; x++ {
			if x%2 == 0 {
				dense.Pix[y*testW+x] = 255
			}
			if (x/4)%2 == 0 {
				sparse.Pix[y*testW+x] = 255
			}
		}
	}
	dScore := edgeRatio(dense, 100, 100, 50, 50, edgeDelta, edgeNorm)
	sScore := edgeRatio(sparse, 100, 100, 50, 50, edgeDelta, edgeNorm)
	assert.Greater(t, dScore, sScore)
	assert.LessOrEqual(t, dScore, 1.0)
}

func TestRegionTooSmallForWindow(t *testing.T) {
	frame := uniformFrame(255)
	region := iface.SearchRegion{Kind: iface.KindGold, XPct: 0.95, YPct: 0.95, WidthPct: 0.05, HeightPct: 0.05}
	params := iface.DetectParams{MinWidth: 200, MaxWidth: 200, MinHeight: 200, MaxHeight: 200, Threshold: 0.1}
	assert.Empty(t, DetectRegion(frame, region, params))
}

func TestConfigureRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name   string
		params iface.DetectParams
	}{
		{"zero window", iface.DetectParams{MinWidth: 0, MaxWidth: 10, MinHeight: 10, MaxHeight: 10, Threshold: 0.5}},
		{"max below min", iface.DetectParams{MinWidth: 20, MaxWidth: 10, MinHeight: 10, MaxHeight: 10, Threshold: 0.5}},
		{"threshold out of range", iface.DetectParams{MinWidth: 10, MaxWidth: 10, MinHeight: 10, MaxHeight: 10, Threshold: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Detector{}
			d.New()
			err := d.Configure([]RegionSpec{{
				Region: iface.SearchRegion{Kind: iface.KindShop, WidthPct: 1, HeightPct: 1},
				Params: tt.params,
			}})
			assert.Error(t, err)
		})
	}
}

func TestFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})

	frame := FromImage(img)
	assert.True(t, frame.Valid())
	assert.Equal(t, 2, frame.Width)
	assert.Equal(t, 1, frame.Height)
	assert.Equal(t, byte((77*255+150*255+29*255)>>8), frame.Pix[0])
	assert.Equal(t, byte(0), frame.Pix[1])
}

func TestFromImageSubImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	img.SetNRGBA(2, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	sub := img.SubImage(image.Rect(2, 2, 4, 4)).(*image.NRGBA)
	frame := FromImage(sub)
	assert.True(t, frame.Valid())
	assert.Equal(t, 2, frame.Width)
	assert.Equal(t, 2, frame.Height)
	assert.Equal(t, byte((77*255+150*255+29*255)>>8), frame.Pix[0])
	assert.Equal(t, byte(0), frame.Pix[1])
	assert.Equal(t, byte(0), frame.Pix[2])
	assert.Equal(t, byte(0), frame.Pix[3])
}
