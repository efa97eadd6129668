package engine

import (
	"image"

	iface "github.com/thejagger/tft-overlay/interface"
)

// Scan tuning. Windows advance in coarse steps; edge deltas and the
// normalization factors mirror the per-kind values the region table was
// tuned with.
const (
	scanStep = 10

	edgeDelta    = 30
	edgeNorm     = 2.0
	shopDelta    = 25
	shopNorm     = 1.5
	brightnessBx = 20
	brightnessBy = 20
)

// DetectRegion slides a fixed MinWidth x MinHeight window across the
// region in scanStep increments and emits a candidate for every window
// whose statistic exceeds the threshold. Windows are only placed fully
// inside the region, so no candidate ever leaves the frame bounds.
func DetectRegion(frame iface.Frame, region iface.SearchRegion, params iface.DetectParams) []iface.Candidate {
	if !frame.Valid() {
		return nil
	}
	reg := region.Pixels(frame.Width, frame.Height)
	winW, winH := params.MinWidth, params.MinHeight
	if winW <= 0 || winH <= 0 || reg.Width < winW || reg.Height < winH {
		return nil
	}
	var out []iface.Candidate
	for y := reg.Y; y+winH <= reg.Y+reg.Height; y += scanStep {
		for x := reg.X; x+winW <= reg.X+reg.Width; x += scanStep {
			score := windowScore(frame, x, y, winW, winH, region.Kind)
			if score > params.Threshold {
				out = append(out, iface.Candidate{
					Kind:       region.Kind,
					Rect:       iface.Rect{X: x, Y: y, Width: winW, Height: winH},
					Confidence: score,
				})
			}
		}
	}
	return out
}

// windowScore picks the per-kind statistic: mean brightness for the gold
// counter, banded edge density for the shop strip, generic edge density
// for everything else.
func windowScore(frame iface.Frame, x, y, w, h int, kind iface.ElementKind) float64 {
	switch kind {
	case iface.KindGold:
		return brightness(frame, x, y)
	case iface.KindShop:
		return edgeRatio(frame, x, y, w, h, shopDelta, shopNorm)
	default:
		return edgeRatio(frame, x, y, w, h, edgeDelta, edgeNorm)
	}
}

// edgeRatio returns the fraction of right/bottom neighbor pairs inside the
// window whose luminance difference exceeds delta, scaled by norm and
// clamped to [0,1].
func edgeRatio(frame iface.Frame, x, y, w, h, delta int, norm float64) float64 {
	edges, pairs := 0, 0
	for dy := 0; dy < h; dy++ {
		row := (y + dy) * frame.Width
		for dx := 0; dx < w; dx++ {
			i := row + x + dx
			v := int(frame.Pix[i])
			if dx+1 < w {
				pairs++
				if diff := v - int(frame.Pix[i+1]); diff > delta || -diff > delta {
					edges++
				}
			}
			if dy+1 < h {
				pairs++
				if diff := v - int(frame.Pix[i+frame.Width]); diff > delta || -diff > delta {
					edges++
				}
			}
		}
	}
	if pairs == 0 {
		return 0
	}
	score := float64(edges) / float64(pairs) * norm
	if score > 1 {
		score = 1
	}
	return score
}

// brightness returns the mean luminance of the fixed 20x20 block anchored
// at (x,y), normalized to [0,1]. The block is clipped at the frame edge.
func brightness(frame iface.Frame, x, y int) float64 {
	sum, n := 0, 0
	for dy := 0; dy < brightnessBy && y+dy < frame.Height; dy++ {
		row := (y + dy) * frame.Width
		for dx := 0; dx < brightnessBx && x+dx < frame.Width; dx++ {
			sum += int(frame.Pix[row+x+dx])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n) / 255.0
}

// FromImage converts a decoded frame image to a luminance buffer using
// integer BT.601 weights. *image.RGBA and *image.NRGBA take the fast path
// over the raw Pix slice.
func FromImage(img image.Image) iface.Frame {
	if img == nil {
		return iface.Frame{}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return iface.Frame{}
	}
	pix := make([]byte, w*h)

	var raw []uint8
	var stride, base int
	switch src := img.(type) {
	case *image.RGBA:
		raw, stride, base = src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y)
	case *image.NRGBA:
		raw, stride, base = src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y)
	}
	if raw != nil {
		idx := 0
		for y := 0; y < h; y++ {
			row := raw[base+y*stride : base+y*stride+w*4]
			for x := 0; x < w; x++ {
				i := x * 4
				r, g, bb := row[i], row[i+1], row[i+2]
				pix[idx] = byte((77*uint32(r) + 150*uint32(g) + 29*uint32(bb)) >> 8)
				idx++
			}
		}
		return iface.Frame{Pix: pix, Width: w, Height: h}
	}

	idx := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			pix[idx] = byte((77*(r>>8) + 150*(g>>8) + 29*(bb>>8)) >> 8)
			idx++
		}
	}
	return iface.Frame{Pix: pix, Width: w, Height: h}
}
