package engine

import (
	"fmt"

	iface "github.com/thejagger/tft-overlay/interface"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

// RegionSpec binds one search region to its scan parameters.
type RegionSpec struct {
	Region iface.SearchRegion
	Params iface.DetectParams
}

// Detector scans fixed fractional regions of a luminance frame for
// edge-density and brightness signals. It is a heuristic scan, not a
// classifier: no training, no calibration, high false rates against real
// footage are expected.
type Detector struct {
	Specs        []RegionSpec
	State        int
	ErrorMessage string
}

func (d *Detector) New() bool {
	d.State = REGISTERED
	return true
}

// Configure installs the region/parameter table and moves the detector to
// IDLE. It rejects specs whose window bounds are inconsistent.
func (d *Detector) Configure(specs []RegionSpec) error {
	if d.State == UNREGISTERED {
		return fmt.Errorf("detector not registered")
	}
	for _, s := range specs {
		p := s.Params
		if p.MinWidth <= 0 || p.MinHeight <= 0 {
			return fmt.Errorf("region %s: window size must be positive", s.Region.Kind)
		}
		if p.MaxWidth < p.MinWidth || p.MaxHeight < p.MinHeight {
			return fmt.Errorf("region %s: max window smaller than min window", s.Region.Kind)
		}
		if p.Threshold < 0 || p.Threshold > 1 {
			return fmt.Errorf("region %s: threshold must be in [0,1]", s.Region.Kind)
		}
	}
	d.Specs = specs
	d.State = IDLE
	return nil
}

// CheckConfig returns a copy of the installed region table.
func (d *Detector) CheckConfig() []RegionSpec {
	out := make([]RegionSpec, len(d.Specs))
	copy(out, d.Specs)
	return out
}

func (d *Detector) Destroy() {
	d.Specs = nil
	d.State = UNREGISTERED
	d.ErrorMessage = ""
}

// Detect runs every configured region against the frame and returns the
// tagged candidates as map[iface.ElementKind][]iface.Candidate. Results
// from different regions are concatenated as-is; no non-maximum
// suppression is applied, so adjacent windows may both fire.
func (d *Detector) Detect(frame iface.Frame) iface.RetData {
	switch d.State {
	case UNREGISTERED:
		return iface.RetData{Success: false, Data: "Detector not registered"}
	case REGISTERED:
		return iface.RetData{Success: false, Data: "Regions not configured"}
	case BUSY:
		return iface.RetData{Success: false, Data: "Detector is busy"}
	}
	if !frame.Valid() {
		return iface.RetData{Success: false, Data: "Malformed frame buffer"}
	}
	d.State = BUSY
	resultDict := make(map[iface.ElementKind][]iface.Candidate)
	for _, spec := range d.Specs {
		resultDict[spec.Region.Kind] = []iface.Candidate{}
	}
	for _, spec := range d.Specs {
		cands := DetectRegion(frame, spec.Region, spec.Params)
		resultDict[spec.Region.Kind] = append(resultDict[spec.Region.Kind], cands...)
	}
	d.State = IDLE
	return iface.RetData{Success: true, Data: resultDict}
}

var _ iface.Analyzer = (*Detector)(nil)

// DefaultSpecs returns the fixed region table tuned for 16:9 TFT stream
// layouts: augment choices across the top, board champions mid-frame, the
// shop strip along the bottom and the gold counter above it.
func DefaultSpecs() []RegionSpec {
	return []RegionSpec{
		{
			Region: iface.SearchRegion{Kind: iface.KindAugment, XPct: 0.25, YPct: 0.02, WidthPct: 0.50, HeightPct: 0.16},
			Params: iface.DetectParams{MinWidth: 50, MaxWidth: 90, MinHeight: 50, MaxHeight: 90, Threshold: 0.30},
		},
		{
			Region: iface.SearchRegion{Kind: iface.KindChampion, XPct: 0.12, YPct: 0.22, WidthPct: 0.76, HeightPct: 0.48},
			Params: iface.DetectParams{MinWidth: 60, MaxWidth: 110, MinHeight: 70, MaxHeight: 120, Threshold: 0.28},
		},
		{
			Region: iface.SearchRegion{Kind: iface.KindShop, XPct: 0.16, YPct: 0.84, WidthPct: 0.60, HeightPct: 0.14},
			Params: iface.DetectParams{MinWidth: 100, MaxWidth: 140, MinHeight: 60, MaxHeight: 90, Threshold: 0.35},
		},
		{
			Region: iface.SearchRegion{Kind: iface.KindGold, XPct: 0.42, YPct: 0.77, WidthPct: 0.09, HeightPct: 0.06},
			Params: iface.DetectParams{MinWidth: 20, MaxWidth: 40, MinHeight: 20, MaxHeight: 40, Threshold: 0.55},
		},
	}
}
