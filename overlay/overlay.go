// Package overlay runs the periodic detection tick and holds the overlay
// state served to clients: the last detected elements and a ready flag.
// Ticks are serialized by an in-progress guard; a tick that fires while
// the previous one still runs is dropped, never queued.
package overlay

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thejagger/tft-overlay/capture"
	"github.com/thejagger/tft-overlay/engine"
	iface "github.com/thejagger/tft-overlay/interface"
	"github.com/thejagger/tft-overlay/monitor"
)

// Element is one overlay entry: a detection hit, optionally labeled with
// game-data info (test injections carry titles, heuristic hits only
// geometry).
type Element struct {
	Kind       iface.ElementKind `json:"kind"`
	Rect       iface.Rect        `json:"rect"`
	Confidence float64           `json:"confidence"`
	Title      string            `json:"title,omitempty"`
	Tier       string            `json:"tier,omitempty"`
}

// Update is the payload broadcast to overlay clients after each tick.
type Update struct {
	Type     string    `json:"type"`
	Elements []Element `json:"elements"`
	Sequence uint64    `json:"sequence"`
	At       time.Time `json:"at"`
	Test     bool      `json:"test,omitempty"`
}

// Status summarizes the pipeline for the status endpoint.
type Status struct {
	Ready      bool      `json:"ready"`
	Elements   int       `json:"elements"`
	LastTick   time.Time `json:"lastTick"`
	Ticks      uint64    `json:"ticks"`
	Skipped    uint64    `json:"skipped"`
	LastError  string    `json:"lastError,omitempty"`
	LastSource uint64    `json:"lastFrameSequence"`
}

// FrameSource provides the freshest captured frame.
type FrameSource interface {
	LatestFrame() capture.FrameSnapshot
	Running() bool
}

// Service drives analyzer ticks against the frame source and publishes
// results through the hub. All writes happen on the tick path; reads take
// snapshots.
type Service struct {
	analyzer iface.Analyzer
	frames   FrameSource
	hub      *Hub
	log      *zap.Logger
	interval time.Duration

	inProgress atomic.Bool
	ticks      atomic.Uint64
	skipped    atomic.Uint64

	mu        sync.RWMutex
	elements  []Element
	ready     bool
	lastTick  time.Time
	lastError string
	lastSeq   uint64
}

func NewService(analyzer iface.Analyzer, frames FrameSource, hub *Hub, interval time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Service{analyzer: analyzer, frames: frames, hub: hub, log: log, interval: interval}
}

// Start runs the tick loop until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Tick processes the latest frame once. It returns false when the tick was
// dropped because a previous one is still running. Failures degrade to an
// empty element list for this tick only.
func (s *Service) Tick() bool {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		monitor.TicksSkipped.Inc()
		return false
	}
	defer s.inProgress.Store(false)

	s.ticks.Add(1)
	monitor.TicksTotal.Inc()

	snap := s.frames.LatestFrame()
	if snap.Image == nil {
		s.store(nil, "no frame available", snap.Sequence, false)
		return true
	}
	ret := s.analyzer.Detect(engine.FromImage(snap.Image))
	if !ret.Success {
		reason, _ := ret.Data.(string)
		s.log.Warn("detection tick failed", zap.String("reason", reason))
		s.store(nil, reason, snap.Sequence, false)
		return true
	}
	dict, ok := ret.Data.(map[iface.ElementKind][]iface.Candidate)
	if !ok {
		s.store(nil, "unexpected detection payload", snap.Sequence, false)
		return true
	}
	s.store(flatten(dict), "", snap.Sequence, false)
	return true
}

// InjectTest replaces the overlay state with a synthetic element set and
// broadcasts it, for client verification without live detection.
func (s *Service) InjectTest(elements []Element) {
	s.store(elements, "", 0, true)
}

func (s *Service) store(elements []Element, errMsg string, seq uint64, test bool) {
	if elements == nil {
		elements = []Element{}
	}
	s.mu.Lock()
	s.elements = elements
	s.lastTick = time.Now()
	s.lastError = errMsg
	s.lastSeq = seq
	if errMsg == "" {
		s.ready = true
	}
	update := Update{Type: "elements", Elements: elements, Sequence: seq, At: s.lastTick, Test: test}
	s.mu.Unlock()
	if s.hub != nil {
		s.hub.Broadcast(update)
	}
}

// Elements returns a copy of the current overlay elements.
func (s *Service) Elements() []Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Element, len(s.elements))
	copy(out, s.elements)
	return out
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Ready:      s.ready,
		Elements:   len(s.elements),
		LastTick:   s.lastTick,
		Ticks:      s.ticks.Load(),
		Skipped:    s.skipped.Load(),
		LastError:  s.lastError,
		LastSource: s.lastSeq,
	}
}

var kindOrder = map[iface.ElementKind]int{
	iface.KindAugment:  0,
	iface.KindChampion: 1,
	iface.KindShop:     2,
	iface.KindGold:     3,
}

// flatten concatenates the per-kind candidate lists into one ordered
// element slice: by kind, then left to right, top to bottom.
func flatten(dict map[iface.ElementKind][]iface.Candidate) []Element {
	var out []Element
	for _, cands := range dict {
		for _, c := range cands {
			out = append(out, Element{Kind: c.Kind, Rect: c.Rect, Confidence: c.Confidence})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if kindOrder[out[i].Kind] != kindOrder[out[j].Kind] {
			return kindOrder[out[i].Kind] < kindOrder[out[j].Kind]
		}
		if out[i].Rect.X != out[j].Rect.X {
			return out[i].Rect.X < out[j].Rect.X
		}
		return out[i].Rect.Y < out[j].Rect.Y
	})
	return out
}
