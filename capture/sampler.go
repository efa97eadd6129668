// Package capture samples frames from a live stream page. It drives a
// headless browser over the DevTools protocol, locates the stream's video
// element by probing a fixed list of selector candidates and screenshots
// it on a fixed cadence. Overlapping samples are skipped, never queued.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// ErrSampleInProgress is returned when a sample fires while the previous
// one is still running.
var ErrSampleInProgress = errors.New("sample already in progress")

// ErrNotStarted is returned when the sampler has no live browser context.
var ErrNotStarted = errors.New("sampler not started")

// VideoSelectors is the ordered candidate list probed for the stream's
// video element. The first selector that resolves to a node wins.
var VideoSelectors = []string{
	`div[data-a-target="video-player"] video`,
	`.video-player__container video`,
	`.video-player video`,
	`video[playsinline]`,
	`video`,
}

const (
	probeTimeout    = 2 * time.Second
	snapshotTimeout = 5 * time.Second
)

// FrameSnapshot is the freshest captured frame plus bookkeeping.
type FrameSnapshot struct {
	Image      *image.NRGBA
	CapturedAt time.Time
	Sequence   uint64
}

// Stats is a point-in-time view of the sampler counters.
type Stats struct {
	Captures   uint64    `json:"captures"`
	Skipped    uint64    `json:"skipped"`
	VideoFound bool      `json:"videoFound"`
	Selector   string    `json:"selector"`
	LastFrame  time.Time `json:"lastFrame"`
}

// Options configures a Sampler.
type Options struct {
	StreamURL    string
	Interval     time.Duration
	WorkingWidth int
	Headless     bool
}

// Sampler owns the browser session and the periodic capture loop.
// LatestFrame never blocks; consumers always see the newest complete
// snapshot.
type Sampler struct {
	opts Options
	log  *zap.Logger

	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	running    atomic.Bool
	inProgress atomic.Bool
	latest     atomic.Pointer[FrameSnapshot]
	captures   atomic.Uint64
	skipped    atomic.Uint64
	sequence   atomic.Uint64
	videoFound atomic.Bool
	selector   atomic.Pointer[string]
}

func NewSampler(opts Options, log *zap.Logger) *Sampler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	return &Sampler{opts: opts, log: log}
}

// Start launches the browser, navigates to the stream page and begins the
// sampling loop. It returns once navigation completed.
func (s *Sampler) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(1280, 720),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx, chromedp.Navigate(s.opts.StreamURL)); err != nil {
		browserStop()
		allocCancel()
		return fmt.Errorf("navigate %s: %w", s.opts.StreamURL, err)
	}
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserStop = browserStop
	s.running.Store(true)
	s.log.Info("sampler started", zap.String("url", s.opts.StreamURL), zap.Duration("interval", s.opts.Interval))
	go s.loop(ctx)
	return nil
}

// Stop ends the loop and tears down the browser session.
func (s *Sampler) Stop() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	if s.browserStop != nil {
		s.browserStop()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.log.Info("sampler stopped")
}

func (s *Sampler) Running() bool { return s.running.Load() }

// LatestFrame returns the newest snapshot, zero if nothing was captured yet.
func (s *Sampler) LatestFrame() FrameSnapshot {
	snap := s.latest.Load()
	if snap == nil {
		return FrameSnapshot{}
	}
	return *snap
}

func (s *Sampler) Stats() Stats {
	st := Stats{
		Captures:   s.captures.Load(),
		Skipped:    s.skipped.Load(),
		VideoFound: s.videoFound.Load(),
	}
	if sel := s.selector.Load(); sel != nil {
		st.Selector = *sel
	}
	if snap := s.latest.Load(); snap != nil {
		st.LastFrame = snap.CapturedAt
	}
	return st
}

func (s *Sampler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-ticker.C:
			if !s.running.Load() {
				return
			}
			if _, err := s.SampleNow(); err != nil && !errors.Is(err, ErrSampleInProgress) {
				s.log.Warn("sample failed", zap.Error(err))
			}
		}
	}
}

// SampleNow captures one frame immediately. A call that overlaps a running
// sample returns ErrSampleInProgress without touching the browser.
func (s *Sampler) SampleNow() (FrameSnapshot, error) {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return FrameSnapshot{}, ErrSampleInProgress
	}
	defer s.inProgress.Store(false)

	if s.browserCtx == nil || s.browserCtx.Err() != nil {
		return FrameSnapshot{}, ErrNotStarted
	}
	sel, err := s.findVideo()
	if err != nil {
		s.videoFound.Store(false)
		return FrameSnapshot{}, err
	}

	var buf []byte
	shotCtx, cancel := context.WithTimeout(s.browserCtx, snapshotTimeout)
	defer cancel()
	if err := chromedp.Run(shotCtx, chromedp.Screenshot(sel, &buf, chromedp.ByQuery)); err != nil {
		// The page may have rebuilt the player under us; forget the
		// selector so the next sample probes the candidates again.
		s.invalidateSelector()
		return FrameSnapshot{}, fmt.Errorf("screenshot %s: %w", sel, err)
	}
	img, err := DecodeImage(buf)
	if err != nil {
		return FrameSnapshot{}, err
	}
	snap := FrameSnapshot{
		Image:      Downscale(img, s.opts.WorkingWidth),
		CapturedAt: time.Now(),
		Sequence:   s.sequence.Add(1),
	}
	s.latest.Store(&snap)
	s.captures.Add(1)
	return snap, nil
}

// invalidateSelector drops the cached video selector so the next sample
// re-runs the probe loop from the top of the candidate list.
func (s *Sampler) invalidateSelector() {
	s.videoFound.Store(false)
	s.selector.Store(nil)
}

// findVideo probes the selector candidates in order and returns the first
// one that resolves to at least one node. The winning selector is cached
// until a screenshot against it fails.
func (s *Sampler) findVideo() (string, error) {
	if sel := s.selector.Load(); sel != nil && s.videoFound.Load() {
		return *sel, nil
	}
	for _, sel := range VideoSelectors {
		var nodes []*cdp.Node
		probeCtx, cancel := context.WithTimeout(s.browserCtx, probeTimeout)
		err := chromedp.Run(probeCtx, chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
		cancel()
		if err != nil {
			continue
		}
		if len(nodes) > 0 {
			s.selector.Store(&sel)
			s.videoFound.Store(true)
			s.log.Info("video element located", zap.String("selector", sel))
			return sel, nil
		}
	}
	return "", errors.New("no video element matched any selector")
}

// DecodeImage decodes a png/jpeg/webp screenshot payload.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Downscale resizes the frame to the working width, preserving aspect
// ratio. A non-positive width or an already-smaller frame passes through
// unchanged (converted to NRGBA).
func Downscale(img image.Image, width int) *image.NRGBA {
	if width > 0 && img.Bounds().Dx() > width {
		return imaging.Resize(img, width, 0, imaging.Box)
	}
	return imaging.Clone(img)
}
