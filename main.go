package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thejagger/tft-overlay/capture"
	"github.com/thejagger/tft-overlay/engine"
	"github.com/thejagger/tft-overlay/gamedata"
	"github.com/thejagger/tft-overlay/logger"
	"github.com/thejagger/tft-overlay/monitor"
	"github.com/thejagger/tft-overlay/overlay"
)

type configStruct struct {
	HTTPPort         int    `yaml:"HTTPPort"`
	MetricsPort      int    `yaml:"MetricsPort"`
	StreamURL        string `yaml:"StreamURL"`
	SampleIntervalMs int    `yaml:"SampleIntervalMs"`
	TickIntervalMs   int    `yaml:"TickIntervalMs"`
	WorkingWidth     int    `yaml:"WorkingWidth"`
	Headless         bool   `yaml:"Headless"`
	AugmentsSource   string `yaml:"AugmentsSource"`
	TraitsSource     string `yaml:"TraitsSource"`
	Development      bool   `yaml:"Development"`
}

func (c *configStruct) applyDefaults() {
	if c.HTTPPort <= 0 {
		c.HTTPPort = 8080
	}
	if c.MetricsPort <= 0 {
		c.MetricsPort = 9090
	}
	if c.SampleIntervalMs <= 0 {
		c.SampleIntervalMs = 2000
	}
	if c.TickIntervalMs <= 0 {
		c.TickIntervalMs = 2000
	}
	if c.WorkingWidth <= 0 {
		c.WorkingWidth = 1280
	}
}

// noFrames is the frame source used when capture is disabled; every tick
// sees an empty snapshot and degrades to an empty result.
type noFrames struct{}

func (noFrames) LatestFrame() capture.FrameSnapshot { return capture.FrameSnapshot{} }
func (noFrames) Running() bool                      { return false }

func main() {
	configData, err := os.ReadFile("config.yaml")
	if err != nil {
		fmt.Println("Failed to read config file:", err)
		return
	}
	config := configStruct{}
	err = yaml.Unmarshal(configData, &config)
	if err != nil {
		fmt.Println("Failed to parse config file:", err)
		return
	}
	config.applyDefaults()

	if config.Development {
		err = logger.InitDevelopment()
	} else {
		err = logger.InitProduction()
	}
	if err != nil {
		fmt.Println("Failed to init logger:", err)
		return
	}
	defer logger.Sync()
	log := logger.Log()

	fmt.Println(strings.Repeat("#", 64))
	fmt.Println(" HTTP    Port:", config.HTTPPort)
	fmt.Println(" Metrics Port:", config.MetricsPort)
	if config.StreamURL != "" {
		fmt.Println(" Stream   URL:", config.StreamURL)
	} else {
		fmt.Println(" Stream   URL: (capture disabled)")
	}
	fmt.Println(strings.Repeat("#", 64))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	augments := gamedata.NewAugmentManager(config.AugmentsSource, log)
	traits := gamedata.NewTraitManager(config.TraitsSource, log)
	// Load failures leave the managers empty; the API keeps answering.
	go func() { _ = augments.Load(ctx) }()
	go func() { _ = traits.Load(ctx) }()

	detector := &engine.Detector{}
	detector.New()
	if err := detector.Configure(engine.DefaultSpecs()); err != nil {
		log.Fatal("detector configuration failed", zap.Error(err))
	}

	hub := overlay.NewHub(log)
	var frames overlay.FrameSource = noFrames{}
	var sampler *capture.Sampler
	if config.StreamURL != "" {
		sampler = capture.NewSampler(capture.Options{
			StreamURL:    config.StreamURL,
			Interval:     time.Duration(config.SampleIntervalMs) * time.Millisecond,
			WorkingWidth: config.WorkingWidth,
			Headless:     config.Headless,
		}, log)
		if err := sampler.Start(ctx); err != nil {
			// Missing stream page is not fatal; the API and data
			// managers keep serving without live detection.
			log.Error("frame sampler failed to start", zap.Error(err))
			sampler = nil
		} else {
			frames = sampler
		}
	}

	svc := overlay.NewService(detector, frames, hub, time.Duration(config.TickIntervalMs)*time.Millisecond, log)
	svc.Start(ctx)

	go monitor.StartMon(config.MetricsPort, ctx)

	app := &appState{
		cfg:      config,
		detector: detector,
		overlay:  svc,
		sampler:  sampler,
		hub:      hub,
		augments: augments,
		traits:   traits,
	}
	if !config.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.HTTPPort),
		Handler: newRouter(app),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			cancel()
		}
	}()
	logger.S().Infof("overlay server started on port %d", config.HTTPPort)

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if sampler != nil {
		sampler.Stop()
	}
	hub.Close()
	fmt.Println("Safely exited")
}
