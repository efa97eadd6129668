package main

import (
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thejagger/tft-overlay/capture"
	"github.com/thejagger/tft-overlay/engine"
	"github.com/thejagger/tft-overlay/gamedata"
	iface "github.com/thejagger/tft-overlay/interface"
	"github.com/thejagger/tft-overlay/monitor"
	"github.com/thejagger/tft-overlay/overlay"
)

type appState struct {
	cfg      configStruct
	detector *engine.Detector
	overlay  *overlay.Service
	sampler  *capture.Sampler
	hub      *overlay.Hub
	augments *gamedata.AugmentManager
	traits   *gamedata.TraitManager
}

// oneshotDetect runs a request-scoped detector over the shared region
// table, keeping API calls off the tick loop's detector state.
func (app *appState) oneshotDetect(frame iface.Frame) iface.RetData {
	d := &engine.Detector{}
	d.New()
	if err := d.Configure(app.detector.CheckConfig()); err != nil {
		return iface.RetData{Success: false, Data: err.Error()}
	}
	return d.Detect(frame)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// decodeBase64Image converts a base64 string (optionally with a
// data:image/... prefix) into a decoded image.
func decodeBase64Image(b64 string) (image.Image, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return capture.DecodeImage(data)
}

func newRouter(app *appState) *gin.Engine {
	r := gin.Default()
	r.Use(func(c *gin.Context) {
		monitor.HTTPTotal.Inc()
		c.Next()
	})

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/api/status", func(c *gin.Context) {
		videoStats := capture.Stats{}
		sampling := false
		if app.sampler != nil {
			videoStats = app.sampler.Stats()
			sampling = app.sampler.Running()
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"overlay":  app.overlay.Status(),
			"sampling": sampling,
			"video":    videoStats,
			"clients":  app.hub.Count(),
			"gameData": gin.H{
				"augments": gin.H{
					"loaded": app.augments.Loaded(),
					"count":  app.augments.Count(),
					"set":    app.augments.Metadata().Set,
				},
				"traits": gin.H{
					"loaded": app.traits.Loaded(),
					"count":  app.traits.Count(),
					"set":    app.traits.Metadata().Set,
				},
			},
		}})
	})

	r.POST("/api/overlay/test", func(c *gin.Context) {
		var req struct {
			Augment string `json:"augment"`
		}
		_ = c.ShouldBindJSON(&req)

		elements := testElements()
		if req.Augment != "" {
			a := app.augments.Get(req.Augment)
			if a == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Augment not found: " + req.Augment})
				return
			}
			for i := range elements {
				if elements[i].Kind == iface.KindAugment {
					elements[i].Title = a.Title
					elements[i].Tier = a.Tier
				}
			}
		}
		app.overlay.InjectTest(elements)
		c.JSON(http.StatusOK, gin.H{"data": elements})
	})

	r.POST("/api/process/test", func(c *gin.Context) {
		var req struct {
			Image string `json:"image"`
		}
		_ = c.ShouldBindJSON(&req)

		var frame iface.Frame
		if req.Image != "" {
			img, err := decodeBase64Image(req.Image)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			frame = engine.FromImage(capture.Downscale(img, app.cfg.WorkingWidth))
		} else if app.sampler != nil {
			if snap := app.sampler.LatestFrame(); snap.Image != nil {
				frame = engine.FromImage(snap.Image)
			}
		}
		if !frame.Valid() {
			c.JSON(http.StatusConflict, gin.H{"error": "No frame available yet"})
			return
		}
		start := time.Now()
		ret := app.oneshotDetect(frame)
		if !ret.Success {
			c.JSON(http.StatusInternalServerError, gin.H{"error": ret.Data})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"candidates": ret.Data,
			"durationMs": time.Since(start).Milliseconds(),
			"width":      frame.Width,
			"height":     frame.Height,
		}})
	})

	r.POST("/api/detect", func(c *gin.Context) {
		var req struct {
			Image string `json:"image" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		img, err := decodeBase64Image(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		frame := engine.FromImage(capture.Downscale(img, app.cfg.WorkingWidth))
		ret := app.oneshotDetect(frame)
		if !ret.Success {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": ret.Data})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": ret.Data})
	})

	r.GET("/api/augments", func(c *gin.Context) {
		q := c.Query("q")
		if q == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing query parameter q"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": app.augments.Search(q)})
	})

	r.GET("/api/augments/:key", func(c *gin.Context) {
		a := app.augments.Get(c.Param("key"))
		if a == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Augment not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": a})
	})

	r.GET("/api/traits/:key/:count", func(c *gin.Context) {
		count, err := strconv.Atoi(c.Param("count"))
		if err != nil || count < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid count"})
			return
		}
		effect := app.traits.Effect(c.Param("key"), count)
		if effect == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active trait effect"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": effect})
	})

	r.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		app.hub.Add(conn)
	})

	return r
}

// testElements builds one synthetic element per category at its region
// center, for overlay client verification.
func testElements() []overlay.Element {
	const w, h = 1280, 720
	var out []overlay.Element
	for _, spec := range engine.DefaultSpecs() {
		reg := spec.Region.Pixels(w, h)
		cx, cy := reg.Center()
		out = append(out, overlay.Element{
			Kind: spec.Region.Kind,
			Rect: iface.Rect{
				X:      cx - spec.Params.MinWidth/2,
				Y:      cy - spec.Params.MinHeight/2,
				Width:  spec.Params.MinWidth,
				Height: spec.Params.MinHeight,
			},
			Confidence: 1.0,
		})
	}
	return out
}
