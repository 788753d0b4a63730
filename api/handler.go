package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"mediaforge/broadcast"
	"mediaforge/config"
	"mediaforge/ffmpeg"
	"mediaforge/hwaccel"
	"mediaforge/media"
	"mediaforge/task"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Prober inspects a source media file. Satisfied by *ffmpeg.Runner.
type Prober interface {
	ProbeSource(ctx context.Context, path string) (ffmpeg.ProbeReport, error)
}

type Handler struct {
	manager  *task.Manager
	store    *task.Store
	hub      *broadcast.Hub
	prober   Prober
	caps     hwaccel.Snapshot
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewHandler(manager *task.Manager, store *task.Store, hub *broadcast.Hub, prober Prober, caps hwaccel.Snapshot, cfg *config.Config) *Handler {
	return &Handler{
		manager: manager,
		store:   store,
		hub:     hub,
		prober:  prober,
		caps:    caps,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ProcessRequest is the submit payload. One task is created per source
// reference; the whole batch is validated before any task is created.
type ProcessRequest struct {
	SourceRefs              []string          `json:"sourceRefs" binding:"required,min=1"`
	Container               string            `json:"container" binding:"required"`
	VideoCodec              string            `json:"videoCodec" binding:"required"`
	AudioCodec              string            `json:"audioCodec" binding:"required"`
	VideoBitrate            int               `json:"videoBitrate"`
	AudioBitrate            int               `json:"audioBitrate"`
	Resolution              *media.Resolution `json:"resolution"`
	StartTime               float64           `json:"startTime"`
	EndTime                 float64           `json:"endTime"`
	TotalDuration           float64           `json:"totalDuration" binding:"required"`
	UseHardwareAcceleration bool              `json:"useHardwareAcceleration"`
	Preset                  string            `json:"preset"`
	ExtraArgs               string            `json:"extraArgs"`
}

func (req *ProcessRequest) spec() media.ProcessingSpec {
	preset := media.Preset(req.Preset)
	if preset == "" {
		preset = media.PresetBalanced
	}
	endTime := req.EndTime
	if endTime == 0 {
		endTime = req.TotalDuration
	}

	return media.ProcessingSpec{
		Container:               media.Container(req.Container),
		VideoCodec:              media.Codec(req.VideoCodec),
		AudioCodec:              media.Codec(req.AudioCodec),
		VideoBitrate:            req.VideoBitrate,
		AudioBitrate:            req.AudioBitrate,
		Resolution:              req.Resolution,
		StartTime:               req.StartTime,
		EndTime:                 endTime,
		TotalDuration:           req.TotalDuration,
		UseHardwareAcceleration: req.UseHardwareAcceleration,
		Preset:                  preset,
	}
}

// handleProcess validates the whole batch up front, then creates one
// pending task per source. A rejected batch creates no tasks at all.
func (h *Handler) handleProcess(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var extraArgs []string
	if req.ExtraArgs != "" {
		args, err := ffmpeg.SplitArgs(req.ExtraArgs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := ffmpeg.SanitizeArgs(args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		extraArgs = args
	}

	owner := c.GetString(ownerKey)
	spec := req.spec()

	sources := make([]media.SourceInfo, 0, len(req.SourceRefs))
	for _, ref := range req.SourceRefs {
		report, err := h.prober.ProbeSource(c.Request.Context(), ref)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "source not found or unreadable: " + ref})
			return
		}
		src := report.SourceInfo(ref)

		if err := spec.Validate(src); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sources = append(sources, src)
	}

	created := make([]task.Task, 0, len(sources))
	for _, src := range sources {
		t, err := h.manager.Submit(owner, spec, src, extraArgs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task", "details": err.Error()})
			return
		}
		created = append(created, t)
	}

	c.JSON(http.StatusAccepted, created)
}

func (h *Handler) handleListTasks(c *gin.Context) {
	owner := c.GetString(ownerKey)
	c.JSON(http.StatusOK, h.store.List(owner))
}

func (h *Handler) handleGetTask(c *gin.Context) {
	owner := c.GetString(ownerKey)
	t, found := h.store.Get(c.Param("taskId"))
	if !found || t.Owner != owner {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) handleCancelTask(c *gin.Context) {
	owner := c.GetString(ownerKey)
	id := c.Param("taskId")

	t, found := h.store.Get(id)
	if !found || t.Owner != owner {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	if err := h.manager.Cancel(id); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "task cancellation requested"})
}

func (h *Handler) handleCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, h.caps)
}

// handleFileInfo exposes the ffprobe report for a source file, so a
// client can populate stream details before building a request.
func (h *Handler) handleFileInfo(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing path parameter"})
		return
	}

	report, err := h.prober.ProbeSource(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleProgressWS streams {progress, status} frames for one task over
// a websocket. The first frame is a snapshot of the task's current
// state; a terminal status ends the stream.
func (h *Handler) handleProgressWS(c *gin.Context) {
	id := c.Param("taskId")
	if _, found := h.store.Get(id); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Subscribe before reading the snapshot so no write can fall in
	// between; a duplicate frame is harmless, a missed terminal is not.
	sub := h.hub.Subscribe(id)
	defer sub.Close()

	t, _ := h.store.Get(id)
	snapshot := broadcast.Update{
		Progress: t.Progress,
		Status:   string(t.Status),
	}
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}
	if t.Status.Terminal() {
		return
	}

	// Reader pump, only to notice the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case u, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
