package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/cjeanneret/lifelog/internal/logic/snapshot"
	"github.com/cjeanneret/lifelog/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultArtifactLimit = 20
	maxArtifactLimit     = 200
	thumbnailWidth       = 160
	thumbnailCacheSize   = 256
	heartbeatInterval    = 30 * time.Second
)

// RunConfig describes the running capture loop for GET /config.
type RunConfig struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	IntervalSeconds int    `json:"interval_seconds"`
	Camera          string `json:"camera"`
	StorageDir      string `json:"storage_dir"`
}

// StatsSource provides the pipeline counters.
type StatsSource interface {
	Snapshot() snapshot.StatsSnapshot
}

// ArtifactStore lists deployed snapshots.
type ArtifactStore interface {
	Recent(ctx context.Context, limit int) ([]storage.Artifact, error)
	Get(ctx context.Context, id string) (storage.Artifact, error)
}

// Handlers holds dependencies for HTTP handlers. Stats and Artifacts may be
// nil; their endpoints then answer 503.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Stats       StatsSource
	Artifacts   ArtifactStore
	Run         RunConfig

	thumbs   *lru.Cache[string, []byte]
	staticFS fs.FS
}

func NewHandlers(deps Deps, staticFS fs.FS) (*Handlers, error) {
	thumbs, err := lru.New[string, []byte](thumbnailCacheSize)
	if err != nil {
		return nil, err
	}
	b := deps.Broadcaster
	if b == nil {
		b = NewStatusBroadcaster()
	}
	return &Handlers{
		Broadcaster: b,
		Stats:       deps.Stats,
		Artifacts:   deps.Artifacts,
		Run:         deps.Run,
		thumbs:      thumbs,
		staticFS:    staticFS,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Errorf("web: encode response: %v", err)
	}
}

// ServeIndex serves the status page.
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// HandleConfig returns the parameters of the running loop.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Run)
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Stats.Snapshot())
}

// HandleArtifacts lists the most recently deployed snapshots, newest first.
func (h *Handlers) HandleArtifacts(w http.ResponseWriter, r *http.Request) {
	if h.Artifacts == nil {
		http.Error(w, "artifact index not available", http.StatusServiceUnavailable)
		return
	}

	limit := defaultArtifactLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxArtifactLimit {
			http.Error(w, "limit must be an integer between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}

	arts, err := h.Artifacts.Recent(r.Context(), limit)
	if err != nil {
		debug.Errorf("web: list artifacts: %v", err)
		http.Error(w, "failed to list artifacts", http.StatusInternalServerError)
		return
	}
	if arts == nil {
		arts = []storage.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": arts})
}

// HandleThumbnail serves a small JPEG preview of one artifact.
func (h *Handlers) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.Artifacts == nil {
		http.Error(w, "artifact index not available", http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "id")

	data, ok := h.thumbs.Get(id)
	if !ok {
		art, err := h.Artifacts.Get(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "unknown artifact", http.StatusNotFound)
			return
		}
		if err != nil {
			debug.Errorf("web: get artifact %s: %v", id, err)
			http.Error(w, "failed to load artifact", http.StatusInternalServerError)
			return
		}

		data, err = renderThumbnail(art.Path)
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "artifact file is gone", http.StatusNotFound)
			return
		}
		if err != nil {
			debug.Errorf("web: thumbnail %s: %v", id, err)
			http.Error(w, "failed to render thumbnail", http.StatusInternalServerError)
			return
		}
		h.thumbs.Add(id, data)
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "max-age=86400, immutable")
	w.Write(data)
}

func renderThumbnail(path string) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HandleStatusStream streams status events as Server-Sent Events.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()
		case <-heartbeat.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
