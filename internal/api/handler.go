// Package api is the HTTP control surface of a reader: status, settings,
// mode and scan commands, a live event stream and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mzyy94/cs108ctl/internal/config"
	"github.com/mzyy94/cs108ctl/internal/reader"
)

// Controller is the reader surface driven by the API.
type Controller interface {
	ID() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)
	SetMode(mode reader.Mode, opts reader.ModeOptions) error
	SetSettings(p reader.SettingsPatch) error
	Settings() reader.Settings
	StartScanning() error
	StopScanning() error
	State() reader.State
	Mode() reader.Mode
	BatteryPercentage() int
	Session() (reader.ScanSession, bool)
	LocateStats() reader.LocateStats
	Subscribe(f reader.Filter) *reader.Subscription
}

var _ Controller = (*reader.Reader)(nil)

// Options configure the handler.
type Options struct {
	DeviceName string
	RateLimit  int           // Command requests per minute per client; 0 disables
	Settings   *config.Store // Persists accepted settings; nil keeps them in the reader only
}

type handler struct {
	rd   Controller
	opts Options
}

// NewHandler creates the HTTP handler for rd.
func NewHandler(rd Controller, opts Options) http.Handler {
	h := &handler{rd: rd, opts: opts}

	r := chi.NewRouter()
	r.Use(logMiddleware)
	r.Get("/api/status", h.handleStatus)
	r.Get("/api/settings", h.handleGetSettings)
	r.Get("/api/locate", h.handleLocate)
	r.Get("/api/events", h.handleEvents)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(rateLimit(opts.RateLimit, time.Minute))
		}
		r.Put("/api/settings", h.handlePutSettings)
		r.Put("/api/mode", h.handlePutMode)
		r.Post("/api/connect", h.handleConnect)
		r.Post("/api/disconnect", h.handleDisconnect)
		r.Post("/api/scan/start", h.handleScanStart)
		r.Post("/api/scan/stop", h.handleScanStop)
	})
	return r
}

type statusResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	State     reader.State        `json:"state"`
	Mode      reader.Mode         `json:"mode"`
	Battery   *int                `json:"battery,omitempty"` // Percent; absent until reported
	Session   *reader.ScanSession `json:"session,omitempty"`
	UpdatedAt string              `json:"updatedAt"`
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		ID:        h.rd.ID(),
		Name:      h.opts.DeviceName,
		State:     h.rd.State(),
		Mode:      h.rd.Mode(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if pct := h.rd.BatteryPercentage(); pct >= 0 {
		resp.Battery = &pct
	}
	if s, ok := h.rd.Session(); ok {
		resp.Session = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Settings API ---

func (h *handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rd.Settings())
}

func (h *handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var p reader.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := h.rd.SetSettings(p); err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	s := h.rd.Settings()
	if h.opts.Settings != nil {
		if err := h.opts.Settings.Update(s); err != nil {
			slog.Warn("settings save failed", "err", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to save settings"))
			return
		}
	}
	writeJSON(w, http.StatusOK, s)
}

// --- Commands ---

type modeRequest struct {
	Mode          reader.Mode `json:"mode"`
	TargetEPC     *string     `json:"targetEpc,omitempty"`
	StartScanning bool        `json:"startScanning"`
}

type commandResponse struct {
	State reader.State `json:"state"`
	Mode  reader.Mode  `json:"mode"`
}

// handlePutMode starts a configuration sequence. Completion is reported on
// the event stream, so the request is answered with 202.
func (h *handler) handlePutMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	opts := reader.ModeOptions{TargetEPC: req.TargetEPC, StartScanning: req.StartScanning}
	if err := h.rd.SetMode(req.Mode, opts); err != nil {
		writeError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}
	if req.TargetEPC != nil && h.opts.Settings != nil {
		if err := h.opts.Settings.Update(h.rd.Settings()); err != nil {
			slog.Warn("settings save failed", "err", err)
		}
	}
	h.writeCommand(w, http.StatusAccepted)
}

func (h *handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := h.rd.Connect(r.Context()); err != nil {
		writeError(w, statusFor(err, http.StatusBadGateway), err)
		return
	}
	h.writeCommand(w, http.StatusOK)
}

func (h *handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.rd.Disconnect(r.Context())
	h.writeCommand(w, http.StatusOK)
}

func (h *handler) handleScanStart(w http.ResponseWriter, r *http.Request) {
	if err := h.rd.StartScanning(); err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	h.writeCommand(w, http.StatusOK)
}

func (h *handler) handleScanStop(w http.ResponseWriter, r *http.Request) {
	if err := h.rd.StopScanning(); err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	h.writeCommand(w, http.StatusOK)
}

func (h *handler) handleLocate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rd.LocateStats())
}

func (h *handler) writeCommand(w http.ResponseWriter, status int) {
	writeJSON(w, status, commandResponse{State: h.rd.State(), Mode: h.rd.Mode()})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, reader.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, reader.ErrTransportUnavailable), errors.Is(err, reader.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
