package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fisaks/rfedge/internal/control"
	"github.com/fisaks/rfedge/internal/dispatch"
	"github.com/fisaks/rfedge/internal/logging"
	"github.com/fisaks/rfedge/internal/registry"
)

// DeviceLister lists registry devices.
type DeviceLister interface {
	GetDevices(ctx context.Context) ([]registry.Device, error)
}

type Server struct {
	controller *control.Controller
	devices    DeviceLister
	staticDir  string
}

// NewServer serves the control API; devices may be nil when no registry is
// configured and staticDir empty when there is no web UI.
func NewServer(c *control.Controller, devices DeviceLister, staticDir string) *Server {
	return &Server{controller: c, devices: devices, staticDir: staticDir}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/set/{device}", s.setDeviceHandler)
	mux.HandleFunc("POST /api/set/{id}", s.postDeviceHandler)
	mux.HandleFunc("GET /api/{$}", s.getDevicesHandler)

	if s.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	}
	return mux
}

// ListenAndServe runs until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logging.WrapSlog("component", "http"),
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info("HTTP API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

/* ------------------------ helpers: json & errors ------------------------ */

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseDelay reads the optional delay query parameter, in seconds.
func parseDelay(r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("delay")
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

/* ------------------------------ handlers -------------------------------- */

func (s *Server) setDeviceHandler(w http.ResponseWriter, r *http.Request) {
	device := r.PathValue("device")
	delay, ok := parseDelay(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid delay")
		return
	}

	var action dispatch.Action
	if delay == 0 {
		var err error
		if action, err = dispatch.ParseAction(r.URL.Query().Get("mode")); err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := s.controller.SetDevice(r.Context(), device, action, delay); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrInvalidAction) {
			status = http.StatusBadRequest
		}
		fail(w, status, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Success"))
}

func (s *Server) postDeviceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	delay, ok := parseDelay(r)
	if !ok {
		fail(w, http.StatusBadRequest, "invalid delay")
		return
	}
	action, err := dispatch.ParseAction(r.URL.Query().Get("mode"))
	if err != nil && delay == 0 {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	dev, err := s.controller.SetRegisteredDevice(r.Context(), id, action, delay)
	switch {
	case errors.Is(err, control.ErrDeviceNotFound), errors.Is(err, control.ErrRegistryDisabled):
		fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrInvalidAction):
		fail(w, http.StatusBadRequest, err.Error())
	case err != nil:
		logging.Error("Set registered device failed", "id", id, "error", err)
		fail(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, dev)
	}
}

func (s *Server) getDevicesHandler(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusOK, []registry.Device{})
		return
	}
	devices, err := s.devices.GetDevices(r.Context())
	if err != nil {
		logging.Error("List devices failed", "error", err)
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, devices)
}
