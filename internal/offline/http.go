package offline

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/l0p7/newsedge/internal/httpjson"
)

const maxSidechannelBody = 64 << 10

// Handler exposes the worker side channel over HTTP.
type Handler struct {
	worker *Worker
	logger *slog.Logger
}

func NewHandler(worker *Worker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{worker: worker, logger: logger.With(slog.String("agent", "worker_http"))}
}

// Routes returns the router mounted under /sw.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/message", h.message)
	r.Post("/sync/{tag}", h.sync)
	r.Post("/push", h.push)
	r.Get("/state", h.state)
	return r
}

// message applies a page message. Delivery is fire-and-forget, so apart from
// malformed bodies the caller always gets 202.
func (h *Handler) message(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSidechannelBody)).Decode(&msg); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid message body")
		return
	}
	if err := h.worker.HandleMessage(r.Context(), msg); err != nil {
		level := slog.LevelError
		if errors.Is(err, ErrUnknownMessage) {
			level = slog.LevelDebug
		}
		h.logger.Log(r.Context(), level, "message handling failed", slog.String("type", msg.Type), slog.Any("error", err))
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	h.worker.Sync(r.Context(), chi.URLParam(r, "tag"))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxSidechannelBody))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "unreadable push body")
		return
	}
	notification, err := h.worker.Push(r.Context(), payload)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if notification == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpjson.Write(w, http.StatusOK, notification)
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.worker.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("worker snapshot failed", slog.Any("error", err))
		httpjson.Error(w, http.StatusInternalServerError, "worker state unavailable")
		return
	}
	httpjson.Write(w, http.StatusOK, snap)
}
