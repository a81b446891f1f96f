// Package admin serves the JSON API the portal's login screen talks to.
package admin

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/l0p7/newsedge/internal/access"
	"github.com/l0p7/newsedge/internal/httpjson"
)

const maxLoginBody = 4 << 10

type Handler struct {
	resolver *access.Resolver
	logger   *slog.Logger
}

func NewHandler(resolver *access.Resolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{resolver: resolver, logger: logger.With(slog.String("agent", "admin_api"))}
}

// Routes returns the router mounted under /auth.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.resolver.Middleware)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/session", h.session)
	r.Get("/status", h.status)
	return r
}

type loginRequest struct {
	Code string `json:"code"`
}

type loginFailure struct {
	Success         bool          `json:"success"`
	Reason          access.Reason `json:"reason"`
	Message         string        `json:"message"`
	Locked          bool          `json:"locked"`
	LockRemainingMs int64         `json:"lockRemainingMs"`
	Attempts        int           `json:"attempts"`
}

type loginSuccess struct {
	Success bool            `json:"success"`
	Session *access.Session `json:"session"`
}

type statusResponse struct {
	Authenticated   bool            `json:"authenticated"`
	Locked          bool            `json:"locked"`
	LockRemainingMs int64           `json:"lockRemainingMs"`
	Attempts        int             `json:"attempts"`
	Session         *access.Session `json:"session,omitempty"`
}

func (h *Handler) guard(w http.ResponseWriter, r *http.Request) (*access.Guard, bool) {
	guard, ok := access.GuardFrom(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusInternalServerError, "profile unavailable")
		return nil, false
	}
	return guard, true
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	guard, ok := h.guard(w, r)
	if !ok {
		return
	}
	var body loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxLoginBody)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		httpjson.Error(w, http.StatusBadRequest, "invalid login body")
		return
	}
	res, err := guard.SubmitCode(r.Context(), body.Code)
	if err != nil {
		h.logger.Error("code submission failed", slog.Any("error", err))
		httpjson.Error(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	if res.Success {
		httpjson.Write(w, http.StatusOK, loginSuccess{Success: true, Session: res.Session})
		return
	}
	status := http.StatusUnauthorized
	if res.Locked {
		status = http.StatusLocked
	}
	httpjson.Write(w, status, loginFailure{
		Reason:          res.Reason,
		Message:         res.Message,
		Locked:          res.Locked,
		LockRemainingMs: res.LockRemaining.Milliseconds(),
		Attempts:        res.FailedAttempts,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	guard, ok := h.guard(w, r)
	if !ok {
		return
	}
	if err := guard.Logout(r.Context()); err != nil {
		h.logger.Error("logout failed", slog.Any("error", err))
		httpjson.Error(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	guard, ok := h.guard(w, r)
	if !ok {
		return
	}
	session, err := guard.Session(r.Context())
	if err != nil {
		h.logger.Error("session lookup failed", slog.Any("error", err))
		httpjson.Error(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	if session == nil {
		httpjson.Error(w, http.StatusNotFound, "no active session")
		return
	}
	httpjson.Write(w, http.StatusOK, session)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	guard, ok := h.guard(w, r)
	if !ok {
		return
	}
	st, err := guard.Status(r.Context())
	if err != nil {
		h.logger.Error("status lookup failed", slog.Any("error", err))
		httpjson.Error(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	httpjson.Write(w, http.StatusOK, statusResponse{
		Authenticated:   st.Authenticated,
		Locked:          st.Locked,
		LockRemainingMs: st.LockRemaining.Milliseconds(),
		Attempts:        st.FailedAttempts,
		Session:         st.Session,
	})
}
