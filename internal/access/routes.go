package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/l0p7/newsedge/internal/config"
	"github.com/l0p7/newsedge/internal/kv"
	"github.com/l0p7/newsedge/internal/metrics"
)

// Options wires a Resolver.
type Options struct {
	Settings config.AccessConfig
	Store    kv.Store
	Clock    Clock
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// Resolver hands out the Guard of the browser profile behind a request. The
// profile is identified by a cookie assigned on first visit.
type Resolver struct {
	settings config.AccessConfig
	user     User
	store    kv.Store
	clock    Clock
	timers   *sessionTimers
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

func NewResolver(opts Options) (*Resolver, error) {
	if opts.Store == nil {
		return nil, errors.New("access: store required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		settings: opts.Settings,
		user: User{
			ID:    opts.Settings.User.ID,
			Email: opts.Settings.User.Email,
			Role:  opts.Settings.User.Role,
		},
		store:   opts.Store,
		clock:   clock,
		timers:  newSessionTimers(),
		logger:  logger.With(slog.String("agent", "access_guard")),
		metrics: opts.Metrics,
	}, nil
}

// Guard returns the gate for profileID.
func (r *Resolver) Guard(profileID string) *Guard {
	namespace := ProfileNamespace(profileID)
	logger := r.logger.With(slog.String("profile", profileID))
	return &Guard{
		settings: r.settings,
		user:     r.user,
		state:    stateStore{kv: r.store, namespace: namespace, logger: logger},
		clock:    r.clock,
		timers:   r.timers,
		logger:   logger,
		metrics:  r.metrics,
	}
}

// Close cancels every pending session-expiry timer.
func (r *Resolver) Close() {
	r.timers.stopAll()
}

type guardContextKey struct{}

// Middleware resolves the request's profile, assigning a fresh profile cookie
// when the request carries none, and stores its Guard in the context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		guard := r.resolve(w, req)
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), guardContextKey{}, guard)))
	})
}

// GuardFrom returns the Guard stored by Middleware.
func GuardFrom(ctx context.Context) (*Guard, bool) {
	guard, ok := ctx.Value(guardContextKey{}).(*Guard)
	return guard, ok
}

func (r *Resolver) resolve(w http.ResponseWriter, req *http.Request) *Guard {
	if guard, ok := GuardFrom(req.Context()); ok {
		return guard
	}
	if cookie, err := req.Cookie(r.settings.ProfileCookie); err == nil {
		if id, err := uuid.Parse(cookie.Value); err == nil {
			return r.Guard(id.String())
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     r.settings.ProfileCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return r.Guard(id)
}

func (r *Resolver) session(w http.ResponseWriter, req *http.Request) (*Session, bool) {
	session, err := r.resolve(w, req).Session(req.Context())
	if err != nil {
		r.logger.Error("session lookup failed", slog.Any("error", err))
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return nil, false
	}
	return session, true
}

// Protected lets requests with a valid session through and sends everyone else
// to the login page with the original path and query preserved.
func (r *Resolver) Protected(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		session, ok := r.session(w, req)
		if !ok {
			return
		}
		if session == nil {
			http.Redirect(w, req, r.loginURL(req), http.StatusFound)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// PublicOnly sends requests that already hold a valid session to fallback.
func (r *Resolver) PublicOnly(fallback string) func(http.Handler) http.Handler {
	if strings.TrimSpace(fallback) == "" {
		fallback = r.settings.AdminPath
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			session, ok := r.session(w, req)
			if !ok {
				return
			}
			if session != nil {
				http.Redirect(w, req, fallback, http.StatusFound)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// RequireRole is Protected plus a role check. A session with another role is
// sent to the unauthorized page.
func (r *Resolver) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			session, ok := r.session(w, req)
			if !ok {
				return
			}
			if session == nil {
				http.Redirect(w, req, r.loginURL(req), http.StatusFound)
				return
			}
			if session.User.Role != role {
				http.Redirect(w, req, r.settings.UnauthorizedPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *Resolver) loginURL(req *http.Request) string {
	target := req.URL.Path
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}
	return r.settings.LoginPath + "?" + url.Values{"return": {target}}.Encode()
}
