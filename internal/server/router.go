package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/l0p7/newsedge/internal/access"
	"github.com/l0p7/newsedge/internal/admin"
	"github.com/l0p7/newsedge/internal/config"
	"github.com/l0p7/newsedge/internal/content"
	"github.com/l0p7/newsedge/internal/httpjson"
	"github.com/l0p7/newsedge/internal/metrics"
	"github.com/l0p7/newsedge/internal/offline"
)

const (
	// AdminRole is the role the admin screens and content writes require.
	AdminRole = "admin"
	// AccountPath is the page tree open to any signed-in profile.
	AccountPath = "/account"
)

// Dependencies are the subsystems the HTTP surface dispatches to.
type Dependencies struct {
	Config   config.Config
	Worker   *offline.Worker
	Resolver *access.Resolver
	Content  content.Store
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

// NewHandler builds the portal's router. Anything not claimed by the API
// mounts is reverse proxied to the origin through the offline worker, with
// the login page public-only, the account tree session-only and the admin tree
// role-gated.
func NewHandler(deps Dependencies) (http.Handler, error) {
	if deps.Worker == nil {
		return nil, errors.New("server: worker required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("server: access resolver required")
	}
	if deps.Content == nil {
		return nil, errors.New("server: content store required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := deps.Config.Access
	correlationHeader := deps.Config.Server.Logging.CorrelationHeader

	proxy := newOriginProxy(deps.Worker, logger.With(slog.String("agent", "origin_proxy")))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(correlate(correlationHeader))
	r.Use(accessLog(logger.With(slog.String("agent", "http")), correlationHeader))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]string{
			"status": "ok",
			"worker": deps.Worker.State().String(),
		})
	})
	r.Handle("/metrics", deps.Metrics.Handler())
	r.Mount("/sw", offline.NewHandler(deps.Worker, logger).Routes())

	r.Group(func(r chi.Router) {
		r.Use(deps.Resolver.Middleware)
		r.Mount("/auth", admin.NewHandler(deps.Resolver, logger).Routes())
		r.Mount("/content", content.NewHandler(deps.Content, deps.Resolver.RequireRole(AdminRole), logger).Routes())

		r.With(deps.Resolver.PublicOnly(settings.AdminPath)).Handle(settings.LoginPath, proxy)
		signedIn := r.With(deps.Resolver.Protected)
		signedIn.Handle(AccountPath, proxy)
		signedIn.Handle(AccountPath+"/*", proxy)
		gated := r.With(deps.Resolver.RequireRole(AdminRole))
		adminPath := strings.TrimSuffix(settings.AdminPath, "/")
		gated.Handle(adminPath, proxy)
		gated.Handle(adminPath+"/*", proxy)

		r.Handle("/*", proxy)
	})
	return r, nil
}

func newOriginProxy(worker *offline.Worker, logger *slog.Logger) http.Handler {
	origin := worker.Origin()
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		Transport: worker,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("origin unreachable",
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
			httpjson.Write(w, http.StatusBadGateway, map[string]string{"error": "origin unavailable"})
		},
	}
}
