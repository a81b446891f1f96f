package content

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/l0p7/newsedge/internal/httpjson"
)

const maxRecordBody = 1 << 20

// Gate wraps the write routes. access.Resolver.RequireRole satisfies it.
type Gate func(http.Handler) http.Handler

type Handler struct {
	store  Store
	gate   Gate
	logger *slog.Logger
}

func NewHandler(store Store, gate Gate, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, gate: gate, logger: logger.With(slog.String("agent", "content_api"))}
}

// Routes returns the router mounted under /content. Reads are public, writes
// pass through the gate.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/articles", h.listArticles)
	r.Get("/articles/search", h.searchArticles)
	r.Get("/articles/{id}", h.getArticle)
	r.Get("/categories", h.listCategories)

	r.Group(func(r chi.Router) {
		if h.gate != nil {
			r.Use(h.gate)
		}
		r.Post("/articles", h.createArticle)
		r.Put("/articles/{id}", h.updateArticle)
		r.Delete("/articles/{id}", h.deleteArticle)
		r.Post("/categories", h.createCategory)
		r.Put("/categories/{id}", h.updateCategory)
		r.Delete("/categories/{id}", h.deleteCategory)
	})
	return r
}

func parseFilter(r *http.Request) (ArticleFilter, error) {
	q := r.URL.Query()
	filter := ArticleFilter{CategoryID: q.Get("category")}
	if raw := q.Get("featured"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("featured must be a boolean")
		}
		filter.Featured = v
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return filter, errors.New(name + " must be a non-negative integer")
		}
		*dst = v
	}
	return filter, nil
}

func (h *Handler) listArticles(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	articles, err := h.store.ListArticles(r.Context(), filter)
	h.respond(w, http.StatusOK, articles, err)
}

func (h *Handler) searchArticles(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	articles, err := h.store.SearchArticles(r.Context(), r.URL.Query().Get("q"), filter)
	h.respond(w, http.StatusOK, articles, err)
}

func (h *Handler) getArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.store.GetArticle(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, article, err)
}

func (h *Handler) createArticle(w http.ResponseWriter, r *http.Request) {
	var in Article
	if !decode(w, r, &in) {
		return
	}
	article, err := h.store.CreateArticle(r.Context(), in)
	h.respond(w, http.StatusCreated, article, err)
}

func (h *Handler) updateArticle(w http.ResponseWriter, r *http.Request) {
	var in Article
	if !decode(w, r, &in) {
		return
	}
	article, err := h.store.UpdateArticle(r.Context(), chi.URLParam(r, "id"), in)
	h.respond(w, http.StatusOK, article, err)
}

func (h *Handler) deleteArticle(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteArticle(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	h.respond(w, http.StatusOK, categories, err)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var in Category
	if !decode(w, r, &in) {
		return
	}
	category, err := h.store.CreateCategory(r.Context(), in)
	h.respond(w, http.StatusCreated, category, err)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var in Category
	if !decode(w, r, &in) {
		return
	}
	category, err := h.store.UpdateCategory(r.Context(), chi.URLParam(r, "id"), in)
	h.respond(w, http.StatusOK, category, err)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteCategory(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) respond(w http.ResponseWriter, status int, payload any, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpjson.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("content store failed", slog.Any("error", err))
		httpjson.Error(w, http.StatusInternalServerError, "content unavailable")
	case status == http.StatusNoContent:
		w.WriteHeader(status)
	default:
		httpjson.Write(w, status, payload)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRecordBody)).Decode(dst); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
