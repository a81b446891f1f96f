package offline

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
)

// Strategy identifies how a request is answered.
type Strategy string

const (
	StrategyPassthrough          Strategy = "passthrough"
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
	StrategyImage                Strategy = "image"
)

var imagePattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|svg)$`)

// Route is the outcome of request classification.
type Route struct {
	Strategy Strategy
	Purpose  Purpose
}

// RouterConfig lists the path rules. Empty prefixes disable their rule.
type RouterConfig struct {
	Origin          *url.URL
	Precache        []string
	StaticPrefix    string
	APIPrefix       string
	ContentPrefixes []string
}

// Router classifies requests in a fixed first-match order. The precache set
// can be swapped at runtime when the manifest changes.
type Router struct {
	origin          string
	precache        atomic.Pointer[map[string]struct{}]
	staticPrefix    string
	apiPrefix       string
	contentPrefixes []string
}

func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		staticPrefix:    cfg.StaticPrefix,
		apiPrefix:       cfg.APIPrefix,
		contentPrefixes: append([]string(nil), cfg.ContentPrefixes...),
	}
	if cfg.Origin != nil {
		r.origin = originOf(cfg.Origin)
	}
	r.SetPrecache(cfg.Precache)
	return r
}

// SetPrecache replaces the manifest paths served cache-first.
func (r *Router) SetPrecache(paths []string) {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	r.precache.Store(&set)
}

func (r *Router) inPrecache(path string) bool {
	set := r.precache.Load()
	if set == nil {
		return false
	}
	_, ok := (*set)[path]
	return ok
}

// SameOrigin reports whether u shares the router's scheme, host and port.
func (r *Router) SameOrigin(u *url.URL) bool {
	return r.origin != "" && originOf(u) == r.origin
}

func (r *Router) Route(req *http.Request) Route {
	if req.Method != http.MethodGet {
		return Route{Strategy: StrategyPassthrough}
	}
	path := req.URL.Path
	if path == "" {
		path = "/"
	}
	image := imagePattern.MatchString(path)
	if !r.SameOrigin(req.URL) && !image {
		return Route{Strategy: StrategyPassthrough}
	}

	switch {
	case r.inPrecache(path) || hasPrefix(path, r.staticPrefix):
		return Route{Strategy: StrategyCacheFirst, Purpose: PurposeStatic}
	case hasPrefix(path, r.apiPrefix):
		return Route{Strategy: StrategyNetworkFirst, Purpose: PurposeDynamic}
	case image:
		return Route{Strategy: StrategyImage, Purpose: PurposeImages}
	case path == "/" || r.isContent(path):
		return Route{Strategy: StrategyStaleWhileRevalidate, Purpose: PurposeDynamic}
	default:
		return Route{Strategy: StrategyNetworkFirst, Purpose: PurposeDynamic}
	}
}

func (r *Router) isContent(path string) bool {
	for _, prefix := range r.contentPrefixes {
		if hasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func hasPrefix(path, prefix string) bool {
	return prefix != "" && strings.HasPrefix(path, prefix)
}

func originOf(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
