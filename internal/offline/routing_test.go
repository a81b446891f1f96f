package offline

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/newsedge/internal/config"
)

func TestRouterRoute(t *testing.T) {
	defaults := config.DefaultConfig().Worker
	origin, err := url.Parse("https://news.example")
	require.NoError(t, err)
	router := NewRouter(RouterConfig{
		Origin:          origin,
		Precache:        defaults.Precache,
		StaticPrefix:    defaults.StaticPrefix,
		APIPrefix:       defaults.APIPrefix,
		ContentPrefixes: defaults.ContentPrefixes,
	})

	tests := []struct {
		name   string
		method string
		url    string
		want   Route
	}{
		{name: "non get", method: http.MethodPost, url: "https://news.example/api/articles", want: Route{Strategy: StrategyPassthrough}},
		{name: "cross origin script", method: http.MethodGet, url: "https://cdn.example/lib.js", want: Route{Strategy: StrategyPassthrough}},
		{name: "cross origin image", method: http.MethodGet, url: "https://cdn.example/a/b.WEBP", want: Route{Strategy: StrategyImage, Purpose: PurposeImages}},
		{name: "root is precached", method: http.MethodGet, url: "https://news.example/", want: Route{Strategy: StrategyCacheFirst, Purpose: PurposeStatic}},
		{name: "manifest asset", method: http.MethodGet, url: "https://news.example/site.webmanifest", want: Route{Strategy: StrategyCacheFirst, Purpose: PurposeStatic}},
		{name: "precached icon wins over image", method: http.MethodGet, url: "https://news.example/favicon.svg", want: Route{Strategy: StrategyCacheFirst, Purpose: PurposeStatic}},
		{name: "static prefix", method: http.MethodGet, url: "https://news.example/static/js/app.js", want: Route{Strategy: StrategyCacheFirst, Purpose: PurposeStatic}},
		{name: "api", method: http.MethodGet, url: "https://news.example/api/search?q=x", want: Route{Strategy: StrategyNetworkFirst, Purpose: PurposeDynamic}},
		{name: "api image stays network first", method: http.MethodGet, url: "https://news.example/api/cover.png", want: Route{Strategy: StrategyNetworkFirst, Purpose: PurposeDynamic}},
		{name: "image", method: http.MethodGet, url: "https://news.example/uploads/cover.jpeg", want: Route{Strategy: StrategyImage, Purpose: PurposeImages}},
		{name: "article", method: http.MethodGet, url: "https://news.example/article/123", want: Route{Strategy: StrategyStaleWhileRevalidate, Purpose: PurposeDynamic}},
		{name: "listing", method: http.MethodGet, url: "https://news.example/articles?category=sports", want: Route{Strategy: StrategyStaleWhileRevalidate, Purpose: PurposeDynamic}},
		{name: "default", method: http.MethodGet, url: "https://news.example/category/politics", want: Route{Strategy: StrategyNetworkFirst, Purpose: PurposeDynamic}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.url, nil)
			require.NoError(t, err)
			require.Equal(t, tt.want, router.Route(req))
		})
	}
}

func TestRouterRootWithoutManifest(t *testing.T) {
	origin, err := url.Parse("https://news.example")
	require.NoError(t, err)
	router := NewRouter(RouterConfig{Origin: origin, ContentPrefixes: []string{"/article/"}})

	req, err := http.NewRequest(http.MethodGet, "https://news.example/", nil)
	require.NoError(t, err)
	require.Equal(t, Route{Strategy: StrategyStaleWhileRevalidate, Purpose: PurposeDynamic}, router.Route(req))
}

func TestPartitionName(t *testing.T) {
	require.Equal(t, "umar-media-static-v3", PartitionName("umar-media", PurposeStatic, 3))
	require.Equal(t, "umar-media-images-v4", PartitionName("umar-media", PurposeImages, 4))
}

func TestEntryRecency(t *testing.T) {
	entry := Entry{Header: http.Header{"Date": {"Mon, 02 Jan 2006 15:04:05 GMT"}}}
	require.Equal(t, 2006, entry.Recency().Year())
	require.Equal(t, int64(0), Entry{}.Recency().Unix())
}
