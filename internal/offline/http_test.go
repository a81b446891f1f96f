package offline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gavv/httpexpect/v2"

	"github.com/l0p7/newsedge/internal/config"
	"github.com/l0p7/newsedge/internal/logging"
)

func TestHandlerSideChannel(t *testing.T) {
	f := newWorkerFixture(t, func(w *config.WorkerConfig) { w.SkipWaiting = false })
	f.origin.set("/article/9", asset{body: "nine"})
	f.worker.Install(t.Context())

	server := httptest.NewServer(NewHandler(f.worker, logging.Discard()).Routes())
	t.Cleanup(server.Close)
	expect := httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  server.URL,
		Reporter: httpexpect.NewRequireReporter(t),
	})

	expect.GET("/state").Expect().
		Status(http.StatusOK).
		JSON().Object().HasValue("state", "waiting").HasValue("version", 3)

	expect.POST("/message").WithJSON(map[string]string{"type": MessageSkipWaiting}).
		Expect().Status(http.StatusAccepted)
	expect.GET("/state").Expect().
		Status(http.StatusOK).
		JSON().Object().HasValue("state", "active")

	_, _, err := f.get(t, f.origin.url("/article/9"))
	if err != nil {
		t.Fatalf("prime article: %v", err)
	}
	expect.POST("/message").WithJSON(map[string]string{"type": MessageCacheUpdate, "url": "/article/9"}).
		Expect().Status(http.StatusAccepted)
	if keys := f.keys(t, PurposeDynamic); len(keys) != 0 {
		t.Fatalf("expected dynamic partition to be empty, got %v", keys)
	}

	expect.POST("/message").WithJSON(map[string]string{"type": "UNKNOWN"}).
		Expect().Status(http.StatusAccepted)
	expect.POST("/message").WithText("not json").
		Expect().Status(http.StatusBadRequest)

	expect.POST("/sync/background-sync").Expect().Status(http.StatusAccepted)

	expect.POST("/push").WithJSON(map[string]string{"title": "Breaking", "body": "Now"}).
		Expect().Status(http.StatusOK).
		JSON().Object().HasValue("title", "Breaking").HasValue("icon", "/favicon.svg")
	expect.POST("/push").Expect().Status(http.StatusNoContent)
	expect.POST("/push").WithText("{").Expect().Status(http.StatusBadRequest)
}
