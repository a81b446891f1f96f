package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Message types accepted from pages.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageCacheUpdate = "CACHE_UPDATE"
)

// SyncTagBackground is the only sync tag with a registered handler.
const SyncTagBackground = "background-sync"

// Message is a fire-and-forget instruction from a page.
type Message struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// HandleMessage applies a page message. SKIP_WAITING activates a waiting
// worker, or marks an installing one for activation. CACHE_UPDATE drops one
// URL from the dynamic partition so the next request refetches it.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		w.mu.Lock()
		w.skipWaitingRequested = true
		state := w.state
		w.mu.Unlock()
		if state == StateWaiting {
			return w.Activate(ctx)
		}
		return nil
	case MessageCacheUpdate:
		if msg.URL == "" {
			return nil
		}
		target, err := w.resolve(msg.URL)
		if err != nil {
			return err
		}
		dynamic := w.partitions[PurposeDynamic]
		removed, err := dynamic.Delete(ctx, target.String())
		if err != nil {
			return err
		}
		w.logger.Debug("cache entry invalidated", slog.String("url", target.String()), slog.Bool("removed", removed))
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// Sync is the background-sync hook. Nothing is queued offline, so it only
// records that the tag fired.
func (w *Worker) Sync(ctx context.Context, tag string) {
	if tag != SyncTagBackground {
		w.logger.Debug("sync tag ignored", slog.String("tag", tag))
		return
	}
	w.logger.InfoContext(ctx, "background sync triggered")
}

// Notification mirrors the options a push message turns into.
type Notification struct {
	Title      string               `json:"title"`
	Body       string               `json:"body"`
	Icon       string               `json:"icon"`
	Badge      string               `json:"badge"`
	Vibrate    []int                `json:"vibrate"`
	PrimaryKey json.RawMessage      `json:"primaryKey"`
	Actions    []NotificationAction `json:"actions"`
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon"`
}

// Push decodes a push payload into the notification it describes. An empty
// payload yields no notification.
func (w *Worker) Push(ctx context.Context, payload []byte) (*Notification, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var data struct {
		Title      string          `json:"title"`
		Body       string          `json:"body"`
		PrimaryKey json.RawMessage `json:"primaryKey"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("offline: decode push payload: %w", err)
	}
	primary := data.PrimaryKey
	if len(primary) == 0 {
		primary = json.RawMessage("1")
	}
	n := &Notification{
		Title:      data.Title,
		Body:       data.Body,
		Icon:       "/favicon.svg",
		Badge:      "/favicon.svg",
		Vibrate:    []int{100, 50, 100},
		PrimaryKey: primary,
		Actions: []NotificationAction{
			{Action: "explore", Title: "Explore", Icon: "/favicon.svg"},
			{Action: "close", Title: "Close", Icon: "/favicon.svg"},
		},
	}
	w.logger.InfoContext(ctx, "push notification received", slog.String("title", n.Title))
	return n, nil
}

// precacheAssets fetches every asset concurrently and writes them only if all
// of them came back 2xx.
func (w *Worker) precacheAssets(ctx context.Context, assets []string) error {
	static := w.partitions[PurposeStatic]
	if err := static.open(ctx); err != nil {
		return err
	}
	keys := make([]string, len(assets))
	for i, asset := range assets {
		target, err := w.resolve(asset)
		if err != nil {
			return err
		}
		keys[i] = target.String()
	}
	results := make([]Entry, len(assets))
	group, gctx := errgroup.WithContext(ctx)
	for i, asset := range assets {
		group.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, keys[i], nil)
			if err != nil {
				return fmt.Errorf("offline: precache request %s: %w", asset, err)
			}
			resp, body, err := w.fetchAll(gctx, req, StrategyCacheFirst)
			if err != nil {
				return fmt.Errorf("offline: precache %s: %w", asset, err)
			}
			if !isOK(resp.StatusCode) {
				return fmt.Errorf("offline: precache %s: status %d", asset, resp.StatusCode)
			}
			results[i] = newEntry(resp, body, w.now())
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	var errs []error
	for i, entry := range results {
		if err := static.Put(ctx, keys[i], entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
