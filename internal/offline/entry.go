package offline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Entry is a stored response. Only 2xx responses are ever written.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body,omitempty"`
	StoredAt time.Time   `json:"storedAt"`
}

func newEntry(resp *http.Response, body []byte, storedAt time.Time) Entry {
	return Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     append([]byte(nil), body...),
		StoredAt: storedAt.UTC(),
	}
}

// Size is the byte count charged against a partition budget.
func (e Entry) Size() int64 {
	return int64(len(e.Body))
}

// Recency orders entries for eviction. It is the Date response header, or the
// zero Unix time when the header is missing or unparsable.
func (e Entry) Recency() time.Time {
	if raw := e.Header.Get("Date"); raw != "" {
		if parsed, err := http.ParseTime(raw); err == nil {
			return parsed
		}
	}
	return time.Unix(0, 0).UTC()
}

// Response materialises the entry as a fresh response for req.
func (e Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func encodeEntry(e Entry) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("offline: encode entry: %w", err)
	}
	return payload, nil
}

func decodeEntry(payload []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return Entry{}, fmt.Errorf("offline: decode entry: %w", err)
	}
	return e, nil
}

func isOK(status int) bool {
	return status >= 200 && status < 300
}
