package access

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/l0p7/newsedge/internal/kv"
)

const (
	sessionKey  = "admin_session"
	attemptsKey = "login_attempts"
)

// ProfileNamespace is the kv namespace holding one profile's guard state.
func ProfileNamespace(profileID string) string {
	return "access:" + profileID
}

// stateStore persists the session slot and attempt ledger of one profile.
// Unreadable records are treated as absent, the way a fresh profile would be.
type stateStore struct {
	kv        kv.Store
	namespace string
	logger    *slog.Logger
}

func (s stateStore) attempts(ctx context.Context) ([]Attempt, error) {
	payload, ok, err := s.kv.Get(ctx, s.namespace, attemptsKey)
	if err != nil {
		return nil, fmt.Errorf("access: load attempts: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var ledger []Attempt
	if err := json.Unmarshal(payload, &ledger); err != nil {
		s.logger.Warn("discarding unreadable attempt ledger", slog.String("namespace", s.namespace), slog.Any("error", err))
		return nil, nil
	}
	return ledger, nil
}

func (s stateStore) saveAttempts(ctx context.Context, ledger []Attempt) error {
	payload, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("access: encode attempts: %w", err)
	}
	if err := s.kv.Put(ctx, s.namespace, attemptsKey, payload); err != nil {
		return fmt.Errorf("access: save attempts: %w", err)
	}
	return nil
}

func (s stateStore) clearAttempts(ctx context.Context) error {
	if _, err := s.kv.Delete(ctx, s.namespace, attemptsKey); err != nil {
		return fmt.Errorf("access: clear attempts: %w", err)
	}
	return nil
}

func (s stateStore) session(ctx context.Context) (*Session, error) {
	payload, ok, err := s.kv.Get(ctx, s.namespace, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("access: load session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		s.logger.Warn("discarding unreadable session", slog.String("namespace", s.namespace), slog.Any("error", err))
		return nil, nil
	}
	return &session, nil
}

func (s stateStore) saveSession(ctx context.Context, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("access: encode session: %w", err)
	}
	if err := s.kv.Put(ctx, s.namespace, sessionKey, payload); err != nil {
		return fmt.Errorf("access: save session: %w", err)
	}
	return nil
}

func (s stateStore) clearSession(ctx context.Context) error {
	if _, err := s.kv.Delete(ctx, s.namespace, sessionKey); err != nil {
		return fmt.Errorf("access: clear session: %w", err)
	}
	return nil
}
