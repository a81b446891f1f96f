// Package access gates the admin area behind a shared numeric code. Each
// browser profile has its own attempt ledger and session slot; lockout is
// derived from the ledger on every read and never stored.
package access

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/l0p7/newsedge/internal/config"
	"github.com/l0p7/newsedge/internal/metrics"
)

// Result is the outcome of a code submission. Failures are values here, not
// errors; an error from SubmitCode always means the state store failed.
type Result struct {
	Success        bool
	Reason         Reason
	Message        string
	Locked         bool
	LockRemaining  time.Duration
	FailedAttempts int
	Session        *Session
}

// Status summarises a profile's gate state.
type Status struct {
	Authenticated  bool
	Locked         bool
	LockRemaining  time.Duration
	FailedAttempts int
	Session        *Session
}

// Guard is the code gate for one profile.
type Guard struct {
	settings config.AccessConfig
	user     User
	state    stateStore
	clock    Clock
	timers   *sessionTimers
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// SubmitCode checks, in order: lockout (rejected without recording), code
// shape, then the code itself. Shape and mismatch failures are both recorded.
func (g *Guard) SubmitCode(ctx context.Context, code string) (Result, error) {
	now := g.clock.Now()
	ledger, err := g.state.attempts(ctx)
	if err != nil {
		return Result{}, err
	}

	if failures, locked, remaining := g.lockout(ledger, now); locked {
		g.metrics.ObserveAccessAttempt(metrics.AccessOutcomeLocked, string(ReasonLocked))
		g.logger.Info("code rejected while locked", slog.Duration("remaining", remaining))
		return Result{
			Reason:         ReasonLocked,
			Message:        ReasonLocked.Message(g.settings.CodeLength),
			Locked:         true,
			LockRemaining:  remaining,
			FailedAttempts: failures,
		}, nil
	}

	if reason := g.check(code); reason != "" {
		ledger = appendAttempt(ledger, Attempt{Timestamp: now, Reason: reason}, g.settings.LedgerCap)
		if err := g.state.saveAttempts(ctx, ledger); err != nil {
			return Result{}, err
		}
		failures, locked, remaining := g.lockout(ledger, now)
		g.metrics.ObserveAccessAttempt(metrics.AccessOutcomeFailure, string(reason))
		if locked {
			g.metrics.ObserveLockout()
			g.logger.Warn("profile locked out", slog.Int("failures", failures), slog.Duration("remaining", remaining))
		}
		return Result{
			Reason:         reason,
			Message:        reason.Message(g.settings.CodeLength),
			Locked:         locked,
			LockRemaining:  remaining,
			FailedAttempts: failures,
		}, nil
	}

	ledger = withoutFailures(appendAttempt(ledger, Attempt{Timestamp: now, Success: true}, g.settings.LedgerCap))
	if err := g.state.saveAttempts(ctx, ledger); err != nil {
		return Result{}, err
	}
	session := newSession(g.user, now, g.settings.SessionDuration)
	if err := g.state.saveSession(ctx, session); err != nil {
		return Result{}, err
	}
	g.scheduleExpiry(session)
	g.metrics.ObserveAccessAttempt(metrics.AccessOutcomeSuccess, "")
	g.logger.Info("admin session created", slog.Time("expires_at", session.ExpiresAt))
	return Result{Success: true, Session: &session}, nil
}

func (g *Guard) check(code string) Reason {
	if utf8.RuneCountInString(code) != g.settings.CodeLength {
		return ReasonLength
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ReasonDigits
		}
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(g.settings.Code)) != 1 {
		return ReasonInvalid
	}
	return ""
}

func (g *Guard) lockout(ledger []Attempt, now time.Time) (int, bool, time.Duration) {
	return lockout(ledger, now, g.settings.LockoutWindow, g.settings.MaxAttempts)
}

func (g *Guard) IsLockedOut(ctx context.Context) (bool, error) {
	ledger, err := g.state.attempts(ctx)
	if err != nil {
		return false, err
	}
	_, locked, _ := g.lockout(ledger, g.clock.Now())
	return locked, nil
}

// LockoutRemaining is zero when the profile is not locked.
func (g *Guard) LockoutRemaining(ctx context.Context) (time.Duration, error) {
	ledger, err := g.state.attempts(ctx)
	if err != nil {
		return 0, err
	}
	_, _, remaining := g.lockout(ledger, g.clock.Now())
	return remaining, nil
}

// Session returns the unexpired session or nil. An expired session is purged.
func (g *Guard) Session(ctx context.Context) (*Session, error) {
	session, err := g.state.session(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	if session.Expired(g.clock.Now()) {
		if err := g.clearSession(ctx); err != nil {
			return nil, err
		}
		g.logger.Info("expired admin session purged")
		return nil, nil
	}
	return session, nil
}

// Logout purges the session and also clears the attempt ledger, which lifts
// any lockout.
func (g *Guard) Logout(ctx context.Context) error {
	if err := g.clearSession(ctx); err != nil {
		return err
	}
	return g.state.clearAttempts(ctx)
}

// Attempts returns the ledger, oldest first.
func (g *Guard) Attempts(ctx context.Context) ([]Attempt, error) {
	return g.state.attempts(ctx)
}

func (g *Guard) Status(ctx context.Context) (Status, error) {
	session, err := g.Session(ctx)
	if err != nil {
		return Status{}, err
	}
	ledger, err := g.state.attempts(ctx)
	if err != nil {
		return Status{}, err
	}
	failures, locked, remaining := g.lockout(ledger, g.clock.Now())
	return Status{
		Authenticated:  session != nil,
		Locked:         locked,
		LockRemaining:  remaining,
		FailedAttempts: failures,
		Session:        session,
	}, nil
}

func (g *Guard) clearSession(ctx context.Context) error {
	g.timers.cancel(g.state.namespace)
	return g.state.clearSession(ctx)
}

// scheduleExpiry purges the session when it expires, unless it has been
// replaced by a newer login in the meantime.
func (g *Guard) scheduleExpiry(session Session) {
	ttl := session.ExpiresAt.Sub(g.clock.Now())
	if ttl <= 0 {
		return
	}
	// Fire just past expiry: a session is still valid at exactly ExpiresAt.
	g.timers.schedule(g.clock, g.state.namespace, ttl+time.Millisecond, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		current, err := g.state.session(ctx)
		if err != nil {
			g.logger.Error("session expiry check failed", slog.Any("error", err))
			return
		}
		if current == nil || current.Token != session.Token {
			return
		}
		if err := g.state.clearSession(ctx); err != nil {
			g.logger.Error("session expiry purge failed", slog.Any("error", err))
			return
		}
		g.logger.Info("admin session expired")
	})
}
