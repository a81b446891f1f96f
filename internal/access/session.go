package access

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// User is the identity carried by a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the single admin session slot of a profile. It is an unsigned
// record; the gate trusts the client holding it.
type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newSession(user User, now time.Time, ttl time.Duration) Session {
	return Session{
		Token:     uuid.NewString(),
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// sessionTimers tracks the pending auto-logout callback of each profile.
type sessionTimers struct {
	mu     sync.Mutex
	timers map[string]Timer
}

func newSessionTimers() *sessionTimers {
	return &sessionTimers{timers: make(map[string]Timer)}
}

func (s *sessionTimers) schedule(clock Clock, namespace string, d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[namespace]; ok {
		prev.Stop()
	}
	var timer Timer
	timer = clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.timers[namespace] == timer {
			delete(s.timers, namespace)
		}
		s.mu.Unlock()
		fire()
	})
	s.timers[namespace] = timer
}

func (s *sessionTimers) cancel(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[namespace]; ok {
		timer.Stop()
		delete(s.timers, namespace)
	}
}

func (s *sessionTimers) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for namespace, timer := range s.timers {
		timer.Stop()
		delete(s.timers, namespace)
	}
}

func (s *sessionTimers) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
