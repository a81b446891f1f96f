package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every option the edge service consumes at startup.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Worker  WorkerConfig  `koanf:"worker"`
	Access  AccessConfig  `koanf:"access"`
}

// ServerConfig collects the bootstrap knobs owned by the lifecycle server.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// StorageConfig selects the key-value backend shared by cache partitions and
// access-guard state.
type StorageConfig struct {
	Backend string             `koanf:"backend"`
	Bolt    StorageBoltConfig  `koanf:"bolt"`
	Redis   StorageRedisConfig `koanf:"redis"`
}

type StorageBoltConfig struct {
	Path string `koanf:"path"`
}

type StorageRedisConfig struct {
	Address   string                `koanf:"address"`
	Username  string                `koanf:"username"`
	Password  string                `koanf:"password"`
	DB        int                   `koanf:"db"`
	KeyPrefix string                `koanf:"keyPrefix"`
	TLS       StorageRedisTLSConfig `koanf:"tls"`
}

type StorageRedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// WorkerConfig describes the offline cache worker: which origin it serves,
// how partitions are versioned, and how requests are routed to strategies.
type WorkerConfig struct {
	Origin            string        `koanf:"origin"`
	CachePrefix       string        `koanf:"cachePrefix"`
	Version           int           `koanf:"version"`
	Precache          []string      `koanf:"precache"`
	ManifestFile      string        `koanf:"manifestFile"`
	StaticPrefix      string        `koanf:"staticPrefix"`
	APIPrefix         string        `koanf:"apiPrefix"`
	ContentPrefixes   []string      `koanf:"contentPrefixes"`
	ImageBudgetBytes  int64         `koanf:"imageBudgetBytes"`
	EvictionRatio     float64       `koanf:"evictionRatio"`
	MaxEntryBytes     int64         `koanf:"maxEntryBytes"`
	FetchTimeout      time.Duration `koanf:"fetchTimeout"`
	RevalidateTimeout time.Duration `koanf:"revalidateTimeout"`
	SkipWaiting       bool          `koanf:"skipWaiting"`
}

// AccessConfig configures the admin code gate. The code is a shared secret
// delivered with the portal; it is not a credential store.
type AccessConfig struct {
	Code             string           `koanf:"code"`
	CodeLength       int              `koanf:"codeLength"`
	MaxAttempts      int              `koanf:"maxAttempts"`
	LockoutWindow    time.Duration    `koanf:"lockoutWindow"`
	SessionDuration  time.Duration    `koanf:"sessionDuration"`
	LedgerCap        int              `koanf:"ledgerCap"`
	LoginPath        string           `koanf:"loginPath"`
	AdminPath        string           `koanf:"adminPath"`
	UnauthorizedPath string           `koanf:"unauthorizedPath"`
	ProfileCookie    string           `koanf:"profileCookie"`
	User             AccessUserConfig `koanf:"user"`
}

type AccessUserConfig struct {
	ID    string `koanf:"id"`
	Email string `koanf:"email"`
	Role  string `koanf:"role"`
}

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Worker.validate(); err != nil {
		return err
	}
	return c.Access.validate()
}

func (s StorageConfig) validate() error {
	backend := strings.TrimSpace(strings.ToLower(s.Backend))
	switch backend {
	case "", "memory":
	case "bolt":
		if strings.TrimSpace(s.Bolt.Path) == "" {
			return errors.New("config: storage.bolt.path required for bolt backend")
		}
	case "redis":
		if strings.TrimSpace(s.Redis.Address) == "" {
			return errors.New("config: storage.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: storage.backend unsupported: %s", s.Backend)
	}
	return nil
}

func (w WorkerConfig) validate() error {
	origin, err := url.Parse(strings.TrimSpace(w.Origin))
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("config: worker.origin must be an absolute URL: %q", w.Origin)
	}
	if strings.TrimSpace(w.CachePrefix) == "" {
		return errors.New("config: worker.cachePrefix required")
	}
	if w.Version <= 0 {
		return fmt.Errorf("config: worker.version invalid: %d", w.Version)
	}
	if w.ImageBudgetBytes <= 0 {
		return fmt.Errorf("config: worker.imageBudgetBytes invalid: %d", w.ImageBudgetBytes)
	}
	if w.EvictionRatio <= 0 || w.EvictionRatio > 1 {
		return fmt.Errorf("config: worker.evictionRatio must be in (0,1]: %v", w.EvictionRatio)
	}
	if w.MaxEntryBytes <= 0 {
		return fmt.Errorf("config: worker.maxEntryBytes invalid: %d", w.MaxEntryBytes)
	}
	if w.FetchTimeout < 0 || w.RevalidateTimeout < 0 {
		return errors.New("config: worker timeouts must not be negative")
	}
	for i, asset := range w.Precache {
		if !strings.HasPrefix(asset, "/") {
			return fmt.Errorf("config: worker.precache[%d] must be an absolute path: %q", i, asset)
		}
	}
	return nil
}

func (a AccessConfig) validate() error {
	if a.CodeLength <= 0 {
		return fmt.Errorf("config: access.codeLength invalid: %d", a.CodeLength)
	}
	if len(a.Code) != a.CodeLength {
		return fmt.Errorf("config: access.code must be %d characters", a.CodeLength)
	}
	for _, c := range a.Code {
		if c < '0' || c > '9' {
			return errors.New("config: access.code must contain only digits")
		}
	}
	if a.MaxAttempts <= 0 {
		return fmt.Errorf("config: access.maxAttempts invalid: %d", a.MaxAttempts)
	}
	if a.LockoutWindow <= 0 || a.SessionDuration <= 0 {
		return errors.New("config: access.lockoutWindow and access.sessionDuration must be positive")
	}
	if a.LedgerCap < a.MaxAttempts {
		return fmt.Errorf("config: access.ledgerCap (%d) must hold at least maxAttempts (%d)", a.LedgerCap, a.MaxAttempts)
	}
	for name, path := range map[string]string{"loginPath": a.LoginPath, "adminPath": a.AdminPath, "unauthorizedPath": a.UnauthorizedPath} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("config: access.%s must be an absolute path: %q", name, path)
		}
	}
	if strings.TrimSpace(a.ProfileCookie) == "" {
		return errors.New("config: access.profileCookie required")
	}
	if strings.TrimSpace(a.User.Role) == "" {
		return errors.New("config: access.user.role required")
	}
	return nil
}

// DefaultConfig returns the baseline values the portal shipped with.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-ID",
			},
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Worker: WorkerConfig{
			Origin:            "http://127.0.0.1:5173",
			CachePrefix:       "umar-media",
			Version:           3,
			Precache:          []string{"/", "/index.html", "/favicon.svg", "/favicon.ico", "/site.webmanifest"},
			StaticPrefix:      "/static/",
			APIPrefix:         "/api/",
			ContentPrefixes:   []string{"/article/", "/articles"},
			ImageBudgetBytes:  50 * 1024 * 1024,
			EvictionRatio:     0.5,
			MaxEntryBytes:     10 * 1024 * 1024,
			FetchTimeout:      30 * time.Second,
			RevalidateTimeout: 30 * time.Second,
			SkipWaiting:       true,
		},
		Access: AccessConfig{
			Code:             "345341",
			CodeLength:       6,
			MaxAttempts:      5,
			LockoutWindow:    15 * time.Minute,
			SessionDuration:  2 * time.Hour,
			LedgerCap:        50,
			LoginPath:        "/login",
			AdminPath:        "/admin",
			UnauthorizedPath: "/unauthorized",
			ProfileCookie:    "newsedge_profile",
			User: AccessUserConfig{
				ID:    "admin-user",
				Email: "admin@system.local",
				Role:  "admin",
			},
		},
	}
}
