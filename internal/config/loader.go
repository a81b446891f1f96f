package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// canonicalKeys restores camelCase koanf paths from lower-cased env names.
var canonicalKeys = map[string]string{
	"server.logging.correlationheader": "server.logging.correlationHeader",
	"storage.redis.keyprefix":          "storage.redis.keyPrefix",
	"storage.redis.tls.cafile":         "storage.redis.tls.caFile",
	"worker.cacheprefix":               "worker.cachePrefix",
	"worker.manifestfile":              "worker.manifestFile",
	"worker.staticprefix":              "worker.staticPrefix",
	"worker.apiprefix":                 "worker.apiPrefix",
	"worker.contentprefixes":           "worker.contentPrefixes",
	"worker.imagebudgetbytes":          "worker.imageBudgetBytes",
	"worker.maxentrybytes":             "worker.maxEntryBytes",
	"worker.evictionratio":             "worker.evictionRatio",
	"worker.fetchtimeout":              "worker.fetchTimeout",
	"worker.revalidatetimeout":         "worker.revalidateTimeout",
	"worker.skipwaiting":               "worker.skipWaiting",
	"access.codelength":                "access.codeLength",
	"access.maxattempts":               "access.maxAttempts",
	"access.lockoutwindow":             "access.lockoutWindow",
	"access.sessionduration":           "access.sessionDuration",
	"access.ledgercap":                 "access.ledgerCap",
	"access.loginpath":                 "access.loginPath",
	"access.adminpath":                 "access.adminPath",
	"access.unauthorizedpath":          "access.unauthorizedPath",
	"access.profilecookie":             "access.profileCookie",
}

// Load assembles the effective snapshot so the lifecycle agent can make decisions using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		transform := func(s string) string {
			// Double underscores signal a nested path (WORKER__FETCH_TIMEOUT -> worker.fetchTimeout).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if mapped, ok := canonicalKeys[key]; ok {
				return mapped
			}
			return key
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if path := strings.TrimSpace(cfg.Worker.ManifestFile); path != "" {
		assets, err := LoadManifest(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Worker.Precache = assets
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":             cfg.Server.Logging.Level,
				"format":            cfg.Server.Logging.Format,
				"correlationHeader": cfg.Server.Logging.CorrelationHeader,
			},
		},
		"storage": map[string]any{
			"backend": cfg.Storage.Backend,
			"bolt": map[string]any{
				"path": cfg.Storage.Bolt.Path,
			},
			"redis": map[string]any{
				"address":   cfg.Storage.Redis.Address,
				"username":  cfg.Storage.Redis.Username,
				"password":  cfg.Storage.Redis.Password,
				"db":        cfg.Storage.Redis.DB,
				"keyPrefix": cfg.Storage.Redis.KeyPrefix,
				"tls": map[string]any{
					"enabled": cfg.Storage.Redis.TLS.Enabled,
					"caFile":  cfg.Storage.Redis.TLS.CAFile,
				},
			},
		},
		"worker": map[string]any{
			"origin":            cfg.Worker.Origin,
			"cachePrefix":       cfg.Worker.CachePrefix,
			"version":           cfg.Worker.Version,
			"precache":          append([]string(nil), cfg.Worker.Precache...),
			"manifestFile":      cfg.Worker.ManifestFile,
			"staticPrefix":      cfg.Worker.StaticPrefix,
			"apiPrefix":         cfg.Worker.APIPrefix,
			"contentPrefixes":   append([]string(nil), cfg.Worker.ContentPrefixes...),
			"imageBudgetBytes":  cfg.Worker.ImageBudgetBytes,
			"evictionRatio":     cfg.Worker.EvictionRatio,
			"maxEntryBytes":     cfg.Worker.MaxEntryBytes,
			"fetchTimeout":      cfg.Worker.FetchTimeout,
			"revalidateTimeout": cfg.Worker.RevalidateTimeout,
			"skipWaiting":       cfg.Worker.SkipWaiting,
		},
		"access": map[string]any{
			"code":             cfg.Access.Code,
			"codeLength":       cfg.Access.CodeLength,
			"maxAttempts":      cfg.Access.MaxAttempts,
			"lockoutWindow":    cfg.Access.LockoutWindow,
			"sessionDuration":  cfg.Access.SessionDuration,
			"ledgerCap":        cfg.Access.LedgerCap,
			"loginPath":        cfg.Access.LoginPath,
			"adminPath":        cfg.Access.AdminPath,
			"unauthorizedPath": cfg.Access.UnauthorizedPath,
			"profileCookie":    cfg.Access.ProfileCookie,
			"user": map[string]any{
				"id":    cfg.Access.User.ID,
				"email": cfg.Access.User.Email,
				"role":  cfg.Access.User.Role,
			},
		},
	}
}
