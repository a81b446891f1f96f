package kv

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

const defaultRedisKeyPrefix = "newsedge"

type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TLS       RedisTLSConfig
}

// redisStore keeps one hash per namespace plus a set that registers every
// namespace so DropNamespace and Namespaces do not need SCAN.
type redisStore struct {
	client valkey.Client
	prefix string
}

func NewRedis(cfg RedisConfig) (Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("kv: redis address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("kv: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("kv: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("kv: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: redis ping: %w", err)
	}

	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) registryKey() string {
	return s.prefix + ":namespaces"
}

func (s *redisStore) hashKey(namespace string) string {
	return s.prefix + ":ns:" + namespace
}

func (s *redisStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, false, err
	}
	resp := s.client.Do(ctx, s.client.B().Hget().Key(s.hashKey(namespace)).Field(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv: redis hget: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("kv: redis hget bytes: %w", err)
	}
	return payload, true, nil
}

func (s *redisStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	cmds := valkey.Commands{
		s.client.B().Sadd().Key(s.registryKey()).Member(namespace).Build(),
		s.client.B().Hset().Key(s.hashKey(namespace)).FieldValue().FieldValue(key, valkey.BinaryString(value)).Build(),
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("kv: redis put: %w", err)
		}
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, namespace, key string) (bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return false, err
	}
	removed, err := s.client.Do(ctx, s.client.B().Hdel().Key(s.hashKey(namespace)).Field(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("kv: redis hdel: %w", err)
	}
	return removed > 0, nil
}

func (s *redisStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	keys, err := s.client.Do(ctx, s.client.B().Hkeys().Key(s.hashKey(namespace)).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("kv: redis hkeys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *redisStore) EnsureNamespace(ctx context.Context, namespace string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(s.registryKey()).Member(namespace).Build()).Error(); err != nil {
		return fmt.Errorf("kv: redis sadd: %w", err)
	}
	return nil
}

func (s *redisStore) Namespaces(ctx context.Context) ([]string, error) {
	names, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.registryKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("kv: redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *redisStore) DropNamespace(ctx context.Context, namespace string) (bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return false, err
	}
	cmds := valkey.Commands{
		s.client.B().Srem().Key(s.registryKey()).Member(namespace).Build(),
		s.client.B().Del().Key(s.hashKey(namespace)).Build(),
	}
	results := s.client.DoMulti(ctx, cmds...)
	removed, err := results[0].AsInt64()
	if err != nil {
		return false, fmt.Errorf("kv: redis srem: %w", err)
	}
	if err := results[1].Error(); err != nil {
		return false, fmt.Errorf("kv: redis del: %w", err)
	}
	return removed > 0, nil
}

func (s *redisStore) Close(context.Context) error {
	s.client.Close()
	return nil
}
