// Package kv provides the namespaced byte store that backs cache partitions and
// access-guard state. Namespaces are created on first write (or EnsureNamespace)
// and removed as a whole with DropNamespace.
package kv

import (
	"context"
	"errors"
)

// ErrNamespaceRequired is returned when an operation is called with an empty namespace.
var ErrNamespaceRequired = errors.New("kv: namespace required")

type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	// Delete reports whether the key existed.
	Delete(ctx context.Context, namespace, key string) (bool, error)
	Keys(ctx context.Context, namespace string) ([]string, error)
	EnsureNamespace(ctx context.Context, namespace string) error
	Namespaces(ctx context.Context) ([]string, error)
	// DropNamespace reports whether the namespace existed.
	DropNamespace(ctx context.Context, namespace string) (bool, error)
	Close(ctx context.Context) error
}

func checkNamespace(namespace string) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}
	return nil
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
