package offline

import (
	"context"
	"fmt"
	"strings"

	"github.com/l0p7/newsedge/internal/kv"
)

// namespacePrefix keeps cache partitions apart from other state sharing the store.
const namespacePrefix = "cache:"

// Purpose names one of the three partitions the worker owns.
type Purpose string

const (
	PurposeStatic  Purpose = "static"
	PurposeDynamic Purpose = "dynamic"
	PurposeImages  Purpose = "images"
)

var purposes = []Purpose{PurposeStatic, PurposeDynamic, PurposeImages}

// PartitionName returns the versioned partition name, e.g. umar-media-static-v3.
func PartitionName(prefix string, purpose Purpose, version int) string {
	return fmt.Sprintf("%s-%s-v%d", prefix, purpose, version)
}

// Partition is a named key to response store backed by one kv namespace.
type Partition struct {
	name  string
	store kv.Store
}

func newPartition(store kv.Store, name string) *Partition {
	return &Partition{name: name, store: store}
}

func (p *Partition) Name() string { return p.name }

func (p *Partition) namespace() string { return namespacePrefix + p.name }

func (p *Partition) open(ctx context.Context) error {
	if err := p.store.EnsureNamespace(ctx, p.namespace()); err != nil {
		return fmt.Errorf("offline: open %s: %w", p.name, err)
	}
	return nil
}

// Match returns the entry stored under key.
func (p *Partition) Match(ctx context.Context, key string) (Entry, bool, error) {
	payload, ok, err := p.store.Get(ctx, p.namespace(), key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("offline: match %s: %w", p.name, err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	entry, err := decodeEntry(payload)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (p *Partition) Put(ctx context.Context, key string, entry Entry) error {
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := p.store.Put(ctx, p.namespace(), key, payload); err != nil {
		return fmt.Errorf("offline: put %s: %w", p.name, err)
	}
	return nil
}

func (p *Partition) Delete(ctx context.Context, key string) (bool, error) {
	existed, err := p.store.Delete(ctx, p.namespace(), key)
	if err != nil {
		return false, fmt.Errorf("offline: delete %s: %w", p.name, err)
	}
	return existed, nil
}

type keyedEntry struct {
	key   string
	entry Entry
}

// entries decodes every stored entry. Undecodable entries are dropped from the
// partition since no strategy could ever serve them.
func (p *Partition) entries(ctx context.Context) ([]keyedEntry, error) {
	keys, err := p.store.Keys(ctx, p.namespace())
	if err != nil {
		return nil, fmt.Errorf("offline: keys %s: %w", p.name, err)
	}
	out := make([]keyedEntry, 0, len(keys))
	for _, key := range keys {
		payload, ok, err := p.store.Get(ctx, p.namespace(), key)
		if err != nil {
			return nil, fmt.Errorf("offline: read %s: %w", p.name, err)
		}
		if !ok {
			continue
		}
		entry, err := decodeEntry(payload)
		if err != nil {
			if _, delErr := p.store.Delete(ctx, p.namespace(), key); delErr != nil {
				return nil, fmt.Errorf("offline: drop corrupt entry %s: %w", p.name, delErr)
			}
			continue
		}
		out = append(out, keyedEntry{key: key, entry: entry})
	}
	return out, nil
}

// PartitionStats summarises a partition for the state endpoint.
type PartitionStats struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

func (p *Partition) Stats(ctx context.Context) (PartitionStats, error) {
	entries, err := p.entries(ctx)
	if err != nil {
		return PartitionStats{}, err
	}
	stats := PartitionStats{Name: p.name, Entries: len(entries)}
	for _, e := range entries {
		stats.Bytes += e.entry.Size()
	}
	return stats, nil
}

// listPartitions returns the names of every cache partition present in store.
func listPartitions(ctx context.Context, store kv.Store) ([]string, error) {
	namespaces, err := store.Namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("offline: list partitions: %w", err)
	}
	names := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		if name, ok := strings.CutPrefix(ns, namespacePrefix); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func dropPartition(ctx context.Context, store kv.Store, name string) (bool, error) {
	dropped, err := store.DropNamespace(ctx, namespacePrefix+name)
	if err != nil {
		return false, fmt.Errorf("offline: drop %s: %w", name, err)
	}
	return dropped, nil
}
