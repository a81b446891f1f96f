package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// boltStore maps every namespace onto a top-level bucket.
type boltStore struct {
	db *bbolt.DB
}

// NewBolt opens (or creates) the bbolt file at path.
func NewBolt(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("kv: bolt path required")
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("kv: bolt open %s: %w", path, err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		// bbolt values are only valid inside the transaction.
		value = cloneBytes(bucket.Get([]byte(key)))
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("kv: bolt get: %w", err)
	}
	return value, value != nil, nil
}

func (s *boltStore) Put(_ context.Context, namespace, key string, value []byte) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("kv: bolt put: %w", err)
	}
	return nil
}

func (s *boltStore) Delete(_ context.Context, namespace, key string) (bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return false, err
	}
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		if bucket.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("kv: bolt delete: %w", err)
	}
	return existed, nil
}

func (s *boltStore) Keys(_ context.Context, namespace string) ([]string, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	keys := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("kv: bolt keys: %w", err)
	}
	return keys, nil
}

func (s *boltStore) EnsureNamespace(_ context.Context, namespace string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	})
	if err != nil {
		return fmt.Errorf("kv: bolt ensure namespace: %w", err)
	}
	return nil
}

func (s *boltStore) Namespaces(_ context.Context) ([]string, error) {
	names := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("kv: bolt namespaces: %w", err)
	}
	return names, nil
}

func (s *boltStore) DropNamespace(_ context.Context, namespace string) (bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return false, err
	}
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(namespace))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("kv: bolt drop namespace: %w", err)
	}
	return existed, nil
}

func (s *boltStore) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
