// Package memory implements an in-process blob store.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"mdtcore/internal/blob/core"
)

type object struct {
	info core.Info
	data []byte
}

// Store keeps objects in a map guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	objs map[string]object
	now  func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{objs: make(map[string]object), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	key, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read %s: %w", key, err)
	}
	sum := md5.Sum(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists && !opts.Overwrite {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrExists)
	}
	info := core.Info{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.now(),
	}
	s.objs[key] = object{info: info, data: b}
	return snapshot(info), nil
}

func (s *Store) lookup(key string) (object, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return object{}, err
	}
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return object{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return obj, nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	data := append([]byte(nil), obj.data...)
	return snapshot(obj.info), io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return snapshot(obj.info), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.objs))
	for k, v := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, snapshot(v.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func snapshot(info core.Info) core.Info {
	info.Metadata = core.CloneMetadata(info.Metadata)
	return info
}
