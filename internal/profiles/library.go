// Package profiles keeps stored configurations, named blocks of regular
// period data, in a blob store and serves them to the builders.
package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mdtcore/internal/blob"
	"mdtcore/pkg/domain"
)

const contentType = "application/json"

// Categories lists the profile categories a library accepts.
var Categories = []string{
	domain.ProfileLoad,
	domain.ProfileSolar,
	domain.ProfileWind,
	domain.ProfileHydro,
	domain.ProfileThermal,
}

// Library caches the profiles found in a blob store. Objects live under
// <category>/<name>.json.
type Library struct {
	store       blob.Store
	concurrency int
	newID       func() string

	mu         sync.RWMutex
	byCategory map[string][]domain.Profile
}

// Option configures a Library.
type Option func(*Library)

// WithConcurrency bounds the parallel fetches made by Load.
func WithConcurrency(n int) Option {
	return func(l *Library) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithIDGenerator overrides the ID assigned to profiles saved without one.
func WithIDGenerator(fn func() string) Option {
	return func(l *Library) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// New returns an empty library over store. Call Load to populate it.
func New(store blob.Store, opts ...Option) *Library {
	l := &Library{
		store:       store,
		concurrency: 8,
		newID:       uuid.NewString,
		byCategory:  make(map[string][]domain.Profile),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the object key of a profile.
func Key(category, name string) string {
	return path.Join(category, name+".json")
}

func validCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

func validate(p domain.Profile) error {
	if !validCategory(p.Category) {
		return domain.OptionError{Option: "category", Err: fmt.Errorf("%w: %q", domain.ErrInvalidOption, p.Category)}
	}
	if strings.TrimSpace(p.Label) == "" || strings.ContainsAny(p.Label, `/\`) {
		return domain.OptionError{Option: "name", Err: fmt.Errorf("%w: %q", domain.ErrInvalidOption, p.Label)}
	}
	return nil
}

// Save writes p, replacing a stored profile of the same category and name.
// A profile without an ID gets one.
func (l *Library) Save(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	if err := validate(p); err != nil {
		return domain.Profile{}, err
	}
	if p.ID == "" {
		p.ID = l.newID()
	}
	p.Data = append([]float64(nil), p.Data...)
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return domain.Profile{}, fmt.Errorf("encode profile %s: %w", p.Label, err)
	}
	meta := map[string]string{"id": p.ID}
	if p.Tier != "" {
		meta["tier"] = p.Tier
	}
	key := Key(p.Category, p.Label)
	if _, err := l.store.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{ContentType: contentType, Metadata: meta, Overwrite: true}); err != nil {
		return domain.Profile{}, fmt.Errorf("save profile %s: %w", key, err)
	}

	l.mu.Lock()
	l.byCategory[p.Category] = upsert(l.byCategory[p.Category], p)
	l.mu.Unlock()
	return p, nil
}

// Make creates a new stored configuration in category. Unlike Save it
// refuses to replace an existing profile of the same name, and a non-empty
// p.ID must be a UUID. Category and Label of p are ignored.
func (l *Library) Make(ctx context.Context, category, name string, p domain.Profile) (domain.Profile, error) {
	p.Category, p.Label = category, name
	if err := validate(p); err != nil {
		return domain.Profile{}, err
	}
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return domain.Profile{}, domain.OptionError{Option: "guid", Err: fmt.Errorf("%w: %v", domain.ErrInvalidOption, err)}
		}
	}
	if _, exists := l.Lookup(category, name); exists {
		return domain.Profile{}, domain.OptionError{Option: "name",
			Err: fmt.Errorf("%w: %s profile %q already exists", domain.ErrInvalidOption, category, name)}
	}
	return l.Save(ctx, p)
}

// MakeThermal creates a stored thermal load configuration.
func (l *Library) MakeThermal(ctx context.Context, name string, p domain.Profile) (domain.Profile, error) {
	return l.Make(ctx, domain.ProfileThermal, name, p)
}

// Delete removes a profile from the store and the cache.
func (l *Library) Delete(ctx context.Context, category, name string) (bool, error) {
	existed, err := l.store.Delete(ctx, Key(category, name))
	if err != nil {
		return false, fmt.Errorf("delete profile %s/%s: %w", category, name, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.byCategory[category]
	for i, p := range list {
		if p.Label == name {
			l.byCategory[category] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return existed, nil
}

// Load replaces the cache with the store contents, fetching objects
// concurrently. Undecodable objects are skipped with a warning; store
// failures abort the load and leave the cache untouched.
func (l *Library) Load(ctx context.Context) (*domain.Log, error) {
	infos, err := l.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	diag := domain.NewLog()
	loaded := make([]domain.Profile, len(infos))
	ok := make([]bool, len(infos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, info := range infos {
		category, _, found := strings.Cut(info.Key, "/")
		if !found || !validCategory(category) || !strings.HasSuffix(info.Key, ".json") {
			diag.Warnf("W0600", "ignoring %s: not a profile key", info.Key)
			continue
		}
		g.Go(func() error {
			p, err := l.fetch(gctx, info.Key)
			var decodeErr *decodeError
			switch {
			case errors.As(err, &decodeErr):
				diag.Warnf("W0601", "ignoring %s: %v", info.Key, decodeErr.err)
				return nil
			case err != nil:
				return err
			}
			if p.Category != category {
				diag.Warnf("W0601", "ignoring %s: stored category %q does not match its key", info.Key, p.Category)
				return nil
			}
			if n := p.Timing.NumPeriods(); n > 0 && n != len(p.Data) {
				diag.Add(domain.Entry{Category: domain.CategoryWarning, Tag: "W0500",
					Message: fmt.Sprintf("profile %q has %d data values but its period holds %d intervals", p.Label, len(p.Data), n),
					Entity:  domain.EntityStoredConfiguration, EntityID: p.ID, Facet: "Data"})
			}
			loaded[i], ok[i] = p, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return diag, fmt.Errorf("load profiles: %w", err)
	}

	next := make(map[string][]domain.Profile)
	for i, p := range loaded {
		if ok[i] {
			next[p.Category] = append(next[p.Category], p)
		}
	}
	for _, list := range next {
		sortByName(list)
	}
	l.mu.Lock()
	l.byCategory = next
	l.mu.Unlock()
	return diag, nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }

func (l *Library) fetch(ctx context.Context, key string) (domain.Profile, error) {
	_, rc, err := l.store.Get(ctx, key)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read %s: %w", key, err)
	}
	var p domain.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Profile{}, &decodeError{err: err}
	}
	if err := validate(p); err != nil {
		return domain.Profile{}, &decodeError{err: err}
	}
	return p, nil
}

// Profiles returns the cached profiles of a category ordered by name.
func (l *Library) Profiles(category string) []domain.Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	list := l.byCategory[category]
	out := make([]domain.Profile, len(list))
	for i, p := range list {
		p.Data = append([]float64(nil), p.Data...)
		out[i] = p
	}
	return out
}

// Lookup finds a cached profile by name within a category.
func (l *Library) Lookup(category, name string) (domain.Profile, bool) {
	for _, p := range l.Profiles(category) {
		if p.Label == name {
			return p, true
		}
	}
	return domain.Profile{}, false
}

func upsert(list []domain.Profile, p domain.Profile) []domain.Profile {
	for i := range list {
		if list[i].Label == p.Label {
			list[i] = p
			return list
		}
	}
	list = append(list, p)
	sortByName(list)
	return list
}

func sortByName(list []domain.Profile) {
	sort.Slice(list, func(i, j int) bool { return list[i].Label < list[j].Label })
}
