package catalogstore

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"noetl/internal/domain/catalog"
)

// MemoryStore is an in-memory Store used by unit tests and local `execute`
// runs against a file-based playbook.
type MemoryStore struct {
	mu      sync.Mutex
	entries []catalog.Entry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Register(ctx context.Context, p string, typ catalog.ResourceType, content string, payload, meta map[string]any) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := catalog.DefaultVersion
	for attempt := 0; attempt < MaxRegisterRetries; attempt++ {
		collide := false
		best := catalog.Version{}
		found := false
		for _, e := range s.entries {
			if e.Path != p || e.Type != typ {
				continue
			}
			v, err := catalog.ParseVersion(e.Version)
			if err != nil {
				continue
			}
			if !found || best.Less(v) {
				best = v
				found = true
			}
		}
		if found {
			next = best.NextPatch()
		}
		for _, e := range s.entries {
			if e.Path == p && e.Version == next.String() {
				collide = true
				break
			}
		}
		if !collide {
			break
		}
	}

	entry := catalog.Entry{
		Path:      p,
		Version:   next.String(),
		Type:      typ,
		Content:   content,
		Payload:   payload,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	}
	s.entries = append(s.entries, entry)
	return &entry, nil
}

func (s *MemoryStore) Fetch(ctx context.Context, p, version string) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.find(p, version); e != nil {
		return e, nil
	}
	if strings.Contains(p, "/") {
		fallback := path.Base(p)
		if e := s.find(fallback, version); e != nil {
			return e, nil
		}
	}
	return nil, fmt.Errorf("catalog entry not found: %s@%s", p, version)
}

func (s *MemoryStore) find(p, version string) *catalog.Entry {
	for i := range s.entries {
		if s.entries[i].Path == p && s.entries[i].Version == version {
			e := s.entries[i]
			return &e
		}
	}
	return nil
}

func (s *MemoryStore) Latest(ctx context.Context, p string) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *catalog.Entry
	var bestV catalog.Version
	for i := range s.entries {
		e := s.entries[i]
		if e.Path != p {
			continue
		}
		v, err := catalog.ParseVersion(e.Version)
		if err != nil {
			continue
		}
		if best == nil || bestV.Less(v) {
			bestV = v
			entry := e
			best = &entry
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no versions found for path %s", p)
	}
	return best, nil
}

func (s *MemoryStore) List(ctx context.Context, typ catalog.ResourceType) ([]catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]catalog.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
