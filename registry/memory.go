package registry

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/nedpals/umbral-nfc/internal/syncutil"
	"github.com/nedpals/umbral-nfc/nfc"
)

// MemoryRegistry keeps tags in maps keyed by id with a uid index.
type MemoryRegistry struct {
	mu    syncutil.RWMutex
	byID  map[string]nfc.RegisteredTag
	byUID map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID:  make(map[string]nfc.RegisteredTag),
		byUID: make(map[string]string),
	}
}

func (r *MemoryRegistry) FindByUID(_ context.Context, uid string) (*nfc.RegisteredTag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUID[uid]
	if !ok {
		return nil, nfc.ErrTagNotFound
	}
	return cloneTag(r.byID[id]), nil
}

func (r *MemoryRegistry) FindByID(_ context.Context, id string) (*nfc.RegisteredTag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.byID[id]
	if !ok {
		return nil, nfc.ErrTagNotFound
	}
	return cloneTag(tag), nil
}

func (r *MemoryRegistry) RecordUsage(_ context.Context, uid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUID[uid]
	if !ok {
		return nfc.ErrTagNotFound
	}
	tag := r.byID[id]
	tag.UseCount++
	tag.LastUsedAt = &at
	r.byID[id] = tag
	return nil
}

func (r *MemoryRegistry) Insert(_ context.Context, tag nfc.RegisteredTag) error {
	if err := validate(tag); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[tag.ID]; ok {
		return nfc.ErrTagAlreadyRegistered
	}
	if _, ok := r.byUID[tag.UID]; ok {
		return nfc.ErrTagAlreadyRegistered
	}
	r.byID[tag.ID] = *cloneTag(tag)
	r.byUID[tag.UID] = tag.ID
	return nil
}

// Update replaces the entry with tag.ID. Changing the UID to one held by
// another entry is a conflict.
func (r *MemoryRegistry) Update(_ context.Context, tag nfc.RegisteredTag) error {
	if err := validate(tag); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[tag.ID]
	if !ok {
		return nfc.ErrTagNotFound
	}
	if owner, taken := r.byUID[tag.UID]; taken && owner != tag.ID {
		return nfc.ErrTagAlreadyRegistered
	}
	delete(r.byUID, old.UID)
	r.byID[tag.ID] = *cloneTag(tag)
	r.byUID[tag.UID] = tag.ID
	return nil
}

func (r *MemoryRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag, ok := r.byID[id]
	if !ok {
		return nfc.ErrTagNotFound
	}
	delete(r.byID, id)
	delete(r.byUID, tag.UID)
	return nil
}

func (r *MemoryRegistry) List(_ context.Context) ([]nfc.RegisteredTag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]nfc.RegisteredTag, 0, len(r.byID))
	for _, tag := range r.byID {
		tags = append(tags, *cloneTag(tag))
	}
	slices.SortStableFunc(tags, func(a, b nfc.RegisteredTag) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return tags, nil
}

func (r *MemoryRegistry) Close() error {
	return nil
}

func cloneTag(tag nfc.RegisteredTag) *nfc.RegisteredTag {
	if tag.LastUsedAt != nil {
		at := *tag.LastUsedAt
		tag.LastUsedAt = &at
	}
	return &tag
}
