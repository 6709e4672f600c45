package nfc

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockRegistry is an in-memory Registry with error injection for tests.
type MockRegistry struct {
	// FindError, if set, will be returned by FindByUID and FindByID
	FindError error

	// RecordUsageError, if set, will be returned by RecordUsage()
	RecordUsageError error

	// InsertError, if set, will be returned by Insert()
	InsertError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	tags map[string]RegisteredTag
	mu   sync.Mutex
}

// NewMockRegistry creates a registry seeded with tags.
func NewMockRegistry(tags ...RegisteredTag) *MockRegistry {
	r := &MockRegistry{tags: make(map[string]RegisteredTag)}
	for _, t := range tags {
		r.tags[t.ID] = t
	}
	return r
}

// Calls returns a copy of the call log.
func (r *MockRegistry) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.CallLog...)
}

func (r *MockRegistry) FindByUID(_ context.Context, uid string) (*RegisteredTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallLog = append(r.CallLog, "FindByUID")
	if r.FindError != nil {
		return nil, r.FindError
	}
	for _, t := range r.tags {
		if t.UID == uid {
			return &t, nil
		}
	}
	return nil, ErrTagNotFound
}

func (r *MockRegistry) FindByID(_ context.Context, id string) (*RegisteredTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallLog = append(r.CallLog, "FindByID")
	if r.FindError != nil {
		return nil, r.FindError
	}
	if t, ok := r.tags[id]; ok {
		return &t, nil
	}
	return nil, ErrTagNotFound
}

func (r *MockRegistry) RecordUsage(_ context.Context, uid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallLog = append(r.CallLog, "RecordUsage")
	if r.RecordUsageError != nil {
		return r.RecordUsageError
	}
	for id, t := range r.tags {
		if t.UID == uid {
			t.UseCount++
			used := at
			t.LastUsedAt = &used
			r.tags[id] = t
			return nil
		}
	}
	return ErrTagNotFound
}

func (r *MockRegistry) Insert(_ context.Context, tag RegisteredTag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallLog = append(r.CallLog, "Insert")
	if r.InsertError != nil {
		return r.InsertError
	}
	for _, t := range r.tags {
		if t.ID == tag.ID || t.UID == tag.UID {
			return ErrTagAlreadyRegistered
		}
	}
	r.tags[tag.ID] = tag
	return nil
}

func (r *MockRegistry) Update(_ context.Context, tag RegisteredTag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallLog = append(r.CallLog, "Update")
	if _, ok := r.tags[tag.ID]; !ok {
		return ErrTagNotFound
	}
	r.tags[tag.ID] = tag
	return nil
}

func (r *MockRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallLog = append(r.CallLog, "Delete")
	if _, ok := r.tags[id]; !ok {
		return ErrTagNotFound
	}
	delete(r.tags, id)
	return nil
}

func (r *MockRegistry) List(_ context.Context) ([]RegisteredTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallLog = append(r.CallLog, "List")
	out := make([]RegisteredTag, 0, len(r.tags))
	for _, t := range r.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
