package nfc

import (
	"context"
	"errors"
	"time"
)

// ErrTagNotFound is returned by Registry lookups, updates and deletes when
// no entry matches.
var ErrTagNotFound = errors.New("tag not found")

// RegisteredTag is a physical tag registered with the agent.
type RegisteredTag struct {
	ID         string     `json:"id"`
	UID        string     `json:"uid"`
	Name       string     `json:"name"`
	Location   string     `json:"location,omitempty"`
	ProfileID  string     `json:"profileId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	UseCount   int64      `json:"useCount"`
}

// Registry stores registered tags. Insert reports an id or uid conflict as
// ErrTagAlreadyRegistered.
type Registry interface {
	FindByUID(ctx context.Context, uid string) (*RegisteredTag, error)
	FindByID(ctx context.Context, id string) (*RegisteredTag, error)
	RecordUsage(ctx context.Context, uid string, at time.Time) error
	Insert(ctx context.Context, tag RegisteredTag) error
	Update(ctx context.Context, tag RegisteredTag) error
	Delete(ctx context.Context, id string) error
	// List returns all entries ordered by creation time.
	List(ctx context.Context) ([]RegisteredTag, error)
}
