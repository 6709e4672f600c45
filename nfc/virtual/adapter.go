package virtual

import (
	"context"
	"fmt"

	"github.com/nedpals/umbral-nfc/internal/syncutil"
	"github.com/nedpals/umbral-nfc/logging"
	"github.com/nedpals/umbral-nfc/nfc"
)

// Adapter is an in-memory PlatformAdapter. Tags reach the dispatch callback
// through Present. The adapter remembers every tag it has seen by UID so a
// later presentation of the same UID sees what an earlier run wrote.
type Adapter struct {
	mu      syncutil.Mutex
	enabled bool
	deliver func(nfc.Tag) bool
	tags    map[string]*Tag
	logger  logging.Logger
}

// NewAdapter creates an enabled virtual reader.
func NewAdapter(logger logging.Logger) *Adapter {
	return &Adapter{
		enabled: true,
		tags:    make(map[string]*Tag),
		logger:  logging.OrNop(logger).With("component", "virtual"),
	}
}

func (a *Adapter) IsPresent() bool {
	return true
}

func (a *Adapter) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetEnabled simulates toggling the radio.
func (a *Adapter) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

func (a *Adapter) EnableDispatch(deliver func(nfc.Tag) bool) error {
	if deliver == nil {
		return fmt.Errorf("virtual: nil dispatch callback")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deliver = deliver
	return nil
}

func (a *Adapter) DisableDispatch() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deliver = nil
	return nil
}

// Tag returns the remembered tag for uid, creating a formatted empty one of
// tagType on first use.
func (a *Adapter) Tag(uid []byte, tagType nfc.TagType, opts ...TagOption) *Tag {
	key := nfc.ExtractUID(uid)
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.tags[key]; ok {
		return t
	}
	t := NewTag(uid, tagType, opts...)
	a.tags[key] = t
	return t
}

// Forget drops the remembered tag for uid.
func (a *Adapter) Forget(uid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tags, uid)
}

// Present delivers tag to the dispatch callback. It reports false when the
// radio is off, dispatch is disabled or the callback drops the tag.
func (a *Adapter) Present(tag *Tag) bool {
	a.mu.Lock()
	deliver := a.deliver
	enabled := a.enabled
	a.tags[tag.UID()] = tag
	a.mu.Unlock()

	if !enabled || deliver == nil {
		a.logger.Debug(context.Background(), "presentation ignored", "uid", tag.UID(), "enabled", enabled)
		return false
	}
	accepted := deliver(tag)
	a.logger.Debug(context.Background(), "tag presented", "uid", tag.UID(), "accepted", accepted)
	return accepted
}
