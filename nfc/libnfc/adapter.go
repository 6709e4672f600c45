// Package libnfc is the hardware backend: a PlatformAdapter over a
// libnfc-supported USB reader, with MIFARE Ultralight and NTAG21x tags
// driven page by page through libfreefare.
package libnfc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/clausecker/freefare"
	gonfc "github.com/clausecker/nfc/v2"

	"github.com/nedpals/umbral-nfc/internal/syncutil"
	"github.com/nedpals/umbral-nfc/logging"
	"github.com/nedpals/umbral-nfc/nfc"
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultOpenRetries  = 5
)

// ErrNoReader is returned by Open when libnfc lists no devices.
var ErrNoReader = errors.New("libnfc: no reader found")

// Config configures the reader backend.
type Config struct {
	// Device is a libnfc connection string such as "pn532_uart:/dev/ttyUSB0".
	// Empty selects the first listed device.
	Device       string
	PollInterval time.Duration
	OpenRetries  uint64
	Clock        nfc.Clock
	Logger       logging.Logger
}

// Adapter polls a reader for tags. A tag is delivered once per presentation:
// it must leave the field before it is delivered again.
type Adapter struct {
	cfg    Config
	logger logging.Logger

	// devMu serializes every libnfc call. Tag I/O holds it between Connect
	// and Close so polling cannot select another target mid-run.
	devMu syncutil.Mutex
	dev   gonfc.Device
	open  bool

	mu      syncutil.Mutex
	present bool
	enabled bool
	deliver func(nfc.Tag) bool
	inField map[string]bool
}

// New creates an adapter without touching the hardware.
func New(cfg Config) *Adapter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.OpenRetries == 0 {
		cfg.OpenRetries = DefaultOpenRetries
	}
	if cfg.Clock == nil {
		cfg.Clock = nfc.RealClock{}
	}
	return &Adapter{
		cfg:     cfg,
		logger:  logging.OrNop(cfg.Logger).With("component", "libnfc"),
		inField: make(map[string]bool),
	}
}

// Open connects to the reader, retrying with exponential backoff. On failure
// the adapter stays absent and the monitor reports NFC_NOT_AVAILABLE.
func (a *Adapter) Open(ctx context.Context) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.cfg.OpenRetries), ctx)
	err := backoff.Retry(func() error {
		err := a.connect()
		if err != nil {
			a.logger.Warn(ctx, "reader open failed", "device", a.cfg.Device, "error", err)
		}
		return err
	}, policy)
	if err != nil {
		return fmt.Errorf("open reader: %w", err)
	}

	a.mu.Lock()
	a.present = true
	a.enabled = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) connect() error {
	conn := a.cfg.Device
	if conn == "" {
		devices, err := gonfc.ListDevices()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		if len(devices) == 0 {
			return ErrNoReader
		}
		conn = devices[0]
	}

	dev, err := gonfc.Open(conn)
	if err != nil {
		return fmt.Errorf("open %q: %w", conn, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return fmt.Errorf("initiator init %q: %w", conn, err)
	}

	a.devMu.Lock()
	a.dev = dev
	a.open = true
	a.devMu.Unlock()
	a.logger.Info(context.Background(), "reader connected", "device", dev.String(), "connection", dev.Connection())
	return nil
}

func (a *Adapter) disconnect() {
	a.devMu.Lock()
	defer a.devMu.Unlock()
	if a.open {
		a.dev.Close()
		a.open = false
	}
}

// Close releases the reader.
func (a *Adapter) Close() error {
	a.disconnect()
	a.mu.Lock()
	a.enabled = false
	a.mu.Unlock()
	return nil
}

func (a *Adapter) IsPresent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.present
}

// IsEnabled is false while the reader is disconnected after a poll failure.
func (a *Adapter) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *Adapter) EnableDispatch(deliver func(nfc.Tag) bool) error {
	if deliver == nil {
		return fmt.Errorf("libnfc: nil dispatch callback")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.present {
		return fmt.Errorf("libnfc: reader not open")
	}
	a.deliver = deliver
	return nil
}

func (a *Adapter) DisableDispatch() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deliver = nil
	clear(a.inField)
	return nil
}

// Run polls the reader until ctx is done. A failed poll closes the device;
// the next tick reopens it.
func (a *Adapter) Run(ctx context.Context) {
	if !a.IsPresent() {
		return
	}
	ticker := a.cfg.Clock.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	defer a.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			a.tick(ctx)
		}
	}
}

func (a *Adapter) tick(ctx context.Context) {
	a.mu.Lock()
	deliver := a.deliver
	a.mu.Unlock()
	if deliver == nil {
		return
	}

	if !a.isOpen() {
		if err := a.connect(); err != nil {
			a.logger.Debug(ctx, "reconnect failed", "error", err)
			return
		}
		a.setEnabled(true)
	}

	tags, err := a.poll()
	if err != nil {
		a.logger.Warn(ctx, "poll failed, closing reader", "error", err)
		a.disconnect()
		a.setEnabled(false)
		return
	}

	for _, tag := range a.arrivals(tags) {
		accepted := deliver(tag)
		a.logger.Debug(ctx, "tag arrived", "uid", tag.UID(), "techs", tag.Technologies(), "accepted", accepted)
	}
}

func (a *Adapter) isOpen() bool {
	a.devMu.Lock()
	defer a.devMu.Unlock()
	return a.open
}

func (a *Adapter) setEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

func (a *Adapter) poll() ([]*Tag, error) {
	a.devMu.Lock()
	defer a.devMu.Unlock()
	if !a.open {
		return nil, fmt.Errorf("reader closed")
	}

	found, err := freefare.GetTags(a.dev)
	if err != nil {
		return nil, err
	}
	tags := make([]*Tag, 0, len(found))
	for _, ft := range found {
		tags = append(tags, newTag(a, ft))
	}
	return tags, nil
}

// arrivals returns the tags not present during the previous poll and
// forgets the ones that left.
func (a *Adapter) arrivals(tags []*Tag) []*Tag {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := make(map[string]bool, len(tags))
	var fresh []*Tag
	for _, t := range tags {
		uid := t.UID()
		if current[uid] {
			continue
		}
		current[uid] = true
		if !a.inField[uid] {
			fresh = append(fresh, t)
		}
	}
	a.inField = current
	return fresh
}
