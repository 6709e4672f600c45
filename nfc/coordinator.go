package nfc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nedpals/umbral-nfc/internal/syncutil"
	"github.com/nedpals/umbral-nfc/logging"
)

const (
	opEnable       = "EnableScanning"
	opDisable      = "DisableScanning"
	opRequestWrite = "RequestWrite"
	opDispatch     = "Dispatch"
	opRegister     = "Register"

	DefaultEventBuffer = 16
)

// WriteRequest describes the registry entry created when the next tag is
// registered.
type WriteRequest struct {
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
}

// CoordinatorConfig wires a Coordinator. Monitor, Adapter, Engine and
// Registry are required.
type CoordinatorConfig struct {
	Monitor  *AdapterMonitor
	Adapter  PlatformAdapter
	Engine   *Engine
	Registry Registry
	Clock    Clock
	Logger   logging.Logger
	// EventBuffer is the capacity of the tag event channel.
	EventBuffer int
	// NewID generates registry ids for newly registered tags.
	NewID func() string
}

// Coordinator turns tag presentations into tag events and scan state. It
// processes one presentation at a time on the goroutine running Run;
// presentations delivered while a run is in flight are dropped.
type Coordinator struct {
	monitor  *AdapterMonitor
	adapter  PlatformAdapter
	engine   *Engine
	registry Registry
	clock    Clock
	logger   logging.Logger
	newID    func() string

	scan     *Observable[ScanState]
	events   chan TagEvent
	triggers chan Tag
	busy     atomic.Bool

	// runStart is the phase a run was accepted in. Deliver sets it while
	// holding busy, the worker reads it after receiving the run.
	runStart ScanPhase

	mu          syncutil.Mutex
	dispatching bool
	pending     *WriteRequest
}

// NewCoordinator validates cfg and applies defaults.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	switch {
	case cfg.Monitor == nil:
		return nil, fmt.Errorf("coordinator: monitor cannot be nil")
	case cfg.Adapter == nil:
		return nil, fmt.Errorf("coordinator: adapter cannot be nil")
	case cfg.Engine == nil:
		return nil, fmt.Errorf("coordinator: engine cannot be nil")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("coordinator: registry cannot be nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.NewID == nil {
		cfg.NewID = NewTagID
	}

	return &Coordinator{
		monitor:  cfg.Monitor,
		adapter:  cfg.Adapter,
		engine:   cfg.Engine,
		registry: cfg.Registry,
		clock:    cfg.Clock,
		logger:   logging.OrNop(cfg.Logger).With("component", "coordinator"),
		newID:    cfg.NewID,
		scan:     NewObservable(IdleState()),
		events:   make(chan TagEvent, cfg.EventBuffer),
		triggers: make(chan Tag, 1),
	}, nil
}

// Run processes accepted presentations until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Debug(ctx, "coordinator started")
	defer c.logger.Debug(ctx, "coordinator stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case tag := <-c.triggers:
			c.process(ctx, tag)
			c.busy.Store(false)
		}
	}
}

// Deliver hands a presentation to the worker. It is the dispatch callback
// installed on the adapter and reports whether the tag was accepted.
func (c *Coordinator) Deliver(tag Tag) bool {
	if tag == nil {
		return false
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.Debug(context.Background(), "tag dropped, worker busy", "uid", ExtractUID(tag.ID()))
		return false
	}
	c.runStart = c.scan.Get().Phase
	select {
	case c.triggers <- tag:
		return true
	default:
		c.busy.Store(false)
		return false
	}
}

// EnableScanning starts tag dispatch. When the adapter is not enabled the
// scan state becomes Error and the platform dispatch is left untouched.
func (c *Coordinator) EnableScanning() error {
	if err := c.checkAdapter(opEnable); err != nil {
		return err
	}
	if err := c.enableDispatch(opEnable); err != nil {
		return err
	}
	c.transition(ScanningState(), TriggerEnable)
	return nil
}

// DisableScanning stops tag dispatch and drops any pending write. A run
// already in flight still publishes its event and lands its scan state.
func (c *Coordinator) DisableScanning() error {
	c.mu.Lock()
	c.pending = nil
	if c.dispatching {
		if err := c.adapter.DisableDispatch(); err != nil {
			c.mu.Unlock()
			return WrapError(ErrCodeUnknown, opDisable, "disable dispatch failed", err)
		}
		c.dispatching = false
	}
	c.mu.Unlock()

	c.transition(IdleState(), TriggerDisable)
	return nil
}

// RequestWrite arms registration: the next accepted supported tag gets a
// fresh id written to it and is inserted into the registry.
func (c *Coordinator) RequestWrite(req WriteRequest) error {
	if req.Name == "" {
		return Errorf(ErrCodeInvalidPayload, opRequestWrite, "tag name is required")
	}
	if err := c.checkAdapter(opRequestWrite); err != nil {
		return err
	}
	if phase := c.scan.Get().Phase; phase.Terminal() {
		return Errorf(ErrCodeUnknown, opRequestWrite, "scan state is %s, reset before writing", phase)
	}
	if err := c.enableDispatch(opRequestWrite); err != nil {
		return err
	}

	c.mu.Lock()
	c.pending = &req
	c.mu.Unlock()

	c.transition(WritingState(), TriggerWrite)
	return nil
}

// Reset leaves any phase for Scanning when dispatch is enabled, else Idle,
// and drops any pending write.
func (c *Coordinator) Reset() ScanState {
	c.mu.Lock()
	c.pending = nil
	dispatching := c.dispatching
	c.mu.Unlock()

	target := IdleState()
	if dispatching {
		target = ScanningState()
	}
	c.transition(target, TriggerReset)
	return c.scan.Get()
}

// Close disables dispatch.
func (c *Coordinator) Close() error {
	return c.DisableScanning()
}

// Events returns the tag event stream.
func (c *Coordinator) Events() <-chan TagEvent {
	return c.events
}

// ScanState returns the current scan state.
func (c *Coordinator) ScanState() ScanState {
	return c.scan.Get()
}

// SubscribeScanState streams the scan state, starting with the current value.
func (c *Coordinator) SubscribeScanState() (<-chan ScanState, func()) {
	return c.scan.Subscribe()
}

// Busy reports whether a presentation is being processed.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// Dispatching reports whether tag dispatch is enabled.
func (c *Coordinator) Dispatching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatching
}

// checkAdapter refreshes the monitor and rejects the operation unless the
// radio is enabled.
func (c *Coordinator) checkAdapter(op string) error {
	if state := c.monitor.Refresh(); state != AdapterEnabled {
		err := adapterError(state, op)
		c.logger.Warn(context.Background(), "scan rejected", "op", op, "adapter", state)
		c.transition(ErrorState(err), TriggerReject)
		return err
	}
	return nil
}

func (c *Coordinator) enableDispatch(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dispatching {
		return nil
	}
	if err := c.adapter.EnableDispatch(c.Deliver); err != nil {
		nfcErr := WrapError(ErrCodeUnknown, op, "enable dispatch failed", err)
		c.transition(ErrorState(nfcErr), TriggerReject)
		return nfcErr
	}
	c.dispatching = true
	return nil
}

func (c *Coordinator) takePending() *WriteRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := c.pending
	c.pending = nil
	return req
}

func (c *Coordinator) process(ctx context.Context, tag Tag) {
	var uid string
	var tagType TagType
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "panic while processing tag", "uid", uid, "panic", r)
			c.fail(ctx, uid, tagType, Errorf(ErrCodeUnknown, opDispatch, "unexpected failure: %v", r).withUID(uid), nil)
		}
	}()

	uid = ExtractUID(tag.ID())
	tagType = ClassifyTag(tag.Technologies())
	req := c.takePending()

	if !tagType.Supported() {
		c.fail(ctx, uid, tagType, NewError(ErrCodeTagNotSupported, opDispatch, nil).withUID(uid), nil)
		return
	}
	if req != nil {
		c.register(ctx, tag, uid, tagType, *req)
		return
	}
	c.read(ctx, tag, uid, tagType)
}

func (c *Coordinator) register(ctx context.Context, tag Tag, uid string, tagType TagType, req WriteRequest) {
	existing, err := c.registry.FindByUID(ctx, uid)
	switch {
	case err == nil:
		c.fail(ctx, uid, tagType, NewError(ErrCodeTagAlreadyRegistered, opRegister, nil).withUID(uid), existing)
		return
	case !errors.Is(err, ErrTagNotFound):
		c.fail(ctx, uid, tagType, WrapError(ErrCodeUnknown, opRegister, "registry lookup failed", err).withUID(uid), nil)
		return
	}

	id := c.newID()
	if _, err := c.engine.Write(ctx, tag, id); err != nil {
		c.fail(ctx, uid, tagType, AsNFCError(err), nil)
		return
	}

	entry := RegisteredTag{
		ID:        id,
		UID:       uid,
		Name:      req.Name,
		Location:  req.Location,
		ProfileID: req.ProfileID,
		CreatedAt: c.clock.Now(),
	}
	if err := c.registry.Insert(ctx, entry); err != nil {
		c.logger.Warn(ctx, "tag written but not registered", "uid", uid, "id", id, "error", err)
		nfcErr := AsNFCError(err)
		if nfcErr.Code == ErrCodeUnknown {
			nfcErr = WrapError(ErrCodeUnknown, opRegister, "registry insert failed", err)
		}
		c.fail(ctx, uid, tagType, nfcErr.withUID(uid), nil)
		return
	}

	c.logger.Info(ctx, "tag registered", "uid", uid, "id", id, "name", req.Name)
	c.publish(ctx, TagEvent{Kind: NewlyRegisteredTag, UID: uid, Type: tagType, Content: ContentKnown, Tag: &entry, At: entry.CreatedAt})
	c.complete(RegisteredState(entry))
}

func (c *Coordinator) read(ctx context.Context, tag Tag, uid string, tagType TagType) {
	out, err := c.engine.Read(ctx, tag)
	if err != nil {
		c.fail(ctx, uid, tagType, AsNFCError(err), nil)
		return
	}

	if !out.Resolved() {
		if reason := out.ContentError(); reason != nil {
			c.logger.Debug(ctx, "tag content not recognized", "uid", uid, "code", reason.Code)
		}
		c.publish(ctx, TagEvent{Kind: UnknownTag, UID: uid, Type: tagType, Content: out.Content, At: c.clock.Now()})
		return
	}

	now := c.clock.Now()
	entry := *out.Entry
	if err := c.registry.RecordUsage(ctx, entry.UID, now); err != nil {
		c.logger.Warn(ctx, "record usage failed", "uid", entry.UID, "error", err)
	}
	entry.UseCount++
	entry.LastUsedAt = &now

	c.publish(ctx, TagEvent{Kind: KnownTag, UID: uid, Type: tagType, Content: out.Content, Tag: &entry, At: now})
	c.complete(SuccessState(entry))
}

func (c *Coordinator) fail(ctx context.Context, uid string, tagType TagType, err *NFCError, tag *RegisteredTag) {
	c.logger.Warn(ctx, "tag rejected", "uid", uid, "code", err.Code, "error", err)
	c.publish(ctx, TagEvent{Kind: InvalidTag, UID: uid, Type: tagType, Tag: tag, Err: err, At: c.clock.Now()})
	c.complete(ErrorState(err))
}

// complete lands the outcome of the current run.
func (c *Coordinator) complete(to ScanState) {
	if c.transition(to, TriggerComplete) {
		return
	}
	if c.runStart == ScanScanning || c.runStart == ScanWriting {
		c.transition(to, TriggerFinish)
	}
}

func (c *Coordinator) publish(ctx context.Context, ev TagEvent) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn(ctx, "event buffer full, dropping tag event", "uid", ev.UID, "kind", ev.Kind)
	}
}

// transition applies to when the table allows it and reports whether it did.
func (c *Coordinator) transition(to ScanState, trigger ScanTrigger) bool {
	var from ScanPhase
	applied := false
	c.scan.Update(func(cur ScanState) ScanState {
		from = cur.Phase
		if CanTransition(cur.Phase, to.Phase, trigger) {
			applied = true
			return to
		}
		return cur
	})
	if !applied {
		c.logger.Debug(context.Background(), "scan transition ignored", "from", from, "to", to.Phase)
	}
	return applied
}
