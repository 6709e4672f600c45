package nfc

import (
	"context"
	"errors"

	"github.com/nedpals/umbral-nfc/logging"
)

const (
	opRead  = "Read"
	opWrite = "Write"
)

// ContentKind classifies what a read found on the tag.
type ContentKind int

const (
	// ContentBlank is a tag without an NDEF message or without NDEF support.
	ContentBlank ContentKind = iota
	// ContentForeign is NDEF content not written by this agent.
	ContentForeign
	// ContentChecksumMismatch is an umbral URI whose checksum does not match.
	ContentChecksumMismatch
	// ContentUnsupportedVersion is a valid umbral URI of another format version.
	ContentUnsupportedVersion
	// ContentKnown is a valid umbral URI of the current version.
	ContentKnown
)

var contentKindNames = map[ContentKind]string{
	ContentBlank:              "blank",
	ContentForeign:            "foreign",
	ContentChecksumMismatch:   "checksum_mismatch",
	ContentUnsupportedVersion: "unsupported_version",
	ContentKnown:              "known",
}

func (k ContentKind) String() string {
	if name, ok := contentKindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k ContentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ReadOutcome is the result of a completed read. Entry is nil when the tag
// could not be resolved against the registry.
type ReadOutcome struct {
	UID     string
	Type    TagType
	Content ContentKind
	Payload *TagPayload
	Entry   *RegisteredTag
}

// Resolved reports whether the tag matched a registry entry.
func (o *ReadOutcome) Resolved() bool {
	return o != nil && o.Entry != nil
}

// ContentError describes why the content was not accepted as a current
// identity. It is diagnostic only and nil for blank or known content.
func (o *ReadOutcome) ContentError() *NFCError {
	if o == nil {
		return nil
	}
	switch o.Content {
	case ContentChecksumMismatch:
		return NewError(ErrCodeChecksumMismatch, opRead, nil).withUID(o.UID)
	case ContentForeign, ContentUnsupportedVersion:
		return NewError(ErrCodeInvalidPayload, opRead, nil).withUID(o.UID)
	default:
		return nil
	}
}

// WriteOutcome is the result of a committed write.
type WriteOutcome struct {
	UID       string
	Type      TagType
	Payload   TagPayload
	Formatted bool
}

// Engine runs the connect, read or write, disconnect protocol against a
// single presented tag. It never returns an untyped error: every failure is
// an *NFCError.
type Engine struct {
	registry Registry
	logger   logging.Logger
}

// NewEngine creates an engine resolving reads against registry. A nil
// registry disables resolution.
func NewEngine(registry Registry, logger logging.Logger) *Engine {
	return &Engine{
		registry: registry,
		logger:   logging.OrNop(logger).With("component", "engine"),
	}
}

// Read decodes the tag content and resolves it against the registry.
func (e *Engine) Read(ctx context.Context, tag Tag) (*ReadOutcome, error) {
	uid := ExtractUID(tag.ID())
	out := &ReadOutcome{
		UID:  uid,
		Type: ClassifyTag(tag.Technologies()),
	}

	content, payload, err := e.readContent(ctx, uid, ResolveInterface(tag))
	if err != nil {
		return nil, err
	}
	out.Content = content
	out.Payload = payload

	entry, err := e.resolve(ctx, uid, content, payload)
	if err != nil {
		return nil, err
	}
	out.Entry = entry

	e.logger.Debug(ctx, "tag read", "uid", uid, "type", out.Type, "content", content, "resolved", entry != nil)
	return out, nil
}

func (e *Engine) readContent(ctx context.Context, uid string, iface TagInterface) (kind ContentKind, payload *TagPayload, err error) {
	ndef, ok := iface.(NdefInterface)
	if !ok {
		return ContentBlank, nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "panic during tag read", "uid", uid, "panic", r)
			kind, payload = ContentBlank, nil
			err = Errorf(ErrCodeUnknown, opRead, "unexpected failure: %v", r).withUID(uid)
		}
	}()
	defer e.closeTech(ctx, uid, ndef.Tech)

	if err := ndef.Tech.Connect(); err != nil {
		return ContentBlank, nil, NewError(ErrCodeTagIO, opRead, err).withUID(uid)
	}

	msg, err := ndef.Tech.ReadMessage()
	if err != nil {
		if errors.Is(err, ErrInvalidNDEF) {
			return ContentBlank, nil, NewError(ErrCodeInvalidNDEF, opRead, err).withUID(uid)
		}
		return ContentBlank, nil, NewError(ErrCodeTagIO, opRead, err).withUID(uid)
	}

	kind, payload = classifyContent(msg)
	return kind, payload, nil
}

// classifyContent inspects the first record only.
func classifyContent(msg *NDEFMessage) (ContentKind, *TagPayload) {
	if msg == nil || len(msg.Records()) == 0 {
		return ContentBlank, nil
	}
	first := msg.Records()[0]
	uri, ok := first.GetURI()
	if !ok {
		return ContentForeign, nil
	}
	p, ok := ParseTagURI(uri)
	if !ok {
		return ContentForeign, nil
	}
	switch {
	case !p.IsValid():
		return ContentChecksumMismatch, &p
	case p.Version != CurrentPayloadVersion:
		return ContentUnsupportedVersion, &p
	default:
		return ContentKnown, &p
	}
}

func (e *Engine) resolve(ctx context.Context, uid string, content ContentKind, payload *TagPayload) (*RegisteredTag, error) {
	if e.registry == nil {
		return nil, nil
	}

	entry, err := e.registry.FindByUID(ctx, uid)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrTagNotFound) {
		return nil, WrapError(ErrCodeUnknown, opRead, "registry lookup by uid failed", err).withUID(uid)
	}

	if content != ContentKnown {
		return nil, nil
	}
	entry, err = e.registry.FindByID(ctx, payload.TagID)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrTagNotFound) {
		return nil, WrapError(ErrCodeUnknown, opRead, "registry lookup by id failed", err).withUID(uid)
	}
	return nil, nil
}

// Write stores the identity for tagID on the tag. Unformatted tags that
// support it are formatted with the message in one step.
func (e *Engine) Write(ctx context.Context, tag Tag, tagID string) (*WriteOutcome, error) {
	uid := ExtractUID(tag.ID())

	payload, err := NewTagPayload(tagID)
	if err != nil {
		return nil, AsNFCError(err).withUID(uid)
	}
	msg := NewNDEFMessage().AddURI(payload.URI())

	out := &WriteOutcome{
		UID:     uid,
		Type:    ClassifyTag(tag.Technologies()),
		Payload: payload,
	}

	switch iface := ResolveInterface(tag).(type) {
	case NdefInterface:
		err = e.writeNdef(ctx, uid, iface.Tech, msg)
	case FormatableInterface:
		out.Formatted = true
		err = e.format(ctx, uid, iface.Tech, msg)
	default:
		err = NewError(ErrCodeTagNotSupported, opWrite, nil).withUID(uid)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info(ctx, "tag written", "uid", uid, "tag_id", tagID, "formatted", out.Formatted)
	return out, nil
}

func (e *Engine) writeNdef(ctx context.Context, uid string, tech NdefTech, msg *NDEFMessage) (err error) {
	defer e.recoverWrite(ctx, uid, &err)
	defer e.closeTech(ctx, uid, tech)

	if err := tech.Connect(); err != nil {
		return NewError(ErrCodeTagIO, opWrite, err).withUID(uid)
	}
	if !tech.IsWritable() {
		return NewError(ErrCodeTagReadOnly, opWrite, nil).withUID(uid)
	}
	if size, capacity := msg.Size(), tech.MaxSize(); size > capacity {
		return Errorf(ErrCodeTagTooSmall, opWrite, "message of %d bytes exceeds tag capacity of %d bytes", size, capacity).withUID(uid)
	}
	if err := tech.WriteMessage(msg); err != nil {
		return commitError(uid, err)
	}
	return nil
}

func (e *Engine) format(ctx context.Context, uid string, tech FormatableTech, msg *NDEFMessage) (err error) {
	defer e.recoverWrite(ctx, uid, &err)
	// Nothing is written to a blank tag the message does not fit.
	if size, capacity := msg.Size(), tech.MaxSize(); size > capacity {
		return Errorf(ErrCodeTagTooSmall, opWrite, "message of %d bytes exceeds tag capacity of %d bytes", size, capacity).withUID(uid)
	}
	defer e.closeTech(ctx, uid, tech)

	if err := tech.Connect(); err != nil {
		return NewError(ErrCodeTagIO, opWrite, err).withUID(uid)
	}
	if err := tech.Format(msg); err != nil {
		return commitError(uid, err)
	}
	return nil
}

// commitError maps a fault raised while committing a message.
func commitError(uid string, err error) *NFCError {
	switch {
	case errors.Is(err, ErrTagLost):
		return NewError(ErrCodeTagLost, opWrite, err).withUID(uid)
	case errors.Is(err, ErrTagIO):
		return NewError(ErrCodeTagIO, opWrite, err).withUID(uid)
	default:
		return NewError(ErrCodeWriteFailed, opWrite, err).withUID(uid)
	}
}

func (e *Engine) recoverWrite(ctx context.Context, uid string, err *error) {
	if r := recover(); r != nil {
		e.logger.Error(ctx, "panic during tag write", "uid", uid, "panic", r)
		*err = Errorf(ErrCodeWriteFailed, opWrite, "unexpected failure: %v", r).withUID(uid)
	}
}

type closer interface {
	Close() error
}

func (e *Engine) closeTech(ctx context.Context, uid string, tech closer) {
	if err := tech.Close(); err != nil {
		e.logger.Debug(ctx, "tag close failed", "uid", uid, "error", err)
	}
}
