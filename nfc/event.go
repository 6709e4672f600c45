package nfc

import "time"

// TagEventKind distinguishes the outcomes of a tag presentation.
type TagEventKind int

const (
	// KnownTag is a tag resolved against the registry.
	KnownTag TagEventKind = iota
	// UnknownTag is a readable tag without a registry entry.
	UnknownTag
	// InvalidTag is a presentation that failed.
	InvalidTag
	// NewlyRegisteredTag is a tag written and inserted by a registration run.
	NewlyRegisteredTag
)

func (k TagEventKind) String() string {
	switch k {
	case KnownTag:
		return "known"
	case UnknownTag:
		return "unknown"
	case InvalidTag:
		return "invalid"
	case NewlyRegisteredTag:
		return "registered"
	default:
		return "unspecified"
	}
}

func (k TagEventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// TagEvent is published once per processed tag presentation.
type TagEvent struct {
	Kind    TagEventKind
	UID     string
	Type    TagType
	Content ContentKind
	// Tag is set for KnownTag and NewlyRegisteredTag, and for InvalidTag
	// raised by a registration conflict.
	Tag *RegisteredTag
	// Err is set for InvalidTag.
	Err *NFCError
	At  time.Time
}
