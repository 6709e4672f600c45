package nfc

// Tag is a tag presented by a platform adapter. The NDEF and formatable
// accessors return nil when the tag does not expose that technology.
type Tag interface {
	ID() []byte
	Technologies() []string
	Ndef() NdefTech
	Formatable() FormatableTech
}

// NdefTech is the NDEF technology of an already formatted tag.
type NdefTech interface {
	Connect() error
	Close() error
	IsWritable() bool
	// MaxSize is the largest NDEF message in bytes the tag accepts.
	MaxSize() int
	// ReadMessage returns (nil, nil) for a formatted tag with no message.
	ReadMessage() (*NDEFMessage, error)
	WriteMessage(msg *NDEFMessage) error
}

// FormatableTech formats a blank tag and writes the initial message in a
// single operation.
type FormatableTech interface {
	Connect() error
	Close() error
	// MaxSize is the largest NDEF message in bytes that fits once formatted.
	MaxSize() int
	Format(msg *NDEFMessage) error
}

// TagInterface is the technology used for one protocol run. The set of
// implementations is closed: NdefInterface, FormatableInterface and
// UnsupportedInterface.
type TagInterface interface {
	tagInterface()
}

type NdefInterface struct {
	Tech NdefTech
}

type FormatableInterface struct {
	Tech FormatableTech
}

type UnsupportedInterface struct{}

func (NdefInterface) tagInterface()        {}
func (FormatableInterface) tagInterface()  {}
func (UnsupportedInterface) tagInterface() {}

// ResolveInterface picks NDEF when present, then formatable, else unsupported.
func ResolveInterface(tag Tag) TagInterface {
	if tag == nil {
		return UnsupportedInterface{}
	}
	if tech := tag.Ndef(); tech != nil {
		return NdefInterface{Tech: tech}
	}
	if tech := tag.Formatable(); tech != nil {
		return FormatableInterface{Tech: tech}
	}
	return UnsupportedInterface{}
}
