// Package virtual provides an in-memory reader and Type 2 tags backed by a
// TLV memory image. It backs the -backend virtual mode, the HTTP tag input
// and integration tests.
package virtual

import (
	"fmt"

	"github.com/nedpals/umbral-nfc/internal/syncutil"
	"github.com/nedpals/umbral-nfc/nfc"
)

// Tag is a simulated tag. Its data area holds NDEF TLVs exactly as pages 4
// onward of an NTAG or Ultralight would.
type Tag struct {
	uid   []byte
	techs []string

	mu        syncutil.Mutex
	mem       []byte
	formatted bool
	readOnly  bool
	removed   bool
	hasNDEF   bool
}

// TagOption configures a Tag.
type TagOption func(*Tag)

// Blank leaves the tag unformatted so it exposes only NdefFormatable.
func Blank() TagOption {
	return func(t *Tag) {
		t.formatted = false
		clear(t.mem)
	}
}

// ReadOnly locks the tag.
func ReadOnly() TagOption {
	return func(t *Tag) { t.readOnly = true }
}

// WithMessage preloads msg into the data area.
func WithMessage(msg *nfc.NDEFMessage) TagOption {
	return func(t *Tag) {
		if data, err := msg.Encode(); err == nil {
			copy(t.mem, nfc.TLVEncode(data, nfc.TLVNDEF))
		}
	}
}

// WithMemory replaces the data area with a raw image, e.g. to simulate
// corrupted content.
func WithMemory(mem []byte) TagOption {
	return func(t *Tag) { t.mem = append([]byte(nil), mem...) }
}

// NewTag creates a formatted, empty tag of tagType. Types without NDEF
// support (MIFARE Classic, unknown) never expose an NDEF technology.
func NewTag(uid []byte, tagType nfc.TagType, opts ...TagOption) *Tag {
	t := &Tag{
		uid:       append([]byte(nil), uid...),
		mem:       make([]byte, tagType.UserMemory()),
		formatted: true,
		hasNDEF:   tagType.Supported(),
	}
	copy(t.mem, []byte{nfc.TLVNDEF, 0x00, nfc.TLVTerminator})
	for _, opt := range opts {
		opt(t)
	}
	t.techs = technologies(tagType, t.hasNDEF && t.formatted)
	return t
}

func technologies(tagType nfc.TagType, formatted bool) []string {
	var techs []string
	switch tagType {
	case nfc.TagTypeNTAG213, nfc.TagTypeNTAG215, nfc.TagTypeNTAG216:
		techs = []string{nfc.TechNfcA, nfc.TechMifareUltralight, tagType.String()}
	case nfc.TagTypeMifareUltralight:
		techs = []string{nfc.TechNfcA, nfc.TechMifareUltralight}
	case nfc.TagTypeMifareClassic:
		return []string{nfc.TechNfcA, nfc.TechMifareClassic}
	default:
		return []string{nfc.TechNfcA, nfc.TechIsoDep}
	}
	if formatted {
		return append(techs, nfc.TechNdef)
	}
	return append(techs, nfc.TechNdefFormatable)
}

func (t *Tag) ID() []byte {
	return append([]byte(nil), t.uid...)
}

// UID returns the uppercase hex UID.
func (t *Tag) UID() string {
	return nfc.ExtractUID(t.uid)
}

func (t *Tag) Technologies() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.techs...)
}

func (t *Tag) Ndef() nfc.NdefTech {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasNDEF || !t.formatted {
		return nil
	}
	return &ndefTech{tag: t}
}

func (t *Tag) Formatable() nfc.FormatableTech {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasNDEF || t.formatted {
		return nil
	}
	return &formatableTech{tag: t}
}

// Remove takes the tag out of the field; further I/O fails with ErrTagLost.
func (t *Tag) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removed = true
}

// Restore puts a removed tag back in the field.
func (t *Tag) Restore() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removed = false
}

// Memory returns a copy of the data area.
func (t *Tag) Memory() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.mem...)
}

func (t *Tag) checkPresent() error {
	if t.removed {
		return fmt.Errorf("%w: tag %s left the field", nfc.ErrTagLost, nfc.ExtractUID(t.uid))
	}
	return nil
}

// store writes msg as an NDEF TLV followed by zero padding.
func (t *Tag) store(msg *nfc.NDEFMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	tlv := nfc.TLVEncode(data, nfc.TLVNDEF)
	if len(tlv) > len(t.mem) {
		return fmt.Errorf("message of %d bytes exceeds data area of %d bytes", len(tlv), len(t.mem))
	}
	copy(t.mem, tlv)
	clear(t.mem[len(tlv):])
	return nil
}

type ndefTech struct {
	tag *Tag
}

func (n *ndefTech) Connect() error {
	n.tag.mu.Lock()
	defer n.tag.mu.Unlock()
	return n.tag.checkPresent()
}

func (n *ndefTech) Close() error {
	return nil
}

func (n *ndefTech) IsWritable() bool {
	n.tag.mu.Lock()
	defer n.tag.mu.Unlock()
	return !n.tag.readOnly
}

func (n *ndefTech) MaxSize() int {
	n.tag.mu.Lock()
	defer n.tag.mu.Unlock()
	return nfc.NDEFCapacity(len(n.tag.mem))
}

func (n *ndefTech) ReadMessage() (*nfc.NDEFMessage, error) {
	n.tag.mu.Lock()
	defer n.tag.mu.Unlock()
	if err := n.tag.checkPresent(); err != nil {
		return nil, err
	}
	data, err := nfc.FindNDEFTLV(n.tag.mem)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return nfc.DecodeNDEF(data)
}

func (n *ndefTech) WriteMessage(msg *nfc.NDEFMessage) error {
	n.tag.mu.Lock()
	defer n.tag.mu.Unlock()
	if err := n.tag.checkPresent(); err != nil {
		return err
	}
	if n.tag.readOnly {
		return fmt.Errorf("%w: tag is locked", nfc.ErrTagIO)
	}
	return n.tag.store(msg)
}

type formatableTech struct {
	tag *Tag
}

func (f *formatableTech) Connect() error {
	f.tag.mu.Lock()
	defer f.tag.mu.Unlock()
	return f.tag.checkPresent()
}

func (f *formatableTech) Close() error {
	return nil
}

func (f *formatableTech) MaxSize() int {
	f.tag.mu.Lock()
	defer f.tag.mu.Unlock()
	return nfc.NDEFCapacity(len(f.tag.mem))
}

func (f *formatableTech) Format(msg *nfc.NDEFMessage) error {
	f.tag.mu.Lock()
	defer f.tag.mu.Unlock()
	if err := f.tag.checkPresent(); err != nil {
		return err
	}
	if err := f.tag.store(msg); err != nil {
		return err
	}
	f.tag.formatted = true
	f.tag.techs = technologies(nfc.ClassifyTag(f.tag.techs), true)
	return nil
}
