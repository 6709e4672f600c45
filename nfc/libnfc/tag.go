package libnfc

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/clausecker/freefare"

	"github.com/nedpals/umbral-nfc/nfc"
)

const (
	pageSize      = 4
	ccPage        = 3
	userStartPage = 4

	ccMagic     = 0xE1
	ccVersion   = 0x10
	ccReadWrite = 0x00
)

// Data area sizes announced in CC byte 2, in units of 8 bytes.
var ccSizes = map[byte]nfc.TagType{
	0x06: nfc.TagTypeMifareUltralight,
	0x12: nfc.TagTypeNTAG213,
	0x3E: nfc.TagTypeNTAG215,
	0x6D: nfc.TagTypeNTAG216,
}

// capabilityContainer is the NFC Forum Type 2 CC held in page 3.
type capabilityContainer struct {
	tagType   nfc.TagType
	formatted bool
	writable  bool
}

// parseCapabilityContainer decodes page 3. A page without the NDEF magic
// describes a blank tag, reported as a formatable Ultralight.
func parseCapabilityContainer(page [4]byte) capabilityContainer {
	if page[0] != ccMagic {
		return capabilityContainer{tagType: nfc.TagTypeMifareUltralight, writable: true}
	}
	tagType, ok := ccSizes[page[2]]
	if !ok {
		tagType = nfc.TagTypeMifareUltralight
	}
	return capabilityContainer{
		tagType:   tagType,
		formatted: true,
		writable:  page[3]&0x0F == ccReadWrite,
	}
}

// encode renders the CC page written when formatting.
func (cc capabilityContainer) encode() [4]byte {
	var size byte = 0x06
	for b, t := range ccSizes {
		if t == cc.tagType {
			size = b
		}
	}
	return [4]byte{ccMagic, ccVersion, size, ccReadWrite}
}

// signatures lists the technologies Android would report for the tag.
func (cc capabilityContainer) signatures() []string {
	techs := []string{nfc.TechNfcA, nfc.TechMifareUltralight}
	switch cc.tagType {
	case nfc.TagTypeNTAG213, nfc.TagTypeNTAG215, nfc.TagTypeNTAG216:
		techs = append(techs, cc.tagType.String())
	}
	if cc.formatted {
		return append(techs, nfc.TechNdef)
	}
	return append(techs, nfc.TechNdefFormatable)
}

// pages splits data into 4-byte pages, zero padding the last one.
func pages(data []byte) [][4]byte {
	out := make([][4]byte, 0, (len(data)+pageSize-1)/pageSize)
	for off := 0; off < len(data); off += pageSize {
		var p [4]byte
		copy(p[:], data[off:])
		out = append(out, p)
	}
	return out
}

// dataArea encodes msg as an NDEF TLV plus terminator, sized to fit a data
// area of area bytes.
func dataArea(msg *nfc.NDEFMessage, area int) ([]byte, error) {
	data, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	if len(data) > nfc.NDEFCapacity(area) {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds %d byte data area", nfc.ErrTagIO, len(data), area)
	}
	tlv := nfc.TLVEncode(data, nfc.TLVNDEF)
	if len(tlv) < area {
		tlv = append(tlv, nfc.TLVTerminator)
	}
	return tlv, nil
}

// Tag is a tag found by a poll.
type Tag struct {
	adapter *Adapter
	uid     []byte
	techs   []string

	ultralight *freefare.UltralightTag
	cc         capabilityContainer
	connected  atomic.Bool
}

// newTag wraps a freefare tag. It runs under the adapter's device lock.
func newTag(a *Adapter, ft freefare.Tag) *Tag {
	t := &Tag{adapter: a, uid: decodeUID(ft.UID())}

	switch ft := ft.(type) {
	case freefare.UltralightTag:
		t.ultralight = &ft
		t.cc = readCapabilityContainer(ft)
		t.techs = t.cc.signatures()
	case freefare.ClassicTag:
		t.techs = []string{nfc.TechNfcA, nfc.TechMifareClassic}
	case freefare.DESFireTag:
		t.techs = []string{nfc.TechNfcA, nfc.TechIsoDep}
	default:
		t.techs = []string{nfc.TechNfcA}
	}
	return t
}

func readCapabilityContainer(ft freefare.UltralightTag) capabilityContainer {
	fallback := capabilityContainer{tagType: nfc.TagTypeMifareUltralight}
	if err := ft.Connect(); err != nil {
		return fallback
	}
	defer ft.Disconnect()
	page, err := ft.ReadPage(ccPage)
	if err != nil {
		return fallback
	}
	return parseCapabilityContainer(page)
}

// decodeUID accepts the hex string libfreefare reports.
func decodeUID(uid string) []byte {
	raw, err := hex.DecodeString(strings.ReplaceAll(uid, ":", ""))
	if err != nil {
		return []byte(uid)
	}
	return raw
}

func (t *Tag) ID() []byte {
	return append([]byte(nil), t.uid...)
}

func (t *Tag) UID() string {
	return nfc.ExtractUID(t.uid)
}

func (t *Tag) Technologies() []string {
	return append([]string(nil), t.techs...)
}

func (t *Tag) Ndef() nfc.NdefTech {
	if t.ultralight == nil || !t.cc.formatted {
		return nil
	}
	return &ndefTech{tag: t}
}

func (t *Tag) Formatable() nfc.FormatableTech {
	if t.ultralight == nil || t.cc.formatted {
		return nil
	}
	return &formatableTech{tag: t}
}

// connect selects the tag and holds the device lock until release.
func (t *Tag) connect() error {
	t.adapter.devMu.Lock()
	if !t.adapter.open {
		t.adapter.devMu.Unlock()
		return fmt.Errorf("%w: reader closed", nfc.ErrTagLost)
	}
	if err := t.ultralight.Connect(); err != nil {
		t.adapter.devMu.Unlock()
		return fmt.Errorf("%w: %v", nfc.ErrTagLost, err)
	}
	t.connected.Store(true)
	return nil
}

func (t *Tag) release() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	defer t.adapter.devMu.Unlock()
	return t.ultralight.Disconnect()
}

func (t *Tag) readDataArea() ([]byte, error) {
	area := t.cc.tagType.UserMemory()
	mem := make([]byte, 0, area)
	for page := byte(userStartPage); len(mem) < area; page++ {
		p, err := t.ultralight.ReadPage(page)
		if err != nil {
			return nil, fmt.Errorf("%w: read page %d: %v", nfc.ErrTagIO, page, err)
		}
		mem = append(mem, p[:]...)
	}
	return mem, nil
}

func (t *Tag) writeMessage(msg *nfc.NDEFMessage) error {
	data, err := dataArea(msg, t.cc.tagType.UserMemory())
	if err != nil {
		return err
	}
	return t.writePages(data)
}

func (t *Tag) writePages(data []byte) error {
	for i, p := range pages(data) {
		page := byte(userStartPage + i)
		if err := t.ultralight.WritePage(page, p); err != nil {
			return fmt.Errorf("%w: write page %d: %v", nfc.ErrTagIO, page, err)
		}
	}
	return nil
}

type ndefTech struct {
	tag *Tag
}

func (n *ndefTech) Connect() error { return n.tag.connect() }
func (n *ndefTech) Close() error   { return n.tag.release() }

func (n *ndefTech) IsWritable() bool {
	return n.tag.cc.writable
}

func (n *ndefTech) MaxSize() int {
	return nfc.NDEFCapacity(n.tag.cc.tagType.UserMemory())
}

func (n *ndefTech) ReadMessage() (*nfc.NDEFMessage, error) {
	mem, err := n.tag.readDataArea()
	if err != nil {
		return nil, err
	}
	data, err := nfc.FindNDEFTLV(mem)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return nfc.DecodeNDEF(data)
}

func (n *ndefTech) WriteMessage(msg *nfc.NDEFMessage) error {
	return n.tag.writeMessage(msg)
}

type formatableTech struct {
	tag *Tag
}

func (f *formatableTech) Connect() error { return f.tag.connect() }
func (f *formatableTech) Close() error   { return f.tag.release() }

func (f *formatableTech) MaxSize() int {
	return nfc.NDEFCapacity(f.tag.cc.tagType.UserMemory())
}

// Format writes the capability container, then the message. The message is
// framed before the CC page is touched.
func (f *formatableTech) Format(msg *nfc.NDEFMessage) error {
	data, err := dataArea(msg, f.tag.cc.tagType.UserMemory())
	if err != nil {
		return err
	}
	cc := f.tag.cc
	cc.formatted = true
	cc.writable = true
	if err := f.tag.ultralight.WritePage(ccPage, cc.encode()); err != nil {
		return fmt.Errorf("%w: write capability container: %v", nfc.ErrTagIO, err)
	}
	f.tag.cc = cc
	f.tag.techs = cc.signatures()
	return f.tag.writePages(data)
}
