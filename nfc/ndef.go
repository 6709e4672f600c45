package nfc

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// NDEF record header flags.
const (
	flagMB = 0x80 // Message Begin
	flagME = 0x40 // Message End
	flagCF = 0x20 // Chunk Flag
	flagSR = 0x10 // Short Record
	flagIL = 0x08 // ID Length present
)

// parseTextRecordPayload extracts text from an NDEF Text record's payload.
func parseTextRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("text record payload too short (status byte missing)")
	}
	status := payload[0]
	langLength := int(status & 0x3F)
	isUTF16 := (status & 0x80) != 0

	textDataStart := 1 + langLength
	if textDataStart > len(payload) {
		return "", fmt.Errorf("text record payload too short (language code or text missing)")
	}
	textBytes := payload[textDataStart:]

	if isUTF16 {
		if len(textBytes) == 0 {
			return "", nil
		}
		if len(textBytes)%2 != 0 {
			return "", fmt.Errorf("invalid UTF-16 text length: %d", len(textBytes))
		}
		return decodeUTF16(textBytes), nil
	}
	return string(textBytes), nil
}

func decodeUTF16(b []byte) string {
	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return strings.TrimSpace(string(utf16.Decode(u16s)))
}

// MakeTextRecordPayload creates an NDEF Text record payload (UTF-8).
func MakeTextRecordPayload(text string, langCode string) []byte {
	if langCode == "" {
		langCode = "en"
	}
	lang := []byte(langCode)
	if len(lang) > 0x3F {
		lang = lang[:0x3F]
	}
	payload := make([]byte, 1+len(lang)+len(text))
	payload[0] = byte(len(lang))
	copy(payload[1:], lang)
	copy(payload[1+len(lang):], text)
	return payload
}

// parseNDEFRecords parses raw NDEF message bytes into records. It stops at
// the record carrying the ME flag and rejects chunked records, which tags
// written by this agent never contain.
func parseNDEFRecords(data []byte) ([]NDEFRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty NDEF message")
	}

	var records []NDEFRecord
	offset := 0

	for offset < len(data) {
		header := data[offset]
		if len(records) == 0 && header&flagMB == 0 {
			return nil, fmt.Errorf("first record missing MB flag")
		}
		if header&flagCF != 0 {
			return nil, fmt.Errorf("chunked records not supported (offset %d)", offset)
		}
		sr := header&flagSR != 0
		il := header&flagIL != 0
		tnf := header & 0x07
		pos := offset + 1

		if pos+1 > len(data) {
			return nil, fmt.Errorf("truncated type length at offset %d", pos)
		}
		typeLength := int(data[pos])
		pos++

		var payloadLength int
		if sr {
			if pos+1 > len(data) {
				return nil, fmt.Errorf("truncated short payload length at offset %d", pos)
			}
			payloadLength = int(data[pos])
			pos++
		} else {
			if pos+4 > len(data) {
				return nil, fmt.Errorf("truncated payload length at offset %d", pos)
			}
			payloadLength = int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
		}

		var idLength int
		if il {
			if pos+1 > len(data) {
				return nil, fmt.Errorf("truncated ID length at offset %d", pos)
			}
			idLength = int(data[pos])
			pos++
		}

		if typeLength > len(data)-pos {
			return nil, fmt.Errorf("truncated type field at offset %d", pos)
		}
		recordType := append([]byte(nil), data[pos:pos+typeLength]...)
		pos += typeLength

		var recordID []byte
		if idLength > 0 {
			if idLength > len(data)-pos {
				return nil, fmt.Errorf("truncated ID field at offset %d", pos)
			}
			recordID = append([]byte(nil), data[pos:pos+idLength]...)
			pos += idLength
		}

		if payloadLength > len(data)-pos {
			return nil, fmt.Errorf("truncated payload at offset %d", pos)
		}
		payload := append([]byte(nil), data[pos:pos+payloadLength]...)
		pos += payloadLength

		records = append(records, NDEFRecord{
			TNF:     tnf,
			Type:    recordType,
			ID:      recordID,
			Payload: payload,
		})
		offset = pos

		if header&flagME != 0 {
			return records, nil
		}
	}

	return nil, fmt.Errorf("message ended without ME flag")
}

// encodeNDEFRecords encodes records into raw NDEF message bytes, using the
// short record form whenever the payload fits.
func encodeNDEFRecords(records []NDEFRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot encode empty record list")
	}

	var out []byte
	for i, record := range records {
		if len(record.Type) > 0xFF || len(record.ID) > 0xFF {
			return nil, fmt.Errorf("record %d: type or id longer than 255 bytes", i)
		}

		header := record.TNF & 0x07
		if i == 0 {
			header |= flagMB
		}
		if i == len(records)-1 {
			header |= flagME
		}
		short := len(record.Payload) <= 0xFF
		if short {
			header |= flagSR
		}
		if len(record.ID) > 0 {
			header |= flagIL
		}

		out = append(out, header, byte(len(record.Type)))
		if short {
			out = append(out, byte(len(record.Payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(record.Payload)))
		}
		if len(record.ID) > 0 {
			out = append(out, byte(len(record.ID)))
		}
		out = append(out, record.Type...)
		out = append(out, record.ID...)
		out = append(out, record.Payload...)
	}
	return out, nil
}
