package nfc

import "fmt"

// TLV block types found in the data area of Type 2 tags.
const (
	TLVNull        = 0x00
	TLVLockCtrl    = 0x01
	TLVMemCtrl     = 0x02
	TLVNDEF        = 0x03
	TLVProprietary = 0xFD
	TLVTerminator  = 0xFE
)

// TLVEncode wraps data as [Type][Length][Value][Terminator]. Lengths of 255
// and above use the three byte form 0xFF, hi, lo.
func TLVEncode(data []byte, tlvType byte) []byte {
	length := len(data)
	result := make([]byte, 0, length+5)
	result = append(result, tlvType)

	if length < 0xFF {
		result = append(result, byte(length))
	} else {
		result = append(result, 0xFF, byte(length>>8), byte(length&0xFF))
	}

	result = append(result, data...)
	return append(result, TLVTerminator)
}

// TLVRecordLength returns the offset of the length field and of the value,
// both relative to the type byte. It returns (0, 0) for a malformed header.
func TLVRecordLength(data []byte) (fls, fvs int) {
	if len(data) < 2 {
		return 0, 0
	}
	if data[1] == 0xFF {
		if len(data) < 4 {
			return 0, 0
		}
		return 1, 4
	}
	return 1, 2
}

// tlvLength reads the value length of the TLV starting at data[0].
func tlvLength(data []byte) int {
	_, fvs := TLVRecordLength(data)
	switch fvs {
	case 4:
		return int(data[2])<<8 | int(data[3])
	case 2:
		return int(data[1])
	default:
		return -1
	}
}

// TLVDecode returns the value and type of the first TLV that is not Null.
// A Terminator yields (nil, TLVTerminator); malformed input yields (nil, 0).
func TLVDecode(data []byte) (value []byte, tlvType byte) {
	for offset := 0; offset < len(data); offset++ {
		tlvType = data[offset]
		switch tlvType {
		case TLVNull:
			continue
		case TLVTerminator:
			return nil, TLVTerminator
		}

		_, fvs := TLVRecordLength(data[offset:])
		if fvs == 0 {
			return nil, 0
		}
		length := tlvLength(data[offset:])
		start := offset + fvs
		if start+length > len(data) {
			return nil, 0
		}
		return data[start : start+length], tlvType
	}
	return nil, 0
}

// FindNDEFTLV scans a tag memory image for the NDEF Message TLV and returns
// its value. Null, Lock Control, Memory Control and proprietary TLVs are
// skipped. An NDEF TLV of length zero means the tag is blank and yields
// (nil, nil); so does a Terminator reached before any NDEF TLV.
func FindNDEFTLV(mem []byte) ([]byte, error) {
	offset := 0
	for offset < len(mem) {
		tlvType := mem[offset]
		switch tlvType {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, nil
		}

		_, fvs := TLVRecordLength(mem[offset:])
		if fvs == 0 {
			return nil, fmt.Errorf("%w: truncated TLV header at offset %d", ErrInvalidNDEF, offset)
		}
		length := tlvLength(mem[offset:])
		start := offset + fvs
		if start+length > len(mem) {
			return nil, fmt.Errorf("%w: TLV 0x%02X length %d exceeds memory at offset %d", ErrInvalidNDEF, tlvType, length, offset)
		}

		if tlvType == TLVNDEF {
			if length == 0 {
				return nil, nil
			}
			return mem[start : start+length], nil
		}
		offset = start + length
	}
	return nil, nil
}

// NDEFCapacity returns the largest NDEF message that fits a data area of the
// given size once wrapped in an NDEF TLV with its terminator.
func NDEFCapacity(area int) int {
	if area-3 < 0xFF {
		if area < 3 {
			return 0
		}
		return area - 3
	}
	return area - 5
}
