package nfc

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// TagType is the hardware class of a tag.
type TagType int

const (
	TagTypeUnknown TagType = iota
	TagTypeNTAG213
	TagTypeNTAG215
	TagTypeNTAG216
	TagTypeMifareUltralight
	TagTypeMifareClassic
)

// Technology signatures reported by backends. Backends may report others;
// ClassifyTag only looks for the family substrings.
const (
	TechNfcA             = "NfcA"
	TechNdef             = "Ndef"
	TechNdefFormatable   = "NdefFormatable"
	TechMifareUltralight = "MifareUltralight"
	TechMifareClassic    = "MifareClassic"
	TechIsoDep           = "IsoDep"
)

var tagTypeNames = map[TagType]string{
	TagTypeUnknown:          "UNKNOWN",
	TagTypeNTAG213:          "NTAG213",
	TagTypeNTAG215:          "NTAG215",
	TagTypeNTAG216:          "NTAG216",
	TagTypeMifareUltralight: "MIFARE_ULTRALIGHT",
	TagTypeMifareClassic:    "MIFARE_CLASSIC",
}

func (t TagType) String() string {
	if name, ok := tagTypeNames[t]; ok {
		return name
	}
	return tagTypeNames[TagTypeUnknown]
}

func (t TagType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseTagType maps a name such as "NTAG215" back to its TagType.
func ParseTagType(name string) (TagType, bool) {
	for t, n := range tagTypeNames {
		if n == name {
			return t, true
		}
	}
	return TagTypeUnknown, false
}

// Supported reports whether the type gives reliable NDEF write guarantees.
// MIFARE Classic and unknown hardware do not.
func (t TagType) Supported() bool {
	switch t {
	case TagTypeNTAG213, TagTypeNTAG215, TagTypeNTAG216, TagTypeMifareUltralight:
		return true
	default:
		return false
	}
}

// UserMemory returns the nominal user memory in bytes, 0 when not applicable.
func (t TagType) UserMemory() int {
	switch t {
	case TagTypeNTAG213:
		return 144
	case TagTypeNTAG215:
		return 504
	case TagTypeNTAG216:
		return 888
	case TagTypeMifareUltralight:
		return 48
	default:
		return 0
	}
}

// classifierPatterns is ordered by priority: NTAG21x before generic
// Ultralight (NTAGs also report MifareUltralight), Ultralight before Classic.
var classifierPatterns = []struct {
	pattern string
	tagType TagType
}{
	{"ntag213", TagTypeNTAG213},
	{"ntag215", TagTypeNTAG215},
	{"ntag216", TagTypeNTAG216},
	{"ultralight", TagTypeMifareUltralight},
	{"classic", TagTypeMifareClassic},
}

// ClassifyTag maps a technology signature list to a TagType. The first
// pattern that matches any signature wins; no match yields TagTypeUnknown.
func ClassifyTag(techs []string) TagType {
	lowered := make([]string, len(techs))
	for i, tech := range techs {
		lowered[i] = strings.ToLower(tech)
	}

	for _, p := range classifierPatterns {
		for _, tech := range lowered {
			if strings.Contains(tech, p.pattern) {
				return p.tagType
			}
		}
	}
	return TagTypeUnknown
}

// ExtractUID renders raw identifier bytes as uppercase hex without separators.
func ExtractUID(raw []byte) string {
	return strings.ToUpper(hex.EncodeToString(raw))
}

// NormalizeUID accepts "04:AB:CD:EF", "04abcdef", "04 AB CD EF" or
// "04-AB-CD-EF" and returns the ExtractUID form.
func NormalizeUID(uid string) (string, error) {
	cleaned := strings.NewReplacer(":", "", " ", "", "-", "").Replace(uid)
	if cleaned == "" {
		return "", fmt.Errorf("empty UID")
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid UID %q: %w", uid, err)
	}
	return ExtractUID(raw), nil
}
