package nfc

import (
	"encoding/base32"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// PayloadScheme is the URI scheme of identities written by this agent.
	PayloadScheme = "umbral"

	// CurrentPayloadVersion is the format version written by NewTagPayload.
	CurrentPayloadVersion uint8 = 1

	// MaxTagIDLength keeps the URI record of a v1 payload within the 45
	// byte NDEF capacity of a MIFARE Ultralight.
	MaxTagIDLength = 19

	checksumLength = 8
	uriPrefix      = PayloadScheme + "://"
)

// TagPayload is the identity stored on a physical tag. TagID is the
// registry-assigned identifier, never the hardware UID.
type TagPayload struct {
	Version  uint8  `json:"version"`
	TagID    string `json:"tagId"`
	Checksum string `json:"checksum"`
}

var tagIDEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// NewTagID returns a random 16 character id: the first 80 bits of a v4
// UUID in lowercase base32.
func NewTagID() string {
	u := uuid.New()
	return tagIDEncoding.EncodeToString(u[:10])
}

// NewTagPayload builds a payload for tagID at the current version.
func NewTagPayload(tagID string) (TagPayload, error) {
	if !ValidTagID(tagID) {
		return TagPayload{}, Errorf(ErrCodeInvalidPayload, "NewTagPayload", "invalid tag id %q", tagID)
	}
	return TagPayload{
		Version:  CurrentPayloadVersion,
		TagID:    tagID,
		Checksum: PayloadChecksum(CurrentPayloadVersion, tagID),
	}, nil
}

// PayloadChecksum is the CRC-32 (IEEE) of "umbral:v<version>:<tagID>" as 8
// lowercase hex characters. It detects foreign or corrupted content; it is
// not an authenticity check.
func PayloadChecksum(version uint8, tagID string) string {
	sum := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s:v%d:%s", PayloadScheme, version, tagID)))
	return fmt.Sprintf("%08x", sum)
}

// IsValid reports whether the stored checksum matches the recomputed one.
func (p TagPayload) IsValid() bool {
	return p.Checksum == PayloadChecksum(p.Version, p.TagID)
}

// URI serializes the payload as umbral://v<version>/<tagID>/<checksum>.
func (p TagPayload) URI() string {
	return fmt.Sprintf("%sv%d/%s/%s", uriPrefix, p.Version, p.TagID, p.Checksum)
}

func (p TagPayload) String() string {
	return p.URI()
}

// ParseTagURI parses uri strictly. It returns false for anything outside
// the umbral scheme and for malformed bodies. A well-formed URI with a
// wrong checksum parses fine; check IsValid.
func ParseTagURI(uri string) (TagPayload, bool) {
	body, ok := strings.CutPrefix(uri, uriPrefix)
	if !ok {
		return TagPayload{}, false
	}

	parts := strings.Split(body, "/")
	if len(parts) != 3 {
		return TagPayload{}, false
	}

	version, ok := parseVersion(parts[0])
	if !ok {
		return TagPayload{}, false
	}
	if !ValidTagID(parts[1]) || !isChecksum(parts[2]) {
		return TagPayload{}, false
	}

	return TagPayload{
		Version:  version,
		TagID:    parts[1],
		Checksum: parts[2],
	}, true
}

// parseVersion accepts "v<n>" with canonical decimal n in 0..255.
func parseVersion(s string) (uint8, bool) {
	digits, ok := strings.CutPrefix(s, "v")
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 10, 8)
	if err != nil || strconv.FormatUint(n, 10) != digits {
		return 0, false
	}
	return uint8(n), true
}

func isChecksum(s string) bool {
	if len(s) != checksumLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// ValidTagID reports whether id is non-empty, at most MaxTagIDLength long
// and made only of URI unreserved characters.
func ValidTagID(id string) bool {
	if id == "" || len(id) > MaxTagIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}
