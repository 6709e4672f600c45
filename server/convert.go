package server

import (
	"fmt"
	"strings"

	"github.com/nedpals/umbral-nfc/nfc"
	"github.com/nedpals/umbral-nfc/protocol"
)

func tagPayload(tag *nfc.RegisteredTag) *protocol.RegisteredTagPayload {
	if tag == nil {
		return nil
	}
	return &protocol.RegisteredTagPayload{
		ID:         tag.ID,
		UID:        tag.UID,
		Name:       tag.Name,
		Location:   tag.Location,
		ProfileID:  tag.ProfileID,
		CreatedAt:  tag.CreatedAt,
		LastUsedAt: tag.LastUsedAt,
		UseCount:   tag.UseCount,
	}
}

// errorPayload renders err with the message for lang. Errors outside the
// taxonomy are reported as UNKNOWN_ERROR.
func errorPayload(err error, lang string) *protocol.ErrorPayload {
	if err == nil {
		return nil
	}
	code := nfc.GetErrorCode(err)
	if code == 0 {
		code = nfc.ErrCodeUnknown
	}
	return &protocol.ErrorPayload{
		Code:    code.String(),
		Message: nfc.LocalizedMessage(code, lang),
	}
}

func tagEventPayload(ev nfc.TagEvent, lang string) protocol.TagEventPayload {
	p := protocol.TagEventPayload{
		Kind:    ev.Kind.String(),
		UID:     ev.UID,
		Type:    ev.Type.String(),
		Content: ev.Content.String(),
		Tag:     tagPayload(ev.Tag),
		At:      ev.At,
	}
	if ev.Err != nil {
		p.Error = errorPayload(ev.Err, lang)
	}
	return p
}

func scanStatePayload(s nfc.ScanState, lang string) protocol.ScanStatePayload {
	p := protocol.ScanStatePayload{
		Phase: s.Phase.String(),
		Tag:   tagPayload(s.Tag),
	}
	if s.Err != nil {
		p.Error = errorPayload(s.Err, lang)
	}
	return p
}

func adapterStatePayload(state nfc.AdapterState) protocol.AdapterStatePayload {
	return protocol.AdapterStatePayload{
		State:     state.String(),
		Available: state != nfc.AdapterNotAvailable,
	}
}

// buildMessage converts client records to an NDEF message.
func buildMessage(in *protocol.NDEFMessageInput) (*nfc.NDEFMessage, error) {
	if in == nil || len(in.Records) == 0 {
		return nil, fmt.Errorf("no records provided")
	}
	msg := nfc.NewNDEFMessage()
	for i, r := range in.Records {
		switch strings.ToLower(r.RecordType) {
		case "", "text":
			lang := r.Language
			if lang == "" {
				lang = "en"
			}
			msg.AddText(r.Content, lang)
		case "uri":
			msg.AddURI(r.Content)
		default:
			return nil, fmt.Errorf("unsupported record type %q at index %d", r.RecordType, i)
		}
	}
	return msg, nil
}
