package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/nedpals/umbral-nfc/nfc"
	"github.com/nedpals/umbral-nfc/nfc/virtual"
	"github.com/nedpals/umbral-nfc/protocol"
)

// handleTagInput handles POST /api/v1/tag: it presents a tag to the
// virtual reader. Without options the remembered tag for the UID is reused,
// so registered tags keep their contents between presentations.
func (s *Server) handleTagInput(w http.ResponseWriter, r *http.Request) {
	if s.config.Virtual == nil {
		s.sendTagInputError(w, http.StatusServiceUnavailable, protocol.ErrCodeUnavailable,
			"tag injection requires the virtual backend")
		return
	}

	var req protocol.TagInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendTagInputError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest,
			"Failed to parse request body: "+err.Error())
		return
	}

	normalizedUID, err := nfc.NormalizeUID(req.UID)
	if err != nil {
		s.sendTagInputError(w, http.StatusBadRequest, protocol.ErrCodeInvalidUID, err.Error())
		return
	}
	uid, err := hex.DecodeString(normalizedUID)
	if err != nil {
		s.sendTagInputError(w, http.StatusBadRequest, protocol.ErrCodeInvalidUID, err.Error())
		return
	}

	tagType := nfc.TagTypeNTAG215
	if req.Type != "" {
		t, ok := nfc.ParseTagType(req.Type)
		if !ok {
			s.sendTagInputError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest,
				"unknown tag type: "+req.Type)
			return
		}
		tagType = t
	}

	var opts []virtual.TagOption
	if req.Blank {
		opts = append(opts, virtual.Blank())
	}
	if req.ReadOnly {
		opts = append(opts, virtual.ReadOnly())
	}
	if req.Message != nil {
		msg, err := buildMessage(req.Message)
		if err != nil {
			s.sendTagInputError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, err.Error())
			return
		}
		opts = append(opts, virtual.WithMessage(msg))
	}

	var tag *virtual.Tag
	if len(opts) > 0 {
		s.config.Virtual.Forget(normalizedUID)
		tag = virtual.NewTag(uid, tagType, opts...)
	} else {
		tag = s.config.Virtual.Tag(uid, tagType)
	}

	delivered := s.config.Virtual.Present(tag)
	s.logger.Info(r.Context(), "virtual tag presented", "uid", normalizedUID, "type", tagType, "delivered", delivered)

	writeJSON(w, http.StatusOK, protocol.TagInputResponse{
		Success:   true,
		Delivered: delivered,
		UID:       normalizedUID,
	})
}

func (s *Server) sendTagInputError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.TagInputResponse{
		Success: false,
		Error:   &protocol.ErrorPayload{Code: code, Message: message},
	})
}
