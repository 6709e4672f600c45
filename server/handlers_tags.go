package server

import (
	"context"
	"errors"

	"github.com/nedpals/umbral-nfc/logging"
	"github.com/nedpals/umbral-nfc/nfc"
	"github.com/nedpals/umbral-nfc/protocol"
)

// TagHandler serves the registry over the websocket.
type TagHandler struct {
	registry nfc.Registry
	logger   logging.Logger
}

// NewTagHandler creates a new registry handler.
func NewTagHandler(registry nfc.Registry, logger logging.Logger) *TagHandler {
	return &TagHandler{
		registry: registry,
		logger:   logging.OrNop(logger).With("component", "tag-handler"),
	}
}

// Register implements ServerHandler.
func (h *TagHandler) Register(server HandlerServer) {
	server.Handle(protocol.WSTypeListTags, h.handleListTags)
	server.Handle(protocol.WSTypeUpdateTag, h.handleUpdateTag)
	server.Handle(protocol.WSTypeDeleteTag, h.handleDeleteTag)
}

func (h *TagHandler) handleListTags(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	tags, err := h.registry.List(ctx)
	if err != nil {
		return h.replyRegistryError(ctx, c, req, err)
	}
	out := make([]protocol.RegisteredTagPayload, 0, len(tags))
	for i := range tags {
		out = append(out, *tagPayload(&tags[i]))
	}
	return c.Reply(req, protocol.TagListResponse{Tags: out})
}

func (h *TagHandler) handleUpdateTag(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	var p protocol.UpdateTagPayload
	if !c.Decode(req, &p) {
		return nil
	}
	if p.ID == "" {
		return c.ReplyError(req, protocol.ErrCodeInvalidRequest, "id is required")
	}

	tag, err := h.registry.FindByID(ctx, p.ID)
	if err != nil {
		return h.replyRegistryError(ctx, c, req, err)
	}
	if p.Name != nil {
		if *p.Name == "" {
			return c.ReplyError(req, protocol.ErrCodeInvalidRequest, "name cannot be empty")
		}
		tag.Name = *p.Name
	}
	if p.Location != nil {
		tag.Location = *p.Location
	}
	if p.ProfileID != nil {
		tag.ProfileID = *p.ProfileID
	}
	if err := h.registry.Update(ctx, *tag); err != nil {
		return h.replyRegistryError(ctx, c, req, err)
	}
	h.logger.Info(ctx, "tag updated", "id", tag.ID)
	return c.Reply(req, tagPayload(tag))
}

func (h *TagHandler) handleDeleteTag(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	var p protocol.DeleteTagPayload
	if !c.Decode(req, &p) {
		return nil
	}
	if p.ID == "" {
		return c.ReplyError(req, protocol.ErrCodeInvalidRequest, "id is required")
	}
	if err := h.registry.Delete(ctx, p.ID); err != nil {
		return h.replyRegistryError(ctx, c, req, err)
	}
	h.logger.Info(ctx, "tag deleted", "id", p.ID)
	return c.Reply(req, protocol.DeleteTagPayload{ID: p.ID})
}

func (h *TagHandler) replyRegistryError(ctx context.Context, c *Client, req protocol.WebSocketRequest, err error) error {
	switch {
	case errors.Is(err, nfc.ErrTagNotFound):
		return c.ReplyError(req, protocol.ErrCodeNotFound, err.Error())
	case nfc.AsNFCError(err) != nil:
		return replyNFCError(c, req, err)
	default:
		h.logger.Error(ctx, "registry error", "type", req.Type, "error", err)
		return c.ReplyError(req, protocol.ErrCodeInternalError, err.Error())
	}
}
