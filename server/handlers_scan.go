package server

import (
	"context"

	"github.com/nedpals/umbral-nfc/logging"
	"github.com/nedpals/umbral-nfc/nfc"
	"github.com/nedpals/umbral-nfc/protocol"
)

// ScanHandler exposes the coordinator: scan control and registration
// requests in, tag events and state changes out.
type ScanHandler struct {
	coordinator *nfc.Coordinator
	monitor     *nfc.AdapterMonitor
	logger      logging.Logger
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(coordinator *nfc.Coordinator, monitor *nfc.AdapterMonitor, logger logging.Logger) *ScanHandler {
	return &ScanHandler{
		coordinator: coordinator,
		monitor:     monitor,
		logger:      logging.OrNop(logger).With("component", "scan-handler"),
	}
}

// Register implements ServerHandler.
func (h *ScanHandler) Register(server HandlerServer) {
	server.Handle(protocol.WSTypeStartScan, h.handleStartScan)
	server.Handle(protocol.WSTypeStopScan, h.handleStopScan)
	server.Handle(protocol.WSTypeResetScan, h.handleResetScan)
	server.Handle(protocol.WSTypeRefreshAdapter, h.handleRefreshAdapter)
	server.Handle(protocol.WSTypeWriteTag, h.handleWriteTag)

	server.StartLifecycle(func(ctx context.Context) {
		go h.pump(ctx, server)
	})
}

// pump forwards tag events and state changes to every client until ctx is
// done.
func (h *ScanHandler) pump(ctx context.Context, server HandlerServer) {
	scan, stopScan := h.coordinator.SubscribeScanState()
	defer stopScan()
	adapter, stopAdapter := h.monitor.Subscribe()
	defer stopAdapter()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.coordinator.Events():
			h.logger.Debug(ctx, "broadcasting tag event", "kind", ev.Kind, "uid", ev.UID)
			server.Broadcast(protocol.WSTypeTagEvent, func(lang string) any {
				return tagEventPayload(ev, lang)
			})
		case s, ok := <-scan:
			if !ok {
				return
			}
			server.Broadcast(protocol.WSTypeScanState, func(lang string) any {
				return scanStatePayload(s, lang)
			})
		case state, ok := <-adapter:
			if !ok {
				return
			}
			server.Broadcast(protocol.WSTypeAdapterState, func(string) any {
				return adapterStatePayload(state)
			})
		}
	}
}

func (h *ScanHandler) handleStartScan(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	if err := h.coordinator.EnableScanning(); err != nil {
		return replyNFCError(c, req, err)
	}
	return c.Reply(req, scanStatePayload(h.coordinator.ScanState(), c.Lang))
}

func (h *ScanHandler) handleStopScan(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	if err := h.coordinator.DisableScanning(); err != nil {
		return replyNFCError(c, req, err)
	}
	return c.Reply(req, scanStatePayload(h.coordinator.ScanState(), c.Lang))
}

func (h *ScanHandler) handleResetScan(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	return c.Reply(req, scanStatePayload(h.coordinator.Reset(), c.Lang))
}

func (h *ScanHandler) handleRefreshAdapter(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	return c.Reply(req, adapterStatePayload(h.monitor.Refresh()))
}

func (h *ScanHandler) handleWriteTag(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	var p protocol.WriteTagPayload
	if !c.Decode(req, &p) {
		return nil
	}
	err := h.coordinator.RequestWrite(nfc.WriteRequest{
		Name:      p.Name,
		Location:  p.Location,
		ProfileID: p.ProfileID,
	})
	if err != nil {
		return replyNFCError(c, req, err)
	}
	h.logger.Info(ctx, "registration armed", "name", p.Name, "client", c.ID)
	return c.Reply(req, scanStatePayload(h.coordinator.ScanState(), c.Lang))
}

// replyNFCError answers req with the taxonomy code and localized message
// of err.
func replyNFCError(c *Client, req protocol.WebSocketRequest, err error) error {
	p := errorPayload(err, c.Lang)
	return c.ReplyError(req, p.Code, p.Message)
}
