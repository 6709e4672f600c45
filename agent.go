package main

import (
	"context"
	"fmt"

	"github.com/nedpals/umbral-nfc/config"
	"github.com/nedpals/umbral-nfc/logging"
	"github.com/nedpals/umbral-nfc/nfc"
	"github.com/nedpals/umbral-nfc/nfc/libnfc"
	"github.com/nedpals/umbral-nfc/nfc/virtual"
	"github.com/nedpals/umbral-nfc/registry"
	"github.com/nedpals/umbral-nfc/server"
)

// Agent wires the reader backend, registry, coordinator and server.
type Agent struct {
	Config *config.Config
	Logger logging.Logger
}

func NewAgent(cfg *config.Config, logger logging.Logger) *Agent {
	return &Agent{
		Config: cfg,
		Logger: logging.OrNop(logger),
	}
}

// Run starts every component and blocks until ctx is done or the server
// fails.
func (a *Agent) Run(ctx context.Context) error {
	cfg := a.Config

	store, err := registry.Open(ctx, cfg.RegistryDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()

	adapter, virt, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	monitor := nfc.NewAdapterMonitor(adapter, a.Logger)
	go monitor.Watch(ctx, cfg.AdapterRefresh)

	coordinator, err := nfc.NewCoordinator(nfc.CoordinatorConfig{
		Monitor:  monitor,
		Adapter:  adapter,
		Engine:   nfc.NewEngine(store, a.Logger),
		Registry: store,
		Logger:   a.Logger,
	})
	if err != nil {
		return err
	}
	go coordinator.Run(ctx)
	defer coordinator.Close()

	srv, err := server.New(server.Config{
		Port:           cfg.Port,
		APISecret:      cfg.APISecret,
		SessionTimeout: cfg.SessionTimeout,
		Lang:           cfg.Lang,
		MDNS:           cfg.MDNS,
		Coordinator:    coordinator,
		Monitor:        monitor,
		Registry:       store,
		Virtual:        virt,
		Logger:         a.Logger,
	})
	if err != nil {
		return err
	}

	a.Logger.Info(ctx, "agent started", "port", cfg.Port, "backend", cfg.Backend, "registry", cfg.RegistryDriver, "adapter", monitor.State())
	defer a.Logger.Info(context.Background(), "agent stopped")
	return srv.Start(ctx)
}

// openBackend returns the platform adapter for the configured backend. The
// virtual adapter is also returned so the server can inject tags.
func (a *Agent) openBackend(ctx context.Context) (nfc.PlatformAdapter, *virtual.Adapter, error) {
	switch a.Config.Backend {
	case config.BackendVirtual:
		v := virtual.NewAdapter(a.Logger)
		return v, v, nil
	case config.BackendLibnfc:
		reader := libnfc.New(libnfc.Config{
			Device:       a.Config.DevicePath,
			PollInterval: a.Config.PollInterval,
			Logger:       a.Logger,
		})
		if err := reader.Open(ctx); err != nil {
			// The agent still serves the registry; the adapter reports
			// NFC_NOT_AVAILABLE until restart.
			a.Logger.Warn(ctx, "no nfc reader available", "device", a.Config.DevicePath, "error", err)
		}
		go reader.Run(ctx)
		return reader, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", a.Config.Backend)
	}
}
