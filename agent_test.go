package main

import (
	"context"
	"testing"
	"time"

	"github.com/nedpals/umbral-nfc/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Port = 0
	cfg.Backend = config.BackendVirtual
	cfg.RegistryDriver = config.DriverMemory
	cfg.MDNS = false
	return cfg
}

func TestAgent_RunVirtual(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := NewAgent(testConfig(), nil).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestAgent_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = "bluetooth"
	if err := NewAgent(cfg, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestAgent_RegistryError(t *testing.T) {
	cfg := testConfig()
	cfg.RegistryDriver = "mongo"
	if err := NewAgent(cfg, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error for unknown registry driver")
	}
}
