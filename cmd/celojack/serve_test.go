package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/celojack/internal/config"
)

func TestServeOverrides(t *testing.T) {
	cfg := config.Default()
	cmd := ServeCmd{
		Addr:      "0.0.0.0:9090",
		LogLevel:  "debug",
		Store:     "sqlite",
		StorePath: "/tmp/celojack.db",
		Relay:     "http://localhost:8545",
	}
	require.NoError(t, cmd.applyOverrides(cfg))

	assert.Equal(t, "0.0.0.0:9090", cfg.Address())
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, "/tmp/celojack.db", cfg.Store.Path)
	require.NotNil(t, cfg.Settlement.Relay)
	assert.Equal(t, "http://localhost:8545", cfg.Settlement.Relay.Endpoint)
}

func TestServeOverridesRejectBadAddr(t *testing.T) {
	cfg := config.Default()

	err := (&ServeCmd{Addr: "localhost"}).applyOverrides(cfg)
	assert.Error(t, err)

	err = (&ServeCmd{Addr: "localhost:http"}).applyOverrides(cfg)
	assert.Error(t, err)
}

func TestNewContractNeedsRelay(t *testing.T) {
	assert.Nil(t, newContract(nil, testLogger()))
}
