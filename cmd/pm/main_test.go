package main

import (
	"bytes"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectmarket/internal/config"
)

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	v := viper.New()
	v.Set("addr", "0.0.0.0:9090")
	v.Set("jwt-secret", "from-env")
	v.Set("db", "/tmp/market.db")
	v.Set("log-level", "debug")
	v.Set("cors-origins", []string{"https://app.example.com"})
	applyOverrides(cfg, v)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "/tmp/market.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/api", cfg.Server.BasePath, "unset keys keep the file value")
	require.NoError(t, cfg.Validate())
}

func TestApplyOverridesIgnoresBlank(t *testing.T) {
	cfg := config.Default()
	v := viper.New()
	v.Set("addr", "   ")
	applyOverrides(cfg, v)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderTable(&buf, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Status"})
		tw.AppendRow(table.Row{"p1", "open"})
	}))
	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "open")
}
