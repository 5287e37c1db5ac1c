// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "formsmith", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, StrictnessBalanced, cfg.Resolver().Strictness)
	assert.Equal(t, 800*time.Millisecond, cfg.Resolver().LabelTimeout)
	assert.Equal(t, 2*time.Second, cfg.Resolver().CountrySettle)
	assert.Equal(t, 40.0, cfg.Resolver().VerticalTolerancePx)
	assert.Equal(t, 3, cfg.Resolver().SiblingProbeLimit)
	assert.Equal(t, 5*time.Second, cfg.Anomaly().Interval)
	assert.Equal(t, 120*time.Second, cfg.Anomaly().Ceiling)
	assert.Contains(t, cfg.Anomaly().Selectors, `iframe[src*="recaptcha"]`)
	assert.Equal(t, 1, cfg.Engine().Concurrency)
	assert.False(t, cfg.Form().Submit)
	assert.Equal(t, "mandatory fields", cfg.Form().ErrorText)
	assert.Equal(t, DriverChromedp, cfg.Browser().Driver)
	assert.False(t, cfg.Metrics().Enabled)
	assert.Equal(t, "formsmith", cfg.Metrics().Namespace)

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

func TestStrictnessGates(t *testing.T) {
	tests := []struct {
		strictness Strictness
		scan       bool
		positional bool
	}{
		{StrictnessStrict, false, false},
		{StrictnessBalanced, true, false},
		{StrictnessAggressive, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.strictness), func(t *testing.T) {
			r := ResolverConfig{Strictness: tt.strictness}
			assert.Equal(t, tt.scan, r.AllowsScan())
			assert.Equal(t, tt.positional, r.AllowsPositional())
		})
	}
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Engine Concurrency", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.EngineCfg.Concurrency = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.concurrency must be a positive integer")
	})

	t.Run("Report Format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.EngineCfg.ReportFormat = "sarif"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.report_format")
	})

	t.Run("Browser Driver", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Driver = "selenium"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.driver")

		cfg.BrowserCfg.Driver = DriverPlaywright
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Metrics Address", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.MetricsCfg.Enabled = true
		cfg.MetricsCfg.ListenAddr = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "metrics.listen_addr")
	})

	t.Run("Resolver Strictness", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ResolverCfg.Strictness = "reckless"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "strictness")
	})

	t.Run("Anomaly Ceiling", func(t *testing.T) {
		a := AnomalyConfig{Enabled: true, Interval: 5 * time.Second, Ceiling: time.Second}
		err := a.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ceiling must be at least one interval")

		a.Enabled = false
		assert.NoError(t, a.Validate(), "disabled anomaly config should always be valid")
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Overrides from YAML", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")

		yamlConfig := []byte(`
resolver:
  strictness: aggressive
  country_settle: 500ms
engine:
  concurrency: 4
  accounts_file: ~/formsmith/accounts.json
form:
  url: http://127.0.0.1:8080/profile
  submit: true
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, StrictnessAggressive, cfg.Resolver().Strictness)
		assert.Equal(t, 500*time.Millisecond, cfg.Resolver().CountrySettle)
		assert.Equal(t, 4, cfg.Engine().Concurrency)
		assert.True(t, cfg.Form().Submit)
		assert.Equal(t, "http://127.0.0.1:8080/profile", cfg.Form().URL)

		home, err := homedir.Dir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "formsmith", "accounts.json"), cfg.Engine().AccountsFile)
	})

	t.Run("Invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("engine.concurrency", -2)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment variables", func(t *testing.T) {
		t.Setenv("FORMSMITH_RESOLVER_STRICTNESS", "strict")

		v := viper.New()
		SetDefaults(v)
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(NewEnvReplacer())
		v.AutomaticEnv()

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, StrictnessStrict, cfg.Resolver().Strictness)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(false)
	iface.SetEngineConcurrency(3)
	iface.SetResolverStrictness(StrictnessStrict)
	iface.SetFormURL("http://localhost/form")
	iface.SetFormSubmit(true)

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 3, cfg.Engine().Concurrency)
	assert.Equal(t, StrictnessStrict, cfg.Resolver().Strictness)
	assert.Equal(t, "http://localhost/form", cfg.Form().URL)
	assert.True(t, cfg.Form().Submit)
}
