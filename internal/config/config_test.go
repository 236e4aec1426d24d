// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "storewalk", cfg.Logger().ServiceName)
	assert.Equal(t, BrowserChrome, cfg.Browser().Kind)
	assert.Equal(t, EngineChromedp, cfg.Browser().ResolvedEngine())
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 1920, cfg.Browser().Width)
	assert.Equal(t, 60*time.Second, cfg.Readiness().Ceiling)
	assert.Equal(t, 250*time.Millisecond, cfg.Readiness().PollInterval)
	assert.Equal(t, "notebook", cfg.Journey().Query)
	assert.Equal(t, "John", cfg.Journey().FirstName)
	assert.Equal(t, "Doe", cfg.Journey().LastName)
	assert.Equal(t, 1, cfg.Journey().Runs)
	assert.Empty(t, cfg.Store().URL)
	assert.Equal(t, "json", cfg.Report().Format)

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Validation Logic Tests --

func TestBrowserValidation(t *testing.T) {
	valid := NewDefaultConfig().Browser()

	t.Run("Unknown kind is rejected", func(t *testing.T) {
		b := valid
		b.Kind = "safari"
		err := b.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not one of chrome, firefox, edge")
	})

	t.Run("Unknown engine is rejected", func(t *testing.T) {
		b := valid
		b.Engine = "selenium"
		err := b.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not one of chromedp, rod, playwright")
	})

	t.Run("Firefox resolves to playwright", func(t *testing.T) {
		b := valid
		b.Kind = BrowserFirefox
		assert.Equal(t, EnginePlaywright, b.ResolvedEngine())
		assert.NoError(t, b.Validate())
	})

	t.Run("Firefox on chromedp is rejected", func(t *testing.T) {
		b := valid
		b.Kind = BrowserFirefox
		b.Engine = EngineChromedp
		err := b.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires browser.engine playwright")
	})

	t.Run("Edge on rod needs an executable", func(t *testing.T) {
		b := valid
		b.Kind = BrowserEdge
		b.Engine = EngineRod
		require.Error(t, b.Validate())

		b.ExecPath = "/usr/bin/microsoft-edge"
		assert.NoError(t, b.Validate())
	})

	t.Run("Viewport must be positive", func(t *testing.T) {
		b := valid
		b.Width = 0
		assert.Error(t, b.Validate())
	})
}

func TestReadinessValidation(t *testing.T) {
	valid := NewDefaultConfig().Readiness()
	assert.NoError(t, valid.Validate())

	noCeiling := valid
	noCeiling.Ceiling = 0
	err := noCeiling.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readiness.ceiling must be a positive duration")

	longSettle := valid
	longSettle.Settle = 2 * valid.Ceiling
	err = longSettle.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be shorter than readiness.ceiling")

	noPoll := valid
	noPoll.PollInterval = 0
	assert.Error(t, noPoll.Validate())
}

func TestJourneyValidation(t *testing.T) {
	valid := NewDefaultConfig().Journey()
	assert.NoError(t, valid.Validate())

	subdomain := valid
	subdomain.EmailDomain = "mail.example.co.uk"
	assert.NoError(t, subdomain.Validate())

	cases := map[string]func(j *JourneyConfig){
		"relative base url": func(j *JourneyConfig) { j.BaseURL = "/shop" },
		"blank query":       func(j *JourneyConfig) { j.Query = "   " },
		"missing last name": func(j *JourneyConfig) { j.LastName = "" },
		"missing domain":    func(j *JourneyConfig) { j.EmailDomain = "" },
		"bare tld domain":   func(j *JourneyConfig) { j.EmailDomain = "com" },
		"empty label":       func(j *JourneyConfig) { j.EmailDomain = "shop..test" },
		"zero runs":         func(j *JourneyConfig) { j.Runs = 0 },
		"zero parallelism":  func(j *JourneyConfig) { j.Parallelism = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			j := valid
			mutate(&j)
			assert.Error(t, j.Validate())
		})
	}
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  kind: firefox
  headless: false
journey:
  query: laptop
  runs: 3
readiness:
  settle: 0s
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, BrowserFirefox, cfg.Browser().Kind)
		assert.False(t, cfg.Browser().Headless)
		assert.Equal(t, "laptop", cfg.Journey().Query)
		assert.Equal(t, 3, cfg.Journey().Runs)
		assert.Zero(t, cfg.Readiness().Settle)
		// Untouched keys keep their defaults.
		assert.Equal(t, "John", cfg.Journey().FirstName)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("journey.runs", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "journey.runs must be a positive integer")
	})

	t.Run("Unknown Report Format", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("report.format", "sarif")

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `report.format "sarif"`)
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
store:
  url: "postgres://configfile/db"
`)))

		t.Setenv("STOREWALK_STORE_URL", "postgres://envvar/db")
		t.Setenv("STOREWALK_JOURNEY_QUERY", "mug")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "postgres://envvar/db", cfg.Store().URL)
		assert.Equal(t, "mug", cfg.Journey().Query)
	})
}
