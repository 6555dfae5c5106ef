package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"0s":  0,
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			got, err := ParseDuration(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	for _, raw := range []string{"", "10", "s", "1.5s", "10ms", " 10s", "-1s", "10d"} {
		t.Run("rejects "+raw, func(t *testing.T) {
			_, err := ParseDuration(raw)
			assert.Error(t, err)
		})
	}
}

func TestTestConfig_Validate(t *testing.T) {
	valid := func() TestConfig {
		return TestConfig{URL: "http://x", Method: MethodGet, VirtualUsers: 1, Duration: "1s", RampUp: "1s"}
	}

	t.Run("valid config passes", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("reports every rejected field", func(t *testing.T) {
		cfg := TestConfig{Method: "TRACE", Duration: "10", RampUp: "x"}
		err := cfg.Validate()
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		fields := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, f.Field)
		}
		assert.ElementsMatch(t, []string{"url", "method", "virtualUsers", "duration", "rampUp"}, fields)
	})

	t.Run("rejects zero virtual users", func(t *testing.T) {
		cfg := valid()
		cfg.VirtualUsers = 0
		assert.ErrorContains(t, cfg.Validate(), "virtualUsers")
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("single json config gets defaults", func(t *testing.T) {
		path := filepath.Join(dir, "single.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"url":"https://example.test","method":"post"}`), 0o600))

		tests, err := Load(path)
		require.NoError(t, err)
		require.Len(t, tests, 1)
		assert.Equal(t, MethodPost, tests[0].Method)
		assert.Equal(t, DefaultVirtualUsers, tests[0].VirtualUsers)
		assert.Equal(t, DefaultDuration, tests[0].Duration)
		assert.Equal(t, DefaultRampUp, tests[0].RampUp)
	})

	t.Run("yaml test list", func(t *testing.T) {
		path := filepath.Join(dir, "suite.yaml")
		doc := `
tests:
  - url: https://a.test
    virtualUsers: 5
    duration: 10s
    rampUp: 1s
    headers:
      - key: Authorization
        value: Bearer t
  - url: https://b.test
    method: DELETE
    parameters:
      - key: id
        value: "7"
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		tests, err := Load(path)
		require.NoError(t, err)
		require.Len(t, tests, 2)
		assert.Equal(t, 5, tests[0].VirtualUsers)
		assert.Equal(t, []KeyValue{{Key: "Authorization", Value: "Bearer t"}}, tests[0].Headers)
		assert.Equal(t, MethodDelete, tests[1].Method)
		assert.Equal(t, "7", tests[1].Parameters[0].Value)
	})

	t.Run("invalid duration is rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"url":"http://x","duration":"10 seconds"}`), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "duration")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(`url = "x"`), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "unsupported config file format")
	})
}

func TestParseHeaderAndParam(t *testing.T) {
	h, err := ParseHeader("Content-Type: application/json")
	require.NoError(t, err)
	assert.Equal(t, KeyValue{Key: "Content-Type", Value: "application/json"}, h)

	p, err := ParseParam("q=a=b")
	require.NoError(t, err)
	assert.Equal(t, KeyValue{Key: "q", Value: "a=b"}, p)

	_, err = ParseParam("novalue")
	assert.Error(t, err)
}

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, DriverK6, s.Driver)
		assert.Equal(t, 120*time.Second, s.DriverTimeout)
		assert.Equal(t, HistoryMemory, s.HistoryBackend)
		assert.Equal(t, 50, s.HistoryCap)
		assert.False(t, s.Influx.Enabled)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("DRIVER", "Synthetic")
		t.Setenv("DRIVER_TIMEOUT", "45s")
		t.Setenv("HISTORY_BACKEND", "Redis")
		t.Setenv("CASSANDRA_CONTACT_POINTS", "a, b,,c")
		t.Setenv("INFLUX_HOST", "http://influx:8181")

		s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, DriverSynthetic, s.Driver)
		assert.Equal(t, 45*time.Second, s.DriverTimeout)
		assert.Equal(t, HistoryRedis, s.HistoryBackend)
		assert.Equal(t, []string{"a", "b", "c"}, s.CassandraContactPoints)
		assert.True(t, s.Influx.Enabled)
	})

	t.Run("invalid backend", func(t *testing.T) {
		t.Setenv("HISTORY_BACKEND", "sqlite")
		_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.env"))
		assert.ErrorContains(t, err, "HISTORY_BACKEND")
	})

	t.Run("invalid driver", func(t *testing.T) {
		t.Setenv("DRIVER", "jmeter")
		_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.env"))
		assert.ErrorContains(t, err, "DRIVER")
	})
}
