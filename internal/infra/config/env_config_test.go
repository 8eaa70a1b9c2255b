package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/mkrupp/joynest/internal/infra/config"
)

type testConfig struct {
	EnvConfig

	StringValue string        `env:"STRING_VALUE" default:"default"`
	IntValue    int           `env:"INT_VALUE" default:"42"`
	BoolValue   bool          `env:"BOOL_VALUE" default:"true"`
	Timeout     time.Duration `env:"TIMEOUT" default:"5s"`
	Ratio       float64       `env:"RATIO" default:"0.5"`
	Origins     []string      `env:"ORIGINS" default:"*"`
	NoEnvTag    string
	Nested      testNestedConfig `envPrefix:"NESTED_"`
}

type testNestedConfig struct {
	NestedString string `env:"STRING" default:"nested-default"`
}

func defaults() testConfig {
	return testConfig{
		StringValue: "default",
		IntValue:    42,
		BoolValue:   true,
		Timeout:     5 * time.Second,
		Ratio:       0.5,
		Origins:     []string{"*"},
		Nested:      testNestedConfig{NestedString: "nested-default"},
	}
}

//nolint:paralleltest
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		envVars map[string]string
		want    func(c *testConfig)
		wantErr bool
	}{
		{
			name:    "uses default values when env vars not set",
			envVars: map[string]string{},
			want:    func(*testConfig) {},
		},
		{
			name: "reads environment variables",
			envVars: map[string]string{
				"STRING_VALUE":  "env-value",
				"INT_VALUE":     "123",
				"BOOL_VALUE":    "false",
				"TIMEOUT":       "1m",
				"RATIO":         "2.25",
				"ORIGINS":       "http://a.test, http://b.test,",
				"NESTED_STRING": "env-nested",
			},
			want: func(c *testConfig) {
				c.StringValue = "env-value"
				c.IntValue = 123
				c.BoolValue = false
				c.Timeout = time.Minute
				c.Ratio = 2.25
				c.Origins = []string{"http://a.test", "http://b.test"}
				c.Nested.NestedString = "env-nested"
			},
		},
		{
			name:    "handles prefix correctly",
			prefix:  "APP",
			envVars: map[string]string{"APP_STRING_VALUE": "prefixed-value"},
			want:    func(c *testConfig) { c.StringValue = "prefixed-value" },
		},
		{
			name:   "prefers more specific prefix",
			prefix: "APP_SERVICE",
			envVars: map[string]string{
				"APP_STRING_VALUE":         "less-specific",
				"APP_SERVICE_STRING_VALUE": "more-specific",
			},
			want: func(c *testConfig) { c.StringValue = "more-specific" },
		},
		{
			name:    "falls back to less specific prefix",
			prefix:  "APP_SERVICE",
			envVars: map[string]string{"APP_INT_VALUE": "7"},
			want:    func(c *testConfig) { c.IntValue = 7 },
		},
		{
			name:    "handles empty string values",
			envVars: map[string]string{"STRING_VALUE": ""},
			want:    func(c *testConfig) { c.StringValue = "" },
		},
		{
			name:    "fails on invalid int value",
			envVars: map[string]string{"INT_VALUE": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "fails on invalid bool value",
			envVars: map[string]string{"BOOL_VALUE": "not-a-bool"},
			wantErr: true,
		},
		{
			name:    "fails on invalid duration",
			envVars: map[string]string{"TIMEOUT": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := &testConfig{}
			err := Parse(context.Background(), cfg, tt.prefix)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)

			want := defaults()
			tt.want(&want)

			assert.Equal(t, want.StringValue, cfg.StringValue)
			assert.Equal(t, want.IntValue, cfg.IntValue)
			assert.Equal(t, want.BoolValue, cfg.BoolValue)
			assert.Equal(t, want.Timeout, cfg.Timeout)
			assert.InDelta(t, want.Ratio, cfg.Ratio, 0.0001)
			assert.Equal(t, want.Origins, cfg.Origins)
			assert.Empty(t, cfg.NoEnvTag)
			assert.Equal(t, want.Nested, cfg.Nested)
			assert.Equal(t, tt.prefix, cfg.Namespace())
		})
	}
}

func TestParseRequiredVar(t *testing.T) {
	t.Parallel()

	cfg := &struct {
		EnvConfig

		Value string `env:"JOYNEST_TEST_SURELY_UNSET_VALUE"`
	}{}

	err := Parse(context.Background(), cfg, "")
	require.ErrorIs(t, err, ErrVarNotSet)
}

func TestParseInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  any
	}{
		{name: "non-pointer config", cfg: testConfig{}},
		{name: "non-struct pointer", cfg: new(string)},
		{name: "missing EnvConfig embedding", cfg: &struct {
			Value string `env:"VALUE"`
		}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Parse(context.Background(), tt.cfg, "")
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

//nolint:paralleltest
func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")

	require.NoError(t, os.WriteFile(file, []byte("JOYNEST_DOTENV_A=from-file\nJOYNEST_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("JOYNEST_DOTENV_B", "from-env")
	t.Setenv("JOYNEST_DOTENV_A", "")
	require.NoError(t, os.Unsetenv("JOYNEST_DOTENV_A"))

	require.NoError(t, LoadEnvFiles(file, filepath.Join(dir, "missing.env")))

	t.Cleanup(func() { _ = os.Unsetenv("JOYNEST_DOTENV_A") })

	assert.Equal(t, "from-file", os.Getenv("JOYNEST_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("JOYNEST_DOTENV_B"))
}
