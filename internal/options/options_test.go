package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Alpha float64
	Name  string
}

func withAlpha(a float64) Option[*testConfig] {
	return New(func(c *testConfig) error {
		if a < 0 {
			return errors.New("alpha cannot be negative")
		}
		c.Alpha = a

		return nil
	})
}

func withName(n string) Option[*testConfig] {
	return NoError(func(c *testConfig) { c.Name = n })
}

func TestApply(t *testing.T) {
	cfg := &testConfig{}
	require.NoError(t, Apply(cfg, withAlpha(1.5), withName("ridge"), nil))
	require.Equal(t, 1.5, cfg.Alpha)
	require.Equal(t, "ridge", cfg.Name)
}

func TestApply_StopsAtFirstError(t *testing.T) {
	cfg := &testConfig{}
	err := Apply(cfg, withAlpha(-1), withName("never"))
	require.Error(t, err)
	require.Empty(t, cfg.Name)
}

func TestApply_Empty(t *testing.T) {
	cfg := &testConfig{Name: "keep"}
	require.NoError(t, Apply(cfg))
	require.NoError(t, Apply[*testConfig](cfg, nil, nil))
	require.Equal(t, "keep", cfg.Name)
}
