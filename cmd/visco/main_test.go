package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/internal/synth"
)

func setup(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	master := filepath.Join(dir, "master.csv")

	f, err := os.Create(master)
	require.NoError(t, err)
	require.NoError(t, dataset.WriteCSV(f, dataset.MasterColumns, synth.Records(synth.Config{Media: "D9", Seed: 2})))
	require.NoError(t, f.Close())

	cfg := filepath.Join(dir, "visco.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(fmt.Sprintf(`
model_dir: %s
master_csv: %s
train:
  feature_mode: terpene
formulations:
  store: file
  path: %s
log:
  level: error
  format: json
`, filepath.Join(dir, "models"), master, filepath.Join(dir, "formulations.jsonl"))), 0o644))

	return cfg
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out)

	return out.String(), err
}

func TestRun_Workflow(t *testing.T) {
	cfg := setup(t)

	out, err := runCLI(t, "", "-config", cfg, "train")
	require.NoError(t, err)
	require.Contains(t, out, "D9")
	require.Contains(t, out, "published generation")

	out, err = runCLI(t, "", "-config", cfg, "predict", "-media", "D9", "-terpene-pct", "5", "-potency", "80")
	require.NoError(t, err)
	require.Contains(t, out, "viscosity:")
	require.NotContains(t, out, "warning:")

	out, err = runCLI(t, "", "-config", cfg, "solve", "-media", "D9", "-target", "500000", "-potency", "0.8", "-oil-mass", "100")
	require.NoError(t, err)
	require.Contains(t, out, "converged: true, physically valid: true")
	require.Contains(t, out, "exact dose:")

	out, err = runCLI(t, "2000000\n510000\n", "-config", cfg, "calibrate",
		"-media", "D9", "-media-brand", "Acme", "-terpene", "Grape Ape", "-oil-mass", "100", "-target", "500000")
	require.NoError(t, err)
	require.Contains(t, out, "Step 1: add 1.00 g")
	require.Contains(t, out, "model method")
	require.Contains(t, out, "Recorded D9_Acme_Grape Ape")

	out, err = runCLI(t, "", "-config", cfg, "formulations")
	require.NoError(t, err)
	require.Contains(t, out, "D9_Acme_Grape Ape")

	out, err = runCLI(t, "", "-config", cfg, "profiles", "-format", "csv")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "media,terpene,other"))

	out, err = runCLI(t, "", "-config", cfg, "profiles")
	require.NoError(t, err)
	require.Contains(t, out, `"Generic"`)

	out, err = runCLI(t, "", "-config", cfg, "generations")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "* "))
}

func TestRun_Errors(t *testing.T) {
	_, err := runCLI(t, "")
	require.ErrorContains(t, err, "missing command")

	cfg := setup(t)
	_, err = runCLI(t, "", "-config", cfg, "bogus")
	require.ErrorContains(t, err, "unknown command")

	_, err = runCLI(t, "", "-config", cfg, "formulations", "-delete")
	require.ErrorContains(t, err, "-delete requires -key")

	_, err = runCLI(t, "abc\n", "-config", cfg, "calibrate", "-media", "D9", "-oil-mass", "10", "-target", "500000")
	require.ErrorContains(t, err, "invalid viscosity")
}
