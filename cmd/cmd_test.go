package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/roastd/internal/config"
)

type fakeRunner struct {
	ran bool
	err error
}

func (f *fakeRunner) Run(context.Context) error {
	f.ran = true
	return f.err
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "roastd dev ("), out)
}

func TestConfigCommandMasksSecrets(t *testing.T) {
	t.Setenv("ROASTD_ANALYSIS_OPENAI_API_KEY", "sk-secret")
	t.Setenv("ROASTD_SERVER_PORT", "9191")

	out, err := execute(t, "config")
	require.NoError(t, err)
	require.NotContains(t, out, "sk-secret")

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	server, ok := parsed["server"].(map[string]any)
	require.True(t, ok)
	// Env values come through as strings.
	require.Equal(t, "9191", fmt.Sprint(server["port"]))
	openai := parsed["analysis"].(map[string]any)["openai"].(map[string]any)
	require.Equal(t, config.Redacted, openai["api_key"])
}

func TestConfigCommandReportsInvalidConfig(t *testing.T) {
	t.Setenv("ROASTD_ANALYSIS_OPENAI_API_KEY", "")

	out, err := execute(t, "config")
	require.ErrorContains(t, err, "config invalid")
	require.Contains(t, out, "analysis:")

	_, err = execute(t, "config", "--no-validate")
	require.NoError(t, err)
}

func TestServeRunsBuiltApp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roastd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  backend: fallback\ncapture:\n  backend: noop\n"), 0o600))

	fake := &fakeRunner{err: errors.New("stopped")}
	var got config.Config
	orig := buildApp
	buildApp = func(_ context.Context, cfg config.Config) (runner, error) {
		got = cfg
		return fake, nil
	}
	t.Cleanup(func() { buildApp = orig })

	_, err := execute(t, "serve", "--config", path)
	require.ErrorContains(t, err, "stopped")
	require.True(t, fake.ran)
	require.Equal(t, "fallback", got.Analysis.Backend)
	require.Equal(t, "noop", got.Capture.Backend)
}

func TestServeFailsOnMissingConfig(t *testing.T) {
	_, err := execute(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
}
