package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/pkg/config"
	"igdmbot/pkg/ui"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	ui.SetOutput(&out)
	t.Cleanup(func() { ui.SetOutput(os.Stdout) })
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRenderTable(t *testing.T) {
	got := renderTable([]string{"Action", "Count"}, [][]string{{"no_keyword_match", "3"}, {"short"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, got, "Action")
	assert.Contains(t, got, "no_keyword_match")
	assert.Contains(t, got, "3")
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestTruncateAndMask(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hello w...", truncate("hello world!", 10))
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "********", mask("short"))
	assert.Equal(t, "IGQV...9xYz", mask("IGQVJ0123456789xYz"))
}

func TestConfigInitThenRuntimeUpdates(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := t.TempDir()
	path := filepath.Join(dir, "igdmbot.yaml")

	_, err := execute(t, "config", "init", "--config", path, "--no-color")
	require.NoError(t, err)

	_, err = execute(t, "config", "init", "--config", path)
	assert.Error(t, err, "init must not overwrite without --force")

	_, err = execute(t, "config", "keywords", "--config", path, "--data-dir", dir, "--general", " Price ,LINK,price")
	require.NoError(t, err)

	_, err = execute(t, "config", "strategy", "any_keyword", "--config", path, "--data-dir", dir)
	require.NoError(t, err)

	cfg, err := config.Load(path, map[string]interface{}{"data-dir": dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "link"}, cfg.Keywords.General)
	assert.Equal(t, config.StrategyAnyKeyword, cfg.Keywords.Strategy)
}

func TestConfigStrategyRejectsUnknown(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := execute(t, "config", "strategy", "sometimes", "--data-dir", t.TempDir())
	assert.Error(t, err)
}
