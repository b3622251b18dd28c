package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("IG_USERNAME", "tester")
	t.Setenv("IG_PASSWORD", "secret")

	path := writeFile(t, "config.yaml", `
instagram:
  user_agent: "test-agent"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tester", cfg.Instagram.Username)
	assert.Equal(t, "data/sessions", cfg.Instagram.SessionDir)
	assert.Equal(t, 30, cfg.Instagram.Timeout)
	assert.Equal(t, 3, cfg.Dispatcher.MaxPosts)
	assert.Equal(t, 3.0, cfg.Dispatcher.MinDelay)
	assert.Equal(t, 7.0, cfg.Dispatcher.MaxDelay)
	assert.Equal(t, "json", cfg.Dispatcher.Output)
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("IG_USERNAME", "")
	t.Setenv("IG_PASSWORD", "")

	path := writeFile(t, "config.yaml", "instagram: {}\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IG_USERNAME")
}

func TestLoadRejectsInvertedDelays(t *testing.T) {
	t.Setenv("IG_USERNAME", "tester")
	t.Setenv("IG_PASSWORD", "secret")

	path := writeFile(t, "config.yaml", `
dispatcher:
  min_delay: 10
  max_delay: 2
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_delay")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("IG_USERNAME", "env-user")
	t.Setenv("IG_PASSWORD", "env-pass")
	t.Setenv("PROXIES", "http://1.2.3.4:8888, socks5://5.6.7.8:1080")
	t.Setenv("DB_HOST", "db.internal")

	path := writeFile(t, "config.yaml", `
instagram:
  username: "file-user"
  password: "file-pass"
database:
  host: "localhost"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.Instagram.Username)
	assert.Equal(t, "env-pass", cfg.Instagram.Password)
	assert.Equal(t, []string{"http://1.2.3.4:8888", "socks5://5.6.7.8:1080"}, cfg.Dispatcher.Proxies)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestSplitProxies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single", "http://p:1", []string{"http://p:1"}},
		{"multiple with spaces", " http://p:1 , socks5://p:2", []string{"http://p:1", "socks5://p:2"}},
		{"trailing comma", "http://p:1,", []string{"http://p:1"}},
		{"empty", "", nil},
		{"only commas", ",,,", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitProxies(tt.raw))
		})
	}
}

func TestLoadTargetsYAML(t *testing.T) {
	path := writeFile(t, "targets.yaml", `
targets:
  - instagram
  - natgeo
  - p/Cxyz_123
`)

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"instagram", "natgeo", "p/Cxyz_123"}, targets)
}

func TestLoadTargetsCSV(t *testing.T) {
	path := writeFile(t, "targets.csv", "id,name,notes\n1,instagram,big\n2, natgeo ,\n3,,empty\n")

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"instagram", "natgeo"}, targets)
}

func TestLoadTargetsCSVWithoutNameColumn(t *testing.T) {
	path := writeFile(t, "targets.csv", "id,account\n1,instagram\n")

	_, err := LoadTargets(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestLoadTargetsMissingFile(t *testing.T) {
	_, err := LoadTargets(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
