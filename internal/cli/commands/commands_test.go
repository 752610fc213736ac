package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

func registerTestModels(r *schema.Registry) error {
	folder := schema.NewModel("test.folder").Hierarchical()
	folder.Chars("name").Required()
	return r.Register(folder)
}

type cli struct {
	t          *testing.T
	configPath string
	dir        string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "objectserver.yaml")
	content := fmt.Sprintf(`
database:
  driver: sqlite3
  url: %s
log:
  level: error
cache:
  backend: memory
metrics:
  enabled: true
  textfile: %s
`, filepath.Join(dir, "objects.db"), filepath.Join(dir, "objectserver.prom"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	t.Setenv("DATABASE_URL", "")
	return &cli{t: t, configPath: configPath, dir: dir}
}

func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(registerTestModels)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", c.configPath, "--no-color"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	stdout, stderr, err := c.run(args...)
	require.NoError(c.t, err, stderr)
	return stdout
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "objectserver", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"version", "init", "sync", "tree", "call"} {
		assert.Contains(t, names, expected)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	defer func() { Version = "dev" }()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "1.0.0-test")
}

func TestInitAndSync(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "administrator password required")

	out := c.mustRun("init", "--admin-password", "secret")
	assert.Contains(t, out, "test.folder")
	assert.Contains(t, out, "Created:")
	assert.Contains(t, out, "true")

	t.Setenv(adminPasswordEnv, "ignored")
	out = c.mustRun("init")
	assert.Contains(t, out, "catalog up to date")
	assert.Contains(t, out, "false")

	out = c.mustRun("sync")
	assert.Contains(t, out, "catalog up to date")

	prom, err := os.ReadFile(filepath.Join(c.dir, "objectserver.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "objectserver_calls_in_flight")
}

func TestCall(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init", "--admin-password", "secret")

	out := c.mustRun("call", "test.folder", "create", `[{"name": "root"}]`)
	var id int64
	require.NoError(t, json.Unmarshal([]byte(out), &id))
	assert.NotZero(t, id)

	out = c.mustRun("call", "test.folder", "read", fmt.Sprintf(`[[%d], ["name"]]`, id), "--login", "admin", "--password", "secret")
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "root", records[0]["name"])

	t.Setenv(passwordEnv, "secret")
	out = c.mustRun("call", "test.folder", "count", "--login", "admin")
	assert.Equal(t, "1", strings.TrimSpace(out))

	_, stderr, err := c.run("call", "test.folder", "count", "--login", "admin", "--password", "wrong")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "SECURITY [0005]")

	_, stderr, err = c.run("call", "test.foldr", "count")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "Did you mean: test.folder?")

	_, _, err = c.run("call", "test.folder", "count", "{")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON array")

	prom, err := os.ReadFile(filepath.Join(c.dir, "objectserver.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "objectserver_calls_total")
}

func TestTree(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init", "--admin-password", "secret")
	root := strings.TrimSpace(c.mustRun("call", "test.folder", "create", `[{"name": "root"}]`))
	c.mustRun("call", "test.folder", "create", fmt.Sprintf(`[{"name": "child", "parent": %s}]`, root))

	out := c.mustRun("tree", "verify", "test.folder")
	assert.Contains(t, out, "tree is consistent")

	out = c.mustRun("tree", "rebuild", "test.folder")
	assert.Contains(t, out, "0 nodes rewritten")

	_, stderr, err := c.run("tree", "verify", "core.user")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "ARGUMENT [0003]")
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: mysql\n"), 0644))

	var stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", path, "--no-color", "sync"})
	err := cmd.Execute()
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr.String(), "CONFIGURATION ERROR")
}
