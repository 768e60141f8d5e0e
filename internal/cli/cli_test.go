package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/pkg/larder"
)

// env is a config and data directory pair for one test.
type env struct {
	configDir string
	dataDir   string
}

func newEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	return env{
		configDir: filepath.Join(root, "config"),
		dataDir:   filepath.Join(root, "data"),
	}
}

// run executes the CLI against the env and returns stdout, stderr, and the
// exit code.
func (e env) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...)
	code := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// mustRun fails the test unless the command succeeds.
func (e env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := e.run(t, args...)
	require.Equal(t, exitSuccess, code, "stderr: %s", errOut)
	return out
}

func writeSchema(t *testing.T, e env, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.configDir, schemaFileExt), []byte(content), 0o644))
}

const notesSchema = `
name: notes
version: 1
stores:
  - name: note
    indexes:
      - title
      - key: slug
        unique: true
  - name: tag
    keyPath: name
    autoIncrement: false
`

func TestCLIVersion(t *testing.T) {
	out := newEnv(t).mustRun(t, "cli-version")
	assert.Equal(t, "larder v"+larder.Version+"\n", out)
}

func TestInit(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "init", "--name", "shop", "--stores", "item,order")
	assert.Contains(t, out, `database "shop"`)

	for _, name := range []string{configFileExt, schemaFileExt} {
		_, err := os.Stat(filepath.Join(e.configDir, name))
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(filepath.Join(e.dataDir, "shop.db"))
	assert.NoError(t, err)

	assert.Equal(t, "item\norder\n", e.mustRun(t, "stores"))
	assert.Equal(t, "1\n", e.mustRun(t, "version"))

	// Re-running init keeps the existing definition.
	e.mustRun(t, "init", "--name", "other")
	assert.Equal(t, "item\norder\n", e.mustRun(t, "stores"))
}

func TestMissingSchema(t *testing.T) {
	_, errOut, code := newEnv(t).run(t, "count")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "no database definition")
}

func TestRecordCommands(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)

	assert.Equal(t, "1\n", e.mustRun(t, "add", `{"title":"groceries","slug":"g"}`))
	assert.Equal(t, "3\n", e.mustRun(t, "insert", `{"title":"work"}`, `{"title":"home","slug":"h"}`))
	assert.Equal(t, "3\n", e.mustRun(t, "count"))

	out := e.mustRun(t, "get", "1")
	assert.JSONEq(t, `{"id":1,"title":"groceries","slug":"g"}`, out)

	out = e.mustRun(t, "find", "slug", "h")
	assert.JSONEq(t, `{"id":3,"title":"home","slug":"h"}`, out)

	out = e.mustRun(t, "update", `{"id":1,"title":"errands"}`)
	assert.JSONEq(t, `{"id":1,"title":"errands","slug":"g"}`, out)

	_, errOut, code := e.run(t, "update", `{"title":"no key"}`)
	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, errOut, "nothing updated")

	out = e.mustRun(t, "all")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"id":1,"title":"errands","slug":"g"}`, lines[0])

	e.mustRun(t, "delete", "2")
	assert.Equal(t, "2\n", e.mustRun(t, "count"))

	e.mustRun(t, "clear")
	assert.Equal(t, "0\n", e.mustRun(t, "count"))
}

func TestStoreFlag(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)

	assert.Equal(t, "\"red\"\n", e.mustRun(t, "--store", "tag", "add", `{"name":"red"}`))
	out := e.mustRun(t, "--store", "tag", "get", "red")
	assert.JSONEq(t, `{"name":"red"}`, out)
	assert.Equal(t, "0\n", e.mustRun(t, "count"))
}

func TestUserErrors(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)
	e.mustRun(t, "add", `{"slug":"taken"}`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing record", []string{"get", "99"}, "record not found"},
		{"unique violation", []string{"add", `{"slug":"taken"}`}, "constraint violated"},
		{"bad json", []string{"add", `{not json`}, "invalid record"},
		{"no index", []string{"find", "body", "x"}, "index not found"},
		{"unknown store", []string{"--store", "ghost", "count"}, "store not found"},
		{"manual key missing", []string{"--store", "tag", "add", `{"color":"red"}`}, "invalid key or record"},
		{"wrong arg count", []string{"get"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, code := e.run(t, tt.args...)
			assert.Equal(t, exitUserError, code)
			assert.Contains(t, errOut, tt.wantErr)
		})
	}
}

func TestUnsupportedBackend(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)

	_, errOut, code := e.run(t, "--backend", "indexeddb", "count")
	assert.Equal(t, exitSysError, code)
	assert.Contains(t, errOut, "unavailable")
}

func TestBackendFromConfigFile(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)
	require.NoError(t, os.WriteFile(filepath.Join(e.configDir, configFileExt), []byte("backend: bolt\n"), 0o644))

	e.mustRun(t, "add", `{"title":"x"}`)
	_, err := os.Stat(filepath.Join(e.dataDir, "notes.bolt"))
	assert.NoError(t, err)
}

func TestBackendFromEnv(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)
	t.Setenv("LARDER_BACKEND", "bolt")

	e.mustRun(t, "add", `{"title":"x"}`)
	_, err := os.Stat(filepath.Join(e.dataDir, "notes.bolt"))
	assert.NoError(t, err)
}

func TestExportImport(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)
	e.mustRun(t, "insert", `{"title":"a"}`, `{"title":"b"}`)

	file := filepath.Join(t.TempDir(), "notes.jsonl")
	assert.Equal(t, "exported 2 records\n", e.mustRun(t, "export", file))

	other := newEnv(t)
	writeSchema(t, other, notesSchema)
	assert.Equal(t, "imported 2 records\n", other.mustRun(t, "import", file))
	assert.Equal(t, "2\n", other.mustRun(t, "count"))

	_, _, code := other.run(t, "import", filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Equal(t, exitUserError, code)
}

func TestImportSkipInvalid(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)

	file := filepath.Join(t.TempDir(), "mixed.jsonl")
	require.NoError(t, os.WriteFile(file, []byte("{\"id\":1,\"title\":\"a\"}\nnot json\n{\"id\":2,\"title\":\"b\"}\n"), 0o644))

	_, errOut, code := e.run(t, "import", file)
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, "line 2")
	assert.Equal(t, "0\n", e.mustRun(t, "count"))

	assert.Equal(t, "imported 2 records\n", e.mustRun(t, "import", "--skip-invalid", file))
	assert.Equal(t, "2\n", e.mustRun(t, "count"))
}

func TestSpaceAndMetrics(t *testing.T) {
	e := newEnv(t)
	writeSchema(t, e, notesSchema)

	out := e.mustRun(t, "space")
	assert.Contains(t, out, "kb used")

	out = e.mustRun(t, "space", "--json")
	assert.Contains(t, out, `"unit":"kb"`)

	_, errOut, code := e.run(t, "--metrics", "count")
	assert.Equal(t, exitSuccess, code)
	assert.Contains(t, errOut, `larder_ops_total{op="count",store="note"}`)
}

func TestParseKey(t *testing.T) {
	assert.Equal(t, float64(42), parseKey("42"))
	assert.Equal(t, -1.5, parseKey("-1.5"))
	assert.Equal(t, "abc", parseKey("abc"))
	assert.Equal(t, "42", parseKey(`"42"`))
}
