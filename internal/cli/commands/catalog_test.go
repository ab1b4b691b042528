package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPayloadFileEmptyPathReturnsEmptyMap(t *testing.T) {
	payload, err := readPayloadFile("")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, payload)
}

func TestReadPayloadFileParsesJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "payload.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"city": "Bergen"}`), 0o644))

	payload, err := readPayloadFile(file)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"city": "Bergen"}, payload)
}

func TestReadPayloadFileRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "payload.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0o644))

	_, err := readPayloadFile(file)
	assert.ErrorContains(t, err, "parsing payload file")
}

func TestPrintJSONEncodesIndented(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCatalogCommand()
	cmd.SetOut(buf)

	require.NoError(t, printJSON(cmd, map[string]any{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestCatalogCommandRegistersSubcommands(t *testing.T) {
	cmd := NewCatalogCommand()
	for _, name := range []string{"register", "execute", "list"} {
		_, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "expected catalog subcommand %q to be registered", name)
	}
}

func TestCatalogExecuteCommandRejectsBadMergeJSON(t *testing.T) {
	cmd := NewCatalogCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"execute", "--merge", "{not json", "some-path"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "parsing --merge as JSON")
}

func TestCatalogRegisterCommandRequiresExactlyOneArg(t *testing.T) {
	cmd := NewCatalogCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"register"})

	err := cmd.Execute()
	assert.Error(t, err)
}
