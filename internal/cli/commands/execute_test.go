package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCommandFailsForUnregisteredPath(t *testing.T) {
	cmd := NewExecuteCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--mock", "does-not-exist"})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestExecuteCommandRejectsBadPayloadJSON(t *testing.T) {
	dir := t.TempDir()
	badFile := filepath.Join(dir, "payload.json")
	require.NoError(t, os.WriteFile(badFile, []byte("{not json"), 0o644))

	cmd := NewExecuteCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--mock", "--input", badFile, "some-path"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "parsing payload file")
}
