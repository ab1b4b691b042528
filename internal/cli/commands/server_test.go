package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerCommandRegistersStartAndStop(t *testing.T) {
	cmd := NewServerCommand()
	for _, name := range []string{"start", "stop"} {
		_, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "expected server subcommand %q to be registered", name)
	}
}

func TestServerStopCommandFailsWithoutPIDFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.pid")

	cmd := NewServerCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"stop", "--pid-file", missing})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "reading pid file")
}

func TestServerStopCommandRejectsNonNumericPID(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0o644))

	cmd := NewServerCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"stop", "--pid-file", pidFile})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "parsing pid")
}
