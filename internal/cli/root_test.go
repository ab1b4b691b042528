package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommandHasExpectedBasics(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "noetl", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	versionCmd, _, err := cmd.Find([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", versionCmd.Use)
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.Contains(buf.String(), "noetl version"))
}

func TestRootCommandFindsAllSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"catalog", "diagram", "execute", "register", "secret", "server", "worker"} {
		_, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "expected subcommand %q to be registered", name)
	}
}
