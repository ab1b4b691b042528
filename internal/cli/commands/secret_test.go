package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRegisterCommandStoresCredential(t *testing.T) {
	cmd := NewSecretCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"register", "--mock", "--type", "postgres", "--data", `{"host":"localhost"}`, "pg_local"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "registered credential pg_local (postgres)")
}

func TestSecretRegisterCommandRequiresData(t *testing.T) {
	cmd := NewSecretCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"register", "--mock", "--type", "postgres", "pg_local"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "one of --data or --data-file is required")
}

func TestSecretRegisterCommandRejectsBadDataJSON(t *testing.T) {
	cmd := NewSecretCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"register", "--mock", "--type", "postgres", "--data", "{not json", "pg_local"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "parsing credential data as JSON")
}
