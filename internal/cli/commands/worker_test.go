package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerCommandFailsForUnregisteredPath(t *testing.T) {
	cmd := NewWorkerCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--mock", "does-not-exist"})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestWorkerCommandRequiresExactlyOnePathArg(t *testing.T) {
	cmd := NewWorkerCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--mock"})

	err := cmd.Execute()
	assert.Error(t, err)
}
