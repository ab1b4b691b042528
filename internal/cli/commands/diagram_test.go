package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagramCommandRendersPlantUML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "greet.yaml")
	content := "kind: Playbook\nname: greet\npath: greet\nworkflow:\n  - step: start\n    next:\n      - step: end\n  - step: end\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	cmd := NewDiagramCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{file})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "@startuml")
	assert.Contains(t, out, "title greet")
	assert.Contains(t, out, "start --> end")
	assert.Contains(t, out, "@enduml")
}

func TestDiagramCommandRejectsRenderedFormats(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "greet.yaml")
	content := "kind: Playbook\nname: greet\nworkflow:\n  - step: start\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	cmd := NewDiagramCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "svg", file})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "external Kroki renderer")
}

func TestDiagramCommandWritesToOutputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "greet.yaml")
	content := "kind: Playbook\nname: greet\nworkflow:\n  - step: start\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	outFile := filepath.Join(dir, "out.puml")

	cmd := NewDiagramCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--output", outFile, file})

	require.NoError(t, cmd.Execute())
	written, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(written), "@startuml")
}
