package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

var (
	validPolicies   = filepath.Join("..", "policy", "testdata", "valid")
	invalidPolicies = filepath.Join("..", "policy", "testdata", "invalid")
	scenariosDir    = filepath.Join("..", "harness", "testdata", "scenarios")
	goldenDir       = filepath.Join("..", "harness", "testdata", "golden")
)

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decode parses a JSON CLI response whose data is re-decoded into data.
func decode(t *testing.T, raw string, data any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	if data != nil && resp.Data != nil {
		b, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, data))
	}
	return resp
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const failingScenario = `
name: failing
description: "Expects the wrong occupant"
steps:
  - enter: {id: A, kind: Move, subject: p1, scope: per_subject}
  - expect:
      pending: [A]
`
