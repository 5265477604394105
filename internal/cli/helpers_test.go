package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// Scenarios shared with the harness tests.
const (
	harnessScenarios = "../harness/testdata/scenarios"
	toggleScenario   = harnessScenarios + "/property_toggle.yaml"
)

const validClasses = `
package classes

class: Node: {
	property: {
		rotation: int | *0
		visible:  bool | *true
		children: [...]
	}
	method: {
		rotate: {
			args: degrees: int
			effect:   "add"
			property: "rotation"
		}
		flip: {
			effect:   "toggle"
			property: "visible"
		}
	}
}

class: Mesh: {
	refcounted: true
	property: verts: int | *0
}
`

// writeClassesDir writes src as classes.cue in a fresh directory.
func writeClassesDir(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classes.cue"), []byte(src), 0644))
	return dir
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
