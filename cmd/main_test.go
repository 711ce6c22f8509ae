// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xkilldash9x/phquery/internal/observability"
)

// executeCommand runs a fresh command tree with args and returns what it wrote
// to stdout.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	t.Setenv("PHQUERY_LOGGER_LEVEL", "fatal")

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
