package all

import (
	// Diagnostic commands
	_ "github.com/robotalks/kwp.go/pkg/cli/cmds/diag"
)
