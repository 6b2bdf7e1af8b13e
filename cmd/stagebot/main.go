package main

import (
	"os"

	"github.com/sigayyury-ai/crmtowfirma-sub006/cmd/stagebot/cmd"
	engerrors "github.com/sigayyury-ai/crmtowfirma-sub006/pkg/errors"
)

// Build-time variables set via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	if err := cmd.Execute(); err != nil {
		if engineErr, ok := engerrors.AsEngineError(err); ok {
			os.Exit(engineErr.GetExitCode())
		}
		os.Exit(1)
	}
}
