package main

import (
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/cmd"
	cmdUtils "github.com/gridx-network/gridx-coordinator/cmd/utils"
)

// Version is stamped into the version subcommand and the startup log.
const Version = "1.0.0"

// GitCommit is populated at build time by
// go build -ldflags "-X main.GitCommit=$GIT_COMMIT"
var GitCommit string

func main() {
	// The env file has to be in place before cobra parses any flag.
	if err := cmdUtils.LoadEnvFile(); err != nil {
		log.Debugf("Error loading env file: %s", err.Error())
	}

	// Log at trace until the log-level flag takes over in cmd/root.go.
	log.DefaultLogger = log.New()
	log.DefaultLogger.SetLevel(logrus.TraceLevel)

	if err := cmd.SetupCLI(Version, GitCommit).Execute(); err != nil {
		log.Fatalf("Error executing root command: %s", err.Error())
	}
}
