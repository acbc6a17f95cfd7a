// Command alphahunter is the A-share momentum scanner and position monitor.
package main

import (
	"os"

	"alphahunter/internal/cli"
	"alphahunter/internal/logging"
)

func main() {
	logger := logging.NewLogger()
	if err := cli.NewRootCmd(logger).Execute(); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
