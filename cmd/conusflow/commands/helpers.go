package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hydrostat/conusflow/config"
)

// loadConfig resolves configuration for a command invocation, honoring
// the persistent --config flag before falling back to discovery.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func jsonLogs(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json-logs")
	return v
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so a
// run in progress kills its workers instead of orphaning them.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
