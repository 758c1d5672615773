package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rootsense/rootsense/internal/host"
)

// rootState carries overrides shared by every subcommand.
type rootState struct {
	// host replaces the local machine; tests set it.
	host *host.Host
}

func NewRoot(version string) *cobra.Command {
	return newRoot(version, &rootState{})
}

func newRoot(version string, st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rootsense",
		Short:         "rootsense: device compromise detection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("rootsense {{.Version}}\n")

	cmd.PersistentFlags().String("config", getenvDefault("ROOTSENSE_CONFIG", ""), "Path to config YAML (default: built-in defaults)")
	cmd.PersistentFlags().String("log-level", "", "Override logging.level: debug|info|warn|error")

	cmd.AddCommand(newDetectCmd(st))
	cmd.AddCommand(newCheckCmd(st))
	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newWatchCmd(st))
	cmd.AddCommand(newServeCmd(st))
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
