// Command retrovertd hosts the playback core described in pkg/core: a
// plugin-loading, randomize-capable playback daemon. Structured the
// way the teacher's own cmd package lays out its cobra commands (one
// file per subcommand, package-level flag variables, an init() that
// registers the command on rootCmd), but wired to pkg/core instead of
// directly to audioplayer.Player.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "retrovertd",
	Short: "Plugin-driven playback daemon",
	Long: `retrovertd loads decoder, output and resampler plugins from a directory,
then plays back files or randomized directory trees through whichever
output device the first loaded output plugin exposes.

Commands:
  - play: play a single file and exit when it finishes
  - randomize: play a directory tree in randomize mode until stopped`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
