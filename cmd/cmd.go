// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/streamkv/streamkv/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: envconfig.LogLevel(),
	})))

	rootCmd := &cobra.Command{
		Use:           "streamkv",
		Short:         "Bounded-memory KV cache for unbounded text generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	benchCmd := newBenchCmd()

	vars := envconfig.AsMap()
	envs := []envconfig.EnvVar{
		vars["STREAMKV_DEBUG"],
		vars["STREAMKV_SINK_TOKENS"],
		vars["STREAMKV_WINDOW"],
		vars["STREAMKV_KV_CACHE_TYPE"],
		vars["STREAMKV_NUM_PARALLEL"],
	}
	appendEnvDocs(benchCmd, envs)

	rootCmd.AddCommand(benchCmd)

	return rootCmd
}
