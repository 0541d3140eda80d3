// Package commands implements the glc CLI commands.
package commands

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gigline/glc/internal/config"
)

var versionInfo struct {
	version string
	commit  string
	date    string
}

// SetVersionInfo sets version information from main (populated by goreleaser).
func SetVersionInfo(version, commit, date string) {
	versionInfo.version = version
	versionInfo.commit = commit
	versionInfo.date = date
	rootCmd.Version = version
}

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "glc",
	Short: "GigLine chat client",
	Long: `glc is the GigLine chat client.

Chats unlock when a hire is accepted on GigLine: each accepted project
gets one conversation between client and freelancer. glc lists the
conversations you can take part in, shows their history, sends messages,
and follows them live.

Setup:
  glc init              - Create the .gigline config file

Commands:
  glc conversations     - List conversations you can chat on
  glc history <id>      - Show a conversation's message history
  glc send <id> <text>  - Send a message
  glc watch [id]        - Follow conversations live
  glc whoami            - Show the configured identity

Environment variables:
  GIGLINE_TOKEN         - Bearer token (overrides the config file)
  GIGLINE_URL           - Server URL (glc init default)`,
	// Don't show usage/errors on errors from subcommands (main.go handles errors)
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFlag != "" {
			config.SetPath(configFlag)
		}
		loadDotenvBestEffort()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Use an alternate .gigline config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func loadDotenvBestEffort() {
	// Prefer the workspace root (dir containing .gigline) so subdir invocations work.
	if root, err := config.WorkspaceRoot(); err == nil {
		_ = godotenv.Load(filepath.Join(root, ".env"))
		return
	}
	// Fallback: load from the current working directory.
	_ = godotenv.Load()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
