package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gigline/glc/internal/auth"
	"github.com/gigline/glc/internal/config"
)

// CLI flags for init command
var (
	initURL      string
	initIdentity string
	initAlias    string
	initToken    string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .gigline config file",
	Long: `Create a .gigline configuration file for this workspace.

Configuration sources (in priority order):
1. Command line flags (--server-url, --identity, --alias, --token)
2. Environment variables (GIGLINE_URL, GIGLINE_TOKEN)
3. .env file in current directory
4. Interactive prompts (TTY mode only)

The identity is normally derived from the bearer token's subject claim;
pass --identity only to override it. A device_id is generated on first
init and kept on re-init.

Tokens are better kept out of the file: leave --token unset and export
GIGLINE_TOKEN instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func init() {
	initCmd.Flags().StringVar(&initURL, "server-url", "", "GigLine server URL")
	initCmd.Flags().StringVar(&initIdentity, "identity", "", "User identifier (default: derived from token)")
	initCmd.Flags().StringVar(&initAlias, "alias", "", "Display name for CLI output")
	initCmd.Flags().StringVar(&initToken, "token", "", "Bearer token to store in the config (prefer GIGLINE_TOKEN)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")
}

// isTTY returns true if stdin is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func runInit() error {
	existing, loadErr := config.Load()
	if loadErr == nil && !initForce {
		fmt.Printf("GigLine workspace already initialized (%s)\n", config.GetPath())
		fmt.Printf("  server_url: %s\n", existing.ServerURL)
		if existing.Identity != "" {
			fmt.Printf("  identity:   %s\n", existing.Identity)
		}
		if existing.Alias != "" {
			fmt.Printf("  alias:      %s\n", existing.Alias)
		}
		fmt.Println()
		fmt.Println("Use --force to re-initialize.")
		return nil
	}

	serverURL := resolveConfigValue(initURL, "GIGLINE_URL", "")
	if serverURL == "" && isTTY() {
		var err error
		serverURL, err = promptFor("Server URL", "https://api.gigline.com")
		if err != nil {
			return fmt.Errorf("getting server URL: %w", err)
		}
	}
	if serverURL == "" {
		return fmt.Errorf("server URL is required (pass --server-url or set GIGLINE_URL)")
	}

	token := resolveConfigValue(initToken, config.TokenEnv, "")

	identity := initIdentity
	if identity == "" && token != "" {
		if derived, err := auth.IdentityFromToken(token); err == nil {
			identity = derived
		}
	}
	if identity != "" && !config.IsValidIdentity(identity) {
		return fmt.Errorf("invalid identity %q: must start with an alphanumeric and contain only alphanumerics, dashes, or underscores", identity)
	}

	alias := initAlias
	if alias == "" && isTTY() {
		var err error
		alias, err = promptFor("Display name (optional)", "")
		if err != nil {
			return fmt.Errorf("getting display name: %w", err)
		}
	}

	cfg := &config.Config{
		DeviceID:  uuid.NewString(),
		ServerURL: serverURL,
		Identity:  identity,
		Alias:     alias,
	}
	if existing != nil && existing.DeviceID != "" {
		// Re-init keeps the device identity stable.
		cfg.DeviceID = existing.DeviceID
	}
	// Only persist a token passed explicitly via --token; the environment
	// variable keeps working without ending up on disk.
	if initToken != "" {
		cfg.RawToken = initToken
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Save(); err != nil {
		return err
	}

	if err := addToGitignore(config.FileName); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not update .gitignore: %v\n", err)
	}

	fmt.Printf("Created %s\n", config.GetPath())
	fmt.Printf("  server_url: %s\n", cfg.ServerURL)
	if cfg.Identity != "" {
		fmt.Printf("  identity:   %s\n", cfg.Identity)
	}
	if cfg.Identity == "" && token == "" {
		fmt.Println()
		fmt.Printf("No token found. Export %s before running chat commands.\n", config.TokenEnv)
	}
	return nil
}

// resolveConfigValue applies the flag > env > default priority.
func resolveConfigValue(cliFlag, envVar, defaultValue string) string {
	if cliFlag != "" {
		return cliFlag
	}
	if env := strings.TrimSpace(os.Getenv(envVar)); env != "" {
		return env
	}
	return defaultValue
}

func promptFor(label, suggested string) (string, error) {
	reader := bufio.NewReader(os.Stdin)

	if suggested != "" {
		fmt.Printf("%s [%s]: ", label, suggested)
	} else {
		fmt.Printf("%s: ", label)
	}
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return suggested, nil
	}
	return input, nil
}

// addToGitignore adds an entry to .gitignore if not already present.
func addToGitignore(entry string) error {
	gitignorePath := ".gitignore"

	// Check if entry already exists
	if content, err := os.ReadFile(gitignorePath); err == nil {
		scanner := bufio.NewScanner(strings.NewReader(string(content)))
		for scanner.Scan() {
			if strings.TrimSpace(scanner.Text()) == entry {
				return nil // Already present
			}
		}
		// Append to existing file
		f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		// Add newline if file doesn't end with one
		if len(content) > 0 && content[len(content)-1] != '\n' {
			if _, err := f.WriteString("\n"); err != nil {
				return err
			}
		}
		_, err = f.WriteString(entry + "\n")
		return err
	}

	// Create new .gitignore
	return os.WriteFile(gitignorePath, []byte(entry+"\n"), 0644)
}
