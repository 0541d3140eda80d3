package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var whoamiJSON bool

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the configured identity",
	Long: `Show the identity glc chats as, and where it came from.

The identity is the config's identity field when set, otherwise the
bearer token's subject claim.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigRequired()
		if err != nil {
			return err
		}
		identity, err := resolveIdentity(cfg)
		if err != nil {
			return err
		}

		if whoamiJSON {
			fmt.Print(marshalJSONOrFallback(map[string]string{
				"identity":   identity,
				"alias":      cfg.Alias,
				"server_url": cfg.ServerURL,
				"device_id":  cfg.DeviceID,
			}))
			return nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("identity:   %s\n", identity))
		if cfg.Alias != "" {
			sb.WriteString(fmt.Sprintf("alias:      %s\n", cfg.Alias))
		}
		sb.WriteString(fmt.Sprintf("server_url: %s\n", cfg.ServerURL))
		sb.WriteString(fmt.Sprintf("device_id:  %s\n", cfg.DeviceID))
		fmt.Print(sb.String())
		return nil
	},
}

func init() {
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "Output in JSON format")
}
