package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/gigline/glc/internal/auth"
	"github.com/gigline/glc/internal/client"
	"github.com/gigline/glc/internal/config"
)

// apiTimeout is the default timeout for one-shot API calls.
const apiTimeout = 10 * time.Second

// loadConfigRequired loads and validates the .gigline config, turning a
// missing file into a setup hint instead of a raw ENOENT.
func loadConfigRequired() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s file found - run 'glc init' first", config.FileName)
		}
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", config.FileName, err)
	}
	return cfg, nil
}

// newAPIClient builds an API client from the config, attaching the bearer
// token when one is available.
func newAPIClient(cfg *config.Config) *client.Client {
	if token := cfg.Token(); token != "" {
		return client.NewWithToken(cfg.ServerURL, token)
	}
	return client.New(cfg.ServerURL)
}

// newAPIClientRequired is newAPIClient for commands that cannot work
// without a token.
func newAPIClientRequired(cfg *config.Config) (*client.Client, error) {
	api := newAPIClient(cfg)
	if !api.Authenticated() {
		return nil, fmt.Errorf("no token configured - export %s or run 'glc init --token ...'", config.TokenEnv)
	}
	return api, nil
}

// resolveIdentity returns the user identifier for this session: the
// explicit config value when set, otherwise the token's subject claim.
func resolveIdentity(cfg *config.Config) (string, error) {
	if cfg.Identity != "" {
		return cfg.Identity, nil
	}
	token := cfg.Token()
	if token == "" {
		return "", fmt.Errorf("no identity configured and no token to derive it from - set %s or run 'glc init'", config.TokenEnv)
	}
	identity, err := auth.IdentityFromToken(token)
	if err != nil {
		return "", fmt.Errorf("deriving identity from token: %w", err)
	}
	return identity, nil
}

// conversationLabel returns the display name for a conversation: its
// title when the server set one, otherwise the partner's identifier.
func conversationLabel(conv client.Conversation) string {
	if conv.Title != "" {
		return conv.Title
	}
	return conv.PartnerID
}
