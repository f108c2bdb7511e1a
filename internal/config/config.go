package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration. It is loaded once and
// passed explicitly into the components that need it.
type Config struct {
	GitLab struct {
		URL     string `koanf:"url"`
		Token   string `koanf:"token"`
		Project string `koanf:"project"` // optional; auto-detected from the git remote when empty
	} `koanf:"gitlab"`

	Sync struct {
		CommentsFile string `koanf:"comments_file"`
		Remote       string `koanf:"remote"`
	} `koanf:"sync"`
}

// LoadConfig loads the configuration from a file, falling back to default
// locations, with environment variables (REVIEWSYNC_*) layered on top
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"sync.comments_file": "review-comments.json",
		"sync.remote":        "origin",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./reviewsync.toml", "$HOME/.reviewsync.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix REVIEWSYNC_
	k.Load(env.Provider("REVIEWSYNC_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REVIEWSYNC_")), "_", ".", 1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# reviewsync configuration

[gitlab]
url = "https://gitlab.example.com"
token = "your-gitlab-token"
# project = "group/project"  # optional, detected from the origin remote

[sync]
comments_file = "review-comments.json"
remote = "origin"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.GitLab.URL == "" {
		return fmt.Errorf("gitlab url is required")
	}

	if config.GitLab.Token == "" {
		return fmt.Errorf("gitlab token is required")
	}

	return nil
}
