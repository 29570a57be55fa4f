package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/errors"
)

// EnvPrefix prefixes every environment variable hitlfeed reads.
const EnvPrefix = "HITLFEED"

// Config holds the application configuration loaded from config files,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Feed configuration
	URL            string
	AuthScheme     string
	APIKey         string
	CategoriesFile string
	MaxEvents      int
	Filter         string
	ArchivePath    string

	// Server configuration
	ServerHost   string
	ServerPort   int
	ServerAPIKey string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (applied later by UpdateFromFlags)
// 2. HITLFEED_* environment variables
// 3. .env and .env.local files
// 4. Config file (path, or ~/.hitlfeed.yaml, or ./.hitlfeed.yaml)
// 5. Defaults
func LoadConfig(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(expandHome(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "reading "+path, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(strings.TrimSuffix(constants.DefaultConfigFile, filepath.Ext(constants.DefaultConfigFile)))

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.NewConfigError("config", "reading config file", err)
			}
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color") || os.Getenv("NO_COLOR") != "",
		Format:  v.GetString("output"),

		ConfigFile: v.ConfigFileUsed(),

		URL:            v.GetString("url"),
		AuthScheme:     v.GetString("auth_scheme"),
		APIKey:         v.GetString("api_key"),
		CategoriesFile: v.GetString("categories_file"),
		MaxEvents:      v.GetInt("max_events"),
		Filter:         v.GetString("filter"),
		ArchivePath:    v.GetString("archive"),

		ServerHost:   v.GetString("server.host"),
		ServerPort:   v.GetInt("server.port"),
		ServerAPIKey: v.GetString("server.api_key"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}

	if config.MaxEvents <= 0 {
		return nil, errors.NewConfigError("config", "max_events must be positive", nil)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth_scheme", "none")
	v.SetDefault("max_events", constants.MaxEvents)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// UpdateFromFlags updates config values from parsed command flags so flag
// values take precedence over the config file and environment.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files. Variables
// already set in the environment win.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
