package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/cropsight.db")

	// Index provider defaults
	v.SetDefault("provider.mode", "simulated")
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("provider.sentinelhub.token_url", "https://services.sentinel-hub.com/oauth/token")
	v.SetDefault("provider.sentinelhub.api_url", "https://services.sentinel-hub.com/api/v1/statistics")
	v.SetDefault("provider.sentinelhub.client_id", "")
	v.SetDefault("provider.sentinelhub.client_secret", "")
	v.SetDefault("provider.sentinelhub.max_cloud_cover", 20)
	v.SetDefault("provider.simulated.min", 0.2)
	v.SetDefault("provider.simulated.max", 0.85)

	// Notifier defaults
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.timeout", "10s")

	// Module defaults
	v.SetDefault("modules.watch.pass_interval", "24h")
	v.SetDefault("modules.watch.min_samples", 5)
	v.SetDefault("modules.watch.max_workers", 4)
	v.SetDefault("modules.watch.gate.drop_pct", -15.0)
	v.SetDefault("modules.watch.gate.zscore", -1.0)
	v.SetDefault("modules.watch.gate.alt_enabled", false)
	v.SetDefault("modules.watch.gate.alt_zscore", -1.5)
	v.SetDefault("modules.watch.gate.alt_delta_week", -0.1)
	v.SetDefault("modules.watch.min_days_between_alerts", 7)
	v.SetDefault("modules.watch.aggregate.magnitude_enabled", true)
	v.SetDefault("modules.watch.aggregate.magnitude_threshold", 0.3)
	v.SetDefault("modules.watch.aggregate.coverage_enabled", true)
	v.SetDefault("modules.watch.aggregate.coverage_fraction", 0.10)
	v.SetDefault("modules.watch.aggregate.positive_label", "surplus signal (short)")
	v.SetDefault("modules.watch.aggregate.negative_label", "stress signal (long)")
	v.SetDefault("modules.watch.season.start_doy", 0)
	v.SetDefault("modules.watch.season.end_doy", 0)
	v.SetDefault("modules.sheets.url", "")
	v.SetDefault("modules.sheets.timeout", "10s")
	v.SetDefault("modules.sheets.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cropsight")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/cropsight")
	}

	// Environment variable support: CS_SERVER_PORT=9090
	v.SetEnvPrefix("CS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
