package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"goldpipe/internal/common"
	"goldpipe/internal/secrets"
	"goldpipe/pkg/models"
)

// Environment variable names and their defaults. Defaults align with the
// docker-compose stack this tool is shipped alongside.
var envBindings = map[string]struct {
	env string
	def interface{}
}{
	"warehouse.host":           {"PG_HOST", "localhost"},
	"warehouse.port":           {"PG_PORT", 5432},
	"warehouse.user":           {"PG_USER", "reader"},
	"warehouse.password":       {"PG_PASSWORD", "reader_pw"},
	"warehouse.database":       {"PG_DB", "yelp_gold"},
	"warehouse.schema":         {"PG_SCHEMA", "yelp_gold"},
	"warehouse.use_docker":     {"PG_DOCKER", false},
	"warehouse.container":      {"PG_CONTAINER", "yelp_pg"},
	"gold.dir":                 {"GOLD_DIR", "data/gold"},
	"gold.silver_dir":          {"SILVER_DIR", "data/silver"},
	"metabase.base_url":        {"MB_BASE", "http://localhost:3000"},
	"metabase.email":           {"MB_EMAIL", "admin@yelp.local"},
	"metabase.password":        {"MB_PASS", "Metabase!2025"},
	"metabase.datasource_name": {"MB_DS_NAME", "yelp_gold"},
	"metabase.site_name":       {"MB_SITE_NAME", "Yelp BI"},
	"metabase.export_dir":      {"MB_EXPORT_DIR", "metabase_export"},
	"metabase.service":         {"MB_SERVICE", "metabase"},
	"metabase.pg_service":      {"PG_SERVICE", "postgres"},
	"metabase.retry_max":       {"MB_RETRY_MAX", 0},
	"sync.max_rows_per_insert": {"SYNC_BATCH_SIZE", 10000},
	"export.out_dir":           {"EXPORT_OUTDIR", "exports"},
}

// GetConfigPath returns the directory holding the config file.
func GetConfigPath() string {
	if configPath := os.Getenv("GOLDPIPE_CONFIG"); configPath != "" {
		return filepath.Dir(configPath)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".goldpipe")
}

// GetConfigFile returns the config file path.
func GetConfigFile() string {
	if configFile := os.Getenv("GOLDPIPE_CONFIG"); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Load builds the configuration once at startup. Precedence: environment
// variables, then the YAML config file, then documented defaults. Passwords
// left at their defaults are additionally looked up in the secret store so
// a 'goldpipe setup' run can keep them out of the environment and the file.
func Load() (*models.Config, error) {
	v := viper.New()

	for key, binding := range envBindings {
		v.SetDefault(key, binding.def)
		if err := v.BindEnv(key, binding.env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", binding.env, err)
		}
	}

	configFile := GetConfigFile()
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveSecrets(&cfg)

	return &cfg, nil
}

// resolveSecrets swaps default passwords for stored ones when available.
// An explicit env or file value always wins.
func resolveSecrets(cfg *models.Config) {
	store := secrets.NewStore(GetConfigPath())

	if cfg.Warehouse.Password == "" || cfg.Warehouse.Password == "reader_pw" {
		if pw, err := store.Get("warehouse_password"); err == nil && pw != "" {
			cfg.Warehouse.Password = pw
		}
	}
	if cfg.Metabase.Password == "" || cfg.Metabase.Password == "Metabase!2025" {
		if pw, err := store.Get("metabase_password"); err == nil && pw != "" {
			cfg.Metabase.Password = pw
		}
	}
}

// Save writes the configuration file.
func Save(config *models.Config) error {
	configPath := GetConfigPath()
	if err := os.MkdirAll(configPath, common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(GetConfigFile(), data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists reports whether a config file has been written.
func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}
