package config

import (
	"reflect"
	"strings"

	"contact-manager/core/database"
	"contact-manager/core/logger"
	"contact-manager/core/server"
	"contact-manager/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage (e.g., S3, Minio).
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
	// Sync holds configuration for external directory synchronization.
	Sync SyncConfig `mapstructure:"sync"`
	// Sharing holds configuration for per-recipient sharing.
	Sharing SharingConfig `mapstructure:"sharing"`
}

// SyncConfig configures the external directory reconciliation.
type SyncConfig struct {
	// ProtectionWindowSeconds is how long after a local edit inbound sync
	// writes are suppressed so the edit can be pushed out first.
	ProtectionWindowSeconds int `mapstructure:"protection_window_seconds" default:"120"`
	// SweepIntervalSeconds is the period of the reconciliation sweep that
	// re-pulls all shared records as a safety net for missed notifications.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" default:"300"`
	// Endpoints lists the connected directory profiles as comma-separated
	// name=baseURL pairs, e.g. "personal=https://dav.example.com/u1".
	Endpoints string `mapstructure:"endpoints" default:""`
	// Username authenticates against the directory endpoints.
	Username string `mapstructure:"username" default:""`
	// Token authenticates against the directory endpoints.
	Token string `mapstructure:"token" default:""`
	// Addressbook is the addressbook collection pushed to on each profile.
	Addressbook string `mapstructure:"addressbook" default:"my-contacts"`
	// TimeoutSeconds bounds each directory request.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}

// SharingConfig configures share fan-out and distribution lists.
type SharingConfig struct {
	// FanoutWorkers bounds the concurrency of share-with-many batches.
	FanoutWorkers int `mapstructure:"fanout_workers" default:"8"`
	// Lists defines distribution lists as "name:user1,user2;other:user3".
	// Lists are addressing aliases only and are never persisted on contacts.
	Lists string `mapstructure:"lists" default:""`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
