package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/journalsync/internal/flagx"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

// JsonConfig is the on-disk shape of the server config. Durations accept
// both "1m" strings and integer nanoseconds. Absent fields keep the value
// already in Config.
type JsonConfig struct {
	HTTPAddr                    *string         `json:"http_addr"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	StorageBackend              *string         `json:"storage_backend"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	ShutdownTimeout             *timex.Duration `json:"shutdown_timeout"`
	S3RootUser                  *string         `json:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket"`
	S3Region                    *string         `json:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint"`
	LogLevel                    *string         `json:"log_level"`
}

// parseJson overlays the JSON file named by -c/-config (or ConfigEnvVar)
// onto config. No path means nothing to load.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args, ConfigEnvVar)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
