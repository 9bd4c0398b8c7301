// Package config loads runtime configuration for the journalsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c / -config, or the
//     JOURNALSYNC_CLIENT_CONFIG environment variable.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync server
//	-f string   path of the local SQLite database
//	-l string   log file (empty logs to stderr)
//	-i int      per-request timeout (seconds)
//
// # JSON schema
//
// Durations accept strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "database_path": "journalsync.db",
//	  "log_file": "",
//	  "log_level": "info",
//	  "request_timeout": "30s"
//	}
package config
