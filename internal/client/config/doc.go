// Package config loads runtime configuration for the motium-sync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "db_path": "state/motium.db",
//	  "sync_interval": "30m",
//	  "online_check_interval": "3s",
//	  "request_timeout": "30s",
//	  "batch_size": 50,
//	  "backoff_base": "2s",
//	  "backoff_ceiling": "5m",
//	  "max_retries": 5,
//	  "log_file": "state/motium.log",
//	  "log_level": "info",
//	  "dead_letter": {
//	    "bucket": "motium-dead-letter",
//	    "prefix": "motium/dead-letter",
//	    "region": "us-east-1",
//	    "endpoint": "http://127.0.0.1:9000",
//	    "access_key": "minioadmin",
//	    "secret_key": "minioadmin"
//	  }
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values. The AWS SDK still falls back to its
// own environment lookup when no dead-letter keys are given.
package config
