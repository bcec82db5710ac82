package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/wichigo/Motium-sub012/internal/flagx"
	"github.com/wichigo/Motium-sub012/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DBPath              string         `json:"db_path"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	BatchSize           int            `json:"batch_size"`
	BackoffBase         timex.Duration `json:"backoff_base"`
	BackoffCeiling      timex.Duration `json:"backoff_ceiling"`
	MaxRetries          int            `json:"max_retries"`
	LogFile             string         `json:"log_file"`
	LogLevel            string         `json:"log_level"`

	DeadLetter struct {
		Bucket    string `json:"bucket"`
		Prefix    string `json:"prefix"`
		Region    string `json:"region"`
		Endpoint  string `json:"endpoint"`
		AccessKey string `json:"access_key"`
		SecretKey string `json:"secret_key"`
	} `json:"dead_letter"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies the fields present in the file into the provided Config;
//     absent or zero fields keep their previous value.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.DBPath, jc.DBPath)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setInt(&cfg.BatchSize, jc.BatchSize)
	setDuration(&cfg.BackoffBase, jc.BackoffBase)
	setDuration(&cfg.BackoffCeiling, jc.BackoffCeiling)
	setInt(&cfg.MaxRetries, jc.MaxRetries)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)

	setString(&cfg.DeadLetter.Bucket, jc.DeadLetter.Bucket)
	setString(&cfg.DeadLetter.Prefix, jc.DeadLetter.Prefix)
	setString(&cfg.DeadLetter.Region, jc.DeadLetter.Region)
	setString(&cfg.DeadLetter.Endpoint, jc.DeadLetter.Endpoint)
	setString(&cfg.DeadLetter.AccessKey, jc.DeadLetter.AccessKey)
	setString(&cfg.DeadLetter.SecretKey, jc.DeadLetter.SecretKey)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
