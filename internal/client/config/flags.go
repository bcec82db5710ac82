package config

import (
	"flag"
	"os"
	"time"

	"github.com/wichigo/Motium-sub012/internal/flagx"
)

// ValueFlags lists every flag that takes a value, so callers can tell flag
// values apart from positional commands.
var ValueFlags = []string{"-a", "-d", "-s", "-i", "-t", "-b", "-r", "-l", "-log-level", "-dl-bucket", "-c", "-config"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string      address and port of the sync server
//	-d string      path of the local SQLite database
//	-s duration    background sync interval
//	-i int         online check interval in seconds
//	-t duration    per-request timeout
//	-b int         push batch size
//	-r int         retries before an operation is reported as failed
//	-l string      log file (rotated); empty logs to stderr
//	-log-level     debug, info, warn or error
//	-dl-bucket     S3 bucket for exported failed operations
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-i", "-t", "-b", "-r", "-l", "-log-level", "-dl-bucket"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "local database path")
	fs.DurationVar(&cfg.SyncInterval, "s", cfg.SyncInterval, "background sync interval")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")
	fs.IntVar(&cfg.BatchSize, "b", cfg.BatchSize, "push batch size")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "max retries per operation")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.DeadLetter.Bucket, "dl-bucket", cfg.DeadLetter.Bucket, "dead-letter S3 bucket")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
