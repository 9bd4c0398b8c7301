package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/flagx"
)

// Flags lists the short flags this package understands.
var Flags = []string{"-a", "-f", "-l", "-i"}

// parseFlags populates selected Config fields from command-line flags.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the sync server")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	timeout := fs.Int("i", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(flagx.FilterArgs(args, Flags)); err != nil {
		return err
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	return nil
}
