package cli

import (
	"bufio"
	"context"
	"strconv"

	"github.com/dmitrijs2005/journalsync/internal/client/config"
	"github.com/spf13/cobra"
)

// RootOptions holds the global flags. They mirror the config package flags
// and override the JSON config file.
type RootOptions struct {
	ServerURL    string
	DatabasePath string
	LogFile      string
	Timeout      int
	ConfigPath   string
}

// openApp is a seam for tests.
var openApp = NewApp

// configArgs turns the flags the user actually set back into the argument
// form config.LoadConfig layers over defaults and JSON.
func (o *RootOptions) configArgs(cmd *cobra.Command) []string {
	var args []string
	set := func(name, short, value string) {
		if cmd.Flags().Changed(name) {
			args = append(args, short, value)
		}
	}
	set("config", "-c", o.ConfigPath)
	set("server", "-a", o.ServerURL)
	set("db", "-f", o.DatabasePath)
	set("log-file", "-l", o.LogFile)
	set("timeout", "-i", strconv.Itoa(o.Timeout))
	return args
}

// run opens the local app for one command and closes it afterwards.
func (o *RootOptions) run(fn func(cmd *cobra.Command, args []string, a *App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(o.configArgs(cmd))
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// NewRootCommand creates the journalsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "journalsync",
		Short:         "Offline-first journal client",
		Long:          "Keep journals, notes and attachments in a local database and sync them with a journalsync server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "path to JSON config file")
	f.StringVarP(&opts.ServerURL, "server", "a", "", "base URL of the sync server")
	f.StringVarP(&opts.DatabasePath, "db", "f", "", "local database path")
	f.StringVarP(&opts.LogFile, "log-file", "l", "", "log file (rotated)")
	f.IntVarP(&opts.Timeout, "timeout", "i", 0, "request timeout in seconds")

	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newJournalCommand(opts))
	cmd.AddCommand(newContentCommand(opts))
	cmd.AddCommand(newMediaCommand(opts))

	return cmd
}

// Execute runs the CLI with args.
func Execute(ctx context.Context, args []string) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func stdin(cmd *cobra.Command) *bufio.Reader {
	return bufio.NewReader(cmd.InOrStdin())
}
