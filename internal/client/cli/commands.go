package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the access token used for sync",
		Long: `Store the access token used for sync.

Without --token the token is read from the terminal (hidden) or from stdin.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string, a *App) error {
			if token == "" {
				var err error
				token, err = GetSecret(stdin(cmd), "Access token", cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			if err := a.Login(cmd.Context(), token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
			return nil
		}),
	}
	cmd.Flags().StringVar(&token, "token", "", "access token")
	return cmd
}

func newLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the access token; local data is kept",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string, a *App) error {
			if err := a.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		}),
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	var (
		entity string
		reset  bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push local changes and pull remote ones",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string, a *App) error {
			if reset {
				if err := a.ResetCheckpoints(cmd.Context()); err != nil {
					return err
				}
			}
			res, err := a.Sync(cmd.Context(), entity)
			if err != nil {
				return err
			}
			printSyncResult(cmd.OutOrStdout(), res)
			if !res.Success {
				return fmt.Errorf("sync finished with %d error(s)", len(res.Errors))
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "sync one entity type only (journals, content, media, associations)")
	cmd.Flags().BoolVar(&reset, "reset", false, "forget checkpoints and download everything again")
	return cmd
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local sync state",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string, a *App) error {
			st, err := a.Status(cmd.Context())
			if err != nil {
				return err
			}
			cps, err := a.Checkpoints(cmd.Context())
			if err != nil {
				return err
			}
			printSyncStatus(cmd.OutOrStdout(), st, cps)
			if !remote {
				return nil
			}
			rs, err := a.RemoteStatus(cmd.Context())
			if err != nil {
				return err
			}
			printRemoteStatus(cmd.OutOrStdout(), rs)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "also ask the server for record counts")
	return cmd
}

func newJournalCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Manage journals",
	}

	var title, description string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a journal",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string, a *App) error {
			j, err := a.AddJournal(cmd.Context(), title, description)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), j.ID)
			return nil
		}),
	}
	add.Flags().StringVarP(&title, "title", "t", "", "journal title")
	add.Flags().StringVarP(&description, "description", "d", "", "journal description")
	_ = add.MarkFlagRequired("title")

	var newTitle, newDescription string
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a journal's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, args []string, a *App) error {
			var t, d *string
			if cmd.Flags().Changed("title") {
				t = &newTitle
			}
			if cmd.Flags().Changed("description") {
				d = &newDescription
			}
			_, err := a.EditJournal(cmd.Context(), args[0], t, d)
			return err
		}),
	}
	edit.Flags().StringVarP(&newTitle, "title", "t", "", "new title")
	edit.Flags().StringVarP(&newDescription, "description", "d", "", "new description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List journals",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string, a *App) error {
			js, err := a.ListJournals(cmd.Context())
			if err != nil {
				return err
			}
			printJournals(cmd.OutOrStdout(), js)
			return nil
		}),
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a journal and its links",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, args []string, a *App) error {
			return a.DeleteJournal(cmd.Context(), args[0])
		}),
	}

	link := &cobra.Command{
		Use:   "link <journal-id> <content-id>",
		Short: "Attach a content item to a journal",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(cmd *cobra.Command, args []string, a *App) error {
			return a.Link(cmd.Context(), args[0], args[1])
		}),
	}

	unlink := &cobra.Command{
		Use:   "unlink <journal-id> <content-id>",
		Short: "Detach a content item from a journal",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(cmd *cobra.Command, args []string, a *App) error {
			return a.Unlink(cmd.Context(), args[0], args[1])
		}),
	}

	cmd.AddCommand(add, edit, list, del, link, unlink)
	return cmd
}

func newContentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Manage notes and other content items",
	}

	var typ, text, journalID string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a content item",
		Long: `Create a content item.

Without --text the body is read from stdin until an empty line.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string, a *App) error {
			body := text
			if body == "" {
				var err error
				body, err = GetMultiline(stdin(cmd), "Text", cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			c, err := a.AddContent(cmd.Context(), typ, body, journalID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return nil
		}),
	}
	add.Flags().StringVar(&typ, "type", "note", "content type")
	add.Flags().StringVar(&text, "text", "", "content body")
	add.Flags().StringVarP(&journalID, "journal", "j", "", "link the item to this journal")

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List content items",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string, a *App) error {
			cs, err := a.ListContent(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printContent(cmd.OutOrStdout(), cs)
			return nil
		}),
	}
	list.Flags().StringVarP(&filter, "journal", "j", "", "only items linked to this journal")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a content item and its links",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(cmd *cobra.Command, args []string, a *App) error {
			return a.DeleteContent(cmd.Context(), args[0])
		}),
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func newMediaCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Attach and fetch binary media",
	}

	attach := &cobra.Command{
		Use:   "attach <content-id> <file>",
		Short: "Attach a file to a content item",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(cmd *cobra.Command, args []string, a *App) error {
			m, err := a.AttachMedia(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return nil
		}),
	}

	fetch := &cobra.Command{
		Use:   "fetch <media-id> <out-file>",
		Short: "Write a media file, downloading it if needed",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(cmd *cobra.Command, args []string, a *App) error {
			m, err := a.FetchMedia(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d bytes)\n", args[1], m.MimeType, len(m.Data))
			return nil
		}),
	}

	cmd.AddCommand(attach, fetch)
	return cmd
}
