package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ashare/eventstore"
)

func newChatCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Manage the conversation event store",
		Long: `Export, import, search and wipe the conversation store (config chat_db).

Examples:
  ashare chat export c1 -o c1.json
  ashare chat import c1.json
  ashare chat search 半导体
  ashare chat cleanup --mode events_only`,
	}
	cmd.AddCommand(
		newChatExportCmd(rc),
		newChatImportCmd(rc),
		newChatCleanupCmd(rc),
		newChatSearchCmd(rc),
	)
	return cmd
}

// withStore opens the store for the duration of fn.
func withStore(rc *RootConfig, fn func(s *eventstore.Store) error) error {
	s, err := rc.store()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newChatExportCmd(rc *RootConfig) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Write a conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rc, func(s *eventstore.Store) error {
				x, err := s.Export(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(x)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newChatImportCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a conversation exported by chat export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var x eventstore.Export
			if err := json.NewDecoder(r).Decode(&x); err != nil {
				return fmt.Errorf("decode export: %w", err)
			}
			return withStore(rc, func(s *eventstore.Store) error {
				if err := s.Import(cmd.Context(), &x); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d events)\n", x.Conversation.ID, len(x.Events))
				return nil
			})
		},
	}
}

func newChatCleanupCmd(rc *RootConfig) *cobra.Command {
	var (
		mode string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Wipe the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("cleanup deletes data; pass --yes to confirm")
			}
			return withStore(rc, func(s *eventstore.Store) error {
				if err := s.Cleanup(cmd.Context(), mode); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleanup %s done\n", mode)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", eventstore.CleanupAll, "Cleanup mode: all|events_only")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the cleanup")
	return cmd
}

func newChatSearchCmd(rc *RootConfig) *cobra.Command {
	var (
		conv  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over message content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rc, func(s *eventstore.Store) error {
				if !s.FTS() {
					rc.Log.Warn("full-text search unavailable; build with -tags sqlite_fts5")
				}
				hits, err := s.Search(cmd.Context(), args[0], conv, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, h := range hits {
					fmt.Fprintf(out, "%s\t%s\t%d\n", h.ConversationID, h.MessageID, h.Seq)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&conv, "conversation", "", "Restrict to one conversation")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum hits")
	return cmd
}
