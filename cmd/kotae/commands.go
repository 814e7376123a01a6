package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
)

// buildQuestion joins the remaining arguments so multi-word questions work with or without quotes.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var mimeType string
	cmd := &cobra.Command{
		Use:   "ingest [flags] <file>...",
		Short: "Upload documents to a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			client := newAPIClient(opts.serverURL)
			var failed int
			for _, path := range args {
				res, err := client.Upload(cmd.Context(), opts.user, path, mimeType)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				if err := cli.Write(cmd.OutOrStdout(), format, res, res.Message); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime", "", "declared MIME type (default: guessed from the file name)")
	return cmd
}

func newDocumentsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs", "ls"},
		Short:   "List your documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			st, err := newAPIClient(opts.serverURL).State(cmd.Context(), opts.user)
			if err != nil {
				return err
			}
			return cli.Write(cmd.OutOrStdout(), format, st.Documents, cli.FormatDocuments(st.Documents, st.ActiveDocumentID))
		},
	}
}

func newSelectCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <document id | number | name>",
		Short: "Choose the document to chat about",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			client := newAPIClient(opts.serverURL)
			docs, err := client.Documents(cmd.Context(), opts.user)
			if err != nil {
				return err
			}
			ref := buildQuestion(args)
			doc, ok := cli.ResolveDocument(docs, ref)
			if !ok {
				return fmt.Errorf("no document matches %q", ref)
			}
			st, err := client.Select(cmd.Context(), opts.user, doc.ID)
			if err != nil {
				return err
			}
			return cli.Write(cmd.OutOrStdout(), format, st, st.Message)
		},
	}
}

func newFinishCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "finish",
		Short: "Stop chatting about the active document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			st, err := newAPIClient(opts.serverURL).Finish(cmd.Context(), opts.user)
			if err != nil {
				return err
			}
			return cli.Write(cmd.OutOrStdout(), format, st, st.Message)
		},
	}
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the active document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			question := buildQuestion(args)
			if question == "" {
				return errors.New("question is empty")
			}
			out, err := newAPIClient(opts.serverURL).Ask(cmd.Context(), opts.user, question)
			if err != nil {
				return err
			}
			return cli.Write(cmd.OutOrStdout(), format, out, out.Message)
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			st, err := newAPIClient(opts.serverURL).Status(cmd.Context())
			if err != nil {
				return err
			}
			return cli.Write(cmd.OutOrStdout(), format, st, cli.FormatStatus(st))
		},
	}
}
