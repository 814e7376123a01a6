package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/router"
)

const chatHelp = `Commands:
  /upload <path>    add a PDF, DOC or DOCX file
  /docs             list your documents
  /select <ref>     chat about a document (id, number or name)
  /finish           stop chatting about the current document
  /state            show the conversation state
  /help             show this help
  /quit             exit
Anything else is sent as a question.`

func newChatCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [file]...",
		Short: "Chat with your documents in the terminal, without a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			components, err := initializeComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = components.Close() }()

			s := &chatSession{router: components.Router, user: opts.user, out: cmd.OutOrStdout()}
			for _, path := range args {
				s.upload(cmd.Context(), path)
			}
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// parseChatLine splits "/cmd arg" input. Plain text returns an empty command.
func parseChatLine(line string) (command, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	command, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(command), strings.TrimSpace(arg)
}

type chatSession struct {
	router *router.Router
	user   string
	out    io.Writer
}

func (s *chatSession) println(a ...any) { fmt.Fprintln(s.out, a...) }

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	s.println(router.Notice(s.promptFor(ctx)))
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			s.println()
			return scanner.Err()
		}
		if !s.handle(ctx, scanner.Text()) {
			return nil
		}
	}
}

// promptFor returns the prompt a newcomer sees: upload or choose a document.
func (s *chatSession) promptFor(ctx context.Context) models.Outcome {
	if s.router.State(s.user) == models.StateInChat {
		return models.Outcome{Kind: models.OutcomeAnswer, Text: chatHelp}
	}
	return s.router.Ask(ctx, s.user, "")
}

// handle processes one input line and reports whether the session continues.
func (s *chatSession) handle(ctx context.Context, line string) bool {
	command, arg := parseChatLine(line)
	switch command {
	case "":
		if arg == "" {
			return true
		}
		s.println(router.Notice(s.router.Ask(ctx, s.user, arg)))
	case "upload":
		if arg == "" {
			s.println("usage: /upload <path>")
			return true
		}
		s.upload(ctx, arg)
	case "docs":
		s.println(cli.FormatDocuments(s.router.Documents(s.user), s.router.Session(s.user).ActiveDocumentID))
	case "select":
		doc, ok := cli.ResolveDocument(s.router.Documents(s.user), arg)
		if !ok {
			s.println(router.SelectNotice(doc, models.ErrNotFound))
			return true
		}
		_, err := s.router.Select(ctx, s.user, doc.ID)
		s.println(router.SelectNotice(doc, err))
	case "finish":
		s.router.Finish(ctx, s.user)
		s.println(router.FinishNotice())
	case "state":
		s.println(string(s.router.State(s.user)))
	case "help":
		s.println(chatHelp)
	case "quit", "exit":
		return false
	default:
		s.println("unknown command /" + command + "; try /help")
	}
	return true
}

func (s *chatSession) upload(ctx context.Context, path string) {
	s.println("📄 Processing your document...")
	doc, err := s.router.Ingest(ctx, router.Upload{
		UserID:   s.user,
		FileName: filepath.Base(path),
		Path:     path,
	})
	s.println(router.IngestNotice(doc, err))
}
