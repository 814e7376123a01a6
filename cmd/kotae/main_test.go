package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/registry"
	"github.com/hyperjump/kotae/internal/router"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/testutil"
	"github.com/hyperjump/kotae/internal/vector"
)

type quoteAnswerer struct{}

func (quoteAnswerer) Answer(_ context.Context, _ string, passages []string) (string, error) {
	return "The document says: " + strings.Join(passages, " "), nil
}

func newTestRouter(t *testing.T) *router.Router {
	t.Helper()
	embedder := embedding.NewMockEmbedder(64)
	store, err := vector.NewMemoryStore(embedder.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	tok, err := indexer.NewCL100KTokenizer()
	if err != nil {
		t.Fatal(err)
	}
	chunker, err := indexer.NewChunker(tok, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	uploads, err := storage.NewUploadStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New()
	rt, err := router.New(router.Deps{
		Extractor: extract.NewExtractor(),
		Chunker:   chunker,
		Index:     indexer.NewIndexer(store, embedder),
		Registry:  reg,
		Sessions:  session.NewManager(reg),
		Answerer:  quoteAnswerer{},
		Uploads:   uploads,
	})
	if err != nil {
		t.Fatal(err)
	}
	return rt
}

func writePDF(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, testutil.PDF(lines...), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildQuestion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"capital"}, "capital"},
		{"multiple words", []string{"what", "is", "the", "capital?"}, "what is the capital?"},
		{"quoted phrase", []string{"what is the capital?"}, "what is the capital?"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuestion(tt.args); got != tt.expected {
				t.Errorf("buildQuestion(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseChatLine(t *testing.T) {
	tests := []struct {
		line, command, arg string
	}{
		{"What is this?", "", "What is this?"},
		{"  /docs  ", "docs", ""},
		{"/select 2", "select", "2"},
		{"/Upload  my file.pdf ", "upload", "my file.pdf"},
		{"", "", ""},
	}
	for _, tt := range tests {
		command, arg := parseChatLine(tt.line)
		if command != tt.command || arg != tt.arg {
			t.Errorf("parseChatLine(%q) = %q, %q", tt.line, command, arg)
		}
	}
}

func TestLoadConfig_prefersWorkingDirectoryConfig(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	yaml := "embedding:\n  provider: mock\nretrieval:\n  top_k: 5\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, path, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "config.yaml" || filepath.Dir(path) == filepath.Dir(defaultConfigPath) {
		t.Errorf("resolved path: %q", path)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Embedding.Provider != "mock" {
		t.Errorf("config not loaded from working directory: %+v", cfg.Retrieval)
	}
}

func TestLoadConfig_missingFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.ChunkSize != 500 || cfg.Chunking.OverlapOrDefault() != 50 {
		t.Errorf("defaults: %+v", cfg.Chunking)
	}
}

func TestLoadConfig_invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("chunking:\n  chunk_size: 10\n  chunk_overlap: 10\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadConfig(path); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestInitializeComponents_missingChatKey(t *testing.T) {
	t.Setenv("KOTAE_TEST_MISSING_KEY", "")
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.Provider = "mock"
	cfg.Vector.Store = "memory"
	cfg.Vector.Path = ""
	cfg.Chat.APIKeyEnv = "KOTAE_TEST_MISSING_KEY"
	cfg.Storage.UploadDir = t.TempDir()

	_, err := initializeComponents(context.Background(), cfg, nil)
	if !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestInitializeComponents_wiresRouter(t *testing.T) {
	t.Setenv("KOTAE_TEST_CHAT_KEY", "sk-test")
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.Provider = "mock"
	cfg.Vector.Store = "sqlite"
	cfg.Vector.Path = filepath.Join(t.TempDir(), "vectors.db")
	cfg.Chat.APIKeyEnv = "KOTAE_TEST_CHAT_KEY"
	cfg.Storage.UploadDir = t.TempDir()

	c, err := initializeComponents(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Router == nil || c.Store.Size() != 0 {
		t.Errorf("components: %+v", c)
	}
	if got := c.Router.State("u1"); got != models.StateNoDocuments {
		t.Errorf("state: %q", got)
	}
}

func TestAPIClient_conversation(t *testing.T) {
	ts := httptest.NewServer(server.NewServer(newTestRouter(t), &config.ServerConfig{MaxUploadMB: 5}, nil).Handler())
	defer ts.Close()
	client := newAPIClient(ts.URL + "/")
	ctx := context.Background()

	up, err := client.Upload(ctx, "u1", writePDF(t, "france.pdf", "The capital of France is Paris."), "")
	if err != nil {
		t.Fatal(err)
	}
	if up.Document.Name != "france.pdf" {
		t.Errorf("upload: %+v", up)
	}

	out, err := client.Ask(ctx, "u1", "capital?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != models.OutcomePromptSelection {
		t.Fatalf("ask before select: %+v", out)
	}

	docs, err := client.Documents(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	doc, ok := cli.ResolveDocument(docs, "1")
	if !ok {
		t.Fatalf("documents: %+v", docs)
	}
	st, err := client.Select(ctx, "u1", doc.ID)
	if err != nil || st.State != models.StateInChat {
		t.Fatalf("select: %+v %v", st, err)
	}

	out, err = client.Ask(ctx, "u1", "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != models.OutcomeAnswer || !strings.Contains(out.Message, "Paris") {
		t.Errorf("answer: %+v", out)
	}

	if st, err = client.Finish(ctx, "u1"); err != nil || st.State != models.StateDocumentSelectable {
		t.Errorf("finish: %+v %v", st, err)
	}
	status, err := client.Status(ctx)
	if err != nil || status.Documents != 1 {
		t.Errorf("status: %+v %v", status, err)
	}
}

func TestAPIClient_errors(t *testing.T) {
	ts := httptest.NewServer(server.NewServer(newTestRouter(t), &config.ServerConfig{MaxUploadMB: 5}, nil).Handler())
	defer ts.Close()
	client := newAPIClient(ts.URL)

	png := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(png, []byte("\x89PNG"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := client.Upload(context.Background(), "u1", png, "")
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "Unsupported file type") {
		t.Errorf("message: %q", apiErr.Message)
	}

	_, err = client.Select(context.Background(), "u1", "missing")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestChatSession(t *testing.T) {
	var out bytes.Buffer
	s := &chatSession{router: newTestRouter(t), user: "local", out: &out}
	path := writePDF(t, "france.pdf", "The capital of France is Paris.")
	input := strings.Join([]string{
		"hello?",
		"/upload " + path,
		"/docs",
		"/select 1",
		"/state",
		"What is the capital of France?",
		"/finish",
		"/bogus",
		"/quit",
		"never read",
	}, "\n")

	if err := s.run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{
		"You have no documents yet",
		"processed successfully",
		"1. france.pdf",
		"Now chatting about \"france.pdf\"",
		string(models.StateInChat),
		"Paris",
		"Chat finished",
		"unknown command /bogus",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "kotae version dev\n" {
		t.Errorf("version output: %q", out.String())
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
