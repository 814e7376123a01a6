package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/registry"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/testutil"
	"github.com/hyperjump/kotae/internal/vector"
)

type countingEmbedder struct {
	*embedding.MockEmbedder
	calls atomic.Int32
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.MockEmbedder.Embed(ctx, text)
}

// echoAnswerer answers with the passages it was given.
type echoAnswerer struct {
	err error
}

func (e echoAnswerer) Answer(_ context.Context, _ string, passages []string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return "Based on the document: " + strings.Join(passages, " "), nil
}

type harness struct {
	router   *Router
	store    *vector.MemoryStore
	embedder *countingEmbedder
	registry *registry.Registry
	sessions *session.Manager
	uploads  *storage.UploadStore
	tmp      string
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	tmp := t.TempDir()
	emb := &countingEmbedder{MockEmbedder: embedding.NewMockEmbedder(256)}
	store, err := vector.NewMemoryStore(emb.Dimensions())
	require.NoError(t, err)
	tok, err := indexer.NewCL100KTokenizer()
	require.NoError(t, err)
	chunker, err := indexer.NewChunker(tok, 500, 50)
	require.NoError(t, err)
	uploads, err := storage.NewUploadStore(filepath.Join(tmp, "uploads"))
	require.NoError(t, err)
	reg := registry.New()
	sessions := session.NewManager(reg)

	deps := Deps{
		Extractor: extract.NewExtractor(),
		Chunker:   chunker,
		Index:     indexer.NewIndexer(store, emb),
		Registry:  reg,
		Sessions:  sessions,
		Answerer:  echoAnswerer{},
		Uploads:   uploads,
	}
	for _, o := range opts {
		o(&deps)
	}
	var n atomic.Int32
	r, err := New(deps, WithIDGenerator(func() string {
		return fmt.Sprintf("doc-%d", n.Add(1))
	}))
	require.NoError(t, err)
	return &harness{router: r, store: store, embedder: emb, registry: reg, sessions: sessions, uploads: uploads, tmp: tmp}
}

func (h *harness) writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(h.tmp, name)
	require.NoError(t, os.WriteFile(p, content, 0o600))
	return p
}

func (h *harness) ingestPDF(t *testing.T, user, name string, lines ...string) models.Document {
	t.Helper()
	path := h.writeFile(t, name, testutil.PDF(lines...))
	doc, err := h.router.Ingest(context.Background(), Upload{UserID: user, FileName: name, MIMEType: extract.MIMEPDF, Path: path})
	require.NoError(t, err)
	return doc
}

func TestNew_missingDependency(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestRouter_endToEndPDF(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, models.StateNoDocuments, h.router.State("u1"))
	out := h.router.Ask(ctx, "u1", "anything?")
	assert.Equal(t, models.OutcomePromptUpload, out.Kind)

	doc := h.ingestPDF(t, "u1", "france.pdf", "The capital of France is Paris.")
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "france.pdf", doc.Name)
	assert.Equal(t, "u1", doc.OwnerID)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Equal(t, 1, h.store.Size())
	assert.Equal(t, models.StateDocumentSelectable, h.router.State("u1"))

	out = h.router.Ask(ctx, "u1", "What is the capital of France?")
	assert.Equal(t, models.OutcomePromptSelection, out.Kind)
	require.Len(t, out.Documents, 1)
	assert.Equal(t, doc.ID, out.Documents[0].ID)

	state, err := h.router.Select(ctx, "u1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateInChat, state)

	out = h.router.Ask(ctx, "u1", "What is the capital of France?")
	require.Equal(t, models.OutcomeAnswer, out.Kind, out.ErrorMessage())
	assert.Contains(t, out.Text, "Paris")
	assert.Equal(t, doc.ID, out.ActiveDocumentID)
	assert.Equal(t, models.StateInChat, out.State)

	assert.Equal(t, models.StateDocumentSelectable, h.router.Finish(ctx, "u1"))
	assert.Equal(t, models.OutcomePromptSelection, h.router.Ask(ctx, "u1", "Paris?").Kind)

	st := h.router.Status()
	assert.Equal(t, 1, st.Documents)
	assert.Equal(t, 1, st.Vectors)
	assert.Equal(t, 1, st.Sessions)
	assert.Positive(t, st.UploadBytes)
}

func TestRouter_unsupportedUploadHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	path := h.writeFile(t, "photo.png", []byte("\x89PNG\r\n\x1a\n"))

	_, err := h.router.Ingest(context.Background(), Upload{UserID: "u1", FileName: "photo.png", MIMEType: "image/png", Path: path})
	require.ErrorIs(t, err, models.ErrUnsupportedFormat)

	assert.Zero(t, h.embedder.calls.Load())
	assert.Zero(t, h.store.Size())
	assert.Zero(t, h.registry.Count())
	used, err := h.uploads.UsageBytes()
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Equal(t, models.StateNoDocuments, h.router.State("u1"))
}

func TestRouter_mimeGuessedFromFileName(t *testing.T) {
	h := newHarness(t)
	path := h.writeFile(t, "notes.docx", testutil.DOCX(testutil.Paragraph("Rivers flow to the sea.")))

	doc, err := h.router.Ingest(context.Background(), Upload{UserID: "u1", FileName: "notes.docx", Path: path})
	require.NoError(t, err)
	assert.Equal(t, extract.MIMEDOCX, doc.MIMEType)

	_, err = h.router.Ingest(context.Background(), Upload{UserID: "u1", FileName: "notes.txt", Path: path})
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
}

func TestRouter_emptyDocumentIsExtractionError(t *testing.T) {
	h := newHarness(t)
	path := h.writeFile(t, "blank.pdf", testutil.PDF())

	_, err := h.router.Ingest(context.Background(), Upload{UserID: "u1", FileName: "blank.pdf", MIMEType: extract.MIMEPDF, Path: path})
	require.ErrorIs(t, err, models.ErrExtraction)
	assert.Zero(t, h.registry.Count())
	assert.Zero(t, h.embedder.calls.Load())
	used, err := h.uploads.UsageBytes()
	require.NoError(t, err)
	assert.Zero(t, used)
}

type failingEmbedder struct {
	*embedding.MockEmbedder
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: quota exceeded", models.ErrEmbeddingService)
}

// rejectingStore accepts reads but fails every write.
type rejectingStore struct {
	*vector.MemoryStore
}

func (rejectingStore) Add(context.Context, []vector.Record) error {
	return errors.New("disk full")
}

func TestRouter_embeddingFailureAbortsIngest(t *testing.T) {
	emb := failingEmbedder{MockEmbedder: embedding.NewMockEmbedder(256)}
	store, err := vector.NewMemoryStore(emb.Dimensions())
	require.NoError(t, err)
	h := newHarness(t, func(d *Deps) { d.Index = indexer.NewIndexer(store, emb) })
	path := h.writeFile(t, "france.pdf", testutil.PDF("The capital of France is Paris."))

	_, err = h.router.Ingest(context.Background(), Upload{UserID: "u1", FileName: "france.pdf", MIMEType: extract.MIMEPDF, Path: path})
	require.ErrorIs(t, err, models.ErrEmbeddingService)

	assert.Zero(t, store.Size())
	assert.Zero(t, h.registry.Count())
	used, err := h.uploads.UsageBytes()
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Equal(t, models.StateNoDocuments, h.router.State("u1"))
}

func TestRouter_indexWriteFailureKeepsEmptyDocument(t *testing.T) {
	mem, err := vector.NewMemoryStore(256)
	require.NoError(t, err)
	store := rejectingStore{MemoryStore: mem}
	h := newHarness(t, func(d *Deps) {
		d.Index = indexer.NewIndexer(store, embedding.NewMockEmbedder(256))
	})
	ctx := context.Background()
	path := h.writeFile(t, "france.pdf", testutil.PDF("The capital of France is Paris."))

	doc, err := h.router.Ingest(ctx, Upload{UserID: "u1", FileName: "france.pdf", MIMEType: extract.MIMEPDF, Path: path})
	require.ErrorIs(t, err, ErrNotIndexed)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Contains(t, IngestNotice(doc, err), "france.pdf")
	assert.Contains(t, IngestNotice(doc, err), "could not be indexed")

	assert.Zero(t, mem.Size())
	assert.Equal(t, 1, h.registry.Count())
	used, err := h.uploads.UsageBytes()
	require.NoError(t, err)
	assert.Positive(t, used)

	_, err = h.router.Select(ctx, "u1", doc.ID)
	require.NoError(t, err)
	out := h.router.Ask(ctx, "u1", "What is the capital of France?")
	assert.Equal(t, models.OutcomeNoMatch, out.Kind)
}

func TestRouter_uploadDoesNotChangeSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.ingestPDF(t, "u1", "a.pdf", "Alpha text.")
	_, err := h.router.Select(ctx, "u1", first.ID)
	require.NoError(t, err)

	h.ingestPDF(t, "u1", "b.pdf", "Beta text.")
	assert.Equal(t, models.StateInChat, h.router.State("u1"))
	assert.Equal(t, first.ID, h.router.Session("u1").ActiveDocumentID)
	assert.Len(t, h.router.Documents("u1"), 2)
}

func TestRouter_selectRejectsForeignAndUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingestPDF(t, "alice", "secret.pdf", "Alice's secret is 42.")
	h.ingestPDF(t, "bob", "bob.pdf", "Bob's notes.")

	state, err := h.router.Select(ctx, "bob", doc.ID)
	assert.ErrorIs(t, err, models.ErrNotOwner)
	assert.Equal(t, models.StateDocumentSelectable, state)

	_, err = h.router.Select(ctx, "bob", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, h.router.Session("bob").InChat)
}

func TestRouter_retrievalIsScopedToActiveDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ingestPDF(t, "u1", "france.pdf", "The capital of France is Paris.")
	bananas := h.ingestPDF(t, "u1", "bananas.pdf", "Bananas grow in tropical climates.")
	h.ingestPDF(t, "u2", "other.pdf", "The capital of France is Paris, said user two.")

	_, err := h.router.Select(ctx, "u1", bananas.ID)
	require.NoError(t, err)
	out := h.router.Ask(ctx, "u1", "What is the capital of France?")
	require.Equal(t, models.OutcomeAnswer, out.Kind)
	assert.NotContains(t, out.Text, "Paris")
	assert.Contains(t, out.Text, "Bananas")
}

func TestRouter_finishOutsideChatIsNoop(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, models.StateNoDocuments, h.router.Finish(context.Background(), "u1"))
	h.ingestPDF(t, "u1", "a.pdf", "Alpha.")
	assert.Equal(t, models.StateDocumentSelectable, h.router.Finish(context.Background(), "u1"))
}

type stubIndex struct {
	passages []string
	err      error
}

func (s stubIndex) Prepare(context.Context, []string, string, string) (*indexer.Batch, error) {
	return nil, errors.New("not used")
}

func (s stubIndex) Commit(context.Context, *indexer.Batch) ([]string, error) {
	return nil, errors.New("not used")
}

func (s stubIndex) Size() int { return len(s.passages) }

func (s stubIndex) Query(context.Context, string, string, string, int) ([]string, error) {
	return s.passages, s.err
}

func chatting(t *testing.T, h *harness, user string) {
	t.Helper()
	h.registry.Register("d1", "doc.pdf", user)
	_, err := h.router.Select(context.Background(), user, "d1")
	require.NoError(t, err)
}

func TestRouter_noMatch(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Index = stubIndex{passages: []string{}} })
	chatting(t, h, "u1")

	out := h.router.Ask(context.Background(), "u1", "anything")
	assert.Equal(t, models.OutcomeNoMatch, out.Kind)
	assert.Equal(t, models.StateInChat, out.State)
}

func TestRouter_errorOutcomesKeepChat(t *testing.T) {
	cases := map[string]func(*Deps){
		"retrieval": func(d *Deps) {
			d.Index = stubIndex{err: fmt.Errorf("%w: timeout", models.ErrEmbeddingService)}
		},
		"generation": func(d *Deps) {
			d.Index = stubIndex{passages: []string{"p"}}
			d.Answerer = echoAnswerer{err: fmt.Errorf("%w: quota", models.ErrGeneration)}
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, setup)
			chatting(t, h, "u1")

			out := h.router.Ask(context.Background(), "u1", "q")
			assert.Equal(t, models.OutcomeError, out.Kind)
			assert.NotEmpty(t, out.ErrorMessage())
			assert.Equal(t, models.StateInChat, h.router.State("u1"))
		})
	}
}

// forgetfulLookup knows documents the registry does not.
type forgetfulLookup struct {
	mu   sync.Mutex
	docs map[string]models.Document
}

func (f *forgetfulLookup) Get(id string) (models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return models.Document{}, models.ErrNotFound
	}
	return d, nil
}

func TestRouter_staleActiveDocumentPromptsSelection(t *testing.T) {
	lookup := &forgetfulLookup{docs: map[string]models.Document{
		"ghost": {ID: "ghost", OwnerID: "u1"},
	}}
	h := newHarness(t, func(d *Deps) { d.Sessions = session.NewManager(lookup) })
	h.ingestPDF(t, "u1", "real.pdf", "Real content.")
	_, err := h.router.Select(context.Background(), "u1", "ghost")
	require.NoError(t, err)

	out := h.router.Ask(context.Background(), "u1", "q")
	assert.Equal(t, models.OutcomePromptSelection, out.Kind)
	assert.Len(t, out.Documents, 1)
	assert.False(t, h.router.Session("u1").InChat)
}

func TestRouter_concurrentUploadsPerUser(t *testing.T) {
	h := newHarness(t)
	paths := make([]string, 8)
	for i := range paths {
		paths[i] = h.writeFile(t, fmt.Sprintf("f%d.pdf", i), testutil.PDF(fmt.Sprintf("Document number %d.", i)))
	}
	var wg sync.WaitGroup
	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			name := filepath.Base(path)
			_, err := h.router.Ingest(context.Background(), Upload{UserID: "u1", FileName: name, MIMEType: extract.MIMEPDF, Path: path})
			assert.NoError(t, err)
		}(path)
	}
	wg.Wait()
	assert.Len(t, h.router.Documents("u1"), 8)
	assert.Equal(t, 8, h.store.Size())
}

func TestNotice(t *testing.T) {
	assert.Contains(t, Notice(models.Outcome{Kind: models.OutcomePromptUpload}), "PDF or Word")
	sel := Notice(models.Outcome{Kind: models.OutcomePromptSelection, Documents: []models.Document{{Name: "a.pdf"}, {Name: "b.docx"}}})
	assert.Contains(t, sel, "1. a.pdf")
	assert.Contains(t, sel, "2. b.docx")
	assert.Equal(t, "Paris.", Notice(models.Outcome{Kind: models.OutcomeAnswer, Text: "Paris."}))
	assert.Contains(t, Notice(models.Outcome{Kind: models.OutcomeNoMatch}), "No relevant information")
	assert.Contains(t, Notice(models.Outcome{Kind: models.OutcomeError, Err: errors.New("boom")}), "boom")

	assert.Contains(t, IngestNotice(models.Document{Name: "a.pdf"}, nil), "a.pdf")
	assert.Contains(t, IngestNotice(models.Document{}, models.ErrUnsupportedFormat), "Unsupported file type")
	assert.Contains(t, IngestNotice(models.Document{}, models.ErrExtraction), "Error processing document")
	assert.Contains(t, SelectNotice(models.Document{}, models.ErrNotOwner), "not available")
}
