package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/router"
	"github.com/hyperjump/kotae/pkg/utils"
)

// RejectedSuffix is appended to inbox files that failed ingestion.
const RejectedSuffix = ".rejected"

// Ingester accepts uploads on behalf of a user.
type Ingester interface {
	Ingest(ctx context.Context, up router.Upload) (models.Document, error)
}

// Inbox ingests files placed at <dir>/<user_id>/<file name>. Ingested files are
// removed; failed ones are renamed with RejectedSuffix and left in place.
type Inbox struct {
	watcher  *Watcher
	ingester Ingester
	logger   *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	inflight map[string]bool
}

// NewInbox returns an inbox rooted at dir.
func NewInbox(dir string, ingester Ingester, opts ...WatcherOption) *Inbox {
	in := &Inbox{ingester: ingester, ctx: context.Background(), inflight: make(map[string]bool)}
	in.watcher = NewWatcher(dir, in.accept, in.handle, opts...)
	in.logger = utils.OrNop(in.watcher.logger)
	return in
}

// Start watches the inbox and ingests files already waiting in it.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	in.ctx = ctx
	in.mu.Unlock()
	if err := in.watcher.Start(ctx); err != nil {
		return err
	}
	in.logger.Info("inbox watching", zap.String("dir", in.watcher.Root()))
	go in.watcher.SyncExistingFiles()
	return nil
}

// Stop stops watching.
func (in *Inbox) Stop() { in.watcher.Stop() }

// owner returns the user a file belongs to, or "" when the path is not <root>/<user>/<file>.
func (in *Inbox) owner(path string) string {
	rel, err := filepath.Rel(in.watcher.Root(), path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || parts[0] == ".." {
		return ""
	}
	return parts[0]
}

func (in *Inbox) accept(path string) bool {
	name := filepath.Base(path)
	switch {
	case strings.HasPrefix(name, "."), strings.HasPrefix(name, "~$"):
		return false
	case strings.HasSuffix(name, RejectedSuffix):
		return false
	}
	return in.owner(path) != ""
}

func (in *Inbox) handle(path string) {
	user := in.owner(path)
	if user == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	in.mu.Lock()
	if in.inflight[path] {
		in.mu.Unlock()
		return
	}
	in.inflight[path] = true
	ctx := in.ctx
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		delete(in.inflight, path)
		in.mu.Unlock()
	}()

	log := in.logger.With(zap.String("user_id", user), zap.String("path", path))
	doc, err := in.ingester.Ingest(ctx, router.Upload{
		UserID:   user,
		FileName: filepath.Base(path),
		Path:     path,
	})
	if err != nil {
		log.Warn("inbox file rejected", zap.String("reason", router.IngestNotice(doc, err)), zap.Error(err))
		if rnErr := os.Rename(path, path+RejectedSuffix); rnErr != nil {
			log.Error("failed to mark rejected file", zap.Error(rnErr))
		}
		return
	}
	log.Info("inbox file ingested", zap.String("document_id", doc.ID))
	if err := os.Remove(path); err != nil {
		log.Warn("failed to remove ingested file", zap.Error(err))
	}
}
