// Package storage keeps the original files users upload.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// UploadStore keeps original uploads under <dir>/<user_id>/<doc_id><ext>.
type UploadStore struct {
	dir string
}

// NewUploadStore creates dir if needed and returns a store rooted there.
func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &UploadStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *UploadStore) Dir() string { return s.dir }

func safeSegment(s string) (string, error) {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("invalid path segment %q", s)
	}
	return s, nil
}

// PathFor returns where the upload for (userID, docID) with the original fileName is stored.
func (s *UploadStore) PathFor(userID, docID, fileName string) (string, error) {
	user, err := safeSegment(userID)
	if err != nil {
		return "", err
	}
	doc, err := safeSegment(docID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, user, doc+strings.ToLower(filepath.Ext(fileName))), nil
}

// Save copies r into the store and returns the final path. The file appears atomically.
func (s *UploadStore) Save(userID, docID, fileName string, r io.Reader) (string, error) {
	dst, err := s.PathFor(userID, docID, fileName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), tempPattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("move upload: %w", err)
	}
	return dst, nil
}

// SaveFile copies the file at src into the store.
func (s *UploadStore) SaveFile(userID, docID, fileName, src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return s.Save(userID, docID, fileName, f)
}

const tempPattern = ".upload-*"

// UsageBytes returns the total size of stored uploads. Saves still in progress
// are not counted, and a missing root counts as empty.
func (s *UploadStore) UsageBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(tempPattern, d.Name()); ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure uploads: %w", err)
	}
	return total, nil
}
