package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// MemoryStore is an in-memory store using brute-force cosine search.
// When a snapshot path is set, Load restores it and Close writes it back.
type MemoryStore struct {
	dimensions int
	path       string
	records    []Record
	mu         sync.RWMutex
}

// NewMemoryStore creates an in-memory store for vectors of the given dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		dimensions: dimensions,
		records:    make([]Record, 0),
	}, nil
}

// OpenMemoryStore creates a MemoryStore backed by a snapshot file at path.
func OpenMemoryStore(dimensions int, path string) (*MemoryStore, error) {
	m, err := NewMemoryStore(dimensions)
	if err != nil {
		return nil, err
	}
	m.path = path
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// Add appends records. Vectors are copied.
func (m *MemoryStore) Add(ctx context.Context, records []Record) error {
	for _, r := range records {
		if len(r.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Vector), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		vec := make([]float32, m.dimensions)
		copy(vec, r.Vector)
		r.Vector = vec
		m.records = append(m.records, r)
	}
	return nil
}

// Search returns the top-k records within filter by cosine similarity.
func (m *MemoryStore) Search(ctx context.Context, query []float32, filter Filter, k int) ([]Match, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	candidates := make([]Record, 0)
	for _, r := range m.records {
		if matches(filter, r.Scope) {
			candidates = append(candidates, r)
		}
	}
	return rankTopK(query, candidates, k), nil
}

// Count returns the number of records within filter.
func (m *MemoryStore) Count(ctx context.Context, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if matches(filter, r.Scope) {
			n++
		}
	}
	return n, nil
}

// Size returns the number of records in the store.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close writes the snapshot when the store was opened from a path.
func (m *MemoryStore) Close() error {
	if m.path == "" {
		return nil
	}
	return m.Save(m.path)
}

// Save persists the store to path. Directory is created if needed. Format: dimension (4), n (4),
// then per record: id, user id, document id, text as length-prefixed strings, then the vector.
func (m *MemoryStore) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, r := range m.records {
		for _, s := range []string{r.ID, r.Scope.UserID, r.Scope.DocumentID, r.Text} {
			if err := writeString(w, s); err != nil {
				return fmt.Errorf("write record %s: %w", r.ID, err)
			}
		}
		if _, err := w.Write(float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return w.Flush()
}

// Load reads the snapshot at path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, store expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	records := make([]Record, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var fields [4]string
		for j := range fields {
			s, err := readString(r)
			if err != nil {
				return fmt.Errorf("read record %d: %w", i, err)
			}
			fields[j] = s
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		records = append(records, Record{
			ID:     fields[0],
			Scope:  Filter{UserID: fields[1], DocumentID: fields[2]},
			Text:   fields[3],
			Vector: bytesToFloat32Slice(buf),
		})
	}
	m.mu.Lock()
	m.records = records
	m.mu.Unlock()
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
