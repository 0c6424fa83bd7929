// Package contentstore implements Phase 1 (Acquisition & integrity): it
// streams document bytes into byte-addressed storage, computes a BLAKE3
// content digest, and detects the MIME type, producing the manifest that
// seeds the rest of the ingestion pipeline.
package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zeebo/blake3"

	"policypipeline/internal/objectstore"
)

// Manifest is Phase 1's postcondition: a source hash, MIME type, and byte
// count, plus the key under which the raw bytes were stored.
type Manifest struct {
	Key       string
	SourceHash string // hex-encoded BLAKE3 digest of the raw bytes
	MIME      string
	ByteCount int64
	StoredAt  time.Time
}

// Store wraps an ObjectStore backend with content-addressed acquisition.
type Store struct {
	backend objectstore.ObjectStore
}

// New builds a Store over the given backend (S3Store, MemoryStore, or any
// other ObjectStore implementation).
func New(backend objectstore.ObjectStore) *Store {
	return &Store{backend: backend}
}

// Acquire streams data into the store under a content-addressed key derived
// from its BLAKE3 digest, and returns the Phase 1 manifest.
func (s *Store) Acquire(ctx context.Context, data []byte, declaredTitle string) (Manifest, error) {
	if len(data) == 0 {
		return Manifest{}, fmt.Errorf("contentstore: empty document body")
	}

	sum := blake3.Sum256(data)
	hash := fmt.Sprintf("%x", sum[:])
	mime := http.DetectContentType(data)
	key := "documents/" + hash

	stored, err := s.backend.Exists(ctx, key)
	if err != nil {
		return Manifest{}, fmt.Errorf("contentstore: check %s: %w", key, err)
	}
	if !stored {
		if _, err := s.backend.Put(ctx, key, bytes.NewReader(data), objectstore.PutOptions{
			ContentType: mime,
			Metadata: map[string]string{
				"declared_title": declaredTitle,
				"blake3":         hash,
			},
		}); err != nil {
			return Manifest{}, fmt.Errorf("contentstore: put %s: %w", key, err)
		}
	}

	return Manifest{
		Key:        key,
		SourceHash: hash,
		MIME:       mime,
		ByteCount:  int64(len(data)),
		StoredAt:   time.Now().UTC(),
	}, nil
}

// Fetch retrieves the raw bytes previously stored under manifest.Key.
func (s *Store) Fetch(ctx context.Context, manifest Manifest) ([]byte, error) {
	rc, _, err := s.backend.Get(ctx, manifest.Key)
	if err != nil {
		return nil, fmt.Errorf("contentstore: get %s: %w", manifest.Key, err)
	}
	defer rc.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("contentstore: read %s: %w", manifest.Key, err)
	}
	return buf.Bytes(), nil
}

// Digest computes the hex-encoded BLAKE3 digest of an arbitrary byte range,
// used throughout Phase 9 for per-chunk hashing.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}
