package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// EmbeddingCacheStore caches embedding vectors by content hash and model so
// re-embedding unchanged content does not hit the embedder again.
type EmbeddingCacheStore struct {
	db *DB
}

func NewEmbeddingCacheStore(db *DB) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{db: db}
}

// Get returns the cached vector, or ok=false when there is none.
func (s *EmbeddingCacheStore) Get(contentHash, model string) (vec []float32, ok bool, err error) {
	var blob []byte
	err = s.db.QueryRow(`
		SELECT embedding FROM embedding_cache WHERE content_hash = ? AND model = ?
	`, contentHash, model).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get embedding cache: %w", err)
	}
	return bytesToFloat32(blob), true, nil
}

// Put upserts a cache entry.
func (s *EmbeddingCacheStore) Put(contentHash, model string, vec []float32) error {
	_, err := s.db.Exec(`
		INSERT INTO embedding_cache (content_hash, model, embedding, dimension, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash, model) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`, contentHash, model, float32ToBytes(vec), len(vec), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put embedding cache: %w", err)
	}
	return nil
}

// Count returns the number of cached vectors.
func (s *EmbeddingCacheStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM embedding_cache`).Scan(&n)
	return n, err
}

func float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
