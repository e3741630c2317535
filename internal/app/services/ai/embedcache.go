package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/seanotes/seanotes/internal/metrics"
)

const embeddingCacheTTL = 30 * 24 * time.Hour

// CachedEmbedder stores embeddings in badger keyed by model and text so that
// re-syncing an unchanged note does not call the provider again.
type CachedEmbedder struct {
	next    Embedder
	model   string
	db      *badger.DB
	metrics *metrics.Metrics
}

// OpenEmbeddingCache opens a badger database at dir, or an in-memory one when dir is empty.
func OpenEmbeddingCache(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return db, nil
}

// NewCachedEmbedder decorates next with a badger-backed cache.
func NewCachedEmbedder(next Embedder, model string, db *badger.DB, m *metrics.Metrics) *CachedEmbedder {
	return &CachedEmbedder{next: next, model: model, db: db, metrics: m}
}

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return []byte("emb:" + hex.EncodeToString(sum[:]))
}

// Embed implements Embedder. Only cache misses are sent to the wrapped embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int

	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(c.key(text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missing = append(missing, i)
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[i] = decodeVector(raw)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read embedding cache: %w", err)
	}

	for i := 0; i < len(texts)-len(missing); i++ {
		c.metrics.RecordCacheLookup("embeddings", true)
	}
	for range missing {
		c.metrics.RecordCacheLookup("embeddings", false)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	vectors, err := c.next.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, errors.New("embedding count does not match input count")
	}

	for j, i := range missing {
		out[i] = vectors[j]
	}
	// A failed cache write still returns valid vectors.
	_ = c.db.Update(func(txn *badger.Txn) error {
		for j, i := range missing {
			entry := badger.NewEntry(c.key(texts[i]), encodeVector(vectors[j])).WithTTL(embeddingCacheTTL)
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) []float32 {
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return v
}
