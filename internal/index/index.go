// Package index holds the in-process vector index over one document's segments.
//
// An Index is built once from precomputed embeddings and never mutated afterwards, so
// readers need no locking beyond obtaining the reference from a Holder.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"

	"ragdoll/internal/model"
)

const collectionName = "segments"

var (
	ErrEmpty             = errors.New("index: no segments to index")
	ErrMalformedVector   = errors.New("index: malformed embedding vector")
	ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")
)

// Hit is one retrieved segment with its cosine similarity to the query.
type Hit struct {
	Segment model.Segment `json:"segment"`
	Score   float32       `json:"score"`
}

type Index struct {
	id        string
	filename  string
	dimension int
	builtAt   time.Time
	segments  []model.Segment
	col       *chromem.Collection
}

// Build stores one vector per segment into a fresh collection. vectors[i] belongs to
// segments[i]. Every vector must be non-empty, finite, non-zero and share one dimension.
func Build(ctx context.Context, id, filename string, segments []model.Segment, vectors [][]float32) (*Index, error) {
	if len(segments) == 0 {
		return nil, ErrEmpty
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("%w: %d vectors for %d segments", ErrMalformedVector, len(vectors), len(segments))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if err := checkVector(v, dim); err != nil {
			return nil, fmt.Errorf("segment %d: %w", segments[i].Seq, err)
		}
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, map[string]string{"source": filename}, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("create collection failed: %w", err)
	}

	docs := make([]chromem.Document, len(segments))
	for i, seg := range segments {
		docs[i] = chromem.Document{
			ID:      strconv.Itoa(i),
			Content: seg.Content,
			Metadata: map[string]string{
				"source": seg.Source,
				"seq":    strconv.Itoa(seg.Seq),
				"offset": strconv.Itoa(seg.Offset),
				"page":   strconv.Itoa(seg.Page),
			},
			Embedding: append([]float32(nil), vectors[i]...),
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add documents failed: %w", err)
	}

	return &Index{
		id:        id,
		filename:  filename,
		dimension: dim,
		builtAt:   time.Now(),
		segments:  append([]model.Segment(nil), segments...),
		col:       col,
	}, nil
}

func (idx *Index) ID() string         { return idx.id }
func (idx *Index) Filename() string   { return idx.filename }
func (idx *Index) Dimension() int     { return idx.dimension }
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }
func (idx *Index) Len() int           { return len(idx.segments) }

// Segments returns a copy of the indexed segments in sequence order.
func (idx *Index) Segments() []model.Segment {
	return append([]model.Segment(nil), idx.segments...)
}

// Search returns the k segments most similar to query, best first. Exact search:
// every stored vector is compared.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := checkVector(query, idx.dimension); err != nil {
		return nil, err
	}
	n := min(k, idx.col.Count())

	results, err := idx.col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		i, err := strconv.Atoi(r.ID)
		if err != nil || i < 0 || i >= len(idx.segments) {
			return nil, fmt.Errorf("query collection returned unknown id %q", r.ID)
		}
		hits = append(hits, Hit{Segment: idx.segments[i], Score: r.Similarity})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Segment.Seq < hits[b].Segment.Seq
	})
	return hits, nil
}

func checkVector(v []float32, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedVector)
	}
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	var norm float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component", ErrMalformedVector)
		}
		norm += f * f
	}
	if norm == 0 {
		return fmt.Errorf("%w: zero vector", ErrMalformedVector)
	}
	return nil
}

// precomputedOnly is installed as the collection's embedding func; Build always supplies
// vectors, so reaching it means a document slipped through without one.
func precomputedOnly(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("index: embeddings must be precomputed")
}
