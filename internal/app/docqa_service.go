package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ragdoll/internal/chunker"
	"ragdoll/internal/index"
	"ragdoll/internal/model"
	"ragdoll/internal/pkg/pdfextract"
)

type State string

const (
	StateEmpty State = "EMPTY"
	StateReady State = "READY"
)

// PageExtractor turns an uploaded PDF stream into ordered page texts.
type PageExtractor func(ctx context.Context, r io.Reader, tempDir string) ([]string, error)

// EventPublisher receives index transitions. Failures are logged and never fail a request.
type EventPublisher interface {
	Publish(ctx context.Context, event model.IndexEvent) error
}

const publishTimeout = 2 * time.Second

type ChunkConfig struct {
	Size    int
	Overlap int
}

// DocQAService is the service boundary: upload, query, clear and status over a single
// live index.
type DocQAService struct {
	holder    *index.Holder
	indexer   *Indexer
	retriever *Retriever
	answerer  *Answerer
	extract   PageExtractor
	publisher EventPublisher
	chunks    ChunkConfig
	tempDir   string
	maxBytes  int64

	// serializes uploads so the last upload to finish is the last one started
	buildMu sync.Mutex
}

type DocQAOptions struct {
	Chunks    ChunkConfig
	TempDir   string
	MaxBytes  int64
	Extract   PageExtractor
	Publisher EventPublisher
}

func NewDocQAService(holder *index.Holder, indexer *Indexer, retriever *Retriever, answerer *Answerer, opts DocQAOptions) *DocQAService {
	extract := opts.Extract
	if extract == nil {
		extract = pdfextract.ExtractPages
	}
	return &DocQAService{
		holder:    holder,
		indexer:   indexer,
		retriever: retriever,
		answerer:  answerer,
		extract:   extract,
		publisher: opts.Publisher,
		chunks:    opts.Chunks,
		tempDir:   opts.TempDir,
		maxBytes:  opts.MaxBytes,
	}
}

// UploadInput describes one uploaded file. Size may be -1 when unknown.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadResult struct {
	Message      string `json:"message"`
	Filename     string `json:"filename"`
	SegmentCount int    `json:"segment_count"`
	IndexID      string `json:"index_id"`
}

type QueryResult struct {
	Response string      `json:"response"`
	Hits     []index.Hit `json:"-"`
}

type Status struct {
	Status          string     `json:"status"`
	DocumentsLoaded bool       `json:"documents_loaded"`
	State           State      `json:"state"`
	Filename        string     `json:"filename,omitempty"`
	SegmentCount    int        `json:"segment_count,omitempty"`
	IndexID         string     `json:"index_id,omitempty"`
	IndexedAt       *time.Time `json:"indexed_at,omitempty"`
}

var acceptedContentTypes = map[string]bool{
	"":                         true,
	"application/pdf":          true,
	"application/x-pdf":        true,
	"application/octet-stream": true,
}

// ValidateUpload checks the file name and declared content type. It reads nothing.
func ValidateUpload(filename, contentType string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: missing file name", ErrInvalidInput)
	}
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return fmt.Errorf("%w: %q has extension %q", ErrUnsupportedFile, filename, filepath.Ext(filename))
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !acceptedContentTypes[mediaType] {
		return fmt.Errorf("%w: content type %q", ErrUnsupportedFile, contentType)
	}
	return nil
}

// Upload extracts, chunks and indexes a PDF, then makes it the live index. On any
// failure the previous index stays live.
func (s *DocQAService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if err := ValidateUpload(input.Filename, input.ContentType); err != nil {
		return nil, err
	}
	if input.Body == nil {
		return nil, fmt.Errorf("%w: missing file body", ErrInvalidInput)
	}
	if s.maxBytes > 0 && input.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, input.Size, s.maxBytes)
	}
	filename := filepath.Base(input.Filename)
	logger := zerolog.Ctx(ctx).With().Str("filename", filename).Logger()

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	body := input.Body
	if s.maxBytes > 0 {
		// one byte past the limit lets the check below see an oversized stream
		body = io.LimitReader(input.Body, s.maxBytes+1)
	}
	counter := &countingReader{r: body}
	pages, err := s.extract(ctx, counter, s.tempDir)
	if s.maxBytes > 0 && counter.n > s.maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.maxBytes)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("pdf extraction failed")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrCanceled, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	logger.Debug().Int("pages", len(pages)).Msg("pdf extracted")

	segments := chunker.Split(filename, pages, s.chunks.Size, s.chunks.Overlap)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, pdfextract.ErrNoText)
	}

	idx, err := s.indexer.Build(ctx, filename, segments)
	if err != nil {
		logger.Error().Err(err).Int("segments", len(segments)).Msg("indexing failed, keeping previous index")
		return nil, err
	}

	prev := s.holder.Swap(idx)
	event := logger.Info().Str("index_id", idx.ID()).Int("segments", idx.Len())
	if prev != nil {
		event = event.Str("replaced", prev.Filename())
	}
	event.Msg("document indexed")

	s.publish(ctx, model.IndexEvent{
		Type:         model.IndexEventBuilt,
		IndexID:      idx.ID(),
		Filename:     filename,
		SegmentCount: idx.Len(),
		OccurredAt:   idx.BuiltAt(),
	})

	return &UploadResult{
		Message:      "PDF uploaded and indexed",
		Filename:     filename,
		SegmentCount: idx.Len(),
		IndexID:      idx.ID(),
	}, nil
}

// Query answers from the index that is live when the query starts; a concurrent upload
// does not affect it.
func (s *DocQAService) Query(ctx context.Context, query string) (*QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}

	idx := s.holder.Load()
	if idx == nil {
		return &QueryResult{Response: s.answerer.NoDocumentMessage()}, nil
	}
	logger := zerolog.Ctx(ctx).With().Str("index_id", idx.ID()).Logger()

	hits, err := s.retriever.Retrieve(ctx, idx, query)
	if err != nil {
		logger.Error().Err(err).Msg("retrieval failed")
		return nil, err
	}
	logger.Debug().Int("hits", len(hits)).Msg("segments retrieved")

	answer, err := s.answerer.Answer(ctx, query, hits)
	if err != nil {
		logger.Error().Err(err).Msg("generation failed")
		return nil, err
	}
	return &QueryResult{Response: answer, Hits: hits}, nil
}

// Clear discards the live index. It reports whether an index was loaded.
func (s *DocQAService) Clear(ctx context.Context) bool {
	prev := s.holder.Clear()
	if prev == nil {
		return false
	}
	zerolog.Ctx(ctx).Info().Str("index_id", prev.ID()).Str("filename", prev.Filename()).Msg("index cleared")
	s.publish(ctx, model.IndexEvent{
		Type:         model.IndexEventCleared,
		IndexID:      prev.ID(),
		Filename:     prev.Filename(),
		SegmentCount: prev.Len(),
		OccurredAt:   time.Now(),
	})
	return true
}

func (s *DocQAService) Status() Status {
	idx := s.holder.Load()
	if idx == nil {
		return Status{Status: "healthy", DocumentsLoaded: false, State: StateEmpty}
	}
	builtAt := idx.BuiltAt()
	return Status{
		Status:          "healthy",
		DocumentsLoaded: true,
		State:           StateReady,
		Filename:        idx.Filename(),
		SegmentCount:    idx.Len(),
		IndexID:         idx.ID(),
		IndexedAt:       &builtAt,
	}
}

// Preload indexes a PDF from disk as if it had been uploaded.
func (s *DocQAService) Preload(ctx context.Context, path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preload file: %w", err)
	}
	defer f.Close()

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return s.Upload(ctx, UploadInput{
		Filename:    filepath.Base(path),
		ContentType: "application/pdf",
		Size:        size,
		Body:        f,
	})
}

func (s *DocQAService) publish(ctx context.Context, event model.IndexEvent) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", event.Type).Msg("publish index event failed")
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
