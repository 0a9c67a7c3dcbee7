package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"ragdoll/internal/index"
	"ragdoll/internal/model"
	"ragdoll/internal/pkg/pdfextract/pdftest"
)

// letterEmbedder maps text to letter frequencies plus a bias so no vector is zero.
type letterEmbedder struct {
	mu       sync.Mutex
	docCalls int
	err      error
	block    bool
}

func letterVector(text string) []float32 {
	v := make([]float32, 27)
	v[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func (e *letterEmbedder) wait(ctx context.Context) error {
	if e.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return e.err
}

func (e *letterEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.docCalls++
	e.mu.Unlock()
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	return out, nil
}

func (e *letterEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return letterVector(text), nil
}

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.IndexEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e model.IndexEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

const fallback = "No document is loaded."

type fixture struct {
	svc       *DocQAService
	embedder  *letterEmbedder
	generator *recordingGenerator
	extracts  int
}

func newFixture(t *testing.T, opts DocQAOptions) *fixture {
	t.Helper()
	f := &fixture{
		embedder:  &letterEmbedder{},
		generator: &recordingGenerator{reply: "The sky is blue."},
	}
	if opts.Chunks.Size == 0 {
		opts.Chunks = ChunkConfig{Size: 1000, Overlap: 300}
	}
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	if opts.Extract != nil {
		inner := opts.Extract
		opts.Extract = func(ctx context.Context, r io.Reader, dir string) ([]string, error) {
			f.extracts++
			return inner(ctx, r, dir)
		}
	}
	f.svc = NewDocQAService(
		index.NewHolder(),
		NewIndexer(f.embedder, time.Second),
		NewRetriever(f.embedder, 4, time.Second),
		NewAnswerer(f.generator, fallback, time.Second),
		opts,
	)
	return f
}

func pagesExtractor(pages ...string) PageExtractor {
	return func(_ context.Context, r io.Reader, _ string) ([]string, error) {
		_, _ = io.Copy(io.Discard, r)
		return pages, nil
	}
}

func pdfUpload(name string, body []byte) UploadInput {
	return UploadInput{Filename: name, ContentType: "application/pdf", Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func TestEndToEndSkyIsBlue(t *testing.T) {
	f := newFixture(t, DocQAOptions{})
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, pdfUpload("sky.pdf", pdftest.Pages("The sky is blue.")))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.SegmentCount != 1 || res.Filename != "sky.pdf" {
		t.Fatalf("Upload() = %+v, want 1 segment from sky.pdf", res)
	}

	st := f.svc.Status()
	if !st.DocumentsLoaded || st.State != StateReady || st.SegmentCount != 1 {
		t.Fatalf("Status() = %+v, want READY with 1 segment", st)
	}

	out, err := f.svc.Query(ctx, "What color is the sky?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if out.Response == "" {
		t.Fatalf("Query() response is empty")
	}
	if len(out.Hits) != 1 || !strings.Contains(out.Hits[0].Segment.Content, "The sky is blue.") {
		t.Fatalf("hits = %+v, want the single segment", out.Hits)
	}
	if f.generator.calls() != 1 {
		t.Fatalf("generator calls = %d, want 1", f.generator.calls())
	}
	prompt := f.generator.prompts[0]
	if !strings.Contains(prompt, "What color is the sky?") || !strings.Contains(prompt, "The sky is blue.") {
		t.Fatalf("prompt does not carry query and context:\n%s", prompt)
	}
}

func TestClearThenQueryReturnsFallback(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("The sky is blue."), Publisher: pub})
	ctx := context.Background()

	if _, err := f.svc.Upload(ctx, pdfUpload("sky.pdf", []byte("%PDF"))); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !f.svc.Clear(ctx) {
		t.Fatalf("Clear() = false, want true after upload")
	}
	if st := f.svc.Status(); st.DocumentsLoaded || st.State != StateEmpty {
		t.Fatalf("Status() = %+v, want EMPTY", st)
	}
	out, err := f.svc.Query(ctx, "What color is the sky?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if out.Response != fallback {
		t.Fatalf("Query() = %q, want fallback", out.Response)
	}
	if f.generator.calls() != 0 {
		t.Fatalf("generator called on empty index")
	}
	if f.svc.Clear(ctx) {
		t.Fatalf("second Clear() = true, want false")
	}

	if len(pub.events) != 2 || pub.events[0].Type != model.IndexEventBuilt || pub.events[1].Type != model.IndexEventCleared {
		t.Fatalf("events = %+v, want built then cleared", pub.events)
	}
	if pub.events[0].IndexID != pub.events[1].IndexID {
		t.Fatalf("cleared event refers to a different index")
	}
}

func TestQueryEmptyIndexNeverCallsGenerator(t *testing.T) {
	f := newFixture(t, DocQAOptions{})
	out, err := f.svc.Query(context.Background(), "anything?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if out.Response != fallback || f.generator.calls() != 0 {
		t.Fatalf("Query() = %q with %d generator calls", out.Response, f.generator.calls())
	}
}

func TestQueryRejectsBlank(t *testing.T) {
	f := newFixture(t, DocQAOptions{})
	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := f.svc.Query(context.Background(), q); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Query(%q) error = %v, want ErrInvalidInput", q, err)
		}
	}
}

func TestUploadRejectsNonPDFBeforeExtraction(t *testing.T) {
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("text")})
	tests := []UploadInput{
		{Filename: "notes.txt", ContentType: "text/plain", Body: strings.NewReader("hello")},
		{Filename: "notes.pdf", ContentType: "text/plain", Body: strings.NewReader("hello")},
		{Filename: "image.png", ContentType: "application/pdf", Body: strings.NewReader("hello")},
	}
	for _, in := range tests {
		if _, err := f.svc.Upload(context.Background(), in); !errors.Is(err, ErrUnsupportedFile) {
			t.Fatalf("Upload(%s, %s) error = %v, want ErrUnsupportedFile", in.Filename, in.ContentType, err)
		}
	}
	if f.extracts != 0 {
		t.Fatalf("extractor called %d times for rejected files", f.extracts)
	}
	if f.svc.Status().DocumentsLoaded {
		t.Fatalf("rejected upload changed state")
	}
}

func TestUploadUnparseablePDF(t *testing.T) {
	f := newFixture(t, DocQAOptions{})
	_, err := f.svc.Upload(context.Background(), pdfUpload("broken.pdf", []byte("definitely not a pdf")))
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("Upload() error = %v, want ErrExtraction", err)
	}
	if f.embedder.docCalls != 0 {
		t.Fatalf("embedder called for an unparseable file")
	}
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t, DocQAOptions{MaxBytes: 8, Extract: pagesExtractor("text")})

	big := bytes.Repeat([]byte("x"), 64)
	if _, err := f.svc.Upload(context.Background(), pdfUpload("big.pdf", big)); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Upload(declared size) error = %v, want ErrFileTooLarge", err)
	}
	if f.extracts != 0 {
		t.Fatalf("extractor called for a file with oversized declared size")
	}

	in := pdfUpload("big.pdf", big)
	in.Size = -1
	if _, err := f.svc.Upload(context.Background(), in); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Upload(unknown size) error = %v, want ErrFileTooLarge", err)
	}
}

func TestFailedUploadKeepsPreviousIndex(t *testing.T) {
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("The sky is blue.")})
	ctx := context.Background()

	first, err := f.svc.Upload(ctx, pdfUpload("sky.pdf", []byte("%PDF")))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	f.embedder.err = errors.New("connection refused")
	if _, err := f.svc.Upload(ctx, pdfUpload("other.pdf", []byte("%PDF"))); !errors.Is(err, ErrProvider) {
		t.Fatalf("Upload() error = %v, want ErrProvider", err)
	}

	st := f.svc.Status()
	if !st.DocumentsLoaded || st.Filename != "sky.pdf" || st.IndexID != first.IndexID {
		t.Fatalf("Status() = %+v, want previous index live", st)
	}

	f.embedder.err = nil
	out, err := f.svc.Query(ctx, "What color is the sky?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(out.Hits) != 1 || out.Hits[0].Segment.Source != "sky.pdf" {
		t.Fatalf("hits = %+v, want the previous document", out.Hits)
	}
}

func TestUploadReplacesIndex(t *testing.T) {
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("The grass is green.")})
	ctx := context.Background()

	if _, err := f.svc.Upload(ctx, pdfUpload("a.pdf", []byte("%PDF"))); err != nil {
		t.Fatalf("Upload(a) error = %v", err)
	}
	if _, err := f.svc.Upload(ctx, pdfUpload("b.pdf", []byte("%PDF"))); err != nil {
		t.Fatalf("Upload(b) error = %v", err)
	}
	out, err := f.svc.Query(ctx, "grass?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	for _, h := range out.Hits {
		if h.Segment.Source != "b.pdf" {
			t.Fatalf("hit from %s, want only b.pdf", h.Segment.Source)
		}
	}
}

func TestProviderTimeout(t *testing.T) {
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("The sky is blue.")})
	f.svc.indexer = NewIndexer(f.embedder, 20*time.Millisecond)
	f.embedder.block = true

	_, err := f.svc.Upload(context.Background(), pdfUpload("sky.pdf", []byte("%PDF")))
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("Upload() error = %v, want ErrProviderTimeout", err)
	}
	if f.svc.Status().DocumentsLoaded {
		t.Fatalf("timed out upload committed an index")
	}
}

func TestGenerationFailure(t *testing.T) {
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("The sky is blue.")})
	ctx := context.Background()
	if _, err := f.svc.Upload(ctx, pdfUpload("sky.pdf", []byte("%PDF"))); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	f.generator.err = errors.New("model not found")
	if _, err := f.svc.Query(ctx, "sky?"); !errors.Is(err, ErrProvider) {
		t.Fatalf("Query() error = %v, want ErrProvider", err)
	}
	if !f.svc.Status().DocumentsLoaded {
		t.Fatalf("generation failure changed state")
	}
}

func TestPublishFailureDoesNotFailUpload(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker gone")}
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("The sky is blue."), Publisher: pub})
	if _, err := f.svc.Upload(context.Background(), pdfUpload("sky.pdf", []byte("%PDF"))); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %d, want 1 attempt", len(pub.events))
	}
}

func TestPreload(t *testing.T) {
	f := newFixture(t, DocQAOptions{})
	path := t.TempDir() + "/manual.pdf"
	if err := os.WriteFile(path, pdftest.Pages("Reset the router.", "Then call support."), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	res, err := f.svc.Preload(context.Background(), path)
	if err != nil {
		t.Fatalf("Preload() error = %v", err)
	}
	if res.Filename != "manual.pdf" || res.SegmentCount != 1 {
		t.Fatalf("Preload() = %+v", res)
	}
	if _, err := f.svc.Preload(context.Background(), path+".missing"); err == nil {
		t.Fatalf("Preload(missing) error = nil")
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name, file, ctype string
		want              error
	}{
		{"pdf", "doc.pdf", "application/pdf", nil},
		{"upper ext", "DOC.PDF", "application/pdf", nil},
		{"x-pdf", "doc.pdf", "application/x-pdf", nil},
		{"octet stream", "doc.pdf", "application/octet-stream", nil},
		{"no content type", "doc.pdf", "", nil},
		{"params", "doc.pdf", "application/pdf; charset=binary", nil},
		{"missing name", "", "application/pdf", ErrInvalidInput},
		{"txt", "doc.txt", "application/pdf", ErrUnsupportedFile},
		{"no ext", "doc", "application/pdf", ErrUnsupportedFile},
		{"html", "doc.pdf", "text/html", ErrUnsupportedFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.file, tt.ctype)
			if tt.want == nil && err != nil {
				t.Fatalf("ValidateUpload() error = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("ValidateUpload() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConcurrentQueriesDuringUploads(t *testing.T) {
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("The sky is blue.")})
	ctx := context.Background()
	if _, err := f.svc.Upload(ctx, pdfUpload("a.pdf", []byte("%PDF"))); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Upload(ctx, pdfUpload("b.pdf", []byte("%PDF"))); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			out, err := f.svc.Query(ctx, "sky?")
			if err != nil {
				errs <- err
				return
			}
			if len(out.Hits) != 1 {
				errs <- errors.New("query saw a partial index")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestUploadCanceledDuringExtraction(t *testing.T) {
	f := newFixture(t, DocQAOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Upload(ctx, pdfUpload("sky.pdf", pdftest.Pages("The sky is blue.")))
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Upload() error = %v, want ErrCanceled wrapping context.Canceled", err)
	}
	if errors.Is(err, ErrExtraction) {
		t.Fatalf("cancellation reported as an extraction failure: %v", err)
	}
	if f.svc.Status().DocumentsLoaded {
		t.Fatalf("canceled upload changed state")
	}
}

func TestQueryCanceledWhileEmbedding(t *testing.T) {
	f := newFixture(t, DocQAOptions{Extract: pagesExtractor("The sky is blue.")})
	if _, err := f.svc.Upload(context.Background(), pdfUpload("sky.pdf", []byte("%PDF"))); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	f.embedder.block = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Query(ctx, "What color is the sky?")
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Query() error = %v, want ErrCanceled", err)
	}
	if errors.Is(err, ErrProvider) || errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("cancellation reported as a provider failure: %v", err)
	}
}
