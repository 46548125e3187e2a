package rag

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/ayxsth/cloudymate/internal/logger"
)

const (
	DefaultTopK = 4

	// chunks are embedded this many at a time
	embedBatchSize = 10
	excerptLength  = 200

	NoDocumentsAnswer = "No documents have been uploaded yet. Please upload a PDF document first, then ask questions about its content."
)

// Options tune a Pipeline. Zero values select the defaults.
type Options struct {
	Chunker         Chunker
	TopK            int
	MaxContextChars int
	// Guardrail is applied to answer generation, never to validation.
	Guardrail *Guardrail
	// FailOpen accepts borderline content when the LLM classifier fails.
	FailOpen bool
}

// Pipeline wires validation, ingestion, retrieval and generation together.
// It holds no per-request state and is safe for concurrent use as long as
// its collaborators are.
type Pipeline struct {
	validator *Validator
	ingestor  *Ingestor
	embedder  Embedder
	store     Store
	generator Generator
	opts      Options
}

func NewPipeline(embedder Embedder, store Store, generator Generator, opts Options) *Pipeline {
	if opts.Chunker.Size <= 0 {
		opts.Chunker = DefaultChunker()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	return &Pipeline{
		validator: NewValidator(generator, opts.FailOpen),
		ingestor:  NewIngestor(opts.Chunker),
		embedder:  embedder,
		store:     store,
		generator: generator,
		opts:      opts,
	}
}

func (p *Pipeline) Validator() *Validator { return p.validator }

func (p *Pipeline) Store() Store { return p.store }

// IngestResult is returned for an accepted upload.
type IngestResult struct {
	Filename  string `json:"filename"`
	NumChunks int    `json:"num_chunks"`
	Message   string `json:"message"`
}

// Ingest validates, chunks, embeds and stores a PDF. Validation happens on
// the full text before any embedding call, and nothing is written unless
// every chunk was embedded.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (IngestResult, error) {
	text, err := p.ingestor.Extract(data)
	if err != nil {
		return IngestResult{}, err
	}
	if text == "" {
		return IngestResult{}, ErrExtractionEmpty
	}

	verdict := p.validator.ValidateDocument(ctx, text)
	if !verdict.Valid {
		logger.Info("Rejected %s: %s", filename, verdict.Reason)
		return IngestResult{}, &RejectionError{Reason: verdict.Reason}
	}
	logger.Debug("Content validation passed for %s: %s", filename, verdict.Reason)

	n, err := p.embedAndStore(ctx, p.ingestor.Chunk(text, filename))
	if err != nil {
		return IngestResult{}, err
	}
	if n == 0 {
		return IngestResult{}, ErrExtractionEmpty
	}
	logger.Info("Stored %d chunks from %s", n, filename)

	return IngestResult{
		Filename:  filename,
		NumChunks: n,
		Message:   fmt.Sprintf("Successfully processed and stored %d chunks from %s", n, filename),
	}, nil
}

func (p *Pipeline) embedAndStore(ctx context.Context, chunks iter.Seq[Chunk]) (int, error) {
	var embedded, batch []Chunk
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return embeddingErr(err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingUnavailable, len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
			if err := CheckEmbedding(batch[i], len(vecs[0])); err != nil {
				return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
			}
		}
		embedded = append(embedded, batch...)
		batch = nil
		return nil
	}

	for ch := range chunks {
		batch = append(batch, ch)
		if len(batch) >= embedBatchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	if len(embedded) == 0 {
		return 0, nil
	}

	if err := p.store.Upsert(ctx, embedded...); err != nil {
		return 0, storeErr(err)
	}
	return len(embedded), nil
}

// AskRequest is one question. Session is optional.
type AskRequest struct {
	Query   string
	K       int
	Session *Session
}

// Source is the citation of one chunk used to answer.
type Source struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Query      string   `json:"query"`
	NumSources int      `json:"num_sources"`
	// Blocked is set when the guardrail stopped the answer.
	Blocked bool `json:"blocked,omitempty"`
}

// Ask answers a question from the stored chunks. A query that fails
// validation returns a *RejectionError before any embedding call.
func (p *Pipeline) Ask(ctx context.Context, req AskRequest) (Answer, error) {
	verdict := p.validator.ValidateQuery(ctx, req.Query)
	if !verdict.Valid {
		return Answer{}, &RejectionError{Reason: verdict.Reason}
	}

	qvec, err := p.embedder.Embed(ctx, req.Query)
	if err != nil {
		return Answer{}, embeddingErr(err)
	}

	k := req.K
	if k <= 0 {
		k = p.opts.TopK
	}
	results, err := p.store.Query(ctx, qvec, k)
	if err != nil {
		return Answer{}, storeErr(err)
	}
	logger.Debug("Retrieved %d chunks for %q", len(results), req.Query)

	if len(results) == 0 {
		ans := Answer{Answer: NoDocumentsAnswer, Sources: []Source{}, Query: req.Query}
		p.record(req.Session, req.Query, ans.Answer)
		return ans, nil
	}

	contextText, used := BuildContext(results, p.opts.MaxContextChars)
	var history []Turn
	if req.Session != nil {
		history = req.Session.Recent(historyTurns)
	}
	prompt := BuildPrompt(contextText, req.Query, history)

	gen, err := p.generator.Generate(ctx, prompt, p.opts.Guardrail)
	if err != nil {
		if !errors.Is(err, ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
		}
		return Answer{}, err
	}

	if gen.Blocked {
		text := gen.Text
		if text == "" {
			text = BlockedMessage
		}
		logger.Info("Guardrail blocked answer for %q", req.Query)
		return Answer{Answer: text, Sources: []Source{}, Query: req.Query, Blocked: true}, nil
	}

	sources := make([]Source, len(used))
	for i, r := range used {
		sources[i] = Source{
			Source:     r.Chunk.Source,
			ChunkIndex: r.Chunk.Index,
			Excerpt:    excerpt(r.Chunk.Content),
			Score:      r.Score,
		}
	}
	p.record(req.Session, req.Query, gen.Text)

	return Answer{
		Answer:     gen.Text,
		Sources:    sources,
		Query:      req.Query,
		NumSources: len(sources),
	}, nil
}

// Reset clears the vector store.
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.store.Reset(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (p *Pipeline) record(s *Session, query, answer string) {
	if s == nil {
		return
	}
	s.Append(RoleUser, query)
	s.Append(RoleAssistant, answer)
}

func excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= excerptLength {
		return s
	}
	return string(runes[:excerptLength]) + "..."
}

func embeddingErr(err error) error {
	if errors.Is(err, ErrEmbeddingUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
}

func storeErr(err error) error {
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrDimensionMismatch) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
