// Package prlgl analyzes and drafts rental agreements. It combines a
// retrieval-augmented clause analysis pipeline (index a legal knowledge
// base, retrieve relevant passages, explain flagged clauses, extract
// referenced institutions) with a sequential multi-agent drafting
// pipeline driven by external rule files.
package prlgl

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prlgl/prlgl/analysis"
	"github.com/prlgl/prlgl/chatbot"
	"github.com/prlgl/prlgl/chunker"
	"github.com/prlgl/prlgl/crew"
	"github.com/prlgl/prlgl/llm"
	"github.com/prlgl/prlgl/parser"
	"github.com/prlgl/prlgl/retrieval"
	"github.com/prlgl/prlgl/rules"
	"github.com/prlgl/prlgl/store"
)

// Engine is the main entry point. It owns the LLM providers, the rule
// data, the drafting crew, and the chatbot; clause analysis happens in
// per-session contexts created via NewSession.
type Engine struct {
	cfg      Config
	chatLLM  llm.Provider
	embedLLM llm.Provider
	gateway  *llm.Gateway
	parsers  *parser.Registry
	splitter *chunker.Splitter
	rules    *rules.Set
	crew     *crew.Crew
	chat     *chatbot.Chatbot
}

// New creates an engine from configuration. Rule files are loaded and
// validated here so a misconfigured deployment fails before accepting
// requests; drafting requires all three rule paths to be set.
func New(cfg Config) (*Engine, error) {
	if cfg.ChunkSize < 0 || cfg.ChunkOverlap < 0 || cfg.TopK < 0 {
		return nil, fmt.Errorf("%w: negative chunking or retrieval values", ErrInvalidConfig)
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 1536
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 512
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 128
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if err := checkCredentials("chat", cfg.Chat); err != nil {
		return nil, err
	}
	if err := checkCredentials("embedding", cfg.Embedding); err != nil {
		return nil, err
	}

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider:   cfg.Chat.Provider,
		Model:      cfg.Chat.Model,
		BaseURL:    cfg.Chat.BaseURL,
		APIKey:     cfg.Chat.APIKey,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	embedLLM, err := llm.NewProvider(llm.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	gateway := llm.NewGateway(chatLLM, llm.GenerationParams{
		Model:            cfg.Chat.Model,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
		Seed:             cfg.Seed,
	}, 0)

	e := &Engine{
		cfg:      cfg,
		chatLLM:  chatLLM,
		embedLLM: embedLLM,
		gateway:  gateway,
		parsers:  parser.NewRegistry(),
		splitter: chunker.New(chunker.Config{
			ChunkSize: cfg.ChunkSize,
			Overlap:   cfg.ChunkOverlap,
		}),
		chat: chatbot.New(gateway, nil),
	}

	if cfg.ComplianceRulesPath != "" || cfg.AuditChecklistPath != "" || cfg.JurisdictionalRulesPath != "" {
		rs, err := rules.Load(rules.Paths{
			CompliancePath:     cfg.ComplianceRulesPath,
			AuditPath:          cfg.AuditChecklistPath,
			JurisdictionalPath: cfg.JurisdictionalRulesPath,
			InstitutionsPath:   cfg.InstitutionsPath,
		}, cfg.StrictJurisdiction)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		e.rules = rs
		e.crew = crew.New(gateway, rs)
	}

	return e, nil
}

// checkCredentials rejects hosted providers that were configured without
// an API key. Without this the engine would construct fine and every
// request would then fail with a 401. Local providers (ollama, custom
// endpoints) do not require a key.
func checkCredentials(role string, lc LLMConfig) error {
	switch lc.Provider {
	case "openai", "groq":
		if lc.APIKey == "" {
			return fmt.Errorf("%w: %s provider %q requires an API key", ErrInvalidConfig, role, lc.Provider)
		}
	}
	return nil
}

// Draft runs the full drafting pipeline for the given rental details.
func (e *Engine) Draft(ctx context.Context, details crew.RentalDetails) (*crew.RunResult, error) {
	if e.crew == nil {
		return nil, fmt.Errorf("%w: drafting requires compliance, audit, and jurisdictional rule paths", ErrInvalidConfig)
	}
	return e.crew.Run(ctx, details)
}

// Jurisdictions returns the jurisdiction keys available for drafting.
func (e *Engine) Jurisdictions() []string {
	if e.rules == nil {
		return nil
	}
	return e.rules.Jurisdictions()
}

// KnownInstitutions returns the reference list of recognized legal
// institutions, if configured.
func (e *Engine) KnownInstitutions() []string {
	if e.rules == nil {
		return nil
	}
	return e.rules.Institutions
}

// ExtractInstitutions names the legal institutions referenced in a
// clause, cross-checked against the reference list.
func (e *Engine) ExtractInstitutions(ctx context.Context, clause string) ([]analysis.InstitutionFinding, error) {
	x := analysis.NewInstitutionExtractor(e.gateway, e.KnownInstitutions(), nil)
	return x.ExtractVerified(ctx, clause)
}

// Chatbot returns the engine's shared legal chatbot.
func (e *Engine) Chatbot() *chatbot.Chatbot {
	return e.chat
}

// Close shuts down the engine. Sessions hold their own resources and
// are closed individually.
func (e *Engine) Close() error {
	return nil
}

// Session is one clause-analysis context with its own on-disk index.
// Two concurrent sessions never share index state, so indexing in one
// cannot corrupt retrieval in another.
type Session struct {
	id        string
	dir       string
	engine    *Engine
	store     *store.Store
	retriever *retrieval.Engine
	explainer *analysis.ClauseExplainer
	extractor *analysis.InstitutionExtractor
}

// NewSession creates an analysis session with a fresh index database
// under the configured storage directory.
func (e *Engine) NewSession(ctx context.Context) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	dir := filepath.Join(e.cfg.resolveStorageDir(), id)
	s, err := store.New(filepath.Join(dir, "index.db"), e.cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	// Snapshot the institutions reference list into the session store so
	// the session database is self-contained for later inspection.
	for _, name := range e.KnownInstitutions() {
		if _, err := s.UpsertInstitution(ctx, store.Institution{Name: name}); err != nil {
			s.Close()
			return nil, fmt.Errorf("seeding institutions: %w", err)
		}
	}

	retriever := retrieval.New(s, e.embedLLM, retrieval.Config{TopK: e.cfg.TopK})
	sess := &Session{
		id:        id,
		dir:       dir,
		engine:    e,
		store:     s,
		retriever: retriever,
		explainer: analysis.NewClauseExplainer(e.gateway, retriever, s, e.cfg.TopK),
		extractor: analysis.NewInstitutionExtractor(e.gateway, e.KnownInstitutions(), s),
	}

	slog.Debug("session created", "session_id", id, "dir", dir)
	return sess, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Index parses, chunks, and embeds a document into the session's index.
// Re-indexing an unchanged file is a no-op; a changed file replaces its
// previous chunks and embeddings.
func (s *Session) Index(ctx context.Context, path string) (int64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return 0, fmt.Errorf("%w: hashing file: %v", ErrIndexBuild, err)
	}

	if existing, err := s.store.GetDocumentByPath(ctx, absPath); err == nil && existing.ContentHash == hash {
		return existing.ID, nil
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	filename := filepath.Base(absPath)

	docID, err := s.store.UpsertDocument(ctx, store.Document{
		Path:        absPath,
		Filename:    filename,
		Format:      format,
		ContentHash: hash,
		ParseMethod: "pending",
		Status:      "processing",
	})
	if err != nil {
		return 0, fmt.Errorf("upserting document: %w", err)
	}

	slog.Info("index: parsing document", "session_id", s.id, "file", filename, "format", format)
	start := time.Now()

	p, err := s.engine.parsers.Get(format)
	if err != nil {
		s.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		s.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	chunks := s.engine.splitter.Split(parsed.Pages)
	slog.Info("index: chunking complete",
		"session_id", s.id, "file", filename,
		"pages", len(parsed.Pages), "chunks", len(chunks))

	// Replace any prior data for this document.
	if err := s.store.DeleteDocumentData(ctx, docID); err != nil {
		return 0, fmt.Errorf("cleaning old data: %w", err)
	}

	records := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		records[i] = store.Chunk{
			DocumentID:    docID,
			Content:       c.Content,
			ClauseNumber:  c.ClauseNumber,
			PageNumber:    c.PageNumber,
			PositionInDoc: c.Position,
		}
	}

	chunkIDs, err := s.store.InsertChunks(ctx, records)
	if err != nil {
		s.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, fmt.Errorf("inserting chunks: %w", err)
	}

	if err := s.embedChunks(ctx, records, chunkIDs); err != nil {
		s.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, fmt.Errorf("%w: %v", ErrIndexBuild, err)
	}

	if err := s.store.UpdateDocumentStatus(ctx, docID, "indexed"); err != nil {
		return 0, fmt.Errorf("updating status: %w", err)
	}

	slog.Info("index: document ready",
		"session_id", s.id, "file", filename, "doc_id", docID,
		"chunks", len(chunks), "elapsed", time.Since(start).Round(time.Millisecond))
	return docID, nil
}

// Context retrieves the knowledge-base context most relevant to a
// clause. k <= 0 uses the configured default.
func (s *Session) Context(ctx context.Context, clause string, k int) (string, error) {
	return s.retriever.Context(ctx, clause, k)
}

// ExplainClause examines a clause against the indexed knowledge base.
func (s *Session) ExplainClause(ctx context.Context, req analysis.ExplainRequest) (*analysis.ExplainResult, error) {
	return s.explainer.Explain(ctx, req)
}

// ExtractInstitutions names the institutions referenced in a clause,
// cross-checked against the reference list, with the call audited in
// the session store.
func (s *Session) ExtractInstitutions(ctx context.Context, clause string) ([]analysis.InstitutionFinding, error) {
	return s.extractor.ExtractVerified(ctx, clause)
}

// Draft runs the drafting pipeline and records the run in the session's
// audit log.
func (s *Session) Draft(ctx context.Context, details crew.RentalDetails) (*crew.RunResult, error) {
	res, err := s.engine.Draft(ctx, details)
	if err != nil {
		return nil, err
	}

	var tokens int
	for _, st := range res.Stages {
		tokens += st.Tokens
	}
	if lerr := s.store.LogAnalysis(ctx, store.AnalysisLog{
		Operation:   "draft",
		Input:       details.JSON(),
		Output:      res.Contract,
		ModelUsed:   s.engine.cfg.Chat.Model,
		TotalTokens: tokens,
	}); lerr != nil {
		slog.Warn("audit log failed", "operation", "draft", "error", lerr)
	}
	return res, nil
}

// Store returns the session's underlying store for diagnostic access.
func (s *Session) Store() *store.Store {
	return s.store
}

// Close releases the session's database.
func (s *Session) Close() error {
	return s.store.Close()
}

// Purge closes the session and removes its on-disk index.
func (s *Session) Purge() error {
	if err := s.store.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.dir)
}

// embedChunks generates embeddings in batches, falling back to
// per-chunk embedding when a batch fails so one bad text does not lose
// the rest.
func (s *Session) embedChunks(ctx context.Context, chunks []store.Chunk, chunkIDs []int64) error {
	const batchSize = 32
	var failed int

	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			texts[j-i] = chunks[j].Content
		}

		embeddings, err := s.engine.embedLLM.Embed(ctx, texts)
		if err != nil {
			slog.Warn("embedding batch failed, falling back to individual",
				"batch_start", i, "batch_end", end, "error", err)
			for j, text := range texts {
				single, serr := s.engine.embedLLM.Embed(ctx, []string{text})
				if serr != nil || len(single) == 0 {
					failed++
					continue
				}
				if serr := s.store.InsertEmbedding(ctx, chunkIDs[i+j], single[0]); serr != nil {
					failed++
				}
			}
			continue
		}

		for j, emb := range embeddings {
			if err := s.store.InsertEmbedding(ctx, chunkIDs[i+j], emb); err != nil {
				slog.Warn("storing embedding failed", "chunk_id", chunkIDs[i+j], "error", err)
				failed++
			}
		}
	}

	if len(chunks) > 0 && failed == len(chunks) {
		return fmt.Errorf("all %d chunks failed embedding", len(chunks))
	}
	if failed > 0 {
		slog.Warn("some embeddings failed", "failed", failed, "total", len(chunks))
	}
	return nil
}

// newSessionID returns a timestamped random identifier, unique per
// session so index databases never collide.
func newSessionID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), hex.EncodeToString(buf)), nil
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
