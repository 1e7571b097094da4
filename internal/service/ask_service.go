package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/liliang-cn/synergereader/internal/citation"
	"github.com/liliang-cn/synergereader/internal/domain"
	"github.com/liliang-cn/synergereader/internal/llm"
	"github.com/liliang-cn/synergereader/internal/prompt"
	"github.com/liliang-cn/synergereader/internal/retrieval"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Embedder embeds a single text, degrading to a zero vector on failure
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Generator streams a completion
type Generator interface {
	GenerateStream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Token, error)
}

// ChunkSource lists the rankable corpus
type ChunkSource interface {
	ListChunks(ctx context.Context) ([]domain.CorpusChunk, error)
}

// HistoryStore reads and appends chat history
type HistoryStore interface {
	Recent(ctx context.Context, userID int64, limit int) ([]domain.ChatHistoryEntry, error)
	Create(ctx context.Context, entry *domain.ChatHistoryEntry) error
}

// KnowledgeSource reads knowledge-base entries
type KnowledgeSource interface {
	Recent(ctx context.Context, limit int) ([]domain.KnowledgeBaseEntry, error)
}

// TokenResolver maps an auth token to a user ID
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (int64, error)
}

// AskOptions holds the answer pipeline parameters
type AskOptions struct {
	TopK           int
	HistoryLimit   int
	KnowledgeLimit int
	RecentRows     int
	MaxTokens      int
	Temperature    float64
	PersistTimeout time.Duration
	// OnOutcome, when set, observes every finished stream after it is logged.
	// It runs on the stream goroutine and must not block.
	OnOutcome func(AskOutcome)
}

// AskDeps are the collaborators of an AskService
type AskDeps struct {
	Embedder  Embedder
	Generator Generator
	Chunks    ChunkSource
	History   HistoryStore
	Knowledge KnowledgeSource
	Users     TokenResolver
	Gate      *retrieval.Gate
}

// AskService answers questions from retrieved evidence and streams the answer
type AskService struct {
	opts   AskOptions
	deps   AskDeps
	logger *zap.Logger
}

// NewAskService creates a new ask service
func NewAskService(opts AskOptions, deps AskDeps, logger *zap.Logger) *AskService {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 3
	}
	if opts.KnowledgeLimit <= 0 {
		opts.KnowledgeLimit = 3
	}
	if opts.RecentRows <= 0 {
		opts.RecentRows = 20
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AskService{opts: opts, deps: deps, logger: logger}
}

// Ask gathers evidence for req and starts streaming the answer. An error is
// returned only if the stream could not start; once the channel is returned it
// carries one ContextFrame, any number of TokenFrames and exactly one terminal
// frame before closing.
func (s *AskService) Ask(ctx context.Context, req domain.AskRequest) (<-chan domain.StreamEvent, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, &domain.EmptyInputError{What: "question"}
	}

	st, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.StreamEvent, 16)
	go func() {
		outcome := s.stream(ctx, st, out)
		s.logOutcome(outcome)
		if s.opts.OnOutcome != nil {
			s.opts.OnOutcome(outcome)
		}
	}()

	return out, nil
}

// gathered is what the independent retrieval stages produce
type gathered struct {
	owner     int64
	history   []domain.HistoryMatch
	knowledge []domain.KnowledgeMatch
	ranking   retrieval.Ranking
}

// prepare runs retrieval, the relevance gate and prompt assembly
func (s *AskService) prepare(ctx context.Context, req domain.AskRequest) (askState, error) {
	var g gathered

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		g.owner = s.resolveOwner(gctx, req.AuthToken)
		entries, err := s.deps.History.Recent(gctx, g.owner, s.opts.RecentRows)
		if err != nil {
			s.logger.Warn("History unavailable, answering without it", zap.Error(err))
			return nil
		}
		g.history = retrieval.ScoreHistory(req.Question, req.SelectedText, entries, s.opts.HistoryLimit)
		return nil
	})

	group.Go(func() error {
		entries, err := s.deps.Knowledge.Recent(gctx, s.opts.RecentRows)
		if err != nil {
			s.logger.Warn("Knowledge base unavailable, answering without it", zap.Error(err))
			return nil
		}
		g.knowledge = retrieval.ScoreKnowledge(req.Question, entries, s.opts.KnowledgeLimit)
		return nil
	})

	group.Go(func() error {
		ranking, err := s.rank(gctx, req.Question)
		g.ranking = ranking
		return err
	})

	if err := group.Wait(); err != nil {
		return askState{}, err
	}

	decision := s.deps.Gate.Decide(ctx, req.Question, g.ranking)

	citations := make(domain.CitationList, len(decision.Evidence))
	texts := make([]string, len(decision.Evidence))
	for i, e := range decision.Evidence {
		citations[i] = e.Citation
		texts[i] = e.Text
	}

	s.logger.Info("Evidence selected",
		zap.String("source", decision.Source.String()),
		zap.Int("evidence", len(decision.Evidence)),
		zap.Float64("similarity", decision.SimilarityScore),
		zap.Int("history_hits", len(g.history)),
		zap.Int("knowledge_hits", len(g.knowledge)),
	)

	return askState{
		phase:   phaseBuilt,
		request: req,
		owner:   g.owner,
		prompt: prompt.Build(prompt.Input{
			Knowledge:    g.knowledge,
			Evidence:     texts,
			SelectedText: req.SelectedText,
			Question:     req.Question,
		}),
		context: domain.ContextFrame{
			ContextChunks:      texts,
			Citations:          citations,
			APACitations:       citation.FormatAll(citations),
			HasExternalSources: decision.HasExternalSources,
			SimilarityScore:    decision.SimilarityScore,
			CitationNote:       decision.Note,
			RelevantHistory:    g.history,
		},
	}, nil
}

// rank embeds the question and ranks the stored corpus against it
func (s *AskService) rank(ctx context.Context, question string) (retrieval.Ranking, error) {
	chunks, err := s.deps.Chunks.ListChunks(ctx)
	if err != nil {
		return retrieval.Ranking{}, err
	}
	if len(chunks) == 0 {
		s.logger.Debug("Nothing to rank", zap.Error(&domain.EmptyInputError{What: "corpus"}))
		return retrieval.Ranking{}, nil
	}

	query := s.deps.Embedder.Embed(ctx, question)

	corpus := make([]retrieval.Candidate, len(chunks))
	for i, c := range chunks {
		corpus[i] = retrieval.Candidate{Text: c.Text, Vector: c.Embedding, Citation: c.Citation()}
	}

	ranking := retrieval.Rank(query, corpus, s.opts.TopK)
	if err := ranking.MismatchError(len(query)); err != nil {
		s.logger.Warn("Skipped stored vectors", zap.Error(err))
	}
	if ranking.ZeroQuery {
		s.logger.Warn("Question embedding has zero norm, no document evidence")
	}
	return ranking, nil
}

func (s *AskService) resolveOwner(ctx context.Context, token string) int64 {
	if s.deps.Users == nil {
		return domain.AnonymousUserID
	}
	id, err := s.deps.Users.ResolveToken(ctx, token)
	if err != nil {
		s.logger.Warn("Token lookup failed, answering anonymously", zap.Error(err))
		return domain.AnonymousUserID
	}
	return id
}

func (s *AskService) logOutcome(o AskOutcome) {
	fields := []zap.Field{
		zap.String("phase", o.Phase.String()),
		zap.Int64("entry_id", o.EntryID),
		zap.Int("answer_bytes", len(o.Answer)),
	}
	switch {
	case o.Err == nil:
		s.logger.Info("Answer stream finished", fields...)
	case errors.Is(o.Err, context.Canceled):
		s.logger.Info("Answer stream cancelled by caller", fields...)
	default:
		s.logger.Error("Answer stream failed", append(fields, zap.Error(o.Err))...)
	}
}
