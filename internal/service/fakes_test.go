package service

import (
	"context"
	"errors"
	"sync"

	"github.com/liliang-cn/synergereader/internal/domain"
	"github.com/liliang-cn/synergereader/internal/llm"
)

type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) []float32 {
	return f.vec
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out
}

type fakeGenerator struct {
	tokens   []string
	startErr error
	midErr   error
	// hold keeps the stream open after the tokens until ctx is cancelled
	hold bool

	mu      sync.Mutex
	prompts []string
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Token, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}

	ch := make(chan llm.Token)
	go func() {
		defer close(ch)
		for _, t := range f.tokens {
			select {
			case ch <- llm.Token{Content: t}:
			case <-ctx.Done():
				return
			}
		}
		if f.midErr != nil {
			ch <- llm.Token{Err: f.midErr}
			return
		}
		if f.hold {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeChunks struct {
	chunks []domain.CorpusChunk
	err    error
}

func (f *fakeChunks) ListChunks(ctx context.Context) ([]domain.CorpusChunk, error) {
	return f.chunks, f.err
}

type fakeHistory struct {
	mu        sync.Mutex
	entries   []domain.ChatHistoryEntry
	created   []domain.ChatHistoryEntry
	createErr error
	nextID    int64
}

func (f *fakeHistory) Recent(ctx context.Context, userID int64, limit int) ([]domain.ChatHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChatHistoryEntry
	for _, e := range f.entries {
		if e.UserID == userID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistory) Create(ctx context.Context, entry *domain.ChatHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	entry.ID = 100 + f.nextID
	f.created = append(f.created, *entry)
	return nil
}

func (f *fakeHistory) Get(ctx context.Context, id int64) (*domain.ChatHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range append(f.entries, f.created...) {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeHistory) Rate(ctx context.Context, id int64, rating int, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Rating = &rating
			f.entries[i].Comment = comment
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeHistory) createdEntries() []domain.ChatHistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatHistoryEntry(nil), f.created...)
}

type fakeKnowledge struct {
	entries []domain.KnowledgeBaseEntry
	err     error
}

func (f *fakeKnowledge) Recent(ctx context.Context, limit int) ([]domain.KnowledgeBaseEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeKnowledge) Create(ctx context.Context, entry *domain.KnowledgeBaseEntry) error {
	entry.ID = int64(len(f.entries) + 1)
	f.entries = append([]domain.KnowledgeBaseEntry{*entry}, f.entries...)
	return nil
}

func (f *fakeKnowledge) CreateBatch(ctx context.Context, entries []*domain.KnowledgeBaseEntry) error {
	for _, e := range entries {
		f.Create(ctx, e)
	}
	return nil
}

type fakeUsers struct {
	tokens map[string]int64
	err    error
}

func (f *fakeUsers) ResolveToken(ctx context.Context, token string) (int64, error) {
	id, ok, err := f.Lookup(ctx, token)
	if err != nil || !ok {
		return domain.AnonymousUserID, err
	}
	return id, nil
}

func (f *fakeUsers) Lookup(ctx context.Context, token string) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	id, ok := f.tokens[token]
	return id, ok, nil
}

type fakeSearcher struct {
	results []domain.WebResult
	calls   int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) []domain.WebResult {
	f.calls++
	return f.results
}

type fakeDocs struct {
	docs      []*domain.Document
	chunks    map[int64][]domain.Chunk
	createErr error
}

func (f *fakeDocs) Create(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if f.createErr != nil {
		return f.createErr
	}
	doc.ID = int64(len(f.docs) + 1)
	doc.ChunkCount = len(chunks)
	f.docs = append(f.docs, doc)
	if f.chunks == nil {
		f.chunks = make(map[int64][]domain.Chunk)
	}
	f.chunks[doc.ID] = chunks
	return nil
}

func (f *fakeDocs) Get(ctx context.Context, id int64) (*domain.Document, error) {
	for _, d := range f.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeDocs) List(ctx context.Context) ([]*domain.Document, error) {
	return f.docs, nil
}

func (f *fakeDocs) UpdateMetadata(ctx context.Context, id int64, m domain.DocumentMetadata) error {
	for _, d := range f.docs {
		if d.ID == id {
			d.Metadata = m
			return nil
		}
	}
	return domain.ErrNotFound
}

var errBoom = errors.New("boom")
