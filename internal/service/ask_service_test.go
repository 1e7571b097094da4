package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/liliang-cn/synergereader/internal/domain"
	"github.com/liliang-cn/synergereader/internal/retrieval"
	"go.uber.org/zap/zaptest"
)

type askFixture struct {
	embedder  *fakeEmbedder
	generator *fakeGenerator
	chunks    *fakeChunks
	history   *fakeHistory
	knowledge *fakeKnowledge
	users     *fakeUsers
	searcher  *fakeSearcher
	outcomes  chan AskOutcome
}

func newAskFixture() *askFixture {
	return &askFixture{
		embedder:  &fakeEmbedder{vec: []float32{1, 0}},
		generator: &fakeGenerator{tokens: []string{"Hel", "lo"}},
		chunks: &fakeChunks{chunks: []domain.CorpusChunk{{
			Chunk:    domain.Chunk{ID: 1, DocumentID: 1, Text: "the atlas chunk", Embedding: []float32{1, 0}},
			Filename: "atlas.txt",
			Metadata: domain.DocumentMetadata{Title: "Atlas"},
		}}},
		history:   &fakeHistory{},
		knowledge: &fakeKnowledge{},
		users:     &fakeUsers{tokens: map[string]int64{"tok": 9}},
		searcher: &fakeSearcher{results: []domain.WebResult{
			{Title: "Web", URL: "http://e.com", Snippet: "web snippet"},
		}},
		outcomes: make(chan AskOutcome, 1),
	}
}

func (f *askFixture) service(t *testing.T) *AskService {
	logger := zaptest.NewLogger(t)
	gate := retrieval.NewGate(retrieval.GateOptions{
		Threshold: 0.75,
		Limit:     3,
		Searcher:  f.searcher,
		Now:       func() time.Time { return time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC) },
		Logger:    logger,
	})
	svc := NewAskService(AskOptions{
		MaxTokens:   1000,
		Temperature: 0.7,
		OnOutcome:   func(o AskOutcome) { f.outcomes <- o },
	}, AskDeps{
		Embedder:  f.embedder,
		Generator: f.generator,
		Chunks:    f.chunks,
		History:   f.history,
		Knowledge: f.knowledge,
		Users:     f.users,
		Gate:      gate,
	}, logger)
	return svc
}

func (f *askFixture) outcome(t *testing.T) AskOutcome {
	t.Helper()
	select {
	case o := <-f.outcomes:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for outcome")
	}
	return AskOutcome{}
}

// drain reads every frame and checks the stream layout: one context frame
// first, tokens, then exactly one terminal frame last.
func drain(t *testing.T, ch <-chan domain.StreamEvent) (domain.ContextFrame, string, domain.StreamEvent) {
	t.Helper()

	var frames []domain.StreamEvent
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-ch:
			if !ok {
				done = true
				break
			}
			frames = append(frames, ev)
		case <-timeout:
			t.Fatal("timeout draining stream")
		}
	}

	if len(frames) < 2 {
		t.Fatalf("expected at least context and terminal frames, got %d", len(frames))
	}
	ctxFrame, ok := frames[0].(domain.ContextFrame)
	if !ok {
		t.Fatalf("expected context frame first, got %T", frames[0])
	}
	terminal := frames[len(frames)-1]
	if !domain.IsTerminal(terminal) {
		t.Fatalf("expected terminal frame last, got %T", terminal)
	}

	var text strings.Builder
	for _, ev := range frames[1 : len(frames)-1] {
		tok, ok := ev.(domain.TokenFrame)
		if !ok {
			t.Fatalf("expected only tokens between context and terminal, got %T", ev)
		}
		text.WriteString(tok.Text)
	}
	return ctxFrame, text.String(), terminal
}

func TestAsk_EmptyQuestion(t *testing.T) {
	svc := newAskFixture().service(t)

	_, err := svc.Ask(context.Background(), domain.AskRequest{Question: "   "})
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Errorf("expected empty input error, got %v", err)
	}
}

func TestAsk_InternalEvidenceCompletes(t *testing.T) {
	f := newAskFixture()
	svc := f.service(t)

	ch, err := svc.Ask(context.Background(), domain.AskRequest{
		Question:     "what is in the atlas",
		SelectedText: "maps",
		AuthToken:    "tok",
	})
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	ctxFrame, text, terminal := drain(t, ch)

	if ctxFrame.HasExternalSources || ctxFrame.SimilarityScore != 1 {
		t.Errorf("expected internal evidence with similarity 1, got %+v", ctxFrame)
	}
	if len(ctxFrame.ContextChunks) != 1 || ctxFrame.ContextChunks[0] != "the atlas chunk" {
		t.Errorf("unexpected context chunks %v", ctxFrame.ContextChunks)
	}
	if len(ctxFrame.APACitations) != 1 || ctxFrame.APACitations[0] != "(n.d.). *Atlas*" {
		t.Errorf("unexpected citations %v", ctxFrame.APACitations)
	}
	if f.searcher.calls != 0 {
		t.Errorf("expected no web search, got %d calls", f.searcher.calls)
	}
	if text != "Hello" {
		t.Errorf("expected streamed text Hello, got %q", text)
	}

	done, ok := terminal.(domain.CompletionFrame)
	if !ok {
		t.Fatalf("expected completion frame, got %#v", terminal)
	}

	created := f.history.createdEntries()
	if len(created) != 1 {
		t.Fatalf("expected one persisted entry, got %d", len(created))
	}
	if created[0].ID != done.EntryID || created[0].Answer != "Hello" || created[0].UserID != 9 {
		t.Errorf("unexpected persisted entry %+v (completion id %d)", created[0], done.EntryID)
	}
	if created[0].SelectedText != "maps" {
		t.Errorf("expected selected text to be stored, got %q", created[0].SelectedText)
	}

	if o := f.outcome(t); !o.Completed() || o.EntryID != done.EntryID {
		t.Errorf("unexpected outcome %+v", o)
	}
}

func TestAsk_EmptyCorpusUsesWebSearch(t *testing.T) {
	f := newAskFixture()
	f.chunks.chunks = nil
	svc := f.service(t)

	ch, err := svc.Ask(context.Background(), domain.AskRequest{Question: "anything"})
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	ctxFrame, _, _ := drain(t, ch)

	if !ctxFrame.HasExternalSources {
		t.Error("expected external sources for empty corpus")
	}
	if len(ctxFrame.APACitations) != 1 || ctxFrame.APACitations[0] != "*Web*. (2024, May 1). Retrieved from http://e.com" {
		t.Errorf("unexpected citations %v", ctxFrame.APACitations)
	}
	if !strings.Contains(f.generator.lastPrompt(), "web snippet") {
		t.Error("expected web snippet in prompt")
	}
}

func TestAsk_WeakEvidenceWithoutSearchResultsFallsBack(t *testing.T) {
	f := newAskFixture()
	f.embedder.vec = []float32{1, 1}
	f.chunks.chunks[0].Embedding = []float32{1, -0.5}
	f.searcher.results = nil
	svc := f.service(t)

	ch, _ := svc.Ask(context.Background(), domain.AskRequest{Question: "q"})
	ctxFrame, _, _ := drain(t, ch)

	if ctxFrame.HasExternalSources {
		t.Error("expected document fallback")
	}
	if ctxFrame.SimilarityScore >= 0.75 {
		t.Errorf("expected low similarity, got %v", ctxFrame.SimilarityScore)
	}
	if !strings.Contains(ctxFrame.CitationNote, "low-relevance") {
		t.Errorf("expected low-relevance note, got %q", ctxFrame.CitationNote)
	}
	if f.searcher.calls != 1 {
		t.Errorf("expected one search attempt, got %d", f.searcher.calls)
	}
}

func TestAsk_PromptCarriesKnowledgeButNotCitations(t *testing.T) {
	f := newAskFixture()
	f.knowledge.entries = []domain.KnowledgeBaseEntry{
		{Question: "what is in the atlas", CorrectedAnswer: "maps of the world"},
	}
	svc := f.service(t)

	ch, _ := svc.Ask(context.Background(), domain.AskRequest{Question: "what is in the atlas"})
	drain(t, ch)

	p := f.generator.lastPrompt()
	if !strings.Contains(p, "<knowledge_base>") || !strings.Contains(p, "maps of the world") {
		t.Errorf("expected knowledge block in prompt:\n%s", p)
	}
	if strings.Contains(p, "*Atlas*") || strings.Contains(p, "(n.d.)") {
		t.Errorf("citations leaked into prompt:\n%s", p)
	}
}

func TestAsk_GenerationFailsToStart(t *testing.T) {
	f := newAskFixture()
	f.generator.startErr = &domain.TransportError{Backend: "generation", Err: errBoom}
	svc := f.service(t)

	ch, err := svc.Ask(context.Background(), domain.AskRequest{Question: "q"})
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	_, text, terminal := drain(t, ch)

	if text != "" {
		t.Errorf("expected no tokens, got %q", text)
	}
	if _, ok := terminal.(domain.ErrorFrame); !ok {
		t.Errorf("expected error frame, got %#v", terminal)
	}
	if n := len(f.history.createdEntries()); n != 0 {
		t.Errorf("expected nothing persisted, got %d", n)
	}
}

func TestAsk_GenerationFailsMidStream(t *testing.T) {
	f := newAskFixture()
	f.generator.midErr = &domain.TransportError{Backend: "generation", Err: errBoom}
	svc := f.service(t)

	ch, _ := svc.Ask(context.Background(), domain.AskRequest{Question: "q"})
	_, text, terminal := drain(t, ch)

	if text != "Hello" {
		t.Errorf("expected tokens before the failure, got %q", text)
	}
	e, ok := terminal.(domain.ErrorFrame)
	if !ok || !strings.Contains(e.Message, "boom") {
		t.Errorf("expected error frame mentioning the failure, got %#v", terminal)
	}
	if n := len(f.history.createdEntries()); n != 0 {
		t.Errorf("expected nothing persisted, got %d", n)
	}
}

func TestAsk_PersistenceFailureReportedAfterTokens(t *testing.T) {
	f := newAskFixture()
	f.history.createErr = &domain.PersistenceError{Op: "insert history entry", Err: errBoom}
	svc := f.service(t)

	ch, _ := svc.Ask(context.Background(), domain.AskRequest{Question: "q"})
	_, text, terminal := drain(t, ch)

	if text != "Hello" {
		t.Errorf("expected the tokens to be delivered, got %q", text)
	}
	if _, ok := terminal.(domain.ErrorFrame); !ok {
		t.Errorf("expected error frame, got %#v", terminal)
	}

	o := f.outcome(t)
	var persistErr *domain.PersistenceError
	if !errors.As(o.Err, &persistErr) {
		t.Errorf("expected outcome to carry the persistence error, got %v", o.Err)
	}
}

func TestAsk_EmptyAnswerIsAnError(t *testing.T) {
	f := newAskFixture()
	f.generator.tokens = nil
	svc := f.service(t)

	ch, _ := svc.Ask(context.Background(), domain.AskRequest{Question: "q"})
	_, _, terminal := drain(t, ch)

	if _, ok := terminal.(domain.ErrorFrame); !ok {
		t.Errorf("expected error frame, got %#v", terminal)
	}
}

func TestAsk_CallerCancelPersistsPartialAnswer(t *testing.T) {
	f := newAskFixture()
	f.generator.tokens = []string{"partial"}
	f.generator.hold = true
	svc := f.service(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.Ask(ctx, domain.AskRequest{Question: "q"})
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if _, ok := (<-ch).(domain.ContextFrame); !ok {
		t.Fatal("expected context frame first")
	}
	if tok, ok := (<-ch).(domain.TokenFrame); !ok || tok.Text != "partial" {
		t.Fatalf("expected partial token, got %#v", tok)
	}
	cancel()

	o := f.outcome(t)
	if !errors.Is(o.Err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", o.Err)
	}

	created := f.history.createdEntries()
	if len(created) != 1 || created[0].Answer != "partial" {
		t.Errorf("expected the partial answer to be persisted, got %+v", created)
	}
}

func TestAsk_HistoryAndKnowledgeFailuresAreNotFatal(t *testing.T) {
	f := newAskFixture()
	f.knowledge.err = errBoom
	f.users.err = errBoom
	svc := f.service(t)

	ch, err := svc.Ask(context.Background(), domain.AskRequest{Question: "q", AuthToken: "tok"})
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	_, _, terminal := drain(t, ch)

	if _, ok := terminal.(domain.CompletionFrame); !ok {
		t.Fatalf("expected completion, got %#v", terminal)
	}
	if created := f.history.createdEntries(); created[0].UserID != domain.AnonymousUserID {
		t.Errorf("expected anonymous owner after lookup failure, got %d", created[0].UserID)
	}
}

func TestAsk_CorpusReadFailure(t *testing.T) {
	f := newAskFixture()
	f.chunks.err = &domain.PersistenceError{Op: "list chunks", Err: errBoom}
	svc := f.service(t)

	if _, err := svc.Ask(context.Background(), domain.AskRequest{Question: "q"}); err == nil {
		t.Error("expected error when the corpus cannot be read")
	}
}

func TestAsk_RelevantHistoryInContext(t *testing.T) {
	f := newAskFixture()
	f.history.entries = []domain.ChatHistoryEntry{
		{ID: 1, UserID: 9, Question: "atlas maps", Answer: "a"},
		{ID: 2, UserID: 9, Question: "unrelated", Answer: "b"},
		{ID: 3, UserID: 4, Question: "atlas maps", Answer: "other user"},
	}
	svc := f.service(t)

	ch, _ := svc.Ask(context.Background(), domain.AskRequest{Question: "atlas", AuthToken: "tok"})
	ctxFrame, _, _ := drain(t, ch)

	if len(ctxFrame.RelevantHistory) != 1 || ctxFrame.RelevantHistory[0].Entry.ID != 1 {
		t.Errorf("expected only the caller's overlapping entry, got %+v", ctxFrame.RelevantHistory)
	}
}
