package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liliang-cn/synergereader/internal/domain"
	"github.com/liliang-cn/synergereader/internal/llm"
	"go.uber.org/zap"
)

// Phase is the position of an answer stream in its lifecycle
type Phase int

const (
	phaseBuilt Phase = iota
	phaseContextSent
	phaseStreaming
	phaseCompleted
	phaseFailed
)

func (p Phase) String() string {
	switch p {
	case phaseBuilt:
		return "built"
	case phaseContextSent:
		return "context_sent"
	case phaseStreaming:
		return "streaming"
	case phaseCompleted:
		return "completed"
	case phaseFailed:
		return "failed"
	}
	return "unknown"
}

// askState is owned by one request. prepare fills it, stream advances it.
type askState struct {
	phase   Phase
	request domain.AskRequest
	owner   int64
	prompt  string
	context domain.ContextFrame
	answer  strings.Builder
	entryID int64
}

// AskOutcome summarizes a finished answer stream
type AskOutcome struct {
	Phase   Phase
	Answer  string
	EntryID int64
	Err     error
}

// Completed reports whether the answer was persisted and acknowledged
func (o AskOutcome) Completed() bool {
	return o.Phase == phaseCompleted
}

func (st *askState) outcome(err error) AskOutcome {
	return AskOutcome{Phase: st.phase, Answer: st.answer.String(), EntryID: st.entryID, Err: err}
}

// stream drives st from Built to Completed or Failed, writing frames to out
// and closing it when done.
func (s *AskService) stream(ctx context.Context, st askState, out chan<- domain.StreamEvent) AskOutcome {
	defer close(out)

	emit := func(ev domain.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) AskOutcome {
		st.phase = phaseFailed
		emit(domain.ErrorFrame{Message: err.Error()})
		return st.outcome(err)
	}

	if !emit(st.context) {
		st.phase = phaseFailed
		return st.outcome(ctx.Err())
	}
	st.phase = phaseContextSent

	tokens, err := s.deps.Generator.GenerateStream(ctx, llm.GenerateRequest{
		Model:       st.request.Model,
		Prompt:      st.prompt,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return fail(err)
	}
	st.phase = phaseStreaming

	var streamErr error
	for tok := range tokens {
		if tok.Err != nil {
			streamErr = tok.Err
			continue
		}
		st.answer.WriteString(tok.Content)
		emit(domain.TokenFrame{Text: tok.Content})
	}

	if ctx.Err() != nil {
		// The caller is gone; keep what was generated.
		if st.answer.Len() > 0 {
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PersistTimeout)
			if err := s.persist(pctx, &st); err != nil {
				s.logger.Error("Failed to persist partial answer", zap.Error(err))
			}
			cancel()
		}
		st.phase = phaseFailed
		return st.outcome(ctx.Err())
	}

	if streamErr != nil {
		return fail(streamErr)
	}
	if st.answer.Len() == 0 {
		return fail(&domain.TransportError{Backend: "generation", Err: errors.New("stream ended without any tokens")})
	}

	if err := s.persist(ctx, &st); err != nil {
		return fail(fmt.Errorf("answer was generated but could not be saved: %w", err))
	}

	st.phase = phaseCompleted
	emit(domain.CompletionFrame{EntryID: st.entryID})
	return st.outcome(nil)
}

func (s *AskService) persist(ctx context.Context, st *askState) error {
	entry := &domain.ChatHistoryEntry{
		UserID:       st.owner,
		SelectedText: st.request.SelectedText,
		Question:     st.request.Question,
		Answer:       st.answer.String(),
	}
	if err := s.deps.History.Create(ctx, entry); err != nil {
		return err
	}
	st.entryID = entry.ID
	return nil
}
