package agent

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/ashureev/careerbot/internal/closesignal"
	"github.com/ashureev/careerbot/internal/datablock"
	"github.com/ashureev/careerbot/internal/domain"
	"github.com/ashureev/careerbot/internal/metrics"
)

// Stream runs one streamed chat turn.
//
// Request-level failures (ErrInvalidRequest, ErrSetupNotFound, persistence
// errors while opening the session) are returned before any event is
// produced. Everything after that, including a closed session, is reported
// as events. The sequence never yields the terminal [DONE] marker; transports
// add it.
func (s *Service) Stream(ctx context.Context, req ChatRequest) (iter.Seq[Event], error) {
	t, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	return func(yield func(Event) bool) {
		// Persistence outlives a client that hangs up mid-stream.
		persistCtx := context.WithoutCancel(ctx)

		if t.sess.Closed {
			yield(ErrorEvent(ClosedStreamError))
			return
		}
		if text, ok := t.replay(); ok {
			yield(ContentEvent(text))
			return
		}

		if t.message != "" {
			sess, err := s.sessions.Append(persistCtx, t.sess.Key, domain.Turn{Role: domain.RoleUser, Content: t.message})
			if err != nil {
				yield(ErrorEvent(err.Error()))
				return
			}
			t.sess = sess
		}

		s.pump(ctx, persistCtx, t, yield)
	}, nil
}

// pump drives the provider stream through the close detector and the
// block scanner, then settles the turn.
func (s *Service) pump(ctx, persistCtx context.Context, t *turnContext, yield func(Event) bool) {
	var (
		raw     strings.Builder
		fnName  string
		fnArgs  strings.Builder
		scanner = datablock.NewScanner()
	)

	// savePartial records whatever the provider produced before the stream
	// stopped early.
	savePartial := func() {
		if raw.Len() == 0 {
			return
		}
		if _, err := s.sessions.Append(persistCtx, t.sess.Key, domain.Turn{Role: domain.RoleAssistant, Content: raw.String()}); err != nil {
			slog.Warn("failed to persist partial reply", "user_id", t.id.UserID, "error", err)
		}
	}

	for frag, err := range t.provider.Stream(ctx, t.sess.Turns) {
		if err != nil {
			metrics.ProviderError(t.provider.Name())
			slog.Error("Provider stream failed", "provider", t.provider.Name(), "user_id", t.id.UserID, "error", err)
			savePartial()
			yield(ErrorEvent(fmt.Sprintf(providerErrorReply, t.provider.Name(), err)))
			return
		}
		metrics.StreamFragment()

		if frag.FunctionName != "" {
			fnName = frag.FunctionName
		}
		fnArgs.WriteString(frag.FunctionArgs)

		if frag.Text == "" {
			continue
		}
		raw.WriteString(frag.Text)

		if d, ok := closesignal.ParseLiteral(frag.Text); ok {
			s.streamClose(persistCtx, t, d.Message, metrics.CloseLiteral, yield)
			return
		}

		for _, part := range scanner.Feed(frag.Text) {
			if !yield(ContentEvent(part)) {
				slog.Info("Stream consumer stopped", "user_id", t.id.UserID, "channel_id", t.id.ChannelID)
				savePartial()
				return
			}
		}
	}

	if d, ok := closesignal.FromFunctionCall(fnName, fnArgs.String()); ok {
		s.streamClose(persistCtx, t, d.Message, metrics.CloseFunction, yield)
		return
	}

	text := raw.String()
	if closesignal.HasMarker(text) {
		if d, ok := closesignal.Recover(text); ok {
			s.streamClose(persistCtx, t, d.Message, metrics.CloseRecover, yield)
			return
		}
		// The marker is there but the message is not: keep the raw text and
		// close anyway with an empty message.
		if _, err := s.closeSession(persistCtx, t, text, metrics.CloseFallback); err != nil {
			yield(ErrorEvent(err.Error()))
			return
		}
		yield(CloseEvent(""))
		return
	}

	if tail := scanner.Flush(); tail != "" {
		if !yield(ContentEvent(tail)) {
			savePartial()
			return
		}
	}

	if text == "" {
		text = NoUsableReply
		if !yield(ContentEvent(text)) {
			return
		}
	}
	if _, err := s.sessions.Append(persistCtx, t.sess.Key, domain.Turn{Role: domain.RoleAssistant, Content: text}); err != nil {
		yield(ErrorEvent(err.Error()))
		return
	}
	if err := s.captureLead(persistCtx, t.id, text); err != nil {
		yield(ErrorEvent(err.Error()))
	}
}

func (s *Service) streamClose(ctx context.Context, t *turnContext, message, path string, yield func(Event) bool) {
	if _, err := s.closeSession(ctx, t, message, path); err != nil {
		yield(ErrorEvent(err.Error()))
		return
	}
	yield(CloseEvent(message))
}
