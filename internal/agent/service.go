package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/careerbot/internal/closesignal"
	"github.com/ashureev/careerbot/internal/datablock"
	"github.com/ashureev/careerbot/internal/domain"
	"github.com/ashureev/careerbot/internal/identity"
	"github.com/ashureev/careerbot/internal/lead"
	"github.com/ashureev/careerbot/internal/metrics"
	"github.com/ashureev/careerbot/internal/provider"
	"github.com/ashureev/careerbot/internal/session"
	"github.com/ashureev/careerbot/internal/setup"
)

// Service runs chat turns.
type Service struct {
	sessions  *session.Manager
	leads     *lead.Book
	setups    *setup.Registry
	providers *provider.Registry
}

// NewService wires a chat service.
func NewService(sessions *session.Manager, leads *lead.Book, setups *setup.Registry, providers *provider.Registry) *Service {
	return &Service{
		sessions:  sessions,
		leads:     leads,
		setups:    setups,
		providers: providers,
	}
}

// turnContext is the state shared by the blocking and streaming paths.
type turnContext struct {
	id       identity.Identity
	sess     *domain.Session
	created  bool
	message  string
	provider provider.Provider
}

// begin validates the request, resolves the setup and opens the session.
func (s *Service) begin(ctx context.Context, req ChatRequest) (*turnContext, error) {
	id := req.Identity()
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	cfg, ok := s.setups.ForChannel(id.ChannelID)
	if !ok {
		return nil, fmt.Errorf("%w: channel %s", ErrSetupNotFound, id.ChannelID)
	}

	prompt, err := setup.BuildContext(cfg)
	if err != nil {
		return nil, err
	}

	sess, created, err := s.sessions.Open(ctx, id, prompt)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if created {
		slog.Info("Conversation started", "user_id", id.UserID, "channel_id", id.ChannelID)
	}

	return &turnContext{
		id:       id,
		sess:     sess,
		created:  created,
		message:  strings.TrimSpace(req.Message),
		provider: s.providers.Resolve(req.Model),
	}, nil
}

// replay returns the visible text of the last assistant turn when an empty
// message arrives for a session that already has one.
func (t *turnContext) replay() (string, bool) {
	if t.message != "" || t.created {
		return "", false
	}
	last, ok := t.sess.LastAssistant()
	if !ok {
		return "", false
	}
	return datablock.Strip(last.Content), true
}

// Reply runs one blocking chat turn.
func (s *Service) Reply(ctx context.Context, req ChatRequest) (Reply, error) {
	t, err := s.begin(ctx, req)
	if errors.Is(err, ErrSetupNotFound) {
		return Reply{Text: SetupMissingReply}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	if t.sess.Closed {
		return Reply{Text: ClosedNoticeReply, Closed: true}, nil
	}
	if text, ok := t.replay(); ok {
		return Reply{Text: text}, nil
	}

	if t.message != "" {
		sess, err := s.sessions.Append(ctx, t.sess.Key, domain.Turn{Role: domain.RoleUser, Content: t.message})
		if err != nil {
			return s.appendFailed(err)
		}
		t.sess = sess
	}

	completion, err := t.provider.Complete(ctx, t.sess.Turns)
	if err != nil {
		metrics.ProviderError(t.provider.Name())
		slog.Error("Provider completion failed", "provider", t.provider.Name(), "user_id", t.id.UserID, "error", err)
		text := fmt.Sprintf(providerErrorReply, t.provider.Name(), err)
		if _, err := s.sessions.Append(ctx, t.sess.Key, domain.Turn{Role: domain.RoleAssistant, Content: text}); err != nil {
			return s.appendFailed(err)
		}
		return Reply{Text: text}, nil
	}

	if d, path, ok := directiveFromCompletion(completion); ok {
		if _, err := s.closeSession(ctx, t, d.Message, path); err != nil {
			return s.appendFailed(err)
		}
		payload := d.Payload()
		return Reply{Close: &payload}, nil
	}

	raw := completion.Text
	if strings.TrimSpace(raw) == "" {
		raw = NoUsableReply
	}
	if _, err := s.sessions.Append(ctx, t.sess.Key, domain.Turn{Role: domain.RoleAssistant, Content: raw}); err != nil {
		return s.appendFailed(err)
	}
	if err := s.captureLead(ctx, t.id, raw); err != nil {
		return Reply{}, err
	}
	return Reply{Text: datablock.Strip(raw)}, nil
}

// directiveFromCompletion recognizes a close on the blocking path. A textual
// marker only counts when its message can be recovered.
func directiveFromCompletion(c provider.Completion) (closesignal.Directive, string, bool) {
	if c.Call != nil {
		if d, ok := closesignal.FromFunctionCall(c.Call.Name, c.Call.Arguments); ok {
			return d, metrics.CloseFunction, true
		}
	}
	if closesignal.HasMarker(c.Text) {
		if d, ok := closesignal.Recover(c.Text); ok {
			return d, metrics.CloseRecover, true
		}
	}
	return closesignal.Directive{}, "", false
}

func (s *Service) closeSession(ctx context.Context, t *turnContext, message, path string) (*domain.Session, error) {
	sess, err := s.sessions.Close(ctx, t.sess.Key, message)
	if err != nil {
		return nil, err
	}
	metrics.ConversationClosed(path)
	slog.Info("Conversation closed by assistant", "user_id", t.id.UserID, "channel_id", t.id.ChannelID, "path", path)
	return sess, nil
}

// captureLead extracts the data block of raw and merges it into the lead.
func (s *Service) captureLead(ctx context.Context, id identity.Identity, raw string) error {
	fields := datablock.Extract(raw)
	_, changed, err := s.leads.Upsert(ctx, id.UserID, id.ChannelID, fields)
	if err != nil {
		return err
	}
	if changed {
		metrics.LeadUpserted()
	}
	return nil
}

func (s *Service) appendFailed(err error) (Reply, error) {
	if errors.Is(err, session.ErrSessionClosed) {
		return Reply{Text: ClosedNoticeReply, Closed: true}, nil
	}
	return Reply{}, err
}

// History returns the visible transcript for id: system turns are omitted
// and data blocks are stripped from assistant turns.
func (s *Service) History(id identity.Identity) (History, error) {
	if err := id.Validate(); err != nil {
		return History{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	out := History{History: []HistoryEntry{}}
	sess, ok := s.sessions.Get(id.Key())
	if !ok {
		return out, nil
	}
	for _, turn := range sess.Turns {
		switch turn.Role {
		case domain.RoleSystem:
			continue
		case domain.RoleAssistant:
			out.History = append(out.History, HistoryEntry{Role: string(turn.Role), Content: datablock.Strip(turn.Content)})
		default:
			out.History = append(out.History, HistoryEntry{Role: string(turn.Role), Content: turn.Content})
		}
	}
	out.ChatClosed = sess.Closed
	return out, nil
}
