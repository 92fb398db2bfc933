package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/careerbot/internal/domain"
	"github.com/ashureev/careerbot/internal/lead"
	"github.com/ashureev/careerbot/internal/provider"
	"github.com/ashureev/careerbot/internal/session"
	"github.com/ashureev/careerbot/internal/setup"
	"github.com/ashureev/careerbot/internal/store"
)

type fixture struct {
	svc      *Service
	sessions *session.Manager
	leads    *lead.Book
	setups   *setup.Registry
	chatgpt  *provider.Mock
	deepseek *provider.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemory()

	sessions, err := session.NewManager(ctx, repo)
	require.NoError(t, err)
	leads, err := lead.NewBook(ctx, repo)
	require.NoError(t, err)
	setups, err := setup.NewRegistry(ctx, repo)
	require.NoError(t, err)
	require.NoError(t, setups.Save(ctx, domain.Setup{
		ChannelID:    "c1",
		UserID:       "owner",
		BusinessName: "Acme",
		Fields:       []string{"name", "email"},
	}))

	chatgpt := provider.NewMock(provider.ChatGPT)
	deepseek := provider.NewMock(provider.DeepSeek)
	providers, err := provider.NewRegistry(provider.ChatGPT, chatgpt, deepseek)
	require.NoError(t, err)

	return &fixture{
		svc:      NewService(sessions, leads, setups, providers),
		sessions: sessions,
		leads:    leads,
		setups:   setups,
		chatgpt:  chatgpt,
		deepseek: deepseek,
	}
}

func chat(message string) ChatRequest {
	return ChatRequest{UserID: "u1", ChannelID: "c1", Message: message}
}

const sessionKey = "c1_u1"

func (f *fixture) session(t *testing.T) *domain.Session {
	t.Helper()
	s, ok := f.sessions.Get(sessionKey)
	require.True(t, ok, "session not found")
	return s
}

func collect(t *testing.T, f *fixture, req ChatRequest) []Event {
	t.Helper()
	events, err := f.svc.Stream(context.Background(), req)
	require.NoError(t, err)
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}
