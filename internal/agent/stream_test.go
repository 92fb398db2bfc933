package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/careerbot/internal/provider"
)

func texts(frags ...string) []provider.Fragment {
	out := make([]provider.Fragment, len(frags))
	for i, s := range frags {
		out[i] = provider.Fragment{Text: s}
	}
	return out
}

func TestStreamSuppressesSplitBlock(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(texts("Hel", "lo <<JS", `ON>>{"name":"A"}<<ENDJSON>>!`)...)

	events := collect(t, f, chat("hi"))
	assert.Equal(t, []Event{ContentEvent("Hel"), ContentEvent("lo "), ContentEvent("!")}, events)

	l, ok := f.leads.Get("u1", "c1")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"name": "A"}, l.Fields)

	last, ok := f.session(t).LastAssistant()
	require.True(t, ok)
	assert.Equal(t, `Hello <<JSON>>{"name":"A"}<<ENDJSON>>!`, last.Content)
}

func TestStreamFunctionCallClose(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(
		provider.Fragment{Text: "Great."},
		provider.Fragment{FunctionName: "close_chat"},
		provider.Fragment{FunctionArgs: `{"end_conversation":`},
		provider.Fragment{FunctionArgs: `"Thanks, bye!"}`},
	)

	events := collect(t, f, chat("that's everything"))
	assert.Equal(t, []Event{ContentEvent("Great."), CloseEvent("Thanks, bye!")}, events)

	s := f.session(t)
	assert.True(t, s.Closed)
	require.Len(t, s.Turns, 3)
	assert.Equal(t, "Thanks, bye!", s.Turns[2].Content)

	_, ok := f.leads.Get("u1", "c1")
	assert.False(t, ok)
}

func TestStreamClosedSessionRejected(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(provider.Fragment{FunctionName: "close_chat", FunctionArgs: `{"end_conversation":"Bye"}`})
	collect(t, f, chat("bye"))
	calls := f.chatgpt.Calls()

	events := collect(t, f, chat("are you there?"))
	assert.Equal(t, []Event{ErrorEvent(ClosedStreamError)}, events)
	assert.Equal(t, calls, f.chatgpt.Calls())
}

func TestStreamLiteralDirectiveFragment(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(texts(
		"Okay. ",
		`{'function': 'close_chat', 'message': 'See you!', 'block_typing': True, 'close_chat': True}`,
		"ignored",
	)...)

	events := collect(t, f, chat("bye"))
	assert.Equal(t, []Event{ContentEvent("Okay. "), CloseEvent("See you!")}, events)
	assert.True(t, f.session(t).Closed)
}

func TestStreamUnrecoverableMarkerStillCloses(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(texts(`Done "close_chat": `, "true")...)

	events := collect(t, f, chat("bye"))
	require.NotEmpty(t, events)
	assert.Equal(t, CloseEvent(""), events[len(events)-1])

	s := f.session(t)
	assert.True(t, s.Closed)
	last, _ := s.LastAssistant()
	assert.Equal(t, `Done "close_chat": true`, last.Content)
}

func TestStreamProviderError(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.FailWith(errors.New("boom"))

	events := collect(t, f, chat("hi"))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Contains(t, events[0].Error, "boom")

	s := f.session(t)
	require.Len(t, s.Turns, 2)
	assert.False(t, s.Closed)
}

func TestStreamEmptyMessageReplaysWithoutProviderCall(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(texts("Welcome! ", "<<JSON>>{}<<ENDJSON>>")...)

	events := collect(t, f, chat(""))
	assert.Equal(t, []Event{ContentEvent("Welcome! ")}, events)
	assert.Equal(t, 1, f.chatgpt.Calls())

	events = collect(t, f, chat(""))
	assert.Equal(t, []Event{ContentEvent("Welcome!")}, events)
	assert.Equal(t, 1, f.chatgpt.Calls())
}

func TestStreamConsumerStopsEarly(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(texts("one ", "two ", "three")...)

	events, err := f.svc.Stream(context.Background(), chat("hi"))
	require.NoError(t, err)
	for range events {
		break
	}

	last, ok := f.session(t).LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "one ", last.Content)
}

func TestStreamRequestErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Stream(context.Background(), ChatRequest{UserID: "u1", ChannelID: "missing"})
	assert.ErrorIs(t, err, ErrSetupNotFound)

	_, err = f.svc.Stream(context.Background(), ChatRequest{UserID: "bad id!", ChannelID: "c1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStreamBlockSplitInsideKey(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(texts("Hel", `lo <<JSON>>{"n`, `ame":"Bob"}<<ENDJSON>>!`)...)

	events := collect(t, f, chat("hi"))
	assert.Equal(t, []Event{ContentEvent("Hel"), ContentEvent("lo "), ContentEvent("!")}, events)

	l, ok := f.leads.Get("u1", "c1")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"name": "Bob"}, l.Fields)
	assert.False(t, f.session(t).Closed)
}

func TestStreamLiteralDirectiveWithApostrophe(t *testing.T) {
	f := newFixture(t)
	f.chatgpt.QueueStream(texts(
		"Perfect. ",
		`{'function': 'close_chat', 'message': "Thanks, it's been great!", 'block_typing': True, 'close_chat': True}`,
	)...)

	events := collect(t, f, chat("that's all"))
	assert.Equal(t, []Event{ContentEvent("Perfect. "), CloseEvent("Thanks, it's been great!")}, events)

	s := f.session(t)
	assert.True(t, s.Closed)
	last, ok := s.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "Thanks, it's been great!", last.Content)
}
