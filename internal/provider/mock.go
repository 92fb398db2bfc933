package provider

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ashureev/careerbot/internal/datablock"
	"github.com/ashureev/careerbot/internal/domain"
)

// Mock is an offline provider. Scripted responses are served in order;
// once they run out it echoes the last user turn followed by a data block.
type Mock struct {
	name string

	mu          sync.Mutex
	completions []Completion
	streams     [][]Fragment
	err         error

	calls atomic.Int64
}

// NewMock returns a mock registered under name.
func NewMock(name string) *Mock {
	if name == "" {
		name = MockName
	}
	return &Mock{name: name}
}

// QueueCompletion schedules a blocking reply.
func (m *Mock) QueueCompletion(c Completion) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, c)
	return m
}

// QueueStream schedules a streamed reply.
func (m *Mock) QueueStream(frags ...Fragment) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, frags)
	return m
}

// FailWith makes every subsequent call fail with err.
func (m *Mock) FailWith(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Calls returns how many requests were made.
func (m *Mock) Calls() int { return int(m.calls.Load()) }

// Name returns the registry name.
func (m *Mock) Name() string { return m.name }

// Complete returns the next scripted completion.
func (m *Mock) Complete(ctx context.Context, turns []domain.Turn) (Completion, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Completion{}, m.err
	}
	if len(m.completions) > 0 {
		c := m.completions[0]
		m.completions = m.completions[1:]
		return c, nil
	}
	return Completion{Text: echo(turns)}, nil
}

// Stream yields the next scripted fragment list.
func (m *Mock) Stream(ctx context.Context, turns []domain.Turn) iter.Seq2[Fragment, error] {
	m.calls.Add(1)

	m.mu.Lock()
	err := m.err
	var frags []Fragment
	if err == nil {
		if len(m.streams) > 0 {
			frags = m.streams[0]
			m.streams = m.streams[1:]
		} else {
			for _, word := range strings.SplitAfter(echo(turns), " ") {
				frags = append(frags, Fragment{Text: word})
			}
		}
	}
	m.mu.Unlock()

	return func(yield func(Fragment, error) bool) {
		if err != nil {
			yield(Fragment{}, err)
			return
		}
		for _, f := range frags {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(Fragment{}, ctxErr)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func echo(turns []domain.Turn) string {
	last := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleUser {
			last = turns[i].Content
			break
		}
	}
	if last == "" {
		return "Hello! How can I help you today?"
	}
	return fmt.Sprintf("You said: %s %s{\"last_message\": %q}%s", last, datablock.Start, last, datablock.End)
}
