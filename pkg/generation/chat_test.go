package generation

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/easyops/verba-go/pkg/core/config"
	"github.com/easyops/verba-go/pkg/core/errors"
	"github.com/easyops/verba-go/pkg/core/llm"
	"github.com/easyops/verba-go/pkg/core/message"
)

// mockProvider is a mock implementation of llm.Provider for testing
type mockProvider struct {
	content string
	chunks  []llm.StreamChunk
	err     error

	mu     sync.Mutex
	req    llm.Request
	closed bool
}

func (p *mockProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	p.mu.Lock()
	p.req = req
	p.mu.Unlock()
	if p.err != nil {
		return llm.Response{}, p.err
	}
	return llm.Response{Content: p.content}, nil
}

func (p *mockProvider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, <-chan error) {
	p.mu.Lock()
	p.req = req
	p.mu.Unlock()

	chunkCh := make(chan llm.StreamChunk)
	errCh := make(chan error, 1)
	go func() {
		defer close(chunkCh)
		defer close(errCh)
		for _, c := range p.chunks {
			select {
			case chunkCh <- c:
			case <-ctx.Done():
				return
			}
		}
		if p.err != nil {
			errCh <- p.err
		}
	}()
	return chunkCh, errCh
}

func (p *mockProvider) Name() string  { return "mock" }
func (p *mockProvider) Model() string { return "mock-model" }
func (p *mockProvider) Close() error {
	p.closed = true
	return nil
}

func (p *mockProvider) lastRequest() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req
}

func TestNewChatGenerator_NilProvider(t *testing.T) {
	if _, err := NewChatGenerator(nil); err != errors.ErrProviderUnavailable {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestChatGenerator_BuildsPrompt(t *testing.T) {
	p := &mockProvider{content: "Verba is a RAG app"}
	g, err := NewChatGenerator(p, WithTemperature(0.2))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	conv := message.Conversation{
		message.NewTurn(message.TurnUser, "hello", false),
		message.NewTurn(message.TurnSystem, "hi there", true),
		message.NewTurn(message.TurnUser, "", false),
	}
	answer, err := g.Generate(context.Background(), []string{"What is", "Verba?"}, []string{"Verba docs.", "More docs."}, conv)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if answer != "Verba is a RAG app" {
		t.Fatalf("unexpected answer %q", answer)
	}

	req := p.lastRequest()
	if len(req.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(req.Messages), req.Messages)
	}
	if req.Messages[0].Role != message.RoleSystem || req.Messages[0].Content != DefaultSystemPrompt {
		t.Fatalf("unexpected system message %+v", req.Messages[0])
	}
	if req.Messages[1].Role != message.RoleUser || req.Messages[2].Role != message.RoleAssistant {
		t.Fatalf("unexpected history roles %s, %s", req.Messages[1].Role, req.Messages[2].Role)
	}
	last := req.Messages[3]
	want := "Please answer this query: 'What is Verba?' with this provided context: Verba docs. More docs."
	if last.Role != message.RoleUser || last.Content != want {
		t.Fatalf("unexpected query message %+v", last)
	}
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", req.Temperature)
	}
}

func TestChatGenerator_NoContext(t *testing.T) {
	p := &mockProvider{content: "ok"}
	g, _ := NewChatGenerator(p, WithSystemPrompt(""))

	if _, err := g.Generate(context.Background(), []string{"ping"}, nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	req := p.lastRequest()
	if len(req.Messages) != 1 || req.Messages[0].Content != "Please answer this query: 'ping'" {
		t.Fatalf("unexpected messages %+v", req.Messages)
	}
}

func TestChatGenerator_GenerateError(t *testing.T) {
	p := &mockProvider{err: errors.ErrInvalidAPIKey}
	g, _ := NewChatGenerator(p)

	if _, err := g.Generate(context.Background(), []string{"q"}, nil, nil); !stderrors.Is(err, errors.ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestChatGenerator_Stream(t *testing.T) {
	p := &mockProvider{chunks: []llm.StreamChunk{
		{Content: "The"},
		{Content: " answer"},
		{Content: ""},
		{Content: " is"},
		{Content: " 42", Done: true, FinishReason: "stop"},
	}}
	g, _ := NewChatGenerator(p)

	chunks, errs := g.GenerateStream(context.Background(), []string{"q"}, nil, nil)

	var got []string
	for c := range chunks {
		got = append(got, c)
	}
	if err := <-errs; err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Join(got, "|") != "The| answer| is| 42" {
		t.Fatalf("unexpected chunks %q", got)
	}
}

func TestChatGenerator_StreamError(t *testing.T) {
	p := &mockProvider{chunks: []llm.StreamChunk{{Content: "The"}}, err: errors.ErrRateLimited}
	g, _ := NewChatGenerator(p)

	chunks, errs := g.GenerateStream(context.Background(), []string{"q"}, nil, nil)
	for range chunks {
	}
	if err := <-errs; !stderrors.Is(err, errors.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestBackendPresets(t *testing.T) {
	tests := []struct {
		factory     backendFactory
		name        string
		requiresKey bool
	}{
		{GPT4Backend, config.GeneratorGPT4, true},
		{GPT3Backend, config.GeneratorGPT3, true},
		{Llama2Backend, config.GeneratorLlama2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{}
			b, err := tt.factory(p)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if b.Name != tt.name || b.Description == "" || !b.Streamable {
				t.Fatalf("unexpected backend %+v", b)
			}
			if (len(b.RequiresEnv) > 0) != tt.requiresKey {
				t.Fatalf("unexpected RequiresEnv %v", b.RequiresEnv)
			}
			if err := b.Generator.(*ChatGenerator).Close(); err != nil || !p.closed {
				t.Fatalf("expected provider to be closed, err=%v", err)
			}
		})
	}

	if _, err := GPT4Backend(nil); err != errors.ErrProviderUnavailable {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
