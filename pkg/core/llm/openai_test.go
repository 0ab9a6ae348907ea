package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/easyops/verba-go/pkg/core/errors"
	"github.com/easyops/verba-go/pkg/core/message"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc, opts ...Option) *OpenAIClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithAPIKey("test-api-key"), WithBaseURL(srv.URL + "/v1")}, opts...)
	client, err := NewOpenAI(opts...)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return client
}

func TestNewOpenAI_EmptyAPIKey(t *testing.T) {
	_, err := NewOpenAI()
	if err != errors.ErrInvalidAPIKey {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestNewOpenAI_DefaultModel(t *testing.T) {
	client, err := NewOpenAI(WithAPIKey("test-api-key"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.Model() != "gpt-3.5-turbo" {
		t.Fatalf("expected default model 'gpt-3.5-turbo', got %s", client.Model())
	}
	if client.Name() != "openai" {
		t.Fatalf("expected name 'openai', got %s", client.Name())
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-api-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4",
			"choices":[{"index":0,"message":{"role":"assistant","content":"42"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
	}, WithModel("gpt-4"))

	resp, err := client.Generate(context.Background(), NewRequest([]message.Message{
		message.NewUserMessage("What is the answer?"),
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Content != "42" || resp.ID != "chatcmpl-1" || resp.FinishReason != "stop" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TokenUsage.TotalTokens != 6 {
		t.Fatalf("expected 6 total tokens, got %d", resp.TokenUsage.TotalTokens)
	}
}

func TestOpenAIClient_ExplicitZeroTemperature(t *testing.T) {
	var body map[string]any
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`)
	})

	req := NewRequest([]message.Message{message.NewUserMessage("q")}, WithRequestTemperature(0))
	if _, err := client.Generate(context.Background(), req); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	temp, ok := body["temperature"].(float64)
	if !ok {
		t.Fatalf("expected temperature in request body, got %v", body)
	}
	if temp > 1e-6 {
		t.Fatalf("expected near-zero temperature, got %v", temp)
	}
}

func TestOpenAIClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, errors.ErrInvalidAPIKey},
		{http.StatusTooManyRequests, errors.ErrRateLimited},
		{http.StatusServiceUnavailable, errors.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			calls := 0
			client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
			})

			_, err := client.Generate(context.Background(), NewRequest([]message.Message{
				message.NewUserMessage("hi"),
			}))
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if calls != 1 {
				t.Fatalf("expected a single call without retries, got %d", calls)
			}
		})
	}
}

func TestOpenAIClient_GenerateStream(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"The", " answer", " is", " 42"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunkCh, errCh := client.GenerateStream(context.Background(), NewRequest([]message.Message{
		message.NewUserMessage("hi"),
	}))

	var parts []string
	var done bool
	for chunk := range chunkCh {
		if chunk.Done {
			done = true
			continue
		}
		parts = append(parts, chunk.Content)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := strings.Join(parts, "|"); got != "The| answer| is| 42" {
		t.Fatalf("unexpected chunks %q", got)
	}
	if !done {
		t.Fatal("expected done chunk")
	}
}

func TestOpenAIClient_GenerateStreamCancel(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"The\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunkCh, errCh := client.GenerateStream(ctx, NewRequest([]message.Message{
		message.NewUserMessage("hi"),
	}))

	first := <-chunkCh
	if first.Content != "The" {
		t.Fatalf("expected 'The', got %q", first.Content)
	}
	cancel()

	for chunk := range chunkCh {
		t.Fatalf("unexpected chunk after cancel: %+v", chunk)
	}
	if err := <-errCh; !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
