package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/easyops/verba-go/pkg/context/contexttest"
	"github.com/easyops/verba-go/pkg/core/errors"
	"github.com/easyops/verba-go/pkg/core/message"
	"github.com/easyops/verba-go/pkg/generation"
)

// stubGenerator answers with a fixed text and streams it word by word
type stubGenerator struct {
	answer string
	err    error
	// onGenerate runs inside Generate before the answer is returned
	onGenerate func()

	mu   sync.Mutex
	conv message.Conversation
}

func (g *stubGenerator) lastConversation() message.Conversation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conv
}

func (g *stubGenerator) Generate(ctx context.Context, queries, contexts []string, conv message.Conversation) (string, error) {
	g.mu.Lock()
	g.conv = conv
	g.mu.Unlock()
	if g.onGenerate != nil {
		g.onGenerate()
	}
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *stubGenerator) GenerateStream(ctx context.Context, queries, contexts []string, conv message.Conversation) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for _, w := range strings.SplitAfter(g.answer, " ") {
			select {
			case out <- w:
			case <-ctx.Done():
				return
			}
		}
		if g.err != nil {
			errCh <- g.err
		}
	}()
	return out, errCh
}

func newTestServer(t *testing.T, a, b *stubGenerator) *httptest.Server {
	t.Helper()

	srv, _ := newTestServerWithManager(t, a, b)
	return srv
}

func newTestServerWithManager(t *testing.T, a, b *stubGenerator) (*httptest.Server, *generation.Manager) {
	t.Helper()

	m, err := generation.NewManager([]generation.Backend{
		{Name: "A", Description: "first", RequiresEnv: []string{"A_KEY"}, Streamable: true, Generator: a},
		{Name: "B", Description: "second", Generator: b},
	}, generation.WithDefault("A"), generation.WithEncoder(contexttest.NewWordEncoder()), generation.WithMaxConversationTokens(3))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	srv := httptest.NewServer(New(m, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, m
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_ListGenerators(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, &stubGenerator{})

	resp, err := http.Get(srv.URL + "/api/generators")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var got generatorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Selected != "A" || len(got.Generators) != 2 {
		t.Fatalf("unexpected response %+v", got)
	}
	if got.Generators[0].Name != "A" || got.Generators[0].RequiresEnv[0] != "A_KEY" || !got.Generators[0].Streamable {
		t.Fatalf("unexpected first generator %+v", got.Generators[0])
	}
	if got.Generators[1].RequiresEnv == nil {
		t.Fatal("expected empty requires_env list, got null")
	}
}

func TestServer_SetGenerator(t *testing.T) {
	a, b := &stubGenerator{answer: "from A"}, &stubGenerator{answer: "from B"}
	srv := newTestServer(t, a, b)

	resp := post(t, srv.URL+"/api/set_generator", `{"generator":"Bogus"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	var sel selectResponse
	_ = json.NewDecoder(resp.Body).Decode(&sel)
	if sel.Success || sel.Selected != "A" {
		t.Fatalf("unexpected response %+v", sel)
	}

	resp = post(t, srv.URL+"/api/set_generator", `{"generator":"B"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp = post(t, srv.URL+"/api/generate", `{"queries":["q"]}`)
	var ans generation.Answer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ans.Text != "from B" || ans.Generator != "B" {
		t.Fatalf("unexpected answer %+v", ans)
	}
}

func TestServer_Generate_ReportsAnsweringGenerator(t *testing.T) {
	a, b := &stubGenerator{answer: "from A"}, &stubGenerator{answer: "from B"}
	srv, m := newTestServerWithManager(t, a, b)
	a.onGenerate = func() {
		if !m.SelectBackend("B") {
			t.Error("expected selection to succeed")
		}
	}

	resp := post(t, srv.URL+"/api/generate", `{"queries":["q"]}`)
	var ans generation.Answer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ans.Text != "from A" || ans.Generator != "A" {
		t.Fatalf("expected answer labelled with generator A, got %+v", ans)
	}
	if m.Selected() != "B" {
		t.Fatalf("expected selection to have moved to B, got %s", m.Selected())
	}
}

func TestServer_Generate_TruncatesConversation(t *testing.T) {
	a := &stubGenerator{answer: "ok"}
	srv := newTestServer(t, a, &stubGenerator{})

	body := `{"queries":["q"],"context":["c"],"conversation":[
		{"type":"user","content":"hello","typewriter":false},
		{"type":"system","content":"hi there, how can I help you today?","typewriter":true}]}`
	resp := post(t, srv.URL+"/api/generate", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	conv := a.lastConversation()
	if len(conv) != 1 || conv[0].Content != "hi there, how" || !conv[0].Typewriter {
		t.Fatalf("unexpected conversation %+v", conv)
	}
}

func TestServer_Generate_Errors(t *testing.T) {
	a := &stubGenerator{err: errors.ErrRateLimited}
	srv := newTestServer(t, a, &stubGenerator{})

	if resp := post(t, srv.URL+"/api/generate", `{"queries":[]}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if resp := post(t, srv.URL+"/api/generate", `not json`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	resp := post(t, srv.URL+"/api/generate", `{"queries":["q"]}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
	var e errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)
	if !strings.Contains(e.Error, "rate limit") {
		t.Fatalf("unexpected error %q", e.Error)
	}
}

func TestServer_GenerateStream(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{answer: "The answer is 42"}, &stubGenerator{})

	resp := post(t, srv.URL+"/api/generate_stream", `{"queries":["q"]}`)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := readEvents(t, resp)
	var text strings.Builder
	for _, ev := range events[:len(events)-1] {
		text.WriteString(ev.Message)
	}
	if text.String() != "The answer is 42" {
		t.Fatalf("unexpected streamed text %q", text.String())
	}
	if last := events[len(events)-1]; last.FinishReason != "stop" {
		t.Fatalf("expected final stop event, got %+v", last)
	}
}

func TestServer_GenerateStream_Error(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{answer: "partial", err: errors.ErrProviderUnavailable}, &stubGenerator{})

	resp := post(t, srv.URL+"/api/generate_stream", `{"queries":["q"]}`)

	var body strings.Builder
	buf := make([]byte, 512)
	for {
		n, err := resp.Body.Read(buf)
		body.Write(buf[:n])
		if err != nil {
			break
		}
	}
	if !strings.Contains(body.String(), "event: error") {
		t.Fatalf("expected error event, got %q", body.String())
	}
	if strings.Contains(body.String(), `"finish_reason":"stop"`) {
		t.Fatalf("unexpected stop event after error: %q", body.String())
	}
}

func readEvents(t *testing.T, resp *http.Response) []streamEvent {
	t.Helper()

	var events []streamEvent
	dec := newEventScanner(resp)
	for dec.Scan() {
		line := dec.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	return events
}

func newEventScanner(resp *http.Response) *bufio.Scanner {
	return bufio.NewScanner(resp.Body)
}
