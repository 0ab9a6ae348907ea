package context

import (
	"strings"
	"testing"
)

func newTestEncoder(t *testing.T, opts ...TiktokenOption) *TiktokenEncoder {
	t.Helper()

	enc, err := NewTiktokenEncoder(opts...)
	if err != nil {
		t.Fatalf("expected embedded encoding to load, got %v", err)
	}
	return enc
}

func TestTiktokenEncoder_Defaults(t *testing.T) {
	enc := newTestEncoder(t)

	if enc.Model() != DefaultEncodingModel {
		t.Fatalf("expected model %s, got %s", DefaultEncodingModel, enc.Model())
	}
	if n := enc.Count("hello, world!"); n != 4 {
		t.Fatalf("expected 4 cl100k_base tokens, got %d", n)
	}
	if n := enc.Count(""); n != 0 {
		t.Fatalf("expected 0 tokens, got %d", n)
	}
}

func TestTiktokenEncoder_RoundTripKeepsWhitespace(t *testing.T) {
	enc := newTestEncoder(t)

	for _, text := range []string{
		"a\n\nb   c",
		"```go\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n```",
		"<|endoftext|> is plain text here",
	} {
		if got := enc.Decode(enc.Encode(text)); got != text {
			t.Fatalf("round trip changed %q to %q", text, got)
		}
	}
}

func TestTiktokenEncoder_PrefixDecode(t *testing.T) {
	enc := newTestEncoder(t)
	text := "hi there, how can I help you today?"

	tokens := enc.Encode(text)
	for i := 0; i <= len(tokens); i++ {
		head := enc.Decode(tokens[:i])
		if !strings.HasPrefix(text, head) {
			t.Fatalf("decoded prefix %q is not a prefix of %q", head, text)
		}
		if enc.Count(head) != i {
			t.Fatalf("expected %d tokens for %q, got %d", i, head, enc.Count(head))
		}
	}
	if got := enc.Decode(tokens[:4]); got != "hi there, how" {
		t.Fatalf("expected 'hi there, how', got %q", got)
	}
}

func TestTiktokenEncoder_UnknownModelFallsBack(t *testing.T) {
	enc := newTestEncoder(t, WithModel("llama2"))

	if enc.Model() != "llama2" {
		t.Fatalf("expected model llama2, got %s", enc.Model())
	}
	if n := enc.Count("hello, world!"); n != 4 {
		t.Fatalf("expected cl100k_base fallback, got %d tokens", n)
	}
}

func TestWithModel_IgnoresEmpty(t *testing.T) {
	e := &TiktokenEncoder{model: DefaultEncodingModel}
	WithModel("")(e)
	if e.model != DefaultEncodingModel {
		t.Fatalf("expected default model, got %s", e.model)
	}
	WithModel("gpt-4")(e)
	if e.model != "gpt-4" {
		t.Fatalf("expected gpt-4, got %s", e.model)
	}
}
