package message

import "testing"

func TestTurn_WithContentDoesNotMutate(t *testing.T) {
	orig := NewTurn(TurnUser, "hello world", true)
	cut := orig.WithContent("hello")

	if orig.Content != "hello world" {
		t.Fatalf("original mutated: %q", orig.Content)
	}
	if cut.Content != "hello" || cut.Kind != TurnUser || !cut.Typewriter {
		t.Fatalf("unexpected copy: %+v", cut)
	}
}

func TestTurn_Role(t *testing.T) {
	tests := []struct {
		kind TurnKind
		want Role
	}{
		{TurnUser, RoleUser},
		{TurnSystem, RoleAssistant},
		{TurnAssistant, RoleAssistant},
		{TurnKind("other"), RoleAssistant},
	}

	for _, tt := range tests {
		if got := NewTurn(tt.kind, "x", false).Role(); got != tt.want {
			t.Errorf("Role(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestConversation_Messages(t *testing.T) {
	conv := Conversation{
		NewTurn(TurnUser, "What is Verba?", false),
		NewTurn(TurnSystem, "A RAG chatbot.", true),
	}

	msgs := conv.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "What is Verba?" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "A RAG chatbot." {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
}
