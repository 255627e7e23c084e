package chatbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prlgl/prlgl/llm"
)

type fakeProvider struct {
	reply string

	mu       sync.Mutex
	requests []llm.ChatRequest
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return &llm.ChatResponse{Content: f.reply, Model: "test", FinishReason: "stop"}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func newTestChatbot(p *fakeProvider, initial map[string]string) *Chatbot {
	g := llm.NewGateway(p, llm.GenerationParams{Model: "test"}, time.Minute)
	return New(g, initial)
}

func TestHandleQueryConversationShape(t *testing.T) {
	p := &fakeProvider{reply: "An indemnity clause shifts liability."}
	c := newTestChatbot(p, map[string]string{"indemnity": "a promise to cover another party's loss"})

	got, err := c.HandleQuery(context.Background(), "What is an indemnity clause?")
	if err != nil {
		t.Fatalf("handle query: %v", err)
	}
	if got != "An indemnity clause shifts liability." {
		t.Errorf("reply = %q", got)
	}

	msgs := p.requests[0].Messages
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" || msgs[2].Role != "system" {
		t.Errorf("roles = %s/%s/%s", msgs[0].Role, msgs[1].Role, msgs[2].Role)
	}
	if !strings.Contains(msgs[2].Content, "indemnity: a promise") {
		t.Errorf("knowledge base not in conversation: %q", msgs[2].Content)
	}
}

func TestHandleQueryNilInitialKnowledgeBase(t *testing.T) {
	p := &fakeProvider{reply: "ok"}
	c := newTestChatbot(p, nil)

	if _, err := c.HandleQuery(context.Background(), "anything?"); err != nil {
		t.Fatalf("query with empty knowledge base: %v", err)
	}
	if !strings.Contains(p.requests[0].Messages[2].Content, "(empty)") {
		t.Errorf("empty knowledge base dump = %q", p.requests[0].Messages[2].Content)
	}

	// Updating after a nil initial map must not panic.
	c.UpdateKnowledgeBase("deposit", "money held against damages")
	if got := c.KnowledgeBase()["deposit"]; got != "money held against damages" {
		t.Errorf("update lost: %q", got)
	}
}

func TestMergeKnowledgeBase(t *testing.T) {
	c := newTestChatbot(&fakeProvider{reply: "ok"}, map[string]string{
		"deposit": "old meaning",
	})

	c.MergeKnowledgeBase(map[string]string{
		"deposit":    "money held against damages",
		"subletting": "renting the premises to a third party",
	})

	kb := c.KnowledgeBase()
	if kb["deposit"] != "money held against damages" {
		t.Errorf("merge did not overwrite: %q", kb["deposit"])
	}
	if kb["subletting"] == "" {
		t.Error("merge did not add new term")
	}
}

func TestHandleQueryEmptyQuestion(t *testing.T) {
	c := newTestChatbot(&fakeProvider{reply: "ok"}, nil)
	if _, err := c.HandleQuery(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank question")
	}
}

func TestUpdateKnowledgeBaseConcurrent(t *testing.T) {
	p := &fakeProvider{reply: "ok"}
	c := newTestChatbot(p, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.UpdateKnowledgeBase("term", "explanation")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := c.HandleQuery(context.Background(), "q?"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestKnowledgeBaseDumpStable(t *testing.T) {
	c := newTestChatbot(&fakeProvider{reply: "ok"}, map[string]string{
		"b": "second", "a": "first", "c": "third",
	})
	first := c.knowledgeBaseDump()
	for i := 0; i < 10; i++ {
		if again := c.knowledgeBaseDump(); again != first {
			t.Fatal("dump ordering is not stable")
		}
	}
	if !strings.HasPrefix(first, "Knowledge base:\na: first") {
		t.Errorf("dump = %q", first)
	}
}
