// Package chatbot answers general legal questions, grounding replies in
// a per-instance knowledge base of terms and explanations.
package chatbot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prlgl/prlgl/llm"
)

const persona = "You are a legal assistant here to help us with clause review and checking concepts."

// Chatbot holds a mutable knowledge base and answers questions against
// it. Safe for concurrent use.
type Chatbot struct {
	gateway *llm.Gateway

	mu            sync.RWMutex
	knowledgeBase map[string]string
}

// New creates a chatbot. initial seeds the knowledge base and may be
// nil; the internal map is always allocated so updates never panic.
func New(g *llm.Gateway, initial map[string]string) *Chatbot {
	kb := make(map[string]string, len(initial))
	for k, v := range initial {
		kb[k] = v
	}
	return &Chatbot{gateway: g, knowledgeBase: kb}
}

// HandleQuery answers one legal question. The conversation carries the
// persona, the question, and a dump of the knowledge base as a second
// system message so the model can ground its answer.
func (c *Chatbot) HandleQuery(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("chatbot: question is required")
	}

	messages := []llm.Message{
		{Role: "system", Content: persona},
		{Role: "user", Content: question},
		{Role: "system", Content: c.knowledgeBaseDump()},
	}

	reply, err := c.gateway.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// UpdateKnowledgeBase inserts or overwrites one term.
func (c *Chatbot) UpdateKnowledgeBase(term, explanation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.knowledgeBase[term] = explanation
}

// MergeKnowledgeBase inserts or overwrites several terms at once.
func (c *Chatbot) MergeKnowledgeBase(entries map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for term, explanation := range entries {
		c.knowledgeBase[term] = explanation
	}
}

// KnowledgeBase returns a copy of the current knowledge base.
func (c *Chatbot) KnowledgeBase() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.knowledgeBase))
	for k, v := range c.knowledgeBase {
		out[k] = v
	}
	return out
}

// knowledgeBaseDump renders the knowledge base as sorted "term: explanation"
// lines so the prompt is stable across calls.
func (c *Chatbot) knowledgeBaseDump() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.knowledgeBase) == 0 {
		return "Knowledge base: (empty)"
	}

	terms := make([]string, 0, len(c.knowledgeBase))
	for t := range c.knowledgeBase {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	var sb strings.Builder
	sb.WriteString("Knowledge base:\n")
	for _, t := range terms {
		fmt.Fprintf(&sb, "%s: %s\n", t, c.knowledgeBase[t])
	}
	return strings.TrimRight(sb.String(), "\n")
}
