package prlgl

import (
	"os"
	"path/filepath"
)

// Config holds all configuration for the prlgl engine.
type Config struct {
	// StorageDir is the directory holding per-session index databases.
	// If empty, defaults to ~/.prlgl/sessions.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Generation defaults for the completion gateway.
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty"`
	Seed             *int    `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Chunking (characters, not tokens; clause retrieval works on short
	// overlapping spans).
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Retrieval
	TopK int `json:"top_k" yaml:"top_k"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// Rule data files, consumed as opaque JSON.
	ComplianceRulesPath     string `json:"compliance_rules_path" yaml:"compliance_rules_path"`
	AuditChecklistPath      string `json:"audit_checklist_path" yaml:"audit_checklist_path"`
	JurisdictionalRulesPath string `json:"jurisdictional_rules_path" yaml:"jurisdictional_rules_path"`

	// InstitutionsPath points at the reference list of known legal
	// institutions. Optional; without it every extracted institution is
	// treated as unverified.
	InstitutionsPath string `json:"institutions_path" yaml:"institutions_path"`

	// StrictJurisdiction controls whether an unmatched jurisdiction key
	// fails the request. Off by default: fall back to "default" rules.
	StrictJurisdiction bool `json:"strict_jurisdiction" yaml:"strict_jurisdiction"`

	// MaxRetries is the bounded retry budget for gateway calls.
	// Zero (the default) disables retries so tests stay deterministic.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, ollama, groq, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with the service defaults:
// deterministic generation, 512/128 chunking, top-5 retrieval.
func DefaultConfig() Config {
	return Config{
		Chat: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4-turbo-preview",
		},
		Embedding: LLMConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		MaxTokens:    1200,
		Temperature:  0,
		TopP:         1.0,
		ChunkSize:    512,
		ChunkOverlap: 128,
		TopK:         5,
		EmbeddingDim: 1536,
	}
}

// resolveStorageDir computes the directory for per-session index databases.
func (c *Config) resolveStorageDir() string {
	if c.StorageDir != "" {
		return c.StorageDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".prlgl", "sessions")
	}
	return filepath.Join(home, ".prlgl", "sessions")
}
