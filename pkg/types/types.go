// Package types defines the core data structures for sentbench
package types

import (
	"strings"
	"time"
)

// Sentence is an ordered sequence of tokens
type Sentence []string

// Text returns the tokens joined by single spaces
func (s Sentence) Text() string {
	return strings.Join(s, " ")
}

// Vector is one embedding, as produced by the embedder
type Vector []float64

// RunStatus represents the lifecycle state of an evaluation run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Metrics holds the named scores produced by a task
type Metrics map[string]float64

// Run is one invocation of the evaluation harness
type Run struct {
	ID         string       `json:"id" yaml:"id"`
	Model      string       `json:"model" yaml:"model"`
	Tasks      []string     `json:"tasks" yaml:"tasks"`
	Params     EvalParams   `json:"params" yaml:"params"`
	Status     RunStatus    `json:"status" yaml:"status"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
	Results    []TaskResult `json:"results,omitempty" yaml:"results,omitempty"`
	CreatedAt  time.Time    `json:"created_at" yaml:"created_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// TaskResult is the outcome of a single task within a run
type TaskResult struct {
	Task      string        `json:"task" yaml:"task"`
	Metrics   Metrics       `json:"metrics" yaml:"metrics"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
}

// EvalParams configures how tasks are evaluated
type EvalParams struct {
	BatchSize int   `json:"batch_size" yaml:"batch_size"` // Sentences per embedder call (default: 512)
	KFold     int   `json:"kfold" yaml:"kfold"`           // Folds for the classification tasks (default: 10)
	Seed      int64 `json:"seed" yaml:"seed"`             // Split and fold shuffling seed (default: 1111)
}

// Neighbor is a cached sentence ranked by distance to a query
type Neighbor struct {
	Text     string  `json:"text"`
	Model    string  `json:"model"`
	Distance float64 `json:"distance"`
}

// Config holds sentbench configuration.
// Every field can be overridden by a SENTBENCH_-prefixed environment variable.
type Config struct {
	DBPath            string `json:"db_path" envconfig:"DB_PATH"`
	EmbeddingProvider string `json:"embedding_provider" envconfig:"EMBEDDING_PROVIDER"` // "command" or "openai"
	ExtractCommand    string `json:"extract_command,omitempty" envconfig:"EXTRACT_COMMAND"`
	MaxTokens         int    `json:"max_tokens" envconfig:"MAX_TOKENS"`
	ReplyTimeoutSecs  int    `json:"reply_timeout_secs" envconfig:"REPLY_TIMEOUT_SECS"`
	ShutdownGraceSecs int    `json:"shutdown_grace_secs" envconfig:"SHUTDOWN_GRACE_SECS"`
	BPEModel          string `json:"bpe_model,omitempty" envconfig:"BPE_MODEL"`
	Language          string `json:"language" envconfig:"LANGUAGE"` // "en" or "ja"
	TaskPath          string `json:"task_path" envconfig:"TASK_PATH"`
	CacheEmbeddings   bool   `json:"cache_embeddings" envconfig:"CACHE_EMBEDDINGS"`
	OpenAIKey         string `json:"openai_key,omitempty" envconfig:"OPENAI_KEY"`
	OpenAIBaseURL     string `json:"openai_base_url,omitempty" envconfig:"OPENAI_BASE_URL"`
	OpenAIModel       string `json:"openai_model,omitempty" envconfig:"OPENAI_MODEL"`
	LogLevel          string `json:"log_level,omitempty" envconfig:"LOG_LEVEL"`
}

// Join renders the sentence as raw text for the given language: "ja" joins
// tokens without separators, everything else uses single spaces.
func (s Sentence) Join(lang string) string {
	if lang == "ja" {
		return strings.Join(s, "")
	}
	return s.Text()
}
