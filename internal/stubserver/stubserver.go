// Package stubserver serves a minimal OpenAI-compatible chat completions
// endpoint with scripted answers. It lets every experiment run offline
// against the real client stack.
package stubserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mwiater/stochprobe/internal/logging"
)

// Answer modes.
const (
	ModeInteger = "integer"
	ModeChoice  = "choice"
	ModeFixed   = "fixed"
)

// Config controls how the stub answers. Zero values give uniform integers in
// [1, 30] with no failures.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
	// Max is the upper bound of ModeInteger answers.
	Max     int      `yaml:"max"`
	Choices []string `yaml:"choices"`
	Fixed   string   `yaml:"fixed"`
	// FailEvery makes every n-th request fail with a 500.
	FailEvery int `yaml:"fail_every"`
	// RateLimitAfter answers 429 once this many requests were served.
	RateLimitAfter int           `yaml:"rate_limit_after"`
	Latency        time.Duration `yaml:"latency"`
	Seed           uint64        `yaml:"seed"`
}

// Validate applies defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.Mode == "" {
		c.Mode = ModeInteger
	}
	switch c.Mode {
	case ModeInteger:
		if c.Max <= 0 {
			c.Max = 30
		}
	case ModeChoice:
		if len(c.Choices) == 0 {
			return errors.New("choice mode needs at least one choice")
		}
	case ModeFixed:
	default:
		return fmt.Errorf("invalid mode %q (expected integer, choice or fixed)", c.Mode)
	}
	if c.FailEvery < 0 || c.RateLimitAfter < 0 || c.Latency < 0 {
		return errors.New("fail_every, rate_limit_after and latency must not be negative")
	}
	return nil
}

// Server answers chat completion requests one at a time.
type Server struct {
	mu     sync.Mutex
	cfg    Config
	rng    *rand.Rand
	served int
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))}, nil
}

// Handler routes the completions endpoint with and without the /v1 prefix.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /v1/chat/completions", s.handleCompletion)
	mux.HandleFunc("POST /chat/completions", s.handleCompletion)
	return mux
}

// Served returns the number of requests answered so far, including failures.
func (s *Server) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req openai.ChatCompletionRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: "+err.Error())
		return
	}

	if s.cfg.RateLimitAfter > 0 && s.served >= s.cfg.RateLimitAfter {
		logging.LogWarn("[STUB] rate limiting request %d", s.served+1)
		writeError(w, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded")
		return
	}
	s.served++

	if s.cfg.Latency > 0 {
		select {
		case <-time.After(s.cfg.Latency):
		case <-r.Context().Done():
			return
		}
	}
	if s.cfg.FailEvery > 0 && s.served%s.cfg.FailEvery == 0 {
		writeError(w, http.StatusInternalServerError, "server_error", "scripted failure")
		return
	}

	writeJSON(w, http.StatusOK, openai.ChatCompletionResponse{
		ID:      "stub-" + strconv.Itoa(s.served),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s.answer()},
			FinishReason: openai.FinishReasonStop,
		}},
	})
}

func (s *Server) answer() string {
	switch s.cfg.Mode {
	case ModeChoice:
		return s.cfg.Choices[s.rng.IntN(len(s.cfg.Choices))]
	case ModeFixed:
		return s.cfg.Fixed
	default:
		return strconv.Itoa(1 + s.rng.IntN(s.cfg.Max))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": message, "type": kind, "code": strings.ReplaceAll(message, " ", "_")},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
