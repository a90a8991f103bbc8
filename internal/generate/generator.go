// Package generate adapts the Gemini API to the generation contract the
// chat pipeline consumes: a query plus prior conversation in, a lazy
// finite sequence of text fragments out.
//
// The sequence never surfaces an error. Whatever goes wrong (rate limiter
// interrupted, connection refused, stream broken mid-reply), the failure
// is logged and the sequence ends with a human-readable fallback fragment,
// so a consumer half-way through relaying the stream always has something
// presentable to finish with.
package generate

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/lumichat/lumichat/internal/history"
	"github.com/lumichat/lumichat/internal/log"
)

// FallbackMessage is emitted as the final fragment when generation fails.
const FallbackMessage = "Sorry, an error occurred while generating the response."

// Config contains the required parameters for a Generator.
type Config struct {
	Client       *genai.Client
	Model        string
	SystemPrompt string
	Temperature  float32
	Logger       log.Logger

	// Limiter throttles model calls proactively. nil = default
	// (10 req/sec sustained, burst of 30).
	Limiter *rate.Limiter
}

// Generator produces streaming model responses.
//
// Generator is safe for concurrent use by multiple goroutines.
type Generator struct {
	client      *genai.Client
	model       string
	system      *genai.Content
	temperature float32
	limiter     *rate.Limiter
	logger      log.Logger
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	var system *genai.Content
	if cfg.SystemPrompt != "" {
		system = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}

	return &Generator{
		client:      cfg.Client,
		model:       cfg.Model,
		system:      system,
		temperature: cfg.Temperature,
		limiter:     limiter,
		logger:      logger,
	}, nil
}

// Stream produces the model's reply to query as a lazy sequence of text
// fragments. prior carries the conversation before the current query; the
// query itself is appended here as the final user content.
//
// The sequence is finite, not restartable, and yields fragments in
// production order. Fragments may be empty.
func (g *Generator) Stream(ctx context.Context, query string, prior history.Conversation) iter.Seq[string] {
	contents := buildContents(query, prior)

	return func(yield func(string) bool) {
		if err := g.limiter.Wait(ctx); err != nil {
			g.logger.Error("generation rate limiter interrupted", "error", err)
			yield(FallbackMessage)
			return
		}

		genCfg := &genai.GenerateContentConfig{
			Temperature: genai.Ptr(g.temperature),
		}
		if g.system != nil {
			genCfg.SystemInstruction = g.system
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, genCfg) {
			if err != nil {
				g.logger.Error("stream generation failed", "error", err, "model", g.model)
				yield(FallbackMessage)
				return
			}
			if !yield(resp.Text()) {
				return
			}
		}
	}
}

// buildContents converts the conversation to Gemini contents and appends
// the current query as the final user content.
func buildContents(query string, conv history.Conversation) []*genai.Content {
	contents := make([]*genai.Content, 0, len(conv)+1)
	for _, turn := range conv {
		role := genai.Role(genai.RoleUser)
		if turn.Role == history.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return append(contents, genai.NewContentFromText(query, genai.RoleUser))
}
