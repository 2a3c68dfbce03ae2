// Package briefing asks an LLM for a short market note on a newly
// recorded signal.
package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/llm"
	"go.uber.org/zap"
)

// maxSummary caps the note so it fits a chat notification.
const maxSummary = 600

// recentLimit is how many earlier signals go into the prompt.
const recentLimit = 5

// Request carries the context for one signal.
type Request struct {
	Record core.SignalRecord
	Bar    core.PriceBar
	Closes []float64
	// Recent holds earlier records, newest first.
	Recent []core.SignalRecord
}

// Briefing is the generated note for a signal record.
type Briefing struct {
	RecordID  string      `json:"record_id"`
	Pair      string      `json:"pair"`
	Signal    core.Signal `json:"signal"`
	Price     string      `json:"price"`
	Summary   string      `json:"summary"`
	Risk      string      `json:"risk"`
	Provider  string      `json:"provider"`
	CreatedAt time.Time   `json:"created_at"`
}

// Text renders the briefing for a plain-text notification.
func (b Briefing) Text() string {
	return fmt.Sprintf("%s %s @ %s\n%s\nRisk: %s", b.Signal.Label(), b.Pair, b.Price, b.Summary, b.Risk)
}

// Config holds briefer settings.
type Config struct {
	MaxTokens int
	Timeout   time.Duration
}

// Briefer turns signal context into a Briefing.
type Briefer struct {
	llm    llm.Provider
	logger *zap.Logger
	cfg    Config
	now    func() time.Time
}

// New creates a briefer over an LLM provider.
func New(provider llm.Provider, logger *zap.Logger, cfg Config) *Briefer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Briefer{
		llm:    provider,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Provider returns the backing LLM provider name.
func (b *Briefer) Provider() string {
	return b.llm.Name()
}

type llmResult struct {
	Summary string `json:"summary"`
	Risk    string `json:"risk"`
}

// Brief generates a note for req.Record. Only BUY and SELL records are briefed.
func (b *Briefer) Brief(ctx context.Context, req Request) (*Briefing, error) {
	if !req.Record.Signal.IsActionable() {
		return nil, fmt.Errorf("signal %s has nothing to brief", req.Record.Signal)
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	resp, err := b.llm.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildPrompt(req)},
		},
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM error: %w", err)
	}

	result := parseResult(resp.Content)
	if result.Summary == "" {
		return nil, fmt.Errorf("LLM returned an empty briefing")
	}

	b.logger.Debug("briefing generated",
		zap.String("pair", req.Record.Pair),
		zap.String("signal", string(req.Record.Signal)),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
	)

	return &Briefing{
		RecordID:  req.Record.ID,
		Pair:      req.Record.Pair,
		Signal:    req.Record.Signal,
		Price:     req.Record.Price,
		Summary:   result.Summary,
		Risk:      result.Risk,
		Provider:  b.llm.Name(),
		CreatedAt: b.now(),
	}, nil
}

// parseResult reads the JSON answer. Plain text becomes the summary.
func parseResult(content string) llmResult {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	content = strings.TrimSpace(content)

	var r llmResult
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		r = llmResult{Summary: content}
	}
	r.Summary = truncate(strings.Join(strings.Fields(r.Summary), " "), maxSummary)
	r.Risk = normalizeRisk(r.Risk)
	return r
}

func normalizeRisk(risk string) string {
	switch r := strings.ToLower(strings.TrimSpace(risk)); r {
	case "low", "medium", "high":
		return r
	default:
		return "unknown"
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

func buildPrompt(req Request) string {
	var sb strings.Builder
	rec, bar := req.Record, req.Bar

	sb.WriteString(fmt.Sprintf("## Signal: %s on %s at %s (bar time %s)\n\n",
		rec.Signal, rec.Pair, rec.Price, rec.Time))

	sb.WriteString("## Indicators:\n")
	sb.WriteString(fmt.Sprintf("- Close: %s\n", core.FormatPrice(bar.Close)))
	sb.WriteString(fmt.Sprintf("- RSI: %s\n", rec.RSI))
	sb.WriteString(fmt.Sprintf("- Bollinger lower/middle/upper: %s / %s / %s\n",
		core.FormatPrice(bar.LowerBand), core.FormatPrice(bar.MiddleBand), core.FormatPrice(bar.UpperBand)))
	if width := bar.UpperBand - bar.LowerBand; bar.MiddleBand > 0 && width > 0 {
		sb.WriteString(fmt.Sprintf("- Band width: %.3f%% of middle\n", width/bar.MiddleBand*100))
		sb.WriteString(fmt.Sprintf("- Position in band: %.0f%% (0 = lower, 100 = upper)\n",
			(bar.Close-bar.LowerBand)/width*100))
	}
	sb.WriteString("\n")

	if n := len(req.Closes); n > 1 {
		lo, hi := req.Closes[0], req.Closes[0]
		for _, c := range req.Closes {
			lo, hi = min(lo, c), max(hi, c)
		}
		first, last := req.Closes[0], req.Closes[n-1]
		sb.WriteString(fmt.Sprintf("## Last %d closes:\n", n))
		sb.WriteString(fmt.Sprintf("- Range: %s to %s\n", core.FormatPrice(lo), core.FormatPrice(hi)))
		if first > 0 {
			sb.WriteString(fmt.Sprintf("- Change over window: %.3f%%\n", (last-first)/first*100))
		}
		sb.WriteString("\n")
	}

	if len(req.Recent) > 0 {
		sb.WriteString("## Earlier signals (newest first):\n")
		for i, r := range req.Recent {
			if i == recentLimit {
				break
			}
			sb.WriteString(fmt.Sprintf("- %s %s %s at %s (RSI %s)\n", r.Time, r.Pair, r.Signal, r.Price, r.RSI))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Task:\n")
	sb.WriteString("Write a short note a scalper can read in ten seconds: what the band touch and RSI suggest, ")
	sb.WriteString("and what would invalidate the signal.\n")
	sb.WriteString("\nRespond with JSON containing: summary, risk.\n")

	return sb.String()
}

const systemPrompt = `You are an intraday FX and crypto market assistant. You comment on mean-reversion signals from Bollinger Bands and RSI on one-minute bars.

Rules:
1. Use only the data provided. Do not invent news or levels.
2. Keep the summary under 80 words, plain text, no markdown.
3. Rate risk as low, medium or high based on band width, RSI extremity and recent signal churn.

Always respond with valid JSON:
{
  "summary": "two or three sentences",
  "risk": "low"
}`
