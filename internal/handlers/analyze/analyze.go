// Package analyze runs the /analyze pipeline: admission, validation,
// intent classification and either a canned reply or a generated one
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"owly-api/internal/generation"
	"owly-api/internal/intent"
	"owly-api/internal/metrics"
	"owly-api/internal/prompt"
	"owly-api/internal/ratelimit"
	"owly-api/internal/shared"

	"go.uber.org/zap"
)

const (
	GreetingReply = "Hoot hoot! I'm Owly, your money buddy. Ask me anything about your spending, savings or budget and I'll take a look."
	NoDataReply   = "I don't have any of your financial data yet. Add an account or a few transactions and I can give you a real answer."
	FallbackReply = "Sorry, I couldn't come up with an answer just now. Please try asking again."
)

// UsageRecorder receives one call per answered request
type UsageRecorder interface {
	Record(callerID, intent string, usage shared.Usage)
}

type Config struct {
	RequireSnapshot bool
	MaxTokens       int
	Temperature     float32
}

type AnalyzeHandler struct {
	limiter    ratelimit.Admitter
	classifier *intent.Classifier
	composer   *prompt.Composer
	generator  generation.Generator
	recorder   UsageRecorder
	log        *zap.SugaredLogger
	cfg        Config
}

func NewAnalyzeHandler(
	limiter ratelimit.Admitter,
	classifier *intent.Classifier,
	composer *prompt.Composer,
	generator generation.Generator,
	recorder UsageRecorder,
	log *zap.SugaredLogger,
	cfg Config,
) *AnalyzeHandler {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = shared.DefaultMaxTokens
	}
	return &AnalyzeHandler{
		limiter:    limiter,
		classifier: classifier,
		composer:   composer,
		generator:  generator,
		recorder:   recorder,
		log:        log,
		cfg:        cfg,
	}
}

type AnalyzeInput struct {
	Ctx       context.Context
	Body      []byte
	CallerID  string
	RequestID string
	Now       time.Time
	Log       *zap.SugaredLogger
}

type AnalyzeOutput struct {
	Result    string
	Intent    intent.Intent
	Generated bool
	Usage     shared.Usage
}

// AnalyzeLogic answers one question for an already authenticated caller.
// Returned errors are either RequestErrors safe to show the caller, or
// errors joined with ErrGenerationFailed.
func (h *AnalyzeHandler) AnalyzeLogic(input AnalyzeInput) (*AnalyzeOutput, error) {
	log := input.Log
	if log == nil {
		log = h.log
	}
	if input.Now.IsZero() {
		input.Now = time.Now()
	}
	start := time.Now()

	admitted, err := h.limiter.Admit(input.Ctx, input.CallerID, input.Now)
	if err != nil {
		// Fail open, a broken limiter backend should not take the endpoint down
		log.Warnw("Rate limiter unavailable, admitting request", "error", err)
		metrics.ErrorCount.WithLabelValues(shared.ErrRateLimiterUnavailable.Code, "analyze").Inc()
		admitted = true
	}
	if !admitted {
		metrics.RateLimited.Inc()
		return nil, shared.ErrRateLimited
	}

	question, snapshot, err := h.parse(input.Body)
	if err != nil {
		return nil, err
	}

	kind := h.classifier.Classify(question, intent.SnapshotPresent(snapshot))
	metrics.IntentCount.WithLabelValues(kind.String()).Inc()
	defer func() {
		metrics.RequestDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	}()

	switch kind {
	case intent.SmallTalk:
		h.record(input.CallerID, kind, shared.Usage{})
		return &AnalyzeOutput{Result: GreetingReply, Intent: kind}, nil
	case intent.NoDataAvailable:
		h.record(input.CallerID, kind, shared.Usage{})
		return &AnalyzeOutput{Result: NoDataReply, Intent: kind}, nil
	}

	payload, err := h.composer.Compose(question, snapshot)
	if err != nil {
		return nil, errors.Join(shared.ErrGenerationFailed, err)
	}

	genStart := time.Now()
	res, err := h.generator.Generate(input.Ctx, payload, generation.Options{
		MaxOutputTokens: h.cfg.MaxTokens,
		Temperature:     h.cfg.Temperature,
		RequestID:       input.RequestID,
	})
	if err != nil {
		metrics.ErrorCount.WithLabelValues(shared.MetricsCode(err), "analyze").Inc()
		if !errors.Is(err, shared.ErrGenerationFailed) {
			err = errors.Join(shared.ErrGenerationFailed, err)
		}
		return nil, err
	}
	metrics.GenerationDuration.WithLabelValues(res.Model).Observe(time.Since(genStart).Seconds())
	metrics.PromptTokens.WithLabelValues(res.Model).Add(float64(res.Usage.PromptTokens))
	metrics.CompletionTokens.WithLabelValues(res.Model).Add(float64(res.Usage.CompletionTokens))

	h.record(input.CallerID, kind, res.Usage)
	log.Debugw("Generated analysis", "model", res.Model, "completion_tokens", res.Usage.CompletionTokens)

	return &AnalyzeOutput{
		Result:    Normalize(&res.Text),
		Intent:    kind,
		Generated: true,
		Usage:     res.Usage,
	}, nil
}

// parse validates the body and returns the trimmed question and the raw
// snapshot, which may be empty
func (h *AnalyzeHandler) parse(body []byte) (string, json.RawMessage, error) {
	var req shared.AnalyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", nil, errors.Join(shared.ErrInvalidRequest, err)
	}

	q, ok := req.Question.(string)
	if !ok {
		return "", nil, shared.ErrInvalidQuestion
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return "", nil, shared.ErrInvalidQuestion
	}

	if h.cfg.RequireSnapshot && !intent.SnapshotPresent(req.Snapshot) {
		return "", nil, shared.ErrMissingSnapshot
	}
	return q, req.Snapshot, nil
}

func (h *AnalyzeHandler) record(callerID string, kind intent.Intent, usage shared.Usage) {
	if h.recorder == nil {
		return
	}
	h.recorder.Record(callerID, kind.String(), usage)
}

// Normalize turns raw model output into the reply text. It never returns an
// empty string.
func Normalize(raw *string) string {
	if raw == nil {
		return FallbackReply
	}
	text := strings.TrimSpace(*raw)
	if text == "" {
		return FallbackReply
	}
	return text
}
