// Package generation talks to the OpenAI compatible text generation backend
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"owly-api/internal/prompt"
	"owly-api/internal/shared"

	"go.uber.org/zap"
)

const chatCompletionsRoute = "/v1/chat/completions"

type Options struct {
	MaxOutputTokens int
	Temperature     float32
	RequestID       string
}

type Result struct {
	Text  string
	Usage shared.Usage
	Model string
}

type Generator interface {
	Generate(ctx context.Context, payload prompt.Payload, opts Options) (*Result, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type HTTPClient struct {
	cfg    Config
	client *http.Client
	log    *zap.SugaredLogger
}

func NewHTTPClient(cfg Config, log *zap.SugaredLogger) *HTTPClient {
	if cfg.Model == "" {
		cfg.Model = shared.DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = shared.DefaultGenerationTimeout
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: shared.DefaultDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout: shared.DefaultDialTimeout,
		DisableKeepAlives:   false,
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Transport: tr, Timeout: shared.DefaultHTTPTimeout},
		log:    log,
	}
}

func (h *HTTPClient) Model() string {
	return h.cfg.Model
}

type chatCompletion struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *shared.Usage `json:"usage"`
}

// Generate sends one non-streaming chat completion. The request is detached
// from the caller's cancellation but always bounded by the configured timeout,
// so a client disconnect never leaves the backend call running unbounded.
// Every error wraps shared.ErrGenerationFailed.
func (h *HTTPClient) Generate(ctx context.Context, payload prompt.Payload, opts Options) (*Result, error) {
	body, err := json.Marshal(shared.InferenceBody{
		Messages: []shared.ChatMessage{
			{Role: "system", Content: payload.System},
			{Role: "user", Content: payload.User},
		},
		Model:       h.cfg.Model,
		MaxTokens:   opts.MaxOutputTokens,
		Temperature: opts.Temperature,
		Stream:      false,
	})
	if err != nil {
		return nil, errors.Join(shared.ErrGenerationFailed, err)
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.Timeout)
	defer cancel()

	r, err := http.NewRequestWithContext(rctx, http.MethodPost, h.cfg.BaseURL+chatCompletionsRoute, bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.Join(shared.ErrGenerationFailed, shared.ErrFailedModelReq, err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Connection":   "keep-alive",
		"X-Request-ID": opts.RequestID,
	}
	if h.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + h.cfg.APIKey
	}
	for key, value := range headers {
		r.Header.Set(key, value)
	}

	res, err := h.client.Do(r)
	defer func() {
		if res != nil && res.Body != nil {
			if closeErr := res.Body.Close(); closeErr != nil {
				h.log.Warnw("Failed to close response body", "error", closeErr)
			}
		}
	}()

	if err != nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return nil, errors.Join(shared.ErrGenerationFailed, shared.ErrModelTimeout, err)
	}
	if err != nil {
		return nil, errors.Join(shared.ErrGenerationFailed, shared.ErrFailedModelReq, err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, errors.Join(shared.ErrGenerationFailed, shared.ErrFailedModelReqFromCode, errors.New(res.Status))
	}

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Join(shared.ErrGenerationFailed, shared.ErrFailedReadingResponse, err)
	}

	var completion chatCompletion
	if err := json.Unmarshal(bodyBytes, &completion); err != nil {
		return nil, errors.Join(shared.ErrGenerationFailed, shared.ErrMalformedModelResponse, err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.Join(shared.ErrGenerationFailed, shared.ErrMalformedModelResponse, errors.New("no choices in response"))
	}

	result := &Result{Model: completion.Model}
	if content := completion.Choices[0].Message.Content; content != nil {
		result.Text = *content
	}
	if completion.Usage != nil {
		result.Usage = *completion.Usage
	}
	if result.Model == "" {
		result.Model = h.cfg.Model
	}
	return result, nil
}
