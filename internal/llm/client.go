package llm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/errors"
	"github.com/user/toolagent/internal/logging"
)

// maxErrorBody bounds how much of an error response is kept in messages
const maxErrorBody = 2048

// vendorCodec is the per-vendor half of an adapter: wire conversion only.
// baseProvider owns transport, timing, logging and the stream fallback.
type vendorCodec interface {
	endpoint(stream bool) string
	headers() map[string]string
	buildRequest(req ChatRequest, stream bool) (any, error)
	parseResponse(body []byte) (ChatResponse, error)
	streamDecoder() chunkDecoder
}

// baseProvider provides common functionality for all vendor adapters
type baseProvider struct {
	name             string
	model            string
	apiKey           string
	baseURL          string
	httpClient       *http.Client
	logger           *logging.Logger
	disableStreaming bool
}

func newBaseProvider(name, model, defaultBaseURL string, cfg config.ProviderConfig, logger *logging.Logger) baseProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return baseProvider{
		name:             name,
		model:            model,
		apiKey:           cfg.APIKey,
		baseURL:          baseURL,
		httpClient:       newHTTPClient(cfg.GetTimeout()),
		logger:           logger.Named(name).With(logging.Model(model)),
		disableStreaming: cfg.DisableStreaming,
	}
}

// newHTTPClient bounds the wait for response headers only, so long streams
// are not cut off mid-answer
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// Name returns the provider name
func (b *baseProvider) Name() string {
	return b.name
}

// Model returns the model identifier
func (b *baseProvider) Model() string {
	return b.model
}

// chat runs one turn through codec, choosing between the streaming and
// completed variants
func (b *baseProvider) chat(ctx context.Context, req ChatRequest, codec vendorCodec) (ChatResult, error) {
	if !req.Stream {
		resp, err := b.complete(ctx, req, codec)
		if err != nil {
			return ChatResult{}, err
		}
		return Completed(resp), nil
	}

	if b.disableStreaming {
		b.logger.Debug("Streaming disabled, completing in one request")
		resp, err := b.complete(ctx, req, codec)
		if err != nil {
			return ChatResult{}, err
		}
		return Completed(resp), nil
	}

	return b.stream(ctx, req, codec)
}

// complete performs one non-streaming request
func (b *baseProvider) complete(ctx context.Context, req ChatRequest, codec vendorCodec) (ChatResponse, error) {
	payload, err := codec.buildRequest(req, false)
	if err != nil {
		return ChatResponse{}, b.requestError(0, fmt.Errorf("failed to build request: %w", err))
	}

	b.logger.Debug("Sending chat request",
		logging.Int("messages", len(req.Messages)),
		logging.Int("tools", len(req.Tools)),
		logging.Bool("stream", false),
	)

	start := time.Now()
	resp, err := b.doHTTPRequest(ctx, http.MethodPost, codec.endpoint(false), codec.headers(), payload)
	if err != nil {
		return ChatResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, b.requestError(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return ChatResponse{}, b.statusError(resp.StatusCode, body)
	}

	return b.finishResponse(codec, body, time.Since(start))
}

func (b *baseProvider) finishResponse(codec vendorCodec, body []byte, elapsed time.Duration) (ChatResponse, error) {
	out, err := codec.parseResponse(body)
	if err != nil {
		return ChatResponse{}, b.requestError(http.StatusOK, fmt.Errorf("failed to parse response: %w", err))
	}
	out.ResponseTime = elapsed
	out.Raw = json.RawMessage(body)

	fields := []logging.Field{
		logging.Duration("elapsed", elapsed),
		logging.String("finish_reason", string(out.FinishReason)),
		logging.Int("tool_calls", len(out.ToolCalls)),
	}
	if out.Usage.TotalTokens != nil {
		fields = append(fields, logging.Int("total_tokens", *out.Usage.TotalTokens))
	}
	b.logger.Debug("Chat request completed", fields...)
	return out, nil
}

// stream opens a streaming request. Vendors that refuse to stream are
// answered with the completed variant.
func (b *baseProvider) stream(ctx context.Context, req ChatRequest, codec vendorCodec) (ChatResult, error) {
	payload, err := codec.buildRequest(req, true)
	if err != nil {
		return ChatResult{}, b.requestError(0, fmt.Errorf("failed to build request: %w", err))
	}

	b.logger.Debug("Sending chat request",
		logging.Int("messages", len(req.Messages)),
		logging.Int("tools", len(req.Tools)),
		logging.Bool("stream", true),
	)

	start := time.Now()
	resp, err := b.doHTTPRequest(ctx, http.MethodPost, codec.endpoint(true), codec.headers(), payload)
	if err != nil {
		return ChatResult{}, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()

		if !streamUnsupported(resp.StatusCode, body) {
			return ChatResult{}, b.statusError(resp.StatusCode, body)
		}

		b.logger.Info("Streaming rejected by vendor, falling back to a single request",
			logging.Int("status", resp.StatusCode),
			logging.String("vendor_message", vendorErrorMessage(body)),
		)
		out, err := b.complete(ctx, req, codec)
		if err != nil {
			return ChatResult{}, err
		}
		return Completed(out), nil
	}

	// Some OpenAI-compatible servers ignore the stream flag
	if !isEventStream(resp.Header.Get("Content-Type")) {
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return ChatResult{}, b.requestError(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
		}
		out, err := b.finishResponse(codec, body, time.Since(start))
		if err != nil {
			return ChatResult{}, err
		}
		return Completed(out), nil
	}

	onClose := func(text string, err error) {
		fields := []logging.Field{
			logging.Duration("elapsed", time.Since(start)),
			logging.Int("text_bytes", len(text)),
		}
		if err != nil {
			fields = append(fields, logging.Error(err))
		}
		b.logger.Debug("Stream closed", fields...)
	}
	return Streamed(newStream(ctx, resp.Body, codec.streamDecoder(), b.wrapStreamErr, onClose)), nil
}

// doHTTPRequest executes an HTTP request with a JSON payload. The caller is
// responsible for closing the response body and handling status codes.
func (b *baseProvider) doHTTPRequest(
	ctx context.Context,
	method string,
	url string,
	headers map[string]string,
	payload any,
) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, b.requestError(0, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, b.requestError(0, fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, b.requestError(0, fmt.Errorf("request failed: %w", err))
	}
	return resp, nil
}

func (b *baseProvider) requestError(status int, cause error) error {
	return errors.NewProviderRequestError(b.name, b.model, status, cause)
}

// statusError builds the error for a non-200 reply, preferring the
// vendor's own message over the raw body
func (b *baseProvider) statusError(status int, body []byte) error {
	return b.requestError(status, fmt.Errorf("API error: %s", vendorErrorMessage(body)))
}

// wrapStreamErr converts mid-stream failures, leaving vendor errors and
// cancellation untouched
func (b *baseProvider) wrapStreamErr(err error) error {
	var reqErr *errors.ProviderRequestError
	if stderrors.As(err, &reqErr) || isContextErr(err) {
		return err
	}
	return b.requestError(http.StatusOK, fmt.Errorf("stream failed: %w", err))
}

// vendorError is the {"error": {...}} envelope shared by all three vendors
type vendorError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Status  string `json:"status"`
	} `json:"error"`
}

// vendorErrorMessage extracts a readable message from an error body
func vendorErrorMessage(body []byte) string {
	body = bytes.TrimSpace(body)

	var single vendorError
	if err := json.Unmarshal(body, &single); err == nil && single.Error != nil && single.Error.Message != "" {
		return formatVendorError(single)
	}

	// Gemini sometimes wraps the envelope in an array
	var list []vendorError
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 && list[0].Error != nil {
		return formatVendorError(list[0])
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if len(body) == 0 {
		return "empty response body"
	}
	return string(body)
}

func formatVendorError(e vendorError) string {
	kind := e.Error.Type
	if kind == "" {
		kind = e.Error.Status
	}
	if kind == "" {
		return e.Error.Message
	}
	return kind + ": " + e.Error.Message
}

// streamUnsupported reports whether a failed streaming request should be
// retried without streaming. 405 and 501 reject the transport itself; 400,
// 404 and 422 only count when the vendor message names streaming.
func streamUnsupported(status int, body []byte) bool {
	switch status {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return strings.Contains(strings.ToLower(vendorErrorMessage(body)), "stream")
	}
	return false
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/event-stream"
}

// decodeVendorErrorEvent reports an in-stream error payload as a
// ProviderRequestError; it returns nil when data carries no error
func (b *baseProvider) decodeVendorErrorEvent(data []byte) error {
	var e vendorError
	if err := json.Unmarshal(data, &e); err != nil || e.Error == nil {
		return nil
	}
	return b.requestError(http.StatusOK, fmt.Errorf("API error: %s", formatVendorError(e)))
}
