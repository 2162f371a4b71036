package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/techpress/core/internal/config"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
	"go.uber.org/zap"
)

// Request is one text-generation request. Params fall back to the client's
// configured generation defaults when zero.
type Request struct {
	System          string
	Prompt          string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// Client issues single-shot and streaming calls against one configured
// provider. It is cheap to construct per field/request.
type Client struct {
	provider *config.AIProvider
	gen      config.GenerationConfig
	log      *zap.Logger
	httpc    *http.Client
}

// NewClient builds a client for one provider.
func NewClient(provider *config.AIProvider, gen config.GenerationConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		provider: provider,
		gen:      gen,
		log:      log,
		httpc:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Generate performs a single-shot call and returns the full response text.
func (c *Client) Generate(ctx context.Context, req Request) CallResult {
	return c.call(ctx, req, nil)
}

// GenerateStream performs an incremental call, invoking onToken for each text
// fragment as it arrives. Fragment boundaries are arbitrary. The returned
// result carries the accumulated text.
func (c *Client) GenerateStream(ctx context.Context, req Request, onToken func(string)) CallResult {
	return c.call(ctx, req, onToken)
}

func (c *Client) call(ctx context.Context, req Request, onToken func(string)) CallResult {
	if c.provider == nil {
		return failed(errors.New("no AI provider configured"))
	}
	if strings.TrimSpace(c.provider.APIKey) == "" {
		return failed(errors.New("AI provider api key is empty"))
	}
	c.fillDefaults(&req)

	if isOpenAICompatibleType(c.provider.Type) {
		return c.chatCompletions(ctx, req, onToken)
	}

	model, streamable, err := c.buildLanguageModel()
	if err != nil {
		return failed(err)
	}
	if onToken == nil || !streamable {
		return c.generateOnce(ctx, model, req, onToken)
	}
	return c.streamOnce(ctx, model, req, onToken)
}

func (c *Client) fillDefaults(req *Request) {
	if req.Temperature == 0 {
		req.Temperature = c.gen.Temperature
	}
	if req.TopP == 0 {
		req.TopP = c.gen.TopP
	}
	if req.TopK == 0 {
		req.TopK = c.gen.TopK
	}
	if req.MaxOutputTokens == 0 {
		req.MaxOutputTokens = c.gen.MaxOutputTokens
	}
}

func (c *Client) generateOnce(ctx context.Context, model jetapi.LanguageModel, req Request, onToken func(string)) CallResult {
	resp, err := jetai.GenerateText(
		ctx,
		buildMessages(req.System, req.Prompt),
		jetai.WithModel(model),
		jetai.WithMaxOutputTokens(req.MaxOutputTokens),
	)
	if err != nil {
		return c.classify(ctx, err)
	}

	text, err := textFromResponse(resp)
	if err != nil {
		return failed(err)
	}
	if onToken != nil {
		onToken(text)
	}
	return ok(text)
}

func (c *Client) streamOnce(ctx context.Context, model jetapi.LanguageModel, req Request, onToken func(string)) CallResult {
	streamResp, err := jetai.StreamText(
		ctx,
		buildMessages(req.System, req.Prompt),
		jetai.WithModel(model),
		jetai.WithMaxOutputTokens(req.MaxOutputTokens),
	)
	if err != nil {
		return c.classify(ctx, err)
	}

	var full strings.Builder
	for event := range streamResp.Stream {
		if ctx.Err() != nil {
			return canceled(full.String())
		}
		switch evt := event.(type) {
		case *jetapi.TextDeltaEvent:
			if evt.TextDelta == "" {
				continue
			}
			full.WriteString(evt.TextDelta)
			onToken(evt.TextDelta)
		case *jetapi.ErrorEvent:
			if evt.Err == nil {
				return failed(errors.New("AI stream returned an unknown error"))
			}
			return c.classify(ctx, fmt.Errorf("%v", evt.Err))
		}
	}
	if ctx.Err() != nil {
		return canceled(full.String())
	}

	text := full.String()
	if strings.TrimSpace(text) == "" {
		return failed(errors.New("empty response from AI"))
	}
	return ok(text)
}

// chatCompletions drives an openai-compatible /v1/chat/completions endpoint
// directly, streamed when onToken is set.
func (c *Client) chatCompletions(ctx context.Context, req Request, onToken func(string)) CallResult {
	endpoint := normalizeCompatibleEndpoint(c.provider.Endpoint)
	model := strings.TrimSpace(c.provider.DefaultModel)
	if model == "" {
		model = "gpt-4o-mini"
	}

	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	payload := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"max_tokens":  req.MaxOutputTokens,
		"temperature": req.Temperature,
		"top_p":       req.TopP,
	}
	if onToken != nil {
		payload["stream"] = true
	}
	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return failed(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.provider.APIKey))
	httpReq.Header.Set("Content-Type", "application/json")
	if onToken != nil {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return canceled("")
		}
		return failed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return rateLimited(fmt.Errorf("provider rate limited: %s", strings.TrimSpace(string(respBody))))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return failed(fmt.Errorf("provider error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	if onToken == nil {
		return c.readChatCompletion(resp.Body)
	}
	return c.readChatCompletionStream(ctx, resp.Body, onToken)
}

func (c *Client) readChatCompletion(body io.Reader) CallResult {
	respBody, err := io.ReadAll(body)
	if err != nil {
		return failed(err)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return failed(err)
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return failed(fmt.Errorf("provider error: %s", result.Error.Message))
	}
	if len(result.Choices) == 0 {
		return failed(errors.New("empty response from AI"))
	}
	return ok(result.Choices[0].Message.Content)
}

func (c *Client) readChatCompletionStream(ctx context.Context, body io.Reader, onToken func(string)) CallResult {
	var full strings.Builder
	buf := make([]byte, 4096)
	remainder := ""
	done := false

	for !done {
		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := remainder + string(buf[:n])
			remainder = ""
			lines := splitLines(chunk)
			for i, line := range lines {
				if i == len(lines)-1 && readErr == nil {
					remainder = line
					continue
				}
				line = strings.TrimSpace(line)
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if data == "" {
					continue
				}
				if data == "[DONE]" {
					done = true
					break
				}

				var event struct {
					Choices []struct {
						Delta struct {
							Content string `json:"content"`
						} `json:"delta"`
					} `json:"choices"`
				}
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					continue
				}
				if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
					continue
				}

				token := event.Choices[0].Delta.Content
				full.WriteString(token)
				onToken(token)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return canceled(full.String())
			}
			return failed(readErr)
		}
	}

	text := full.String()
	if strings.TrimSpace(text) == "" {
		return failed(errors.New("empty response from AI"))
	}
	return ok(text)
}

// classify maps an SDK error onto the tagged result, honoring cancellation
// first since a canceled request often surfaces as a transport error.
func (c *Client) classify(ctx context.Context, err error) CallResult {
	if ctx.Err() != nil {
		return canceled("")
	}
	if isRateLimitError(err) {
		return rateLimited(err)
	}
	return failed(err)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests")
}

func (c *Client) buildLanguageModel() (jetapi.LanguageModel, bool, error) {
	apiKey := strings.TrimSpace(c.provider.APIKey)
	modelID := strings.TrimSpace(c.provider.DefaultModel)
	endpoint := strings.TrimSpace(c.provider.Endpoint)

	if isAnthropicType(c.provider.Type) {
		if modelID == "" {
			modelID = "claude-haiku-4-5-20251001"
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)), false, nil
	}

	if modelID == "" {
		modelID = "gpt-4o-mini"
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	client := openaiclient.NewClient(opts...)
	return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client)), true, nil
}

func buildMessages(system, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: system})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func textFromResponse(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", errors.New("empty response from AI")
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, blockOK := block.(*jetapi.TextBlock)
		if !blockOK || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from AI")
	}
	return text, nil
}

func isAnthropicType(raw string) bool { return normalizeProviderType(raw) == "anthropic" }

func isOpenAICompatibleType(raw string) bool {
	t := normalizeProviderType(raw)
	return t == "openai-compatible" || t == "openaicompatible"
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	return t
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func normalizeCompatibleEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	}

	path := strings.TrimRight(parsed.Path, "/")
	path = strings.TrimSuffix(path, "/v1")
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}
