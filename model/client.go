package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chenhg5/phone-pilot/core"
)

// Config holds the parameters for one OpenAI-compatible chat endpoint.
// Works with any backend that implements the chat completions streaming
// format (vLLM, ModelScope, OpenAI, ...).
type Config struct {
	BaseURL          string
	APIKey           string
	ModelName        string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	ExtraBody        map[string]any
	Timeout          time.Duration
}

// withDefaults fills unset fields with the vision model defaults.
func (c Config) withDefaults() Config {
	if c.ModelName == "" {
		c.ModelName = "autoglm-phone"
	}
	if c.APIKey == "" {
		c.APIKey = "EMPTY"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.TopP == 0 {
		c.TopP = 0.9
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	return c
}

// Client is a streaming chat-completions client. One call, one stream, no
// internal retries: a failed call surfaces as a single error.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Request sends the full conversation and consumes the reply stream
// synchronously. onChunk receives progressive thinking fragments (split by
// the action markers) in arrival order; the returned response carries the
// authoritative thinking/action split.
func (c *Client) Request(ctx context.Context, messages []core.Message, onChunk func(string)) (core.ModelResponse, error) {
	decoder := core.NewStreamDecoder(core.DefaultActionMarkers, onChunk, time.Now())

	err := c.stream(ctx, messages, func(delta streamDelta) {
		if delta.Content != "" {
			decoder.Feed(delta.Content)
		}
	})
	if err != nil {
		return core.ModelResponse{}, err
	}
	return decoder.Finish(), nil
}

// Stream sends the conversation and splits the reply into the transport's
// separate reasoning and answer channels. When the backend never populates
// the answer channel, the accumulated reasoning is reinterpreted as the
// answer so no output is lost. Returns the full answer text.
func (c *Client) Stream(ctx context.Context, messages []core.Message, onThinking, onAnswer func(string)) (string, error) {
	var reasoning, answer strings.Builder

	err := c.stream(ctx, messages, func(delta streamDelta) {
		if delta.Reasoning != "" {
			reasoning.WriteString(delta.Reasoning)
			if onThinking != nil {
				onThinking(delta.Reasoning)
			}
		}
		if delta.Content != "" {
			answer.WriteString(delta.Content)
			if onAnswer != nil {
				onAnswer(delta.Content)
			}
		}
	})
	if err != nil {
		return "", err
	}

	if answer.Len() == 0 && reasoning.Len() > 0 {
		return reasoning.String(), nil
	}
	return answer.String(), nil
}

type streamDelta struct {
	Content   string
	Reasoning string
}

type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Client) stream(ctx context.Context, messages []core.Message, onDelta func(streamDelta)) error {
	payload := map[string]any{
		"model":             c.cfg.ModelName,
		"messages":          encodeMessages(messages),
		"max_tokens":        c.cfg.MaxTokens,
		"temperature":       c.cfg.Temperature,
		"top_p":             c.cfg.TopP,
		"frequency_penalty": c.cfg.FrequencyPenalty,
		"stream":            true,
	}
	for k, v := range c.cfg.ExtraBody {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("model API %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk chunkPayload
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Debug("model: skipping malformed stream chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		onDelta(streamDelta{
			Content:   chunk.Choices[0].Delta.Content,
			Reasoning: chunk.Choices[0].Delta.ReasoningContent,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// encodeMessages converts conversation messages to the wire format. A
// message carrying an image becomes a multimodal content array with the
// screenshot inlined as a data URL.
func encodeMessages(messages []core.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		if m.Image == "" {
			out = append(out, map[string]any{
				"role":    string(m.Role),
				"content": m.Text,
			})
			continue
		}
		out = append(out, map[string]any{
			"role": string(m.Role),
			"content": []map[string]any{
				{
					"type": "image_url",
					"image_url": map[string]any{
						"url": "data:image/png;base64," + m.Image,
					},
				},
				{
					"type": "text",
					"text": m.Text,
				},
			},
		})
	}
	return out
}
