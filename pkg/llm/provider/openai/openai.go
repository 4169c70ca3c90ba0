// Package openai parses OpenAI-compatible Chat Completions payloads, both the
// complete "chat.completion" document and "chat.completion.chunk" stream
// increments.
package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/papercomputeco/narrator/pkg/llm"
)

var errMissingChoices = errors.New("payload has neither choices nor usage")

// provider implements the Provider interface for OpenAI's Chat Completions API.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "openai"
}

func (o *provider) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp openaiResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	result := &llm.ChatResponse{
		ID:          resp.ID,
		Model:       resp.Model,
		Usage:       convertUsage(resp.Usage),
		RawResponse: payload,
	}
	if resp.Created > 0 {
		result.CreatedAt = time.Unix(resp.Created, 0)
	}

	// Empty choices yield an empty message; the relay decides the fallback.
	if len(resp.Choices) == 0 {
		return result, nil
	}

	choice := resp.Choices[0]
	result.Message = llm.Message{
		Role:    choice.Message.Role,
		Content: choice.Message.Content,
	}
	result.StopReason = choice.FinishReason

	return result, nil
}

func (o *provider) ParseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	var chunk openaiChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, &llm.ParseError{Payload: string(payload), Err: err}
	}

	if chunk.Error != nil {
		return nil, &llm.StreamError{Type: chunk.Error.Type, Message: chunk.Error.Message}
	}

	var choices []openaiChunkChoice
	hasChoices := len(chunk.Choices) > 0 && !bytes.Equal(chunk.Choices, []byte("null"))
	if hasChoices {
		if err := json.Unmarshal(chunk.Choices, &choices); err != nil {
			return nil, &llm.ParseError{Payload: string(payload), Err: err}
		}
	} else if chunk.Usage == nil {
		return nil, &llm.ParseError{Payload: string(payload), Err: errMissingChoices}
	}

	result := &llm.StreamChunk{
		ID:    chunk.ID,
		Model: chunk.Model,
		Usage: convertUsage(chunk.Usage),
		Raw:   json.RawMessage(bytes.Clone(payload)),
	}
	if chunk.Created > 0 {
		result.CreatedAt = time.Unix(chunk.Created, 0)
	}

	// Only the first choice is relayed: requests never ask for n > 1.
	if len(choices) > 0 {
		c := choices[0]
		result.Index = c.Index
		result.Role = c.Delta.Role
		if c.Delta.Content != nil {
			result.Content = *c.Delta.Content
		}
		result.FinishReason = c.FinishReason
	}

	return result, nil
}

func convertUsage(u *openaiUsage) *llm.Usage {
	if u == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
