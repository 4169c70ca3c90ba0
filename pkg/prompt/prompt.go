// Package prompt builds the upstream chat completion request for a piece of
// user text: a fixed documentary-narrator system instruction followed by the
// user's words.
package prompt

import (
	"fmt"

	"github.com/papercomputeco/narrator/pkg/llm"
)

// SystemInstruction sets the voice of every reply: a restrained,
// documentary-style narration in the manner of "A Bite of China" or
// "Animal World".
const SystemInstruction = "你是一个朋友圈文案回应助手，文风参考《舌尖上的中国》或《动物世界》。\n" +
	"请你以一段有画面感、富有隐喻与人情味的\"纪录片风格\"回应。\n" +
	"语气要深情而克制，不搞笑，简短，又有余韵。"

const userTemplate = "用户发言：「%s」"

const (
	DefaultModel       = "gpt-4o"
	DefaultMaxTokens   = 1688
	DefaultTemperature = 0.5
)

// Params are the sampling parameters sent with every request.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// UserMessage frames text as the user turn. The text is embedded verbatim,
// including when it is empty.
func UserMessage(text string) string {
	return fmt.Sprintf(userTemplate, text)
}

// Build returns the two-message request for text.
// Zero-valued params fall back to the defaults, except temperature which is
// sent as given.
func Build(text string, stream bool, params Params) *llm.ChatRequest {
	if params.Model == "" {
		params.Model = DefaultModel
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = DefaultMaxTokens
	}

	return &llm.ChatRequest{
		Model: params.Model,
		Messages: []llm.Message{
			llm.NewTextMessage("system", SystemInstruction),
			llm.NewTextMessage("user", UserMessage(text)),
		},
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		Stream:      stream,
	}
}
