package relay

import (
	"errors"
	"fmt"
)

const (
	// FallbackReply is returned, successfully, when the upstream produced no
	// content.
	FallbackReply = "抱歉，我无法生成回应"

	// FailureMessage is the only failure text a consumer ever sees.
	FailureMessage = "生成失败，请稍后重试"
)

var (
	// ErrEmptyReply is logged when a non-streamed reply has no content.
	ErrEmptyReply = errors.New("upstream reply has no content")

	// ErrDownstreamClosed is returned by Emit when writing to the consumer
	// fails, usually because it disconnected.
	ErrDownstreamClosed = errors.New("downstream consumer closed")
)

// Stage names where in the pipeline an error happened.
type Stage string

const (
	StageUpstream Stage = "upstream-transport"
	StageDecode   Stage = "frame-decode"
	StageParse    Stage = "event-parse"
)

// Error is a relay failure tagged with the pipeline stage that produced it.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
