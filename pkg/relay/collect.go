package relay

import "github.com/papercomputeco/narrator/pkg/llm"

// Collect drains s and aggregates its fragments into one reply. Unlike
// Relay.Generate it applies no fallback to an empty reply.
func Collect(s *Stream) (*llm.Reply, error) {
	summary, err := CollectSummary(s)
	if err != nil {
		return nil, err
	}
	return &llm.Reply{Text: summary.Text, Usage: summary.Usage}, nil
}

// CollectSummary drains s like Collect and returns the full Summary.
func CollectSummary(s *Stream) (*Summary, error) {
	var acc accumulator
	for {
		chunk, err := s.Next()
		if err != nil {
			return acc.summary(s), err
		}
		if chunk == nil {
			return acc.summary(s), nil
		}
		acc.add(chunk)
	}
}
