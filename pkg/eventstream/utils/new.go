// Package eventstreamutils builds the configured eventstream publisher
package eventstreamutils

import (
	"fmt"

	"github.com/papercomputeco/narrator/pkg/eventstream"
	"github.com/papercomputeco/narrator/pkg/eventstream/kafka"
	"github.com/papercomputeco/narrator/pkg/eventstream/nop"
)

const (
	ProviderNop   = "nop"
	ProviderKafka = "kafka"
)

type NewPublisherOpts struct {
	ProviderType string
	Brokers      []string
	Topic        string
}

func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case ProviderNop, "":
		return nop.NewPublisher(), nil
	case ProviderKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: o.Brokers,
			Topic:   o.Topic,
		})
	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", o.ProviderType)
	}
}
