package kafka

import (
	"context"
	"encoding/json"
	"errors"

	kafkago "github.com/segmentio/kafka-go"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/narrator/pkg/eventstream"
)

var _ eventstream.Publisher = (*Publisher)(nil)

type recordingWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a deadline")
	}
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *recordingWriter
		p *Publisher
	)

	BeforeEach(func() {
		w = &recordingWriter{}
		p = newPublisher(w, 0)
	})

	It("requires brokers", func() {
		_, err := NewPublisher(Config{})
		Expect(err).To(MatchError(ContainSubstring("brokers")))
	})

	It("creates a publisher for configured brokers", func() {
		pub, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.Close()).To(Succeed())
	})

	It("writes the event as JSON keyed by request id", func() {
		event := eventstream.NewGenerationEvent()
		event.RequestID = "req-1"
		event.Model = "gpt-4o"
		event.Outcome = eventstream.OutcomeOK

		Expect(p.PublishGeneration(context.Background(), event)).To(Succeed())
		Expect(w.messages).To(HaveLen(1))

		msg := w.messages[0]
		Expect(string(msg.Key)).To(Equal("req-1"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeGenerationCompleted)}))

		var decoded eventstream.GenerationEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.Model).To(Equal("gpt-4o"))
	})

	It("falls back to the event id as key", func() {
		event := eventstream.NewGenerationEvent()
		Expect(p.PublishGeneration(context.Background(), event)).To(Succeed())
		Expect(string(w.messages[0].Key)).To(Equal(event.EventID))
	})

	It("rejects nil events", func() {
		Expect(p.PublishGeneration(context.Background(), nil)).To(MatchError(eventstream.ErrNilGenerationEvent))
		Expect(w.messages).To(BeEmpty())
	})

	It("wraps write failures", func() {
		w.err = errors.New("leader not available")
		err := p.PublishGeneration(context.Background(), eventstream.NewGenerationEvent())
		Expect(err).To(MatchError(ContainSubstring("leader not available")))
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})
