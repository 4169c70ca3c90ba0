package relay_test

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/narrator/pkg/relay"
)

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() error {
	f.flushes++
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

var _ = Describe("Emit", func() {
	It("re-emits each delta's payload in order followed by the done sentinel", func() {
		var out flushRecorder
		summary, err := relay.Emit(must(newStream(strings.NewReader(tideStream()))), &out)
		Expect(err).NotTo(HaveOccurred())

		Expect(out.String()).To(Equal(tideStream()))
		Expect(out.flushes).To(Equal(6))

		Expect(summary.Text).To(Equal("潮水退"))
		Expect(summary.Fragments).To(Equal(3))
		Expect(summary.FinishReason).To(Equal("stop"))
		Expect(summary.Skipped).To(BeZero())
	})

	It("normalizes upstream framing", func() {
		body := "data:" + contentChunk("潮") + "\r\n\r\n: ping\n\n" + "data: [DONE]\r\n\r\n"
		var out bytes.Buffer
		_, err := relay.Emit(must(newStream(strings.NewReader(body))), &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(Equal(sseBody(contentChunk("潮"), "[DONE]")))
	})

	It("drops malformed frames from the output", func() {
		body := sseBody(contentChunk("潮"), `not json`, contentChunk("水"), "[DONE]")
		var out bytes.Buffer
		summary, err := relay.Emit(must(newStream(strings.NewReader(body))), &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(Equal(sseBody(contentChunk("潮"), contentChunk("水"), "[DONE]")))
		Expect(summary.Skipped).To(Equal(1))
	})

	It("omits the done sentinel when the upstream never sent it", func() {
		body := sseBody(contentChunk("潮"))
		var out bytes.Buffer
		_, err := relay.Emit(must(newStream(strings.NewReader(body))), &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(Equal(body))
	})

	It("reports a failed write as a closed downstream", func() {
		summary, err := relay.Emit(must(newStream(strings.NewReader(tideStream()))), failingWriter{})
		Expect(errors.Is(err, relay.ErrDownstreamClosed)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("broken pipe")))
		Expect(summary).NotTo(BeNil())
	})

	It("stops at a terminal upstream error", func() {
		body := sseBody(contentChunk("潮"), `{"error":{"message":"overloaded"}}`)
		var out bytes.Buffer
		summary, err := relay.Emit(must(newStream(strings.NewReader(body))), &out)

		var relayErr *relay.Error
		Expect(errors.As(err, &relayErr)).To(BeTrue())
		Expect(relayErr.Stage).To(Equal(relay.StageUpstream))
		Expect(out.String()).To(Equal(sseBody(contentChunk("潮"))))
		Expect(summary.Text).To(Equal("潮"))
	})
})
