package relay_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/llm/provider/openai"
	"github.com/papercomputeco/narrator/pkg/logger"
	"github.com/papercomputeco/narrator/pkg/relay"
)

type trackingBody struct {
	io.Reader
	closes int
}

func (b *trackingBody) Close() error {
	b.closes++
	return nil
}

func newStream(r io.Reader) (*relay.Stream, *trackingBody) {
	body := &trackingBody{Reader: r}
	return relay.NewStream(body, openai.New(), logger.Nop()), body
}

var _ = Describe("Stream", func() {
	It("yields every delta event in order and ends at the done sentinel", func() {
		s, _ := newStream(strings.NewReader(tideStream()))

		var contents []string
		for {
			chunk, err := s.Next()
			Expect(err).NotTo(HaveOccurred())
			if chunk == nil {
				break
			}
			contents = append(contents, chunk.Content)
		}

		Expect(contents).To(Equal([]string{"", "潮", "水", "退", ""}))
		Expect(s.SawDone()).To(BeTrue())
		Expect(s.Skipped()).To(BeEmpty())

		chunk, err := s.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk).To(BeNil())
	})

	It("does not read past the done sentinel", func() {
		body := tideStream() + sseBody(contentChunk("多余"))
		reply, err := relay.Collect(must(newStream(strings.NewReader(body))))
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Text).To(Equal("潮水退"))
	})

	It("aggregates the same reply for every split point", func() {
		raw := []byte(tideStream())
		for i := 0; i <= len(raw); i++ {
			r := io.MultiReader(bytes.NewReader(raw[:i]), bytes.NewReader(raw[i:]))
			reply, err := relay.Collect(must(newStream(r)))
			Expect(err).NotTo(HaveOccurred(), "split at %d", i)
			Expect(reply.Text).To(Equal("潮水退"), "split at %d", i)
		}
	})

	It("aggregates the same reply when fed one byte at a time", func() {
		reply, err := relay.Collect(must(newStream(iotest.OneByteReader(strings.NewReader(tideStream())))))
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Text).To(Equal("潮水退"))
	})

	It("skips a malformed frame between two well-formed ones", func() {
		body := sseBody(contentChunk("潮"), `{"choices":[{"delta":{"content":"水`, contentChunk("退"), "[DONE]")
		s, _ := newStream(strings.NewReader(body))

		reply, err := relay.Collect(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Text).To(Equal("潮退"))

		Expect(s.Skipped()).To(HaveLen(1))
		Expect(s.Skipped()[0].Stage).To(Equal(relay.StageParse))
		var parseErr *llm.ParseError
		Expect(errors.As(s.Skipped()[0], &parseErr)).To(BeTrue())
	})

	It("records an unterminated trailing line as a decode error", func() {
		body := sseBody(contentChunk("潮")) + `data: {"choices":[{"delta":{"content":"水"}}]}`
		s, _ := newStream(strings.NewReader(body))

		reply, err := relay.Collect(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Text).To(Equal("潮"))
		Expect(s.SawDone()).To(BeFalse())
		Expect(s.Skipped()).To(HaveLen(1))
		Expect(s.Skipped()[0].Stage).To(Equal(relay.StageDecode))
	})

	It("ignores comments, event lines and bare data lines", func() {
		body := ": keep-alive\n\nevent: message\ndata:\n\n" + tideStream()
		reply, err := relay.Collect(must(newStream(strings.NewReader(body))))
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Text).To(Equal("潮水退"))
	})

	It("ends an in-band upstream error as a terminal failure", func() {
		body := sseBody(contentChunk("潮"), `{"error":{"message":"overloaded","type":"server_error"}}`, contentChunk("水"))
		s, _ := newStream(strings.NewReader(body))

		chunk, err := s.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.Content).To(Equal("潮"))

		_, err = s.Next()
		var relayErr *relay.Error
		Expect(errors.As(err, &relayErr)).To(BeTrue())
		Expect(relayErr.Stage).To(Equal(relay.StageUpstream))
		var streamErr *llm.StreamError
		Expect(errors.As(err, &streamErr)).To(BeTrue())

		_, again := s.Next()
		Expect(again).To(Equal(err))
	})

	It("ends a failing body as a terminal upstream failure", func() {
		r := io.MultiReader(strings.NewReader(sseBody(contentChunk("潮"))), iotest.ErrReader(errors.New("connection reset")))
		summary, err := relay.CollectSummary(must(newStream(r)))

		var relayErr *relay.Error
		Expect(errors.As(err, &relayErr)).To(BeTrue())
		Expect(relayErr.Stage).To(Equal(relay.StageUpstream))
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
		Expect(summary.Text).To(Equal("潮"))
	})

	It("keeps the last finish reason and usage", func() {
		body := sseBody(
			contentChunk("潮"),
			finishChunk(),
			`{"id":"chatcmpl-1","model":"gpt-4o","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`,
			"[DONE]",
		)
		summary, err := relay.CollectSummary(must(newStream(strings.NewReader(body))))
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.FinishReason).To(Equal("stop"))
		Expect(summary.Model).To(Equal("gpt-4o"))
		Expect(summary.Fragments).To(Equal(1))
		Expect(summary.Usage).To(Equal(&llm.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}))
	})

	It("closes the body once", func() {
		s, body := newStream(strings.NewReader(tideStream()))
		Expect(s.Close()).To(Succeed())
		Expect(s.Close()).To(Succeed())
		Expect(body.closes).To(Equal(1))
	})
})

func must(s *relay.Stream, _ *trackingBody) *relay.Stream {
	return s
}
