package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/narrator/pkg/eventstream"
	"github.com/papercomputeco/narrator/pkg/llm/provider/openai"
	"github.com/papercomputeco/narrator/pkg/logger"
	"github.com/papercomputeco/narrator/pkg/relay"
)

type closeTrackingBody struct {
	io.Reader
	closed bool
}

func (b *closeTrackingBody) Close() error {
	b.closed = true
	return nil
}

var _ = Describe("SSE Streaming Relay", func() {
	var (
		p          *Proxy
		pub        *recordingPublisher
		upstreamTS *httptest.Server
		events     []string
	)

	BeforeEach(func() {
		events = []string{
			sseBody(contentChunk("潮")),
			sseBody(contentChunk("水")),
			sseBody(contentChunk("退")),
			"data: [DONE]\n\n",
		}
	})

	JustBeforeEach(func() {
		upstreamTS = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher, ok := w.(http.Flusher)
			Expect(ok).To(BeTrue())

			for _, event := range events {
				fmt.Fprint(w, event)
				flusher.Flush()
			}
		}))
		p, pub = newTestProxy(upstreamTS.URL)
	})

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
		upstreamTS.Close()
	})

	It("streams every delta in order followed by the done sentinel", func() {
		resp, err := p.server.Test(generateRequest(`{"text":"傍晚的海","stream":true}`), -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal(sseBody(contentChunk("潮"), contentChunk("水"), contentChunk("退"), "[DONE]")))
	})

	Context("when a frame in the middle is malformed", func() {
		BeforeEach(func() {
			events = []string{
				sseBody(contentChunk("潮")),
				"data: {\"choices\":[{\"delta\":{\"content\":\"水\n\n",
				sseBody(contentChunk("退")),
				"data: [DONE]\n\n",
			}
		})

		It("skips it and keeps streaming", func() {
			resp, err := p.server.Test(generateRequest(`{"text":"x","stream":true}`), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(sseBody(contentChunk("潮"), contentChunk("退"), "[DONE]")))

			p.Close()
			p = nil

			published := pub.published()
			Expect(published).To(HaveLen(1))
			Expect(published[0].Streaming).To(BeTrue())
			Expect(published[0].Outcome).To(Equal(eventstream.OutcomeOK))
			Expect(published[0].Fragments).To(Equal(2))
			Expect(published[0].SkippedFrames).To(Equal(1))
		})
	})

	Context("when the upstream fails before streaming", func() {
		JustBeforeEach(func() {
			upstreamTS.Close()
			upstreamTS = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			p.Close()
			p, pub = newTestProxy(upstreamTS.URL)
		})

		It("returns a JSON error with no partial content", func() {
			resp, err := p.server.Test(generateRequest(`{"text":"x","stream":true}`), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(MatchJSON(`{"error":"生成失败，请稍后重试"}`))
		})
	})

	Describe("pipeStream", func() {
		newStream := func(body io.Reader) (*relay.Stream, *closeTrackingBody) {
			b := &closeTrackingBody{Reader: body}
			return relay.NewStream(b, openai.New(), logger.Nop()), b
		}

		It("ends a failed stream with an in-band error frame and a broken pipe", func() {
			stream, body := newStream(strings.NewReader(sseBody(contentChunk("潮"), `{"error":{"message":"overloaded"}}`)))
			pr, pw := io.Pipe()

			p.streams.Add(1)
			go p.pipeStream(stream, pw, "req-1", time.Now())

			out, err := io.ReadAll(pr)
			Expect(err).To(HaveOccurred())
			var relayErr *relay.Error
			Expect(errors.As(err, &relayErr)).To(BeTrue())

			Expect(string(out)).To(Equal(sseBody(contentChunk("潮"), `{"error":{"message":"生成失败，请稍后重试"}}`)))
			Expect(string(out)).NotTo(ContainSubstring("overloaded"))

			p.Close()
			p = nil
			Expect(body.closed).To(BeTrue())

			published := pub.published()
			Expect(published).To(HaveLen(1))
			Expect(published[0].Outcome).To(Equal(eventstream.OutcomeFailed))
			Expect(published[0].Stage).To(Equal("upstream-transport"))
			Expect(published[0].RequestID).To(Equal("req-1"))
		})

		It("releases the upstream when the consumer goes away", func() {
			stream, body := newStream(strings.NewReader(sseBody(contentChunk("潮"), contentChunk("水"), "[DONE]")))
			pr, pw := io.Pipe()
			Expect(pr.Close()).To(Succeed())

			p.streams.Add(1)
			p.pipeStream(stream, pw, "req-2", time.Now())

			Expect(body.closed).To(BeTrue())

			p.Close()
			p = nil
			published := pub.published()
			Expect(published).To(HaveLen(1))
			Expect(published[0].Outcome).To(Equal(eventstream.OutcomeFailed))
			Expect(published[0].Stage).To(Equal("downstream"))
		})
	})
})
