package upstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/logger"
	"github.com/papercomputeco/narrator/pkg/prompt"
	"github.com/papercomputeco/narrator/pkg/upstream"
	"github.com/papercomputeco/narrator/pkg/utils"
)

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		cfg     upstream.Config
	)

	BeforeEach(func() {
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		cfg = upstream.Config{URL: server.URL + "/v1/chat/completions", APIKey: "sk-test"}
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *upstream.Client {
		c, err := upstream.New(cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("requires a URL", func() {
		_, err := upstream.New(upstream.Config{}, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	Describe("Complete", func() {
		It("posts the request with auth and JSON headers", func() {
			var (
				gotPath, gotAuth, gotContentType, gotAccept, gotAgent string
				gotReq                                                llm.ChatRequest
			)
			handler = func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				gotContentType = r.Header.Get("Content-Type")
				gotAccept = r.Header.Get("Accept")
				gotAgent = r.Header.Get("User-Agent")
				_ = json.NewDecoder(r.Body).Decode(&gotReq)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"choices":[]}`))
			}

			body, err := newClient().Complete(context.Background(), prompt.Build("你好", false, prompt.DefaultParams()))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"choices":[]}`))

			Expect(gotPath).To(Equal("/v1/chat/completions"))
			Expect(gotAuth).To(Equal("Bearer sk-test"))
			Expect(gotContentType).To(Equal("application/json"))
			Expect(gotAccept).To(Equal("application/json"))
			Expect(gotAgent).To(Equal(utils.UserAgent()))
			Expect(gotReq.Model).To(Equal("gpt-4o"))
			Expect(gotReq.Stream).To(BeFalse())
			Expect(gotReq.Messages).To(HaveLen(2))
			Expect(gotReq.Messages[1].Content).To(Equal("用户发言：「你好」"))
		})

		It("omits the Authorization header without a key", func() {
			cfg.APIKey = ""
			var hasAuth bool
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, hasAuth = r.Header["Authorization"]
				_, _ = w.Write([]byte(`{}`))
			}

			_, err := newClient().Complete(context.Background(), prompt.Build("x", false, prompt.DefaultParams()))
			Expect(err).NotTo(HaveOccurred())
			Expect(hasAuth).To(BeFalse())
		})

		It("returns an HTTPError on a non-2xx status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			}

			_, err := newClient().Complete(context.Background(), prompt.Build("x", false, prompt.DefaultParams()))
			var httpErr *upstream.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(httpErr.Body).To(ContainSubstring("boom"))
		})

		It("classifies rate limit and auth failures", func() {
			Expect((&upstream.HTTPError{StatusCode: 429}).IsRateLimit()).To(BeTrue())
			Expect((&upstream.HTTPError{StatusCode: 401}).IsAuth()).To(BeTrue())
			Expect((&upstream.HTTPError{StatusCode: 403}).IsAuth()).To(BeTrue())
			Expect((&upstream.HTTPError{StatusCode: 500}).IsAuth()).To(BeFalse())
		})

		It("returns an HTTPError when the upstream is unreachable", func() {
			server.Close()

			_, err := newClient().Complete(context.Background(), prompt.Build("x", false, prompt.DefaultParams()))
			var httpErr *upstream.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode).To(BeZero())
			Expect(httpErr.Err).To(HaveOccurred())
		})

		It("bounds the wait for the first byte", func() {
			cfg.FirstByteTimeout = 50 * time.Millisecond
			handler = func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			}

			_, err := newClient().Complete(context.Background(), prompt.Build("x", false, prompt.DefaultParams()))
			var httpErr *upstream.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode).To(BeZero())
		})
	})

	Describe("Stream", func() {
		It("asks for an event stream and returns the body", func() {
			var gotAccept string
			handler = func(w http.ResponseWriter, r *http.Request) {
				gotAccept = r.Header.Get("Accept")
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte("data: {}\n\ndata: [DONE]\n\n"))
			}

			body, err := newClient().Stream(context.Background(), prompt.Build("x", true, prompt.DefaultParams()))
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			data, err := io.ReadAll(body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("data: {}\n\ndata: [DONE]\n\n"))
			Expect(gotAccept).To(Equal("text/event-stream"))
		})

		It("returns an HTTPError before any body on a non-2xx status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			}

			body, err := newClient().Stream(context.Background(), prompt.Build("x", true, prompt.DefaultParams()))
			Expect(body).To(BeNil())
			var httpErr *upstream.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode).To(Equal(http.StatusBadGateway))
		})

		It("surfaces a silent upstream as a chunk timeout", func() {
			cfg.ChunkTimeout = 50 * time.Millisecond
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte("data: {}\n\n"))
				w.(http.Flusher).Flush()
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			}

			body, err := newClient().Stream(context.Background(), prompt.Build("x", true, prompt.DefaultParams()))
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			_, err = io.ReadAll(body)
			var httpErr *upstream.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(errors.Is(err, upstream.ErrChunkTimeout)).To(BeTrue())
		})

		It("only times out while a read is waiting on the upstream", func() {
			cfg.ChunkTimeout = 50 * time.Millisecond
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte("data: {}\n\n"))
				w.(http.Flusher).Flush()
				time.Sleep(10 * time.Millisecond)
				_, _ = w.Write([]byte("data: [DONE]\n\n"))
			}

			body, err := newClient().Stream(context.Background(), prompt.Build("x", true, prompt.DefaultParams()))
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			buf := make([]byte, 64)
			_, err = body.Read(buf)
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(200 * time.Millisecond)

			rest, err := io.ReadAll(body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(rest)).To(ContainSubstring("[DONE]"))
		})

		It("cancels the request when the body is closed", func() {
			released := make(chan struct{})
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte("data: {}\n\n"))
				w.(http.Flusher).Flush()
				select {
				case <-r.Context().Done():
					close(released)
				case <-time.After(2 * time.Second):
				}
			}

			body, err := newClient().Stream(context.Background(), prompt.Build("x", true, prompt.DefaultParams()))
			Expect(err).NotTo(HaveOccurred())

			buf := make([]byte, 64)
			_, err = body.Read(buf)
			Expect(err).NotTo(HaveOccurred())

			Expect(body.Close()).To(Succeed())
			Expect(body.Close()).To(Succeed())
			Eventually(released).Should(BeClosed())
		})
	})
})
