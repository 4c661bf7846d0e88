package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/yui/pkg/eventstream"
	"github.com/papercomputeco/yui/pkg/storage/inmemory"
	"github.com/papercomputeco/yui/proxy/header"
)

// sseUpstream streams events with a flush after each one.
func sseUpstream(events ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, ok := w.(http.Flusher)
		Expect(ok).To(BeTrue())

		for _, event := range events {
			fmt.Fprint(w, event)
			flusher.Flush()
		}
	}))
}

// brokenUpstream sends one event and then drops the connection mid-stream.
func brokenUpstream(event string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, event)
		w.(http.Flusher).Flush()

		hj, ok := w.(http.Hijacker)
		Expect(ok).To(BeTrue())
		conn, _, err := hj.Hijack()
		Expect(err).NotTo(HaveOccurred())
		conn.Close()
	}))
}

func chunk(deltaJSON string, finish string) string {
	reason := "null"
	if finish != "" {
		reason = `"` + finish + `"`
	}
	return fmt.Sprintf("data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":%s,\"finish_reason\":%s}]}\n\n", deltaJSON, reason)
}

type memoryPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MessageFinalizedEvent
}

func (m *memoryPublisher) PublishMessage(_ context.Context, event *eventstream.MessageFinalizedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryPublisher) Close() error { return nil }

var _ = Describe("SSE Streaming Proxy", func() {
	var (
		p        *Proxy
		driver   *inmemory.Driver
		upstream *httptest.Server
	)

	AfterEach(func() {
		if p != nil {
			p.Close()
			p = nil
		}
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	// drain closes the proxy so relays and storage jobs complete.
	drain := func() {
		p.Close()
		p = nil
	}

	Context("when upstream returns an OpenAI SSE streaming response", func() {
		BeforeEach(func() {
			upstream = sseUpstream(
				chunk(`{"role":"assistant","content":"Hello"}`, ""),
				chunk(`{"content":" world"}`, ""),
				chunk(`{"content":"!"}`, ""),
				chunk(`{}`, "stop"),
				"data: [DONE]\n\n",
			)
			p, driver = newTestProxy(upstream.URL + "/v1")
			createConversation(driver, "conv-1")
		})

		It("relays the upstream frames verbatim with SSE headers", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"messages":[{"role":"user","content":"Say hello"}]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
			Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))

			body := readBody(resp)
			Expect(body).To(ContainSubstring(`"content":"Hello"`))
			Expect(body).To(ContainSubstring(`"content":" world"`))
			Expect(body).To(ContainSubstring(`"finish_reason":"stop"`))
			Expect(body).To(HaveSuffix("data: [DONE]\n\n"))
			Expect(strings.Count(body, "\n\n")).To(Equal(5))
		})

		It("records the assembled message when a conversation is named", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"messages":[{"role":"user","content":"Say hello"}],"conversation_id":"conv-1","message_id":"msg-1"}`)
			readBody(resp)
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
			Expect(conv.Messages[0].ID).To(Equal("msg-1"))
			Expect(conv.Messages[0].Content).To(Equal("Hello world!"))
			Expect(conv.Messages[0].ReasoningContent).To(BeEmpty())
		})

		It("does not record without a conversation", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"messages":[{"role":"user","content":"Say hello"}]}`)
			readBody(resp)
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(BeEmpty())
		})

		It("rejects invalid requests before streaming", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}],"top_p":2}`)
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			resp.Body.Close()
		})
	})

	Context("when a reasoning server streams reasoning_content", func() {
		var pub *memoryPublisher

		BeforeEach(func() {
			upstream = sseUpstream(
				chunk(`{"role":"assistant","reasoning_content":"Two plus two"}`, ""),
				chunk(`{"reasoning_content":" is four."}`, ""),
				chunk(`{"content":"4"}`, ""),
				chunk(`{}`, "stop"),
			)
			pub = &memoryPublisher{}
			p, driver = newTestProxy(upstream.URL+"/v1", func(c *Config) {
				c.Provider = "deepseek"
				c.Publisher = pub
			})
			createConversation(driver, "conv-1")
		})

		It("keeps reasoning_content in the relayed frames", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"model":"deepseek-reasoner","messages":[{"role":"user","content":"2+2?"}]}`)
			Expect(readBody(resp)).To(ContainSubstring(`"reasoning_content":"Two plus two"`))
		})

		It("records reasoning and content separately and publishes the event", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"model":"deepseek-reasoner","messages":[{"role":"user","content":"2+2?"}],"conversation_id":"conv-1","message_id":"msg-1"}`)
			readBody(resp)
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
			Expect(conv.Messages[0].ReasoningContent).To(Equal("Two plus two is four."))
			Expect(conv.Messages[0].Content).To(Equal("4"))

			Expect(pub.events).To(HaveLen(1))
			event := pub.events[0]
			Expect(event.Source.Provider).To(Equal("deepseek"))
			Expect(event.Source.Model).To(Equal("deepseek-reasoner"))
			Expect(event.RequestMeta.Path).To(Equal("/v1/chat/stream"))
			Expect(event.RequestMeta.Streaming).To(BeTrue())
			Expect(*event.Message.FinishReason).To(Equal("stop"))
		})
	})

	Context("when a reasoning model emits inline think tags", func() {
		BeforeEach(func() {
			upstream = sseUpstream(
				chunk(`{"content":"<think>"}`, ""),
				chunk(`{"content":"Let me add."}`, ""),
				chunk(`{"content":"</think>"}`, ""),
				chunk(`{"content":"It is 4."}`, ""),
				"data: [DONE]\n\n",
			)
			p, driver = newTestProxy(upstream.URL + "/v1")
			createConversation(driver, "conv-1")
		})

		It("splits the tags for detected reasoning models", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"model":"QwQ-32B","messages":[{"role":"user","content":"2+2?"}],"conversation_id":"conv-1","message_id":"msg-1"}`)
			readBody(resp)
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages[0].ReasoningContent).To(Equal("Let me add."))
			Expect(conv.Messages[0].Content).To(Equal("It is 4."))
		})

		It("keeps the raw text for other models", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"model":"gpt-5.2","messages":[{"role":"user","content":"2+2?"}],"conversation_id":"conv-1","message_id":"msg-1"}`)
			readBody(resp)
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages[0].ReasoningContent).To(BeEmpty())
			Expect(conv.Messages[0].Content).To(Equal("<think>Let me add.</think>It is 4."))
		})

		It("honors the per-request reasoning override", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"model":"my-finetune","reasoning":true,"messages":[{"role":"user","content":"2+2?"}],"conversation_id":"conv-1","message_id":"msg-1"}`)
			readBody(resp)
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages[0].ReasoningContent).To(Equal("Let me add."))
		})
	})

	Context("when the upstream rejects the request", func() {
		BeforeEach(func() {
			upstream, _ = capturingUpstream(http.StatusUnauthorized, "application/json", `invalid api key`)
			p, driver = newTestProxy(upstream.URL + "/v1")
			createConversation(driver, "conv-1")
		})

		It("sends a single error frame", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(Equal("data: {\"error\":\"invalid api key\"}\n\n"))
		})

		It("records the error as message content", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}],"conversation_id":"conv-1","message_id":"msg-1"}`)
			readBody(resp)
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages[0].Content).To(Equal("Error: invalid api key"))
		})
	})

	Context("when the upstream is unreachable", func() {
		It("sends an HTTP error frame", func() {
			p, _ = newTestProxy("http://127.0.0.1:1/v1")

			resp := postJSON(p, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(HavePrefix(`data: {"error":"HTTP error: `))
		})
	})

	Context("when the upstream drops the connection mid-stream", func() {
		BeforeEach(func() {
			upstream = brokenUpstream(chunk(`{"content":"Partial"}`, ""))
			p, driver = newTestProxy(upstream.URL + "/v1")
			createConversation(driver, "conv-1")
		})

		It("relays what arrived and records the partial reply", func() {
			resp := postJSON(p, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}],"conversation_id":"conv-1","message_id":"msg-1"}`)
			body := readBody(resp)
			Expect(body).To(ContainSubstring(`"content":"Partial"`))
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
			Expect(conv.Messages[0].Content).To(HavePrefix("Partial"))
		})
	})

	Context("when the upstream goes silent mid-stream", func() {
		var (
			pub     *memoryPublisher
			sent    chan struct{}
			release chan struct{}
		)

		BeforeEach(func() {
			sent = make(chan struct{})
			release = make(chan struct{})
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, chunk(`{"role":"assistant","content":"Partial"}`, ""))
				w.(http.Flusher).Flush()
				close(sent)

				select {
				case <-r.Context().Done():
				case <-release:
				}
			}))
			pub = &memoryPublisher{}
			p, driver = newTestProxy(upstream.URL+"/v1", func(c *Config) {
				c.Publisher = pub
			})
			createConversation(driver, "conv-1")
		})

		AfterEach(func() {
			close(release)
		})

		It("stops the relay on Close and records the partial reply", func() {
			relay := p
			bodies := make(chan string, 1)
			go func() {
				defer GinkgoRecover()
				resp := postJSON(relay, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}],"conversation_id":"conv-1","message_id":"msg-1"}`)
				bodies <- readBody(resp)
			}()
			Eventually(sent).Should(BeClosed())
			// Let the relay pick up the chunk before stopping.
			time.Sleep(200 * time.Millisecond)

			closed := make(chan error, 1)
			go func() { closed <- relay.Close() }()
			Eventually(closed, "2s").Should(Receive())
			p = nil

			var body string
			Eventually(bodies, "2s").Should(Receive(&body))
			Expect(body).To(ContainSubstring(`"content":"Partial"`))
			Expect(body).NotTo(ContainSubstring("HTTP error"))

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
			Expect(conv.Messages[0].Content).To(Equal("Partial"))

			pub.mu.Lock()
			defer pub.mu.Unlock()
			Expect(pub.events).To(HaveLen(1))
			Expect(*pub.events[0].Message.FinishReason).To(Equal("stopped"))
		})
	})

	Describe("POST /v1/chat/completions passthrough", func() {
		BeforeEach(func() {
			upstream = sseUpstream(
				chunk(`{"role":"assistant","content":"Hi"}`, ""),
				chunk(`{"content":" there"}`, "stop"),
				"data: [DONE]\n\n",
			)
			p, driver = newTestProxy(upstream.URL + "/v1")
			createConversation(driver, "conv-1")
		})

		It("streams the upstream response unchanged", func() {
			resp := postJSON(p, "/v1/chat/completions", `{"model":"gpt-5.2","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body := readBody(resp)
			Expect(body).To(HavePrefix("data: {\"id\":\"chatcmpl-1\""))
			Expect(body).To(HaveSuffix("data: [DONE]\n\n"))
		})

		It("records when the conversation header is set", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
				strings.NewReader(`{"model":"gpt-5.2","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(header.ConversationIDHeader, "conv-1")
			req.Header.Set(header.MessageIDHeader, "msg-9")

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)
			drain()

			conv, err := driver.GetConversation(context.Background(), "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Messages).To(HaveLen(1))
			Expect(conv.Messages[0].ID).To(Equal("msg-9"))
			Expect(conv.Messages[0].Content).To(Equal("Hi there"))
		})
	})

	Describe("POST /v1/chat/completions passthrough errors", func() {
		It("relays non-200 streaming responses as-is", func() {
			upstream, _ = capturingUpstream(http.StatusBadRequest, "application/json", `{"error":{"message":"bad model"}}`)
			p, _ = newTestProxy(upstream.URL + "/v1")

			resp := postJSON(p, "/v1/chat/completions", `{"model":"nope","stream":true,"messages":[]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(readBody(resp)).To(ContainSubstring("bad model"))
		})

		It("relays non-streaming completions", func() {
			var received chan capturedRequest
			upstream, received = capturingUpstream(http.StatusOK, "application/json", completionBody)
			p, _ = newTestProxy(upstream.URL + "/v1")

			resp := postJSON(p, "/v1/chat/completions", `{"model":"gpt-5.2","messages":[{"role":"user","content":"hi"}]}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(MatchJSON(completionBody))
			Expect((<-received).Authorization).To(Equal("Bearer sk-test"))
		})
	})
})
