package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/yui/api"
	"github.com/papercomputeco/yui/pkg/dotdir"
	"github.com/papercomputeco/yui/pkg/llm"
	"github.com/papercomputeco/yui/pkg/logger"
	"github.com/papercomputeco/yui/pkg/reasoning"
	"github.com/papercomputeco/yui/pkg/storage"
	"github.com/papercomputeco/yui/pkg/storage/inmemory"
)

var _ = Describe("NewChatCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := NewChatCmd()
		Expect(cmd.Use).To(Equal("chat"))
	})

	It("has a --model flag with shorthand", func() {
		cmd := NewChatCmd()
		flag := cmd.Flags().Lookup("model")
		Expect(flag).NotTo(BeNil())
		Expect(flag.Shorthand).To(Equal("m"))
	})

	It("has target flags defaulting to the local proxy", func() {
		cmd := NewChatCmd()
		proxy := cmd.Flags().Lookup("proxy-target")
		Expect(proxy).NotTo(BeNil())
		Expect(proxy.DefValue).To(Equal("http://localhost:8001"))

		apiTarget := cmd.Flags().Lookup("api-target")
		Expect(apiTarget).NotTo(BeNil())
		Expect(apiTarget.DefValue).To(Equal("http://localhost:8001"))
	})

	It("has --new and --system flags", func() {
		cmd := NewChatCmd()
		Expect(cmd.Flags().Lookup("new")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("system")).NotTo(BeNil())
	})
})

var _ = Describe("apiClient", func() {
	var (
		ts     *httptest.Server
		client *apiClient
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server, err := api.NewServer(api.Config{}, inmemory.NewDriver(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		app := fiber.New()
		server.RegisterRoutes(app)
		ts = httptest.NewServer(adaptor.FiberApp(app))
		client = newAPIClient(ts.URL, ts.Client())
	})

	AfterEach(func() {
		ts.Close()
	})

	It("creates, renames and appends to a conversation", func() {
		created, err := client.createConversation(ctx, &storage.Conversation{
			ID:        "conv-1",
			Title:     newTitle,
			CreatedAt: 1000,
			UpdatedAt: 1000,
			Messages:  []*storage.Message{},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).To(Equal("conv-1"))

		Expect(client.renameConversation(ctx, "conv-1", "Greetings")).To(Succeed())
		Expect(client.addMessage(ctx, "conv-1", &storage.Message{
			ID:        "m1",
			Role:      llm.RoleUser,
			Content:   "hello",
			CreatedAt: 2000,
		})).To(Succeed())

		conv, err := client.getConversation(ctx, "conv-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(conv.Title).To(Equal("Greetings"))
		Expect(conv.Messages).To(HaveLen(1))
		Expect(conv.Messages[0].Content).To(Equal("hello"))
	})

	It("reports a missing conversation as not found", func() {
		_, err := client.getConversation(ctx, "nope")
		Expect(err).To(MatchError(errNotFound))
	})

	It("reports other API failures with the status code", func() {
		_, err := client.createConversation(ctx, &storage.Conversation{Title: "no id"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("422"))
	})
})

var _ = Describe("session handling", func() {
	var (
		ts     *httptest.Server
		driver *inmemory.Driver
		cmder  *chatCommander
		ddm    *dotdir.Manager
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		server, err := api.NewServer(api.Config{}, driver, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		app := fiber.New()
		server.RegisterRoutes(app)
		ts = httptest.NewServer(adaptor.FiberApp(app))

		cmder = &chatCommander{
			apiTarget: ts.URL,
			model:     "qwen3-32b",
			configDir: GinkgoT().TempDir(),
			logger:    logger.Nop(),
		}
		cmder.setup(&bytes.Buffer{})
		ddm = dotdir.NewManager()
	})

	AfterEach(func() {
		ts.Close()
	})

	It("starts a conversation and remembers it", func() {
		conv, resumed, err := cmder.load(ctx, ddm)
		Expect(err).NotTo(HaveOccurred())
		Expect(resumed).To(BeFalse())
		Expect(conv.Title).To(Equal(newTitle))

		session, err := ddm.LoadSession(cmder.configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(session.ConversationID).To(Equal(conv.ID))
		Expect(session.Model).To(Equal("qwen3-32b"))
	})

	It("resumes the saved conversation", func() {
		first, _, err := cmder.load(ctx, ddm)
		Expect(err).NotTo(HaveOccurred())

		again, resumed, err := cmder.load(ctx, ddm)
		Expect(err).NotTo(HaveOccurred())
		Expect(resumed).To(BeTrue())
		Expect(again.ID).To(Equal(first.ID))
	})

	It("starts over when the saved conversation was deleted", func() {
		first, _, err := cmder.load(ctx, ddm)
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.DeleteConversation(ctx, first.ID)).To(Succeed())

		next, resumed, err := cmder.load(ctx, ddm)
		Expect(err).NotTo(HaveOccurred())
		Expect(resumed).To(BeFalse())
		Expect(next.ID).NotTo(Equal(first.ID))
	})

	It("starts over with --new", func() {
		first, _, err := cmder.load(ctx, ddm)
		Expect(err).NotTo(HaveOccurred())

		cmder.fresh = true
		next, resumed, err := cmder.load(ctx, ddm)
		Expect(err).NotTo(HaveOccurred())
		Expect(resumed).To(BeFalse())
		Expect(next.ID).NotTo(Equal(first.ID))
	})
})

var _ = Describe("sendAndStream", func() {
	var (
		out      *bytes.Buffer
		received llm.ChatRequest
		frames   []string
		status   int
		proxy    *httptest.Server
		cmder    *chatCommander
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		status = http.StatusOK
		frames = []string{
			`{"choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":"pondering"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":" world"},"finish_reason":"stop"}]}`,
			`[DONE]`,
		}

		proxy = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/chat/stream"))
			body, _ := io.ReadAll(r.Body)
			Expect(json.Unmarshal(body, &received)).To(Succeed())

			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
				return
			}

			w.Header().Set("Content-Type", "text/event-stream")
			for _, f := range frames {
				fmt.Fprintf(w, "data: %s\n\n", f)
			}
		}))

		cmder = &chatCommander{
			proxyTarget: proxy.URL,
			apiTarget:   proxy.URL,
			model:       "deepseek-reasoner",
			logger:      logger.Nop(),
		}
		cmder.setup(out)
	})

	AfterEach(func() {
		proxy.Close()
	})

	It("streams the reply through the terminal sink", func() {
		streaming := true
		snap, err := cmder.sendAndStream(context.Background(), llm.ChatRequest{
			Model:          "deepseek-reasoner",
			Messages:       []llm.Message{llm.NewMessage(llm.RoleUser, "hi")},
			Stream:         &streaming,
			ConversationID: "conv-1",
			MessageID:      "msg-1",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Content).To(Equal("Hello world"))
		Expect(snap.Reasoning).To(Equal("pondering"))
		Expect(snap.Final).To(BeTrue())

		Expect(received.ConversationID).To(Equal("conv-1"))
		Expect(received.MessageID).To(Equal("msg-1"))
		Expect(out.String()).To(ContainSubstring("Hello world"))
	})

	It("returns an error when the proxy rejects the request", func() {
		status = http.StatusBadGateway
		_, err := cmder.sendAndStream(context.Background(), llm.ChatRequest{Model: "m"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("502"))
	})

	It("stops the reply when the context is cancelled", func() {
		block := make(chan struct{})
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"partial\"}}]}\n\n")
			w.(http.Flusher).Flush()
			select {
			case <-block:
			case <-r.Context().Done():
			}
		}))
		defer slow.Close()
		defer close(block)
		cmder.proxyTarget = slow.URL

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		snap, err := cmder.sendAndStream(ctx, llm.ChatRequest{Model: "m", MessageID: "msg-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Stopped()).To(BeTrue())
		Expect(snap.Content).To(Equal("partial"))
		Expect(out.String()).To(ContainSubstring("[stopped]"))
	})
})

var _ = Describe("terminalSink", func() {
	var (
		out  *bytes.Buffer
		sink *terminalSink
		ctx  context.Context
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		sink = newTerminalSink(out)
		ctx = context.Background()
	})

	It("prints only the new suffix of the content", func() {
		Expect(sink.Update(ctx, "m", reasoning.Snapshot{Content: "Hel"})).To(Succeed())
		Expect(sink.Update(ctx, "m", reasoning.Snapshot{Content: "Hello"})).To(Succeed())
		Expect(sink.Finalize(ctx, "m", reasoning.Snapshot{Content: "Hello", FinishReason: "stop", Final: true})).To(Succeed())
		Expect(out.String()).To(Equal("Hello\n"))
	})

	It("skips content that was rewritten rather than extended", func() {
		Expect(sink.Update(ctx, "m", reasoning.Snapshot{Content: "<thi"})).To(Succeed())
		Expect(sink.Update(ctx, "m", reasoning.Snapshot{Content: "Answer"})).To(Succeed())
		Expect(out.String()).To(Equal("<thi"))
	})

	It("marks a stopped message", func() {
		Expect(sink.Finalize(ctx, "m", reasoning.Snapshot{Content: "part", FinishReason: "stopped", Final: true})).To(Succeed())
		Expect(out.String()).To(ContainSubstring("part"))
		Expect(out.String()).To(ContainSubstring("[stopped]"))
	})

	It("prints the error that ended a message", func() {
		Expect(sink.Finalize(ctx, "m", reasoning.Snapshot{Error: "connection reset", Final: true})).To(Succeed())
		Expect(out.String()).To(ContainSubstring("connection reset"))
	})
})
