// Package proxy provides the yui chat proxy: it forwards chat requests to an
// OpenAI-compatible upstream, relays streamed replies to the client and
// records assistant messages into conversations.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/config"
	"github.com/papercomputeco/yui/pkg/eventstream"
	"github.com/papercomputeco/yui/pkg/llm"
	"github.com/papercomputeco/yui/pkg/llm/delta"
	"github.com/papercomputeco/yui/pkg/reasoning"
	"github.com/papercomputeco/yui/pkg/storage"
	"github.com/papercomputeco/yui/pkg/stream"
	"github.com/papercomputeco/yui/pkg/utils"
	"github.com/papercomputeco/yui/proxy/header"
	"github.com/papercomputeco/yui/proxy/worker"
)

const (
	devServerOrigin = "http://localhost:5173"

	pathChat        = "/v1/chat"
	pathChatStream  = "/v1/chat/stream"
	pathCompletions = "/v1/chat/completions"
)

// Proxy is the yui chat proxy. It is transparent for OpenAI clients and
// enqueues finalized assistant messages for async storage via its worker pool.
type Proxy struct {
	config        Config
	driver        storage.Driver
	workerPool    *worker.Pool
	pipeline      *stream.Pipeline
	logger        *zap.Logger
	httpClient    *http.Client
	streamClient  *http.Client
	server        *fiber.App
	headerHandler *header.Handler

	// streams tracks relay goroutines so Close can drain them before the
	// worker pool stops accepting jobs. Relay contexts derive from
	// streamCtx; Close cancels it so silent upstreams cannot hold shutdown.
	streams     sync.WaitGroup
	streamCtx   context.Context
	stopStreams context.CancelFunc
}

// New creates a new Proxy.
// The driver is injected to handle async persistence of assistant messages.
func New(cfg Config, driver storage.Driver, logger *zap.Logger) (*Proxy, error) {
	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return nil, errors.New("upstream URL is required")
	}
	cfg.UpstreamURL = strings.TrimRight(strings.TrimSpace(cfg.UpstreamURL), "/")

	if cfg.Provider == "" {
		cfg.Provider = config.DefaultProvider
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ModeProduction
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Detector == nil {
		cfg.Detector = reasoning.NewDetector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	wp, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: cfg.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())
	app.Use(cors.New(corsConfig(cfg)))

	streamCtx, stopStreams := context.WithCancel(context.Background())

	p := &Proxy{
		streamCtx:     streamCtx,
		stopStreams:   stopStreams,
		config:        cfg,
		driver:        driver,
		workerPool:    wp,
		pipeline:      stream.NewPipeline(logger),
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// Streamed replies can run far longer than the timeout; only the wait
		// for the response headers is bounded.
		streamClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
				IdleConnTimeout:       90 * time.Second,
				ForceAttemptHTTP2:     true,
			},
		},
	}

	app.Get("/health", p.handleHealth)
	app.Post(pathChat, p.handleChat)
	app.Post(pathChatStream, p.handleChatStream)
	app.Post(pathCompletions, p.handleCompletions)
	app.Get("/v1/models", p.handleModels)
	app.Get("/v1/default-source", p.handleDefaultSource)

	for _, r := range cfg.Registrars {
		r.RegisterRoutes(app)
	}

	if cfg.Mode == config.ModeProduction {
		p.registerStatic(app)
	} else {
		logger.Info("development mode: static file serving disabled")
	}

	return p, nil
}

// corsConfig allows the configured dev origins. Production additionally
// accepts any origin, since the UI may be served from any host name.
func corsConfig(cfg Config) cors.Config {
	var origins []string
	for _, o := range cfg.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	if cfg.Mode == config.ModeProduction {
		if len(origins) == 0 {
			origins = []string{devServerOrigin}
		}
		// Credentials rule out the "*" wildcard, so every origin is
		// accepted through the func instead.
		return cors.Config{
			AllowOrigins:     strings.Join(origins, ","),
			AllowOriginsFunc: func(string) bool { return true },
			AllowCredentials: true,
		}
	}

	if len(origins) == 0 {
		return cors.Config{}
	}
	return cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowCredentials: true,
	}
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamURL),
		zap.String("mode", p.config.Mode),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.config.UpstreamURL),
		zap.String("mode", p.config.Mode),
	)

	return p.server.Listener(listener)
}

// Close shuts down the proxy. In-flight streams are stopped and recorded
// as-is, then the worker pool drains.
func (p *Proxy) Close() error {
	p.stopStreams()
	err := p.server.Shutdown()
	p.streams.Wait()
	p.workerPool.Close()
	return err
}

type healthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	BaseURL string `json:"base_url"`
	Mode    string `json:"mode"`
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(healthResponse{
		OK:      true,
		Version: utils.Version,
		BaseURL: p.config.UpstreamURL,
		Mode:    p.config.Mode,
	})
}

type defaultSourceResponse struct {
	Configured bool   `json:"configured"`
	Name       string `json:"name,omitempty"`
	BaseURL    string `json:"baseUrl,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
}

// handleDefaultSource exposes the server's own upstream so the web UI can
// offer it as a model source without the user typing the key again.
func (p *Proxy) handleDefaultSource(c *fiber.Ctx) error {
	key := p.config.APIKey
	if key == "" || key == config.PlaceholderAPIKey || p.config.UpstreamURL == "" {
		return c.JSON(defaultSourceResponse{Configured: false})
	}
	return c.JSON(defaultSourceResponse{
		Configured: true,
		Name:       "Default Source",
		BaseURL:    p.config.UpstreamURL,
		APIKey:     key,
	})
}

// handleModels proxies the upstream model list. Clients treat an empty list
// as "no models detected", so every failure degrades to one.
func (p *Proxy) handleModels(c *fiber.Ctx) error {
	empty := fiber.Map{"data": []any{}}

	httpReq, err := http.NewRequestWithContext(c.Context(), http.MethodGet, p.upstreamURL("/models"), nil)
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return c.JSON(empty)
	}
	p.headerHandler.SetUpstreamAuth(httpReq)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Warn("listing upstream models failed", zap.Error(err))
		return c.JSON(empty)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil || httpResp.StatusCode != http.StatusOK || !json.Valid(body) {
		p.logger.Warn("upstream returned no model list",
			zap.Int("status", httpResp.StatusCode),
			zap.Error(err),
		)
		return c.JSON(empty)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// handleChat handles non-streaming chat requests in the yui request format.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	req, err := llm.ParseChatRequest(c.Body())
	if err != nil {
		return p.invalidRequest(c, err)
	}

	body, err := json.Marshal(req.UpstreamPayload(false))
	if err != nil {
		p.logger.Error("failed to encode upstream payload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	httpReq, err := http.NewRequestWithContext(c.Context(), http.MethodPost, p.upstreamURL("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.headerHandler.SetUpstreamAuth(httpReq)

	p.logger.Debug("forwarding chat request to upstream",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: fmt.Sprintf("HTTP error: %v", err)})
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: fmt.Sprintf("HTTP error: %v", err)})
	}

	if ct := httpResp.Header.Get("Content-Type"); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	}

	if httpResp.StatusCode != http.StatusOK {
		p.logger.Error("upstream returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", utils.Truncate(string(respBody), 200)),
		)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	if req.ConversationID != "" {
		job := p.newJob(pathChat, req.ConversationID, req.MessageID, req.Model, false, startTime)
		p.recordCompletion(job, p.tagScanning(req.Model, req.Reasoning), respBody)
	}

	return c.Status(fiber.StatusOK).Send(respBody)
}

// handleChatStream handles streaming chat requests in the yui request
// format. The response is always an SSE stream; upstream failures are
// reported as {"error": ...} frames.
func (p *Proxy) handleChatStream(c *fiber.Ctx) error {
	startTime := time.Now()

	req, err := llm.ParseChatRequest(c.Body())
	if err != nil {
		return p.invalidRequest(c, err)
	}

	body, err := json.Marshal(req.UpstreamPayload(true))
	if err != nil {
		p.logger.Error("failed to encode upstream payload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	// Derive from the proxy instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the relay runs
	// asynchronously in a separate goroutine and needs the upstream connection
	// to remain open.
	ctx, cancel := context.WithCancel(p.streamCtx)

	src := p.openStream(ctx, body)

	msg := stream.Message{
		ID:          req.MessageID,
		TagScanning: p.tagScanning(req.Model, req.Reasoning),
	}
	var sink stream.Sink = stream.FuncSink{}
	if req.ConversationID != "" {
		job := p.newJob(pathChatStream, req.ConversationID, req.MessageID, req.Model, true, startTime)
		msg.ID = job.Message.ID
		sink = worker.NewSink(p.workerPool, job)
	}

	p.headerHandler.SetEventStreamHeaders(c)
	p.startRelay(ctx, cancel, c, src, msg, sink)
	return nil
}

// handleCompletions is a transparent OpenAI chat completions passthrough.
// Replies are recorded when the client names a conversation in the
// X-Yui-Conversation-Id header.
func (p *Proxy) handleCompletions(c *fiber.Ctx) error {
	startTime := time.Now()
	body := bytes.Clone(c.Body())

	var peek struct {
		Model  string `json:"model"`
		Stream *bool  `json:"stream"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		p.logger.Warn("failed to parse completion request", zap.Error(err))
	}
	streaming := peek.Stream != nil && *peek.Stream

	conversationID := strings.Clone(c.Get(header.ConversationIDHeader))
	messageID := strings.Clone(c.Get(header.MessageIDHeader))
	tagScanning := p.tagScanning(peek.Model, nil)

	ctx := context.Context(c.Context())
	var cancel context.CancelFunc = func() {}
	client := p.httpClient
	if streaming {
		// See handleChatStream for why the request outlives the handler.
		ctx, cancel = context.WithCancel(p.streamCtx)
		client = p.streamClient
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.upstreamURL("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		cancel()
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}
	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding completion request to upstream",
		zap.String("model", peek.Model),
		zap.Bool("streaming", streaming),
	)

	httpResp, err := client.Do(httpReq)
	if err != nil {
		cancel()
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}

	if !streaming || httpResp.StatusCode != http.StatusOK {
		defer cancel()
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			p.logger.Error("failed to read upstream response", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "failed to read upstream response"})
		}

		p.headerHandler.SetClientResponseHeaders(c, httpResp)

		if httpResp.StatusCode == http.StatusOK && conversationID != "" {
			job := p.newJob(pathCompletions, conversationID, messageID, peek.Model, false, startTime)
			p.recordCompletion(job, tagScanning, respBody)
		}
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	msg := stream.Message{ID: messageID, TagScanning: tagScanning}
	var sink stream.Sink = stream.FuncSink{}
	if conversationID != "" {
		job := p.newJob(pathCompletions, conversationID, messageID, peek.Model, true, startTime)
		msg.ID = job.Message.ID
		sink = worker.NewSink(p.workerPool, job)
	}

	p.startRelay(ctx, cancel, c, &upstreamBody{body: httpResp.Body}, msg, sink)
	return nil
}

// startRelay streams src to the client while the pipeline assembles the
// assistant message from the same bytes.
func (p *Proxy) startRelay(ctx context.Context, cancel context.CancelFunc, c *fiber.Ctx, src io.ReadCloser, msg stream.Message, sink stream.Sink) {
	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter buffers chunks in fasthttp's internal pipe, so
	// Flush() in the callback does not reach the TCP socket. With io.Pipe,
	// pw.Write blocks until fasthttp's chunked body writer consumes the data
	// and flushes it, giving per-chunk streaming with direct backpressure.
	pr, pw := io.Pipe()

	if up, ok := src.(*upstreamBody); ok {
		up.frames = pw
	}

	p.streams.Add(1)
	go func() {
		defer p.streams.Done()
		defer cancel()
		defer src.Close()
		defer pw.Close()

		snap, err := p.pipeline.RunTee(ctx, msg, src, pw, sink)
		if err != nil {
			p.logger.Error("failed to record message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
		p.logger.Debug("stream relay complete",
			zap.String("message_id", msg.ID),
			zap.String("finish_reason", snap.FinishReason),
			zap.Bool("stopped", snap.Stopped()),
		)
	}()

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)
}

// openStream starts the upstream streaming request. Failures to connect and
// non-200 responses are turned into a single error frame so the client and
// the recorder see them like any other stream.
func (p *Proxy) openStream(ctx context.Context, body []byte) io.ReadCloser {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.upstreamURL("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return errorFrame("internal error")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	p.headerHandler.SetUpstreamAuth(httpReq)

	p.logger.Debug("forwarding streaming request to upstream",
		zap.String("url", httpReq.URL.String()),
	)

	httpResp, err := p.streamClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		return errorFrame(fmt.Sprintf("HTTP error: %v", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		p.logger.Error("upstream returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", utils.Truncate(string(respBody), 200)),
		)
		return errorFrame(string(respBody))
	}

	return &upstreamBody{body: httpResp.Body}
}

// recordCompletion splits a non-streaming completion and enqueues it for
// storage.
func (p *Proxy) recordCompletion(job worker.Job, tagScanning bool, respBody []byte) {
	completion, err := llm.ParseChatCompletion(respBody)
	if err != nil {
		p.logger.Warn("failed to parse completion, reply not recorded",
			zap.String("conversation_id", job.ConversationID),
			zap.Error(err),
		)
		return
	}

	choice := completion.Choices[0]
	splitter := reasoning.NewSplitter(tagScanning)
	if choice.Message.ReasoningContent != "" {
		splitter.Apply(delta.Reasoning(choice.Message.ReasoningContent))
	}
	if choice.Message.Content != "" {
		splitter.Apply(delta.Content(choice.Message.Content))
	}
	splitter.Apply(delta.Done(choice.FinishReason))

	if completion.Model != "" {
		job.Source.Model = completion.Model
	}

	sink := worker.NewSink(p.workerPool, job)
	if err := sink.Finalize(context.Background(), job.Message.ID, splitter.Snapshot()); err != nil {
		p.logger.Error("failed to record message",
			zap.String("message_id", job.Message.ID),
			zap.Error(err),
		)
	}
}

// newJob prepares the storage job for an assistant reply.
func (p *Proxy) newJob(path, conversationID, messageID, model string, streaming bool, startTime time.Time) worker.Job {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	return worker.Job{
		ConversationID: conversationID,
		Message: &storage.Message{
			ID:        messageID,
			Role:      llm.RoleAssistant,
			CreatedAt: startTime.UnixMilli(),
		},
		Source: eventstream.EventSource{
			Provider: p.config.Provider,
			Model:    model,
			BaseURL:  p.config.UpstreamURL,
		},
		Meta: eventstream.RequestMeta{
			Path:      path,
			StartedAt: startTime,
			Streaming: streaming,
		},
	}
}

// tagScanning decides whether inline <think> tags are split for model.
func (p *Proxy) tagScanning(model string, override *bool) bool {
	if override != nil {
		return *override
	}
	return p.config.ForceTags || p.config.Detector.IsReasoningModel(model)
}

func (p *Proxy) upstreamURL(path string) string {
	return p.config.UpstreamURL + path
}

func (p *Proxy) invalidRequest(c *fiber.Ctx, err error) error {
	p.logger.Debug("rejected chat request", zap.Error(err))
	return c.Status(fiber.StatusUnprocessableEntity).JSON(llm.ErrorResponse{Error: err.Error()})
}
