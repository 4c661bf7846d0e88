package header

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// upstreamHeaders runs req through a fiber handler and returns the headers
// the handler would send upstream.
func upstreamHeaders(hh *Handler, req *http.Request) http.Header {
	app := fiber.New()
	defer app.Shutdown()

	var got http.Header
	app.Post("/v1/chat/completions", func(c *fiber.Ctx) error {
		out, _ := http.NewRequest(http.MethodPost, "http://upstream/v1/chat/completions", nil)
		hh.SetUpstreamRequestHeaders(c, out)
		got = out.Header
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	resp.Body.Close()
	return got
}

// clientResponse runs upstream through SetClientResponseHeaders and returns
// the response the client sees.
func clientResponse(hh *Handler, upstream http.Header) *http.Response {
	app := fiber.New()
	defer app.Shutdown()

	app.Get("/v1/models", func(c *fiber.Ctx) error {
		hh.SetClientResponseHeaders(c, &http.Response{Header: upstream})
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	Expect(err).NotTo(HaveOccurred())
	resp.Body.Close()
	return resp
}

var _ = Describe("SetUpstreamRequestHeaders", func() {
	It("forwards standard headers and keeps client credentials without a key", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		req.Header.Set("Authorization", "Bearer client-token")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", "secret")

		got := upstreamHeaders(NewHandler(""), req)
		Expect(got.Get("Authorization")).To(Equal("Bearer client-token"))
		Expect(got.Get("Content-Type")).To(Equal("application/json"))
		Expect(got.Get("X-Api-Key")).To(Equal("secret"))
	})

	It("replaces client credentials with the configured key", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		req.Header.Set("Authorization", "Bearer sk-dummy")

		got := upstreamHeaders(NewHandler(" sk-server "), req)
		Expect(got.Get("Authorization")).To(Equal("Bearer sk-server"))
	})

	It("strips hop-by-hop, encoding and browser headers", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		req.Header.Set("Connection", "keep-alive")
		req.Header.Set("Host", "localhost:8001")
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Cookie", "session=1")

		got := upstreamHeaders(NewHandler(""), req)
		Expect(got.Get("Connection")).To(BeEmpty())
		Expect(got.Get("Host")).To(BeEmpty())
		Expect(got.Get("Accept-Encoding")).To(BeEmpty())
		Expect(got.Get("Origin")).To(BeEmpty())
		Expect(got.Get("Cookie")).To(BeEmpty())
	})

	It("strips the recording headers", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		req.Header.Set(ConversationIDHeader, "conv-1")
		req.Header.Set(MessageIDHeader, "msg-1")

		got := upstreamHeaders(NewHandler(""), req)
		Expect(got.Get(ConversationIDHeader)).To(BeEmpty())
		Expect(got.Get(MessageIDHeader)).To(BeEmpty())
	})
})

var _ = Describe("SetUpstreamAuth", func() {
	It("sets a bearer token when a key is configured", func() {
		req, _ := http.NewRequest(http.MethodGet, "http://upstream/v1/models", nil)
		NewHandler("sk-test").SetUpstreamAuth(req)
		Expect(req.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
	})

	It("leaves the request alone without a key", func() {
		req, _ := http.NewRequest(http.MethodGet, "http://upstream/v1/models", nil)
		NewHandler("").SetUpstreamAuth(req)
		Expect(req.Header.Get("Authorization")).To(BeEmpty())
	})
})

var _ = Describe("SetClientResponseHeaders", func() {
	It("forwards standard upstream response headers", func() {
		resp := clientResponse(NewHandler(""), http.Header{
			"Content-Type": {"application/json"},
			"X-Request-Id": {"abc-123"},
		})
		Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(resp.Header.Get("X-Request-Id")).To(Equal("abc-123"))
	})

	It("strips transport and CORS headers", func() {
		resp := clientResponse(NewHandler(""), http.Header{
			"Connection":                  {"keep-alive"},
			"Transfer-Encoding":           {"chunked"},
			"Content-Encoding":            {"gzip"},
			"Content-Length":              {"1234"},
			"Access-Control-Allow-Origin": {"https://api.openai.com"},
			"X-Request-Id":                {"abc-123"},
		})
		Expect(resp.Header.Get("Connection")).To(BeEmpty())
		Expect(resp.Header.Get("Transfer-Encoding")).To(BeEmpty())
		Expect(resp.Header.Get("Content-Encoding")).To(BeEmpty())
		Expect(resp.Header.Get("Content-Length")).NotTo(Equal("1234"))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(BeEmpty())
		Expect(resp.Header.Get("X-Request-Id")).To(Equal("abc-123"))
	})

	It("joins multi-value response headers with commas", func() {
		resp := clientResponse(NewHandler(""), http.Header{"X-Multi": {"value1", "value2"}})
		Expect(resp.Header.Get("X-Multi")).To(Equal("value1, value2"))
	})
})

var _ = Describe("SetEventStreamHeaders", func() {
	It("disables caching and proxy buffering", func() {
		app := fiber.New()
		defer app.Shutdown()
		app.Get("/stream", func(c *fiber.Ctx) error {
			NewHandler("").SetEventStreamHeaders(c)
			return c.SendString("data: [DONE]\n\n")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))
	})
})
