package llm_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/yui/pkg/llm"
)

var _ = Describe("ChatRequest", func() {
	Describe("ParseChatRequest", func() {
		It("applies defaults", func() {
			req, err := llm.ParseChatRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Model).To(Equal(llm.DefaultModel))
			Expect(*req.Temperature).To(Equal(0.7))
			Expect(*req.TopP).To(Equal(1.0))
			Expect(req.MaxTokens).To(BeNil())
		})

		It("keeps explicit values", func() {
			req, err := llm.ParseChatRequest([]byte(`{
				"model":"deepseek-r1",
				"messages":[],
				"temperature":0,
				"top_p":0.5,
				"max_tokens":64,
				"conversation_id":"c1"
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Model).To(Equal("deepseek-r1"))
			Expect(*req.Temperature).To(Equal(0.0))
			Expect(*req.TopP).To(Equal(0.5))
			Expect(*req.MaxTokens).To(Equal(64))
			Expect(req.ConversationID).To(Equal("c1"))
		})

		DescribeTable("rejects out of range parameters",
			func(body, field string) {
				_, err := llm.ParseChatRequest([]byte(body))
				var verr llm.ValidationError
				Expect(errors.As(err, &verr)).To(BeTrue())
				Expect(verr.Field).To(Equal(field))
			},
			Entry("missing messages", `{}`, "messages"),
			Entry("missing role", `{"messages":[{"content":"x"}]}`, "messages[0].role"),
			Entry("temperature too high", `{"messages":[],"temperature":2.5}`, "temperature"),
			Entry("negative temperature", `{"messages":[],"temperature":-1}`, "temperature"),
			Entry("top_p too high", `{"messages":[],"top_p":1.1}`, "top_p"),
			Entry("zero max_tokens", `{"messages":[],"max_tokens":0}`, "max_tokens"),
		)

		It("reports malformed JSON", func() {
			_, err := llm.ParseChatRequest([]byte(`{`))
			Expect(err).To(MatchError(ContainSubstring("decoding chat request")))
		})
	})

	Describe("UpstreamPayload", func() {
		It("prepends the system prompt and drops yui-only fields", func() {
			req, err := llm.ParseChatRequest([]byte(`{
				"messages":[{"role":"user","content":"hi"}],
				"system":"be brief",
				"conversation_id":"c1",
				"seed":0
			}`))
			Expect(err).NotTo(HaveOccurred())

			payload := req.UpstreamPayload(true)
			Expect(payload.Stream).To(BeTrue())
			Expect(payload.Messages).To(Equal([]llm.Message{
				llm.NewMessage(llm.RoleSystem, "be brief"),
				llm.NewMessage(llm.RoleUser, "hi"),
			}))
			Expect(payload.Seed).To(BeNil())

			raw, err := json.Marshal(payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).NotTo(ContainSubstring("conversation_id"))
			Expect(string(raw)).NotTo(ContainSubstring("max_tokens"))
			Expect(string(raw)).To(ContainSubstring(`"stream":true`))
		})

		It("forwards positive max_tokens and seed", func() {
			tokens, seed := 10, 7
			req := &llm.ChatRequest{Messages: []llm.Message{}, MaxTokens: &tokens, Seed: &seed}
			req.ApplyDefaults()

			payload := req.UpstreamPayload(false)
			Expect(*payload.MaxTokens).To(Equal(10))
			Expect(*payload.Seed).To(Equal(7))
			Expect(payload.Stream).To(BeFalse())
		})
	})
})

var _ = Describe("ParseChatCompletion", func() {
	It("reads content, reasoning and finish reason", func() {
		resp, err := llm.ParseChatCompletion([]byte(`{
			"id":"cmpl-1",
			"choices":[{"index":0,"message":{"role":"assistant","content":"4","reasoning_content":"2+2"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}
		}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Choices[0].Message.Content).To(Equal("4"))
		Expect(resp.Choices[0].Message.ReasoningContent).To(Equal("2+2"))
		Expect(resp.FinishReason()).To(Equal("stop"))
		Expect(resp.Usage.TotalTokens).To(Equal(4))
	})

	It("rejects a response without choices", func() {
		_, err := llm.ParseChatCompletion([]byte(`{"choices":[]}`))
		Expect(err).To(HaveOccurred())
	})
})
