package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/yui/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals MessageFinalizedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		stop := "stop"
		event := eventstream.NewMessageFinalizedEvent("conv-1",
			eventstream.EventMessage{
				ID:               "msg-1",
				Content:          "4",
				ReasoningContent: "2+2",
				FinishReason:     &stop,
			},
			eventstream.EventSource{Provider: "openai", Model: "deepseek-r1"},
			eventstream.RequestMeta{
				Path:        "/v1/chat/stream",
				StartedAt:   now.Add(-2 * time.Second),
				CompletedAt: now,
				Streaming:   true,
			},
		)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("request_meta"))
		Expect(got).To(HaveKeyWithValue("conversation_id", "conv-1"))
		Expect(got).To(HaveKey("message"))
	})

	It("fills identity and duration", func() {
		start := time.Unix(100, 0)
		event := eventstream.NewMessageFinalizedEvent("c", eventstream.EventMessage{ID: "m"},
			eventstream.EventSource{Provider: "openai"},
			eventstream.RequestMeta{StartedAt: start, CompletedAt: start.Add(1500 * time.Millisecond)},
		)
		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeMessageFinalized))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.RequestMeta.DurationMs).To(Equal(int64(1500)))

		other := eventstream.NewMessageFinalizedEvent("c", eventstream.EventMessage{ID: "m"},
			eventstream.EventSource{}, eventstream.RequestMeta{})
		Expect(other.EventID).NotTo(Equal(event.EventID))
		Expect(other.RequestMeta.DurationMs).To(BeZero())
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeMessageFinalized).To(Equal("yui.message.finalized"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil message event"))
	})
})
