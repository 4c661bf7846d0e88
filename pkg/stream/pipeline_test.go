package stream_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/yui/pkg/logger"
	"github.com/papercomputeco/yui/pkg/reasoning"
	"github.com/papercomputeco/yui/pkg/stream"
)

func frames(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

// cancelingReader yields its data, then cancels the context and fails the
// next read the way an aborted HTTP body does.
type cancelingReader struct {
	data   []byte
	cancel context.CancelFunc
}

func (r *cancelingReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	r.cancel()
	return 0, context.Canceled
}

var _ = Describe("Pipeline", func() {
	var (
		p    *stream.Pipeline
		sink *stream.MemorySink
		ctx  context.Context
	)

	BeforeEach(func() {
		p = stream.NewPipeline(logger.Nop())
		sink = stream.NewMemorySink()
		ctx = context.Background()
	})

	It("splits structured reasoning from content", func() {
		src := strings.NewReader(frames(
			`{"choices":[{"delta":{"reasoning_content":"step1"}}]}`,
			`{"choices":[{"delta":{"content":"answer"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		))

		snap, err := p.Run(ctx, stream.Message{ID: "m1"}, src, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Reasoning).To(Equal("step1"))
		Expect(snap.Content).To(Equal("answer"))
		Expect(snap.FinishReason).To(Equal("stop"))
		Expect(snap.Final).To(BeTrue())

		Expect(sink.Updates("m1")).To(Equal(3))
		Expect(sink.Finalizations("m1")).To(Equal(1))
		stored, ok := sink.Get("m1")
		Expect(ok).To(BeTrue())
		Expect(stored).To(Equal(snap))
	})

	It("splits inline tags for reasoning models across arbitrary chunking", func() {
		raw := frames(
			`{"choices":[{"delta":{"content":"<think>let me"}}]}`,
			`{"choices":[{"delta":{"content":" see</thi"}}]}`,
			`{"choices":[{"delta":{"content":"nk>\n\n42"}}]}`,
		) + "data: [DONE]\n\n"

		snap, err := p.Run(ctx, stream.Message{ID: "m2", TagScanning: true}, iotest.OneByteReader(strings.NewReader(raw)), sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Reasoning).To(Equal("let me see"))
		Expect(snap.Content).To(Equal("42"))
	})

	It("accepts the legacy delta and done shapes", func() {
		src := strings.NewReader(frames(`{"delta":"Hel"}`, `{"delta":"lo"}`, `{"done":true}`, `{"delta":"ignored"}`))

		snap, err := p.Run(ctx, stream.Message{ID: "m3"}, src, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Content).To(Equal("Hello"))
		Expect(sink.Updates("m3")).To(Equal(3))
	})

	It("skips malformed payloads and comments", func() {
		src := strings.NewReader(": keep-alive\n\n" + frames(`{"delta":"a"`, `{"delta":"b"}`) + "event: ping\n")

		snap, err := p.Run(ctx, stream.Message{ID: "m4"}, src, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Content).To(Equal("b"))
	})

	It("finalizes when the source ends without a completion signal", func() {
		src := strings.NewReader(frames(`{"delta":"partial"}`))

		snap, err := p.Run(ctx, stream.Message{ID: "m5", TagScanning: true}, src, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Final).To(BeTrue())
		Expect(snap.Content).To(Equal("partial"))
		Expect(snap.Reasoning).To(BeEmpty())
		Expect(sink.Finalizations("m5")).To(Equal(1))
	})

	It("finalizes partial content as stopped when aborted", func() {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		src := &cancelingReader{
			data:   []byte(frames(`{"choices":[{"delta":{"content":"Hello "}}]}`, `{"choices":[{"delta":{"content":"wor"}}]}`)),
			cancel: cancel,
		}

		var snap reasoning.Snapshot
		var err error
		Expect(func() {
			snap, err = p.Run(ctx, stream.Message{ID: "m6"}, src, sink)
		}).NotTo(Panic())
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Content).To(Equal("Hello wor"))
		Expect(snap.FinishReason).To(Equal("stopped"))
		Expect(sink.Finalizations("m6")).To(Equal(1))
	})

	It("stops a read blocked on a silent source when cancelled", func() {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		pr, pw := io.Pipe()
		defer pw.Close()

		go func() {
			defer GinkgoRecover()
			_, err := pw.Write([]byte(frames(`{"choices":[{"delta":{"content":"Hello wor"}}]}`)))
			Expect(err).NotTo(HaveOccurred())
		}()

		done := make(chan reasoning.Snapshot, 1)
		go func() {
			defer GinkgoRecover()
			snap, err := p.Run(ctx, stream.Message{ID: "m6b"}, pr, sink)
			Expect(err).NotTo(HaveOccurred())
			done <- snap
		}()

		Eventually(func() int { return sink.Updates("m6b") }).Should(BeNumerically(">=", 1))
		cancel()

		var snap reasoning.Snapshot
		Eventually(done).Should(Receive(&snap))
		Expect(snap.Content).To(Equal("Hello wor"))
		Expect(snap.FinishReason).To(Equal("stopped"))
		Expect(sink.Finalizations("m6b")).To(Equal(1))
	})

	It("does not read when the context is already cancelled", func() {
		ctx, cancel := context.WithCancel(ctx)
		cancel()

		snap, err := p.Run(ctx, stream.Message{ID: "m7"}, iotest.ErrReader(errors.New("must not read")), sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Stopped()).To(BeTrue())
		Expect(snap.Content).To(BeEmpty())
	})

	It("surfaces a transport failure as message content", func() {
		src := io.MultiReader(
			strings.NewReader(frames(`{"delta":"Hi"}`)),
			iotest.ErrReader(errors.New("connection reset")),
		)

		snap, err := p.Run(ctx, stream.Message{ID: "m8"}, src, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Content).To(Equal("Hi\n\nError: HTTP error: connection reset"))
		Expect(snap.Error).To(Equal("HTTP error: connection reset"))
	})

	It("surfaces an upstream error frame", func() {
		src := strings.NewReader(frames(`{"error":"Upstream returned 500"}`))

		snap, err := p.Run(ctx, stream.Message{ID: "m9"}, src, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Content).To(Equal("Error: Upstream returned 500"))
	})

	It("copies raw bytes verbatim to the tee destination", func() {
		raw := ": hi\n" + frames(`{"delta":"x"}`) + "data: [DONE]\n\n"
		var out bytes.Buffer

		_, err := p.RunTee(ctx, stream.Message{ID: "m10"}, strings.NewReader(raw), &out, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(Equal(raw))
	})

	It("treats a closed tee destination as stopped", func() {
		pr, pw := io.Pipe()
		Expect(pr.Close()).To(Succeed())

		snap, err := p.RunTee(ctx, stream.Message{ID: "m11"}, strings.NewReader(frames(`{"delta":"x"}`)), pw, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Stopped()).To(BeTrue())
	})

	It("returns the finalize error and keeps going on update errors", func() {
		updates := 0
		failing := stream.FuncSink{
			OnUpdate: func(context.Context, string, reasoning.Snapshot) error {
				updates++
				return errors.New("update failed")
			},
			OnFinalize: func(context.Context, string, reasoning.Snapshot) error {
				return errors.New("disk full")
			},
		}

		snap, err := p.Run(ctx, stream.Message{ID: "m12"}, strings.NewReader(frames(`{"delta":"a"}`, `{"delta":"b"}`)), failing)
		Expect(err).To(MatchError(ContainSubstring("disk full")))
		Expect(snap.Content).To(Equal("ab"))
		Expect(updates).To(Equal(3))
	})

	It("produces identical results for identical streams", func() {
		raw := frames(`{"delta":"a<think>b"}`, `{"delta":"</think>c"}`, `{"done":1}`)
		first, err := p.Run(ctx, stream.Message{ID: "a", TagScanning: true}, strings.NewReader(raw), sink)
		Expect(err).NotTo(HaveOccurred())
		second, err := p.Run(ctx, stream.Message{ID: "b", TagScanning: true}, strings.NewReader(raw), sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal(second))
		Expect(first.Reasoning).To(Equal("b"))
		Expect(first.Content).To(Equal("ac"))
	})
})

var _ = Describe("MultiSink", func() {
	It("fans out to every sink and joins errors", func() {
		a, b := stream.NewMemorySink(), stream.NewMemorySink()
		broken := stream.FuncSink{OnFinalize: func(context.Context, string, reasoning.Snapshot) error {
			return errors.New("broken")
		}}
		multi := stream.MultiSink{a, broken, b}

		snap := reasoning.Snapshot{Content: "x", Final: true}
		Expect(multi.Update(context.Background(), "m", snap)).To(Succeed())
		Expect(multi.Finalize(context.Background(), "m", snap)).To(MatchError("broken"))

		for _, s := range []*stream.MemorySink{a, b} {
			got, ok := s.Get("m")
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(snap))
			Expect(s.Finalizations("m")).To(Equal(1))
		}
	})
})
