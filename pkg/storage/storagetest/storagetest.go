// Package storagetest holds the behavior suite every storage.Driver must
// pass. Driver packages run it from their own test suites.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/yui/pkg/storage"
	testutils "github.com/papercomputeco/yui/pkg/utils/test"
)

// DescribeDriver registers the shared driver specs. newDriver is called
// before every spec and must return an empty driver.
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" driver behavior", func() {
		var (
			d   storage.Driver
			ctx context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			d = newDriver()
			DeferCleanup(func() {
				Expect(d.Close()).To(Succeed())
			})
		})

		seed := func() *storage.Conversation {
			conv := testutils.NewTestConversation("c1", "First chat",
				testutils.NewTestMessage("m1", "user", "What is 2+2?", 1000),
				testutils.NewTestMessage("m2", "assistant", "4", 2000),
			)
			created, err := d.CreateConversation(ctx, conv)
			Expect(err).NotTo(HaveOccurred())
			return created
		}

		Describe("conversations", func() {
			It("creates and fetches a conversation with ordered messages", func() {
				created := seed()
				Expect(created.Messages).To(HaveLen(2))

				got, err := d.GetConversation(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Title).To(Equal("First chat"))
				Expect(got.Settings).To(MatchJSON(`{"model":"test-model"}`))
				Expect(got.FolderID).To(BeNil())
				Expect(got.Messages).To(HaveLen(2))
				Expect(got.Messages[0].ID).To(Equal("m1"))
				Expect(got.Messages[1].Content).To(Equal("4"))
				Expect(got.Messages[1].ConversationID).To(Equal("c1"))
			})

			It("rejects a duplicate id", func() {
				seed()
				_, err := d.CreateConversation(ctx, testutils.NewTestConversation("c1", "again"))
				Expect(storage.IsConflict(err)).To(BeTrue())
			})

			It("rejects an unknown folder", func() {
				conv := testutils.NewTestConversation("c2", "x")
				conv.FolderID = testutils.Ptr("missing")
				_, err := d.CreateConversation(ctx, conv)
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("reports missing conversations", func() {
				_, err := d.GetConversation(ctx, "nope")
				var nf storage.NotFoundError
				Expect(errors.As(err, &nf)).To(BeTrue())
				Expect(nf.Kind).To(Equal(storage.KindConversation))
				Expect(nf.ID).To(Equal("nope"))
			})

			It("lists without messages, most recently updated first", func() {
				seed()
				older := testutils.NewTestConversation("c0", "Old")
				older.UpdatedAt = 10
				_, err := d.CreateConversation(ctx, older)
				Expect(err).NotTo(HaveOccurred())

				convs, err := d.ListConversations(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(convs).To(HaveLen(2))
				Expect(convs[0].ID).To(Equal("c1"))
				Expect(convs[1].ID).To(Equal("c0"))
				Expect(convs[0].Messages).To(BeEmpty())
			})

			It("breaks timestamp ties by id", func() {
				for _, id := range []string{"cb", "ca", "cc"} {
					_, err := d.CreateConversation(ctx, testutils.NewTestConversation(id, id))
					Expect(err).NotTo(HaveOccurred())
				}
				_, err := d.CreateConversation(ctx, testutils.NewTestConversation("c1", "tied",
					testutils.NewTestMessage("mz", "user", "z", 5),
					testutils.NewTestMessage("ma", "assistant", "a", 5),
					testutils.NewTestMessage("mm", "user", "m", 5),
				))
				Expect(err).NotTo(HaveOccurred())

				convs, err := d.ListConversations(ctx)
				Expect(err).NotTo(HaveOccurred())
				ids := make([]string, 0, len(convs))
				for _, c := range convs {
					ids = append(ids, c.ID)
				}
				Expect(ids).To(Equal([]string{"c1", "ca", "cb", "cc"}))

				conv, err := d.GetConversation(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(conv.Messages).To(HaveLen(3))
				Expect(conv.Messages[0].ID).To(Equal("ma"))
				Expect(conv.Messages[1].ID).To(Equal("mm"))
				Expect(conv.Messages[2].ID).To(Equal("mz"))
			})

			It("applies partial updates", func() {
				seed()
				_, err := d.CreateFolder(ctx, testutils.NewTestFolder("f1", "Work", 1))
				Expect(err).NotTo(HaveOccurred())

				updated, err := d.UpdateConversation(ctx, "c1", storage.ConversationUpdate{
					Title:    testutils.Ptr("Renamed"),
					IsPinned: testutils.Ptr(true),
					FolderID: testutils.Ptr("f1"),
					Settings: json.RawMessage(`{"temperature":1}`),
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Title).To(Equal("Renamed"))
				Expect(updated.IsPinned).To(BeTrue())
				Expect(updated.IsArchived).To(BeFalse())
				Expect(*updated.FolderID).To(Equal("f1"))
				Expect(updated.Settings).To(MatchJSON(`{"temperature":1}`))
				Expect(updated.UpdatedAt).To(Equal(int64(2000)))

				unchanged, err := d.UpdateConversation(ctx, "c1", storage.ConversationUpdate{})
				Expect(err).NotTo(HaveOccurred())
				Expect(unchanged.Title).To(Equal("Renamed"))
			})

			It("deletes a conversation with its messages", func() {
				seed()
				Expect(d.DeleteConversation(ctx, "c1")).To(Succeed())

				_, err := d.GetConversation(ctx, "c1")
				Expect(storage.IsNotFound(err)).To(BeTrue())
				Expect(storage.IsNotFound(d.DeleteConversation(ctx, "c1"))).To(BeTrue())

				hits, err := d.SearchMessages(ctx, "2+2", 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(hits).To(BeEmpty())
			})
		})

		Describe("messages", func() {
			It("adds a message and bumps the conversation", func() {
				seed()
				msg, err := d.AddMessage(ctx, "c1", testutils.NewTestMessage("m3", "user", "and 3+3?", 3000))
				Expect(err).NotTo(HaveOccurred())
				Expect(msg.ID).To(Equal("m3"))

				conv, err := d.GetConversation(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(conv.Messages).To(HaveLen(3))
				Expect(conv.UpdatedAt).To(BeNumerically(">", 2000))
			})

			It("rejects messages for unknown conversations and duplicate ids", func() {
				seed()
				_, err := d.AddMessage(ctx, "nope", testutils.NewTestMessage("m9", "user", "x", 1))
				Expect(storage.IsNotFound(err)).To(BeTrue())

				_, err = d.AddMessage(ctx, "c1", testutils.NewTestMessage("m1", "user", "x", 1))
				Expect(storage.IsConflict(err)).To(BeTrue())
			})

			It("upserts a message without touching the conversation", func() {
				seed()
				msg := testutils.NewTestMessage("m3", "assistant", "partial", 3000)
				_, err := d.PutMessage(ctx, "c1", msg)
				Expect(err).NotTo(HaveOccurred())

				msg.Content = "complete"
				msg.ReasoningContent = "thought"
				stored, err := d.PutMessage(ctx, "c1", msg)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Content).To(Equal("complete"))
				Expect(stored.ReasoningContent).To(Equal("thought"))

				conv, err := d.GetConversation(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(conv.Messages).To(HaveLen(3))
				Expect(conv.UpdatedAt).To(Equal(int64(2000)))
			})

			It("updates content and reasoning", func() {
				seed()
				msg, err := d.UpdateMessage(ctx, "c1", "m2", storage.MessageUpdate{
					ReasoningContent: testutils.Ptr("2+2 is 4"),
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(msg.Content).To(Equal("4"))
				Expect(msg.ReasoningContent).To(Equal("2+2 is 4"))

				_, err = d.UpdateMessage(ctx, "other", "m2", storage.MessageUpdate{})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("deletes a message", func() {
				seed()
				Expect(d.DeleteMessage(ctx, "c1", "m1")).To(Succeed())
				Expect(storage.IsNotFound(d.DeleteMessage(ctx, "c1", "m1"))).To(BeTrue())

				conv, err := d.GetConversation(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(conv.Messages).To(HaveLen(1))
			})

			It("round trips attachments and tool calls", func() {
				seed()
				msg := testutils.NewTestMessage("m3", "user", "see file", 3000)
				msg.Attachments = json.RawMessage(`[{"name":"a.txt"}]`)
				msg.ToolCalls = json.RawMessage(`[{"id":"t1"}]`)
				_, err := d.AddMessage(ctx, "c1", msg)
				Expect(err).NotTo(HaveOccurred())

				conv, err := d.GetConversation(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(conv.Messages[2].Attachments).To(MatchJSON(`[{"name":"a.txt"}]`))
				Expect(conv.Messages[2].ToolCalls).To(MatchJSON(`[{"id":"t1"}]`))
			})

			It("searches content and reasoning case-insensitively", func() {
				seed()
				_, err := d.UpdateMessage(ctx, "c1", "m2", storage.MessageUpdate{
					ReasoningContent: testutils.Ptr("ADDITION is easy"),
				})
				Expect(err).NotTo(HaveOccurred())

				hits, err := d.SearchMessages(ctx, "addition", 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(hits).To(HaveLen(1))
				Expect(hits[0].ConversationID).To(Equal("c1"))
				Expect(hits[0].ConversationTitle).To(Equal("First chat"))
				Expect(hits[0].Message.ID).To(Equal("m2"))

				hits, err = d.SearchMessages(ctx, "2+2", 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(hits).To(HaveLen(1))

				_, err = d.AddMessage(ctx, "c1", testutils.NewTestMessage("m3", "user", "what is 2+2 again", 3000))
				Expect(err).NotTo(HaveOccurred())
				hits, err = d.SearchMessages(ctx, "2+2", 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(hits).To(HaveLen(1))
				Expect(hits[0].Message.ID).To(Equal("m3"))
			})
		})

		Describe("model sources", func() {
			It("supports the full lifecycle", func() {
				_, err := d.CreateModelSource(ctx, testutils.NewTestModelSource("s1", "http://a", 1))
				Expect(err).NotTo(HaveOccurred())
				_, err = d.CreateModelSource(ctx, testutils.NewTestModelSource("s2", "http://b", 2))
				Expect(err).NotTo(HaveOccurred())

				_, err = d.CreateModelSource(ctx, testutils.NewTestModelSource("s1", "http://a", 1))
				Expect(storage.IsConflict(err)).To(BeTrue())

				sources, err := d.ListModelSources(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(sources).To(HaveLen(2))
				Expect(sources[0].ID).To(Equal("s2"))
				Expect(sources[0].Models).To(MatchJSON(`[{"id":"test-model"}]`))

				updated, err := d.UpdateModelSource(ctx, "s1", storage.ModelSourceUpdate{
					APIKey: testutils.Ptr("sk-new"),
					Models: json.RawMessage(`[]`),
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.APIKey).To(Equal("sk-new"))
				Expect(updated.BaseURL).To(Equal("http://a"))
				Expect(updated.Models).To(MatchJSON(`[]`))

				Expect(d.DeleteModelSource(ctx, "s1")).To(Succeed())
				Expect(storage.IsNotFound(d.DeleteModelSource(ctx, "s1"))).To(BeTrue())
				_, err = d.UpdateModelSource(ctx, "s1", storage.ModelSourceUpdate{})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("settings", func() {
			It("starts with defaults", func() {
				settings, err := d.GetSettings(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(settings.CurrentConversationID).To(BeNil())
				Expect(settings.GlobalSettings).To(MatchJSON(storage.DefaultGlobalSettings))
				Expect(settings.UIPreferences).To(MatchJSON(storage.DefaultUIPreferences))
			})

			It("applies partial updates", func() {
				settings, err := d.UpdateSettings(ctx, storage.SettingsUpdate{
					CurrentConversationID: testutils.Ptr("c1"),
					UIPreferences:         json.RawMessage(`{"theme":"dark"}`),
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(*settings.CurrentConversationID).To(Equal("c1"))
				Expect(settings.UIPreferences).To(MatchJSON(`{"theme":"dark"}`))
				Expect(settings.GlobalSettings).To(MatchJSON(storage.DefaultGlobalSettings))
			})
		})

		Describe("folders", func() {
			It("seeds the default folder", func() {
				folders, err := d.ListFolders(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(folders).To(HaveLen(1))
				Expect(folders[0].ID).To(Equal(storage.DefaultFolderID))
				Expect(folders[0].Name).To(Equal(storage.DefaultFolderName))
			})

			It("lists pinned folders first, then newest first", func() {
				for _, f := range []*storage.Folder{
					testutils.NewTestFolder("old", "Old", 1),
					testutils.NewTestFolder("new", "New", storage.NowMillis()+1000),
					testutils.NewTestFolder("pinned", "Pinned", 2),
				} {
					_, err := d.CreateFolder(ctx, f)
					Expect(err).NotTo(HaveOccurred())
				}
				_, err := d.UpdateFolder(ctx, "pinned", storage.FolderUpdate{IsPinned: testutils.Ptr(true)})
				Expect(err).NotTo(HaveOccurred())

				folders, err := d.ListFolders(ctx)
				Expect(err).NotTo(HaveOccurred())
				ids := make([]string, 0, len(folders))
				for _, f := range folders {
					ids = append(ids, f.ID)
				}
				Expect(ids).To(Equal([]string{"pinned", "new", storage.DefaultFolderID, "old"}))
			})

			It("updates name and color", func() {
				_, err := d.CreateFolder(ctx, testutils.NewTestFolder("f1", "Work", 1))
				Expect(err).NotTo(HaveOccurred())
				_, err = d.CreateFolder(ctx, testutils.NewTestFolder("f1", "Work", 1))
				Expect(storage.IsConflict(err)).To(BeTrue())

				folder, err := d.UpdateFolder(ctx, "f1", storage.FolderUpdate{
					Name:  testutils.Ptr("Job"),
					Color: testutils.Ptr("#ff0000"),
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(folder.Name).To(Equal("Job"))
				Expect(*folder.Color).To(Equal("#ff0000"))
			})

			It("moves conversations to the default folder on delete", func() {
				_, err := d.CreateFolder(ctx, testutils.NewTestFolder("f1", "Work", 1))
				Expect(err).NotTo(HaveOccurred())
				conv := testutils.NewTestConversation("c1", "In folder")
				conv.FolderID = testutils.Ptr("f1")
				_, err = d.CreateConversation(ctx, conv)
				Expect(err).NotTo(HaveOccurred())

				Expect(d.DeleteFolder(ctx, "f1")).To(Succeed())

				got, err := d.GetConversation(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(*got.FolderID).To(Equal(storage.DefaultFolderID))
				Expect(storage.IsNotFound(d.DeleteFolder(ctx, "f1"))).To(BeTrue())
			})

			It("protects the default folder", func() {
				Expect(d.DeleteFolder(ctx, storage.DefaultFolderID)).To(MatchError(storage.ErrProtectedFolder))
			})
		})

		Describe("copy, import and export", func() {
			It("copies a conversation under fresh ids", func() {
				seed()
				_, err := d.UpdateConversation(ctx, "c1", storage.ConversationUpdate{IsPinned: testutils.Ptr(true)})
				Expect(err).NotTo(HaveOccurred())

				dup, err := storage.CopyConversation(ctx, d, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(dup.ID).NotTo(Equal("c1"))
				Expect(dup.Title).To(Equal("First chat (副本)"))
				Expect(dup.IsPinned).To(BeFalse())
				Expect(dup.Settings).To(MatchJSON(`{"model":"test-model"}`))
				Expect(dup.Messages).To(HaveLen(2))
				Expect(dup.Messages[0].ID).NotTo(Equal("m1"))
				Expect(dup.Messages[0].Content).To(Equal("What is 2+2?"))

				_, err = storage.CopyConversation(ctx, d, "missing")
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("imports new records, skips existing ones and exports everything", func() {
				seed()
				counts, err := storage.Import(ctx, d, &storage.ImportData{
					Conversations: []*storage.Conversation{
						testutils.NewTestConversation("c1", "duplicate"),
						testutils.NewTestConversation("c2", "Imported",
							testutils.NewTestMessage("i1", "user", "hi", 5000),
						),
					},
					ModelSources:   []*storage.ModelSource{testutils.NewTestModelSource("s1", "http://a", 1)},
					GlobalSettings: json.RawMessage(`{"model":"deepseek-r1"}`),
					UIPreferences:  json.RawMessage(`{"theme":"dark"}`),
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(*counts).To(Equal(storage.ImportCounts{Conversations: 1, Messages: 1, ModelSources: 1, Settings: 1}))

				exported, err := storage.Export(ctx, d)
				Expect(err).NotTo(HaveOccurred())
				Expect(exported.Conversations).To(HaveLen(2))
				Expect(exported.ModelSources).To(HaveLen(1))
				Expect(exported.GlobalSettings).To(MatchJSON(`{"model":"deepseek-r1"}`))
				Expect(exported.ExportedAt).To(BeNumerically(">", 0))

				for _, c := range exported.Conversations {
					if c.ID == "c1" {
						Expect(c.Title).To(Equal("First chat"))
						Expect(c.Messages).To(HaveLen(2))
					}
				}
			})
		})
	})
}
