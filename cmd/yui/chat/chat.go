// Package chatcmder provides the chat command for interactive LLM chat
// through the yui proxy.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/cmd/yui/serve/services"
	"github.com/papercomputeco/yui/pkg/cliui"
	"github.com/papercomputeco/yui/pkg/config"
	"github.com/papercomputeco/yui/pkg/dotdir"
	"github.com/papercomputeco/yui/pkg/llm"
	"github.com/papercomputeco/yui/pkg/logger"
	"github.com/papercomputeco/yui/pkg/reasoning"
	"github.com/papercomputeco/yui/pkg/storage"
	"github.com/papercomputeco/yui/pkg/stream"
	"github.com/papercomputeco/yui/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

const (
	// historyPreview is the number of earlier messages shown on resume.
	historyPreview = 4

	titleLength = 40
	newTitle    = "New Chat"
)

type chatCommander struct {
	proxyTarget string
	apiTarget   string
	model       string
	system      string
	fresh       bool
	debug       bool

	configDir string
	detector  *reasoning.Detector
	forceTags bool

	api      *apiClient
	http     *http.Client
	pipeline *stream.Pipeline
	out      io.Writer
	logger   *zap.Logger
}

var chatFlagKeys = []string{
	config.FlagProxyTarget,
	config.FlagAPITarget,
	config.FlagModel,
}

const chatLongDesc string = `Start an interactive chat session through the yui proxy.

Replies stream live: the model's reasoning is shown dimmed, followed by
the answer. Press Ctrl+C while a reply is streaming to stop it; the partial
reply is kept. Type /new to start a new conversation, /exit or Ctrl+D to quit.

The conversation is stored by the yui server and resumed by the next
"yui chat" unless --new is given.

Examples:
  yui chat --model deepseek-reasoner
  yui chat --model qwen3-32b --proxy-target http://localhost:8001`

const chatShortDesc string = "Interactive LLM chat through the yui proxy"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cfg, err := services.LoadConfig(cmd, config.ClientFlags, chatFlagKeys)
			if err != nil {
				return err
			}

			cmder.proxyTarget = cfg.Client.ProxyTarget
			cmder.apiTarget = cfg.Client.APITarget
			cmder.model = cfg.Client.Model
			if cmder.model == "" {
				cmder.model = llm.DefaultModel
			}
			cmder.forceTags = cfg.Reasoning.ForceTags
			cmder.detector = reasoning.NewDetector(config.SplitList(cfg.Reasoning.ModelPatterns)...)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagProxyTarget, &cmder.proxyTarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagModel, &cmder.model)
	cmd.Flags().StringVar(&cmder.system, "system", "", "System prompt sent with every message")
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new conversation instead of resuming the last one")

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	c.setup(os.Stdout)

	ctx := context.Background()
	ddm := dotdir.NewManager()

	conv, err := c.open(ctx, ddm)
	if err != nil {
		return err
	}

	history := make([]llm.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		history = append(history, llm.NewMessage(msg.Role, msg.Content))
	}

	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.model),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new for a new conversation, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(c.out)
			return nil
		case "/new":
			c.fresh = true
			next, err := c.open(ctx, ddm)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
				continue
			}
			conv = next
			history = history[:0]
			continue
		}

		if len(history) == 0 && conv.Title == newTitle {
			title := utils.Truncate(utils.OneLine(input), titleLength)
			if err := c.api.renameConversation(ctx, conv.ID, title); err != nil {
				c.logger.Warn("failed to set conversation title", zap.Error(err))
			} else {
				conv.Title = title
			}
		}

		userMsg := &storage.Message{
			ID:        uuid.NewString(),
			Role:      llm.RoleUser,
			Content:   input,
			CreatedAt: storage.NowMillis(),
		}
		if err := c.api.addMessage(ctx, conv.ID, userMsg); err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			continue
		}
		history = append(history, llm.NewMessage(llm.RoleUser, input))

		snap, err := c.generate(ctx, conv.ID, history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			continue
		}

		if snap.Content != "" {
			history = append(history, llm.NewMessage(llm.RoleAssistant, snap.Content))
		}
		fmt.Fprintln(c.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

func (c *chatCommander) setup(out io.Writer) {
	c.out = out
	c.http = &http.Client{}
	c.api = newAPIClient(c.apiTarget, &http.Client{Timeout: 30 * time.Second})
	c.pipeline = stream.NewPipeline(c.logger)
	if c.detector == nil {
		c.detector = reasoning.NewDetector()
	}
}

// open resumes the conversation of the saved session, or starts a new one
// when there is none, it no longer exists, or --new was given.
func (c *chatCommander) open(ctx context.Context, ddm *dotdir.Manager) (*storage.Conversation, error) {
	fmt.Fprintln(c.out)

	var (
		conv    *storage.Conversation
		resumed bool
	)
	err := cliui.Step(c.out, "Opening conversation", func() error {
		var err error
		conv, resumed, err = c.load(ctx, ddm)
		return err
	})
	if err != nil {
		return nil, err
	}

	if resumed {
		c.printResume(conv)
	} else {
		fmt.Fprintf(c.out, "  %s New conversation %s\n\n",
			cliui.DimStyle.Render("●"),
			cliui.IDStyle.Render(conv.ID),
		)
	}
	return conv, nil
}

func (c *chatCommander) load(ctx context.Context, ddm *dotdir.Manager) (*storage.Conversation, bool, error) {
	if !c.fresh {
		session, err := ddm.LoadSession(c.configDir)
		if err != nil {
			return nil, false, fmt.Errorf("loading session: %w", err)
		}

		if session != nil && session.ConversationID != "" {
			conv, err := c.api.getConversation(ctx, session.ConversationID)
			switch {
			case err == nil:
				return conv, true, nil
			case errors.Is(err, errNotFound):
				c.logger.Debug("saved conversation is gone", zap.String("id", session.ConversationID))
			default:
				return nil, false, err
			}
		}
	}

	now := storage.NowMillis()
	folderID := storage.DefaultFolderID
	conv, err := c.api.createConversation(ctx, &storage.Conversation{
		ID:        uuid.NewString(),
		Title:     newTitle,
		CreatedAt: now,
		UpdatedAt: now,
		FolderID:  &folderID,
		Messages:  []*storage.Message{},
	})
	if err != nil {
		return nil, false, fmt.Errorf("creating conversation: %w", err)
	}

	if err := ddm.SaveSession(&dotdir.SessionState{ConversationID: conv.ID, Model: c.model}, c.configDir); err != nil {
		c.logger.Warn("failed to save session", zap.Error(err))
	}
	return conv, false, nil
}

func (c *chatCommander) printResume(conv *storage.Conversation) {
	fmt.Fprintf(c.out, "  %s Resuming %s %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(conv.Title),
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(conv.Messages))),
	)

	width := cliui.TerminalWidth(100)
	start := max(0, len(conv.Messages)-historyPreview)
	for _, msg := range conv.Messages[start:] {
		if msg.Role != llm.RoleAssistant {
			fmt.Fprintf(c.out, "\n%s%s\n", userPrompt, cliui.Preview(msg.Content, width-lipgloss.Width(userPrompt)))
			continue
		}

		text := msg.Content
		if cliui.IsTerminal() {
			if rendered, err := cliui.RenderMarkdown(text); err == nil {
				text = strings.TrimSpace(rendered)
			}
		}
		fmt.Fprintf(c.out, "\n%s%s\n", assistantPrompt, text)
	}
	fmt.Fprintln(c.out)
}

// generate streams one assistant reply through the proxy, which records it
// into the conversation. Ctrl+C stops the reply and keeps what arrived.
func (c *chatCommander) generate(ctx context.Context, conversationID string, history []llm.Message) (reasoning.Snapshot, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	streaming := true
	req := llm.ChatRequest{
		Model:          c.model,
		Messages:       history,
		System:         c.system,
		Stream:         &streaming,
		ConversationID: conversationID,
		MessageID:      uuid.NewString(),
	}

	start := time.Now()
	snap, err := c.sendAndStream(ctx, req)
	if err == nil {
		fmt.Fprintf(c.out, "%s\n", cliui.StepStyle.Render(fmt.Sprintf("(%s)", cliui.FormatDuration(time.Since(start)))))
	}
	return snap, err
}

// sendAndStream posts req to the proxy's streaming endpoint and renders the
// reply as it arrives.
func (c *chatCommander) sendAndStream(ctx context.Context, req llm.ChatRequest) (reasoning.Snapshot, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return reasoning.Snapshot{}, fmt.Errorf("marshaling request: %w", err)
	}

	c.logger.Debug("sending chat request",
		zap.String("proxy_target", c.proxyTarget),
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	url := strings.TrimRight(c.proxyTarget, "/") + "/v1/chat/stream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return reasoning.Snapshot{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return reasoning.Snapshot{}, fmt.Errorf("sending request to proxy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return reasoning.Snapshot{}, fmt.Errorf("proxy returned status %d: %s", resp.StatusCode, string(respBody))
	}

	fmt.Fprint(c.out, assistantPrompt)

	msg := stream.Message{
		ID:          req.MessageID,
		TagScanning: c.detector.Resolve(req.Model, req.Reasoning) || c.forceTags,
	}
	return c.pipeline.Run(ctx, msg, resp.Body, newTerminalSink(c.out))
}
