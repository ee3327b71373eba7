// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat loop for the ragchat CLI.
//
// Handles the interactive REPL for conversing with the retrieval-augmented
// assistant. Output is plain text; this layer only drives the engine and
// echoes what it produces.
//
// Interactive Commands (during chat):
//
//	/help, /h           Show available commands
//	/stop [id]          Cancel one generation (latest when no id given)
//	/stopall            Cancel every in-flight generation
//	/sources            List source groups for this conversation
//	/count              Show the (possibly frozen) source count
//	/feedback           Print the feedback payload for the last exchange
//	/save               Persist the conversation
//	/list               List saved conversations
//	/load N             Load the Nth most recent conversation
//	/new                Start a fresh conversation
//	/quit, /q           Exit
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/ragchat/internal/catalog"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/conversation"
	"github.com/jeranaias/ragchat/internal/generation"
	"github.com/jeranaias/ragchat/internal/sources"
	"github.com/jeranaias/ragchat/internal/storage"
	"github.com/jeranaias/ragchat/internal/transport"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession holds the state for one interactive run.
type ChatSession struct {
	Config   *config.Config
	Registry *generation.Registry
	Store    *storage.ConversationStore
	Catalog  *catalog.Catalog
	Input    *ChatCLI

	// limiter throttles question submissions when configured.
	limiter *rate.Limiter

	logger *zap.Logger

	// genMu guards gen, which the config watcher may swap mid-run.
	genMu sync.Mutex
	gen   config.GenerationConfig

	// lastSession tracks the most recent submission for the bare /stop form.
	lastSession string
}

// NewChatSession wires the engine from configuration.
func NewChatSession(cfg *config.Config, logger *zap.Logger) (*ChatSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := transport.NewClient(&transport.ClientConfig{
		BaseURL: cfg.Endpoint.BaseURL,
		AskPath: cfg.Endpoint.AskPath,
		Timeout: cfg.Timeout(),
	}, transport.StaticCredential(cfg.Endpoint.BearerToken), logger)

	conv := conversation.New()
	agg := sources.NewAggregator()
	guard := generation.NewGuard(agg, cfg.SettleDelay())

	var sink generation.SourceSink
	var cat *catalog.Catalog
	if cfg.Storage.CatalogEnabled && cfg.Storage.CatalogPath != "" {
		opened, err := catalog.Open(cfg.Storage.CatalogPath)
		if err != nil {
			logger.Warn("source catalog unavailable", zap.Error(err))
		} else {
			cat = opened
			sink = opened
		}
	}

	registry := generation.NewRegistry(client, conv, agg, guard, sink, logger)

	store, err := storage.NewConversationStoreWithDir(cfg.Storage.ConversationsDir)
	if err != nil {
		return nil, err
	}
	store.MaxConversations = cfg.Storage.MaxConversations

	var limiter *rate.Limiter
	if n := cfg.Engine.SubmitPerMinute; n > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
	}

	return &ChatSession{
		Config:   cfg,
		Registry: registry,
		Store:    store,
		Catalog:  cat,
		Input:    NewChatCLI(),
		limiter:  limiter,
		logger:   logger,
		gen:      cfg.Generation,
	}, nil
}

// ApplyGeneration swaps the generation parameters. Only model, temperature
// and dataset take effect at runtime; endpoint changes need a restart.
func (s *ChatSession) ApplyGeneration(gen config.GenerationConfig) {
	s.genMu.Lock()
	s.gen = gen
	s.genMu.Unlock()
}

// genConfig returns a snapshot of the current generation parameters.
func (s *ChatSession) genConfig() config.GenerationConfig {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gen
}

// Close releases session resources.
func (s *ChatSession) Close() {
	s.Registry.CancelAll()
	if s.Catalog != nil {
		s.Catalog.Close()
	}
	s.Input.Close()
}

// =============================================================================
// MAIN LOOP
// =============================================================================

// Run drives the interactive loop until /quit or EOF.
func Run(cfg *config.Config, logger *zap.Logger) error {
	session, err := NewChatSession(cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	// Announce the pinned count once it settles, the same way a UI would
	// refresh its counter exactly once.
	session.Registry.Guard().SetFreezeCallback(func(count int) {
		if count > 0 {
			fmt.Println("\n[sources: " + util.IntToString(count) + "]")
		}
	})

	// Pick up edits to the config file without a restart. Generation
	// parameters are the only live-reloadable settings.
	if path, err := config.ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			watcher, werr := config.NewWatcher(path, 0, func(next *config.Config) {
				session.ApplyGeneration(next.Generation)
				logger.Info("configuration reloaded",
					zap.String("model", next.Generation.Model),
					zap.String("dataset", next.Generation.Dataset))
			})
			if werr == nil {
				defer watcher.Close()
			}
		}
	}

	fmt.Println("ragchat - " + cfg.Endpoint.BaseURL + " (model " + cfg.Generation.Model + ", dataset " + cfg.Generation.Dataset + ")")
	fmt.Println("Type /help for commands.")

	for {
		input, err := session.Input.ReadInput("> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				// Ctrl+C cancels in-flight generations rather than exiting.
				session.Registry.CancelAll()
				continue
			}
			// io.EOF (Ctrl+D) and real errors both end the loop.
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := session.handleCommand(input); quit {
				return nil
			}
			continue
		}

		session.ask(input)
	}
}

// ask submits one question and blocks until the stream ends so output does
// not interleave with the prompt. Ctrl+C while streaming cancels just this
// generation.
func (s *ChatSession) ask(question string) {
	if s.limiter != nil && !s.limiter.Allow() {
		fmt.Println("rate limit: slow down")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gen := s.genConfig()
	sess, err := s.Registry.Submit(ctx, question, generation.AskOptions{
		Model:       gen.Model,
		Temperature: gen.Temperature,
		Dataset:     gen.Dataset,
		OnEvent: func(ev transport.Event) {
			if ev.Type == transport.EventToken {
				fmt.Print(ev.Token)
			}
		},
	})
	if err != nil {
		fmt.Println("error: " + err.Error())
		return
	}
	s.lastSession = sess.ID()

	// The observer only sees decoded stream events, while transport-level
	// failures terminate the session directly, so the terminal state is the
	// one signal that covers both.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Registry.Cancel(sess.ID())
			fmt.Println("\ncancelled")
			return

		case <-ticker.C:
			switch sess.State() {
			case generation.StateCompleted:
				fmt.Println()
				return
			case generation.StateErrored:
				fmt.Println("\n" + generation.ErrorText)
				return
			case generation.StateCancelled:
				return
			}
		}
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

// handleCommand dispatches one slash command. Returns true to exit.
func (s *ChatSession) handleCommand(input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/q":
		return true

	case "/help", "/h":
		s.printHelp()

	case "/stop":
		id := s.lastSession
		if len(args) > 0 {
			id = args[0]
		}
		if id == "" || !s.Registry.Cancel(id) {
			fmt.Println("nothing to stop")
		} else {
			fmt.Println("stopped " + id)
		}

	case "/stopall":
		s.Registry.CancelAll()
		fmt.Println("stopped all generations")

	case "/sources":
		s.printSources()

	case "/count":
		guard := s.Registry.Guard()
		state := "live"
		if guard.Finalized() {
			state = "final"
		}
		fmt.Println("sources: " + util.IntToString(guard.Count()) + " (" + state + ")")

	case "/feedback":
		s.printFeedback()

	case "/save":
		s.save()

	case "/list":
		s.list()

	case "/load":
		index := 0
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				index = n
			}
		}
		s.load(index)

	case "/new":
		s.Registry.NewConversation()
		fmt.Println("new conversation " + s.Registry.Conversation().ID())

	default:
		fmt.Println("unknown command " + cmd + " (try /help)")
	}

	return false
}

func (s *ChatSession) printHelp() {
	fmt.Println(`Commands:
  /stop [id]   cancel one generation (latest when no id)
  /stopall     cancel every in-flight generation
  /sources     list source groups for this conversation
  /count       show the current source count
  /feedback    print the feedback payload for the last exchange
  /save        persist the conversation
  /list        list saved conversations
  /load N      load the Nth most recent conversation
  /new         start a fresh conversation
  /quit        exit`)
}

func (s *ChatSession) printSources() {
	groups := s.Registry.Sources().Groups()
	if len(groups) == 0 {
		fmt.Println("no sources yet")
		return
	}
	for _, g := range groups {
		label := g.Label
		if label == "" {
			label = "Question " + util.IntToString(g.QuestionIndex)
		}
		fmt.Println(label + ":")
		for _, rec := range g.Records {
			line := "  - " + rec.Title
			if rec.DocumentURL != "" {
				line += " (" + rec.DocumentURL + ")"
			}
			fmt.Println(line)
		}
	}
	fmt.Println("total: " + util.IntToString(s.Registry.Guard().Count()))
}

func (s *ChatSession) printFeedback() {
	gen := s.genConfig()
	payload, ok := s.Registry.Conversation().BuildFeedback(gen.Model, gen.Temperature, gen.Dataset)
	if !ok {
		fmt.Println("no completed exchange yet")
		return
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Println("error: " + err.Error())
		return
	}
	fmt.Println(string(data))
}

func (s *ChatSession) save() {
	conv := s.Registry.Conversation()
	gen := s.genConfig()
	stored := storage.FromMessages(conv.ID(), gen.Model, gen.Dataset, conv.Messages())
	id, err := s.Store.Save(stored)
	if err != nil {
		fmt.Println("save failed: " + err.Error())
		return
	}
	fmt.Println("saved " + id)
}

func (s *ChatSession) list() {
	metas, err := s.Store.List()
	if err != nil {
		fmt.Println("list failed: " + err.Error())
		return
	}
	if len(metas) == 0 {
		fmt.Println("no saved conversations")
		return
	}
	for i, meta := range metas {
		fmt.Println(util.IntToString(i) + ": " + meta.Summary +
			" (" + util.IntToString(meta.MessageCount) + " messages, " +
			util.IntToString(meta.SourceCount) + " sources)")
	}
}

func (s *ChatSession) load(index int) {
	stored, err := s.Store.LoadByIndex(index)
	if err != nil {
		fmt.Println("load failed: " + err.Error())
		return
	}
	s.Registry.LoadConversation(stored.ID, stored.ToMessages())
	fmt.Println("loaded " + stored.ID + " (" + util.IntToString(len(stored.Messages)) + " messages)")
}
