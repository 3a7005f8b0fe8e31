package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/d1nch8g/vadgate/audio"
	"github.com/d1nch8g/vadgate/gpt"
	"github.com/d1nch8g/vadgate/observe"
	"github.com/d1nch8g/vadgate/sound"
	"github.com/d1nch8g/vadgate/stt"
	"github.com/d1nch8g/vadgate/tts"
	"github.com/d1nch8g/vadgate/vad"
)

// ConversationEntry represents a single exchange in the conversation
type ConversationEntry struct {
	UserInput  string
	AIResponse string
	Timestamp  time.Time
}

// EngineConfig holds the configuration for the conversation engine
type EngineConfig struct {
	SystemPrompt   string
	MaxHistorySize int
	Synthesis      tts.SynthesisOptions
}

const defaultSystemPrompt = `You are a rubber duck. Listen to the user's problem and help them solve it by asking questions.
You are not allowed to answer the user's question directly.`

// Engine turns each delivered utterance into a spoken reply:
// recognition, completion, synthesis and playback, in that order.
type Engine struct {
	config      EngineConfig
	recognizer  stt.Recognizer
	chatter     gpt.Chatter
	synthesizer tts.Synthesizer
	player      sound.Player
	logger      *slog.Logger
	metrics     *observe.Metrics

	history      []ConversationEntry
	historyMutex sync.RWMutex
}

var _ vad.Sink = (*Engine)(nil)

// NewEngine creates a new conversation engine instance
func NewEngine(
	config EngineConfig,
	recognizer stt.Recognizer,
	chatter gpt.Chatter,
	synthesizer tts.Synthesizer,
	player sound.Player,
	logger *slog.Logger,
	metrics *observe.Metrics,
) *Engine {
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 10 // Default to last 10 exchanges
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}
	if config.Synthesis == (tts.SynthesisOptions{}) {
		config.Synthesis = tts.GetDefaultSynthesisOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.Discard()
	}

	return &Engine{
		config:      config,
		recognizer:  recognizer,
		chatter:     chatter,
		synthesizer: synthesizer,
		player:      player,
		logger:      logger.With("component", "engine"),
		metrics:     metrics,
		history:     make([]ConversationEntry, 0),
	}
}

// Deliver runs one conversation cycle for seg.
func (e *Engine) Deliver(ctx context.Context, seg vad.Segment) error {
	userInput, err := e.recognize(ctx, seg)
	if err != nil {
		return fmt.Errorf("failed to recognize utterance: %w", err)
	}

	if strings.TrimSpace(userInput) == "" {
		e.logger.DebugContext(ctx, "empty transcription, skipped", "id", seg.ID)
		return nil
	}

	e.logger.InfoContext(ctx, "user said", "id", seg.ID, "text", userInput, "truncated", seg.Truncated)

	aiResponse, err := e.generateResponse(ctx, userInput)
	if err != nil {
		return fmt.Errorf("failed to generate AI response: %w", err)
	}

	e.logger.InfoContext(ctx, "assistant replied", "id", seg.ID, "text", aiResponse)

	// A reply that was generated belongs to the history even if playback fails.
	e.addToHistory(ConversationEntry{
		UserInput:  userInput,
		AIResponse: aiResponse,
		Timestamp:  seg.CapturedAt,
	})

	if err := e.speakResponse(ctx, aiResponse); err != nil {
		return fmt.Errorf("failed to speak response: %w", err)
	}
	return nil
}

func (e *Engine) recognize(ctx context.Context, seg vad.Segment) (string, error) {
	start := time.Now()
	defer func() { e.metrics.STTDuration.Record(ctx, time.Since(start).Seconds()) }()

	return e.recognizer.Recognize(ctx, audio.PCM16(seg.Samples), int64(seg.SampleRate))
}

// generateResponse creates an AI response from the history and the new input
func (e *Engine) generateResponse(ctx context.Context, userInput string) (string, error) {
	start := time.Now()
	defer func() { e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds()) }()

	return e.chatter.Chat(ctx, e.buildMessages(userInput))
}

// speakResponse converts text to speech and plays it
func (e *Engine) speakResponse(ctx context.Context, text string) error {
	start := time.Now()
	data, err := e.synthesizer.Synthesize(ctx, text, e.config.Synthesis)
	e.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return err
	}

	return e.player.PlayMP3(ctx, data)
}

// buildMessages returns the system prompt, the history as alternating user
// and assistant messages, and the new user input.
func (e *Engine) buildMessages(userInput string) []gpt.Message {
	e.historyMutex.RLock()
	defer e.historyMutex.RUnlock()

	messages := make([]gpt.Message, 0, 2+2*len(e.history))
	messages = append(messages, gpt.Message{Role: gpt.RoleSystem, Text: e.config.SystemPrompt})
	for _, entry := range e.history {
		messages = append(messages,
			gpt.Message{Role: gpt.RoleUser, Text: entry.UserInput},
			gpt.Message{Role: gpt.RoleAssistant, Text: entry.AIResponse},
		)
	}
	return append(messages, gpt.Message{Role: gpt.RoleUser, Text: userInput})
}

// addToHistory adds a conversation entry to the history
func (e *Engine) addToHistory(entry ConversationEntry) {
	e.historyMutex.Lock()
	defer e.historyMutex.Unlock()

	e.history = append(e.history, entry)

	// Trim history if it exceeds max size
	if len(e.history) > e.config.MaxHistorySize {
		e.history = e.history[len(e.history)-e.config.MaxHistorySize:]
	}
}

// GetHistory returns a copy of the conversation history
func (e *Engine) GetHistory() []ConversationEntry {
	e.historyMutex.RLock()
	defer e.historyMutex.RUnlock()

	history := make([]ConversationEntry, len(e.history))
	copy(history, e.history)
	return history
}

// ClearHistory clears the conversation history
func (e *Engine) ClearHistory() {
	e.historyMutex.Lock()
	defer e.historyMutex.Unlock()

	e.history = e.history[:0]
}

// Close closes the recognizer and synthesizer clients.
func (e *Engine) Close() error {
	var errs []error

	if err := e.recognizer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close STT client: %w", err))
	}

	if err := e.synthesizer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close TTS client: %w", err))
	}

	return errors.Join(errs...)
}
