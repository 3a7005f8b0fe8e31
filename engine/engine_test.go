package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/d1nch8g/vadgate/engine"
	"github.com/d1nch8g/vadgate/gpt"
	"github.com/d1nch8g/vadgate/tts"
	"github.com/d1nch8g/vadgate/vad"
)

type fakeRecognizer struct {
	texts    []string
	calls    int
	gotBytes int
	gotRate  int64
	closeErr error
}

func (f *fakeRecognizer) Recognize(_ context.Context, pcm []byte, sampleRate int64) (string, error) {
	f.gotBytes = len(pcm)
	f.gotRate = sampleRate
	text := ""
	if f.calls < len(f.texts) {
		text = f.texts[f.calls]
	}
	f.calls++
	return text, nil
}

func (f *fakeRecognizer) Close() error { return f.closeErr }

type fakeChatter struct {
	requests [][]gpt.Message
	err      error
}

func (f *fakeChatter) Chat(_ context.Context, messages []gpt.Message) (string, error) {
	f.requests = append(f.requests, messages)
	if f.err != nil {
		return "", f.err
	}
	return "why do you think so?", nil
}

type fakeSynthesizer struct {
	texts    []string
	options  tts.SynthesisOptions
	closeErr error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string, options tts.SynthesisOptions) ([]byte, error) {
	f.texts = append(f.texts, text)
	f.options = options
	return []byte("mp3"), nil
}

func (f *fakeSynthesizer) Close() error { return f.closeErr }

type fakePlayer struct {
	played int
	err    error
}

func (f *fakePlayer) Initialize() error { return nil }
func (f *fakePlayer) Terminate()        {}

func (f *fakePlayer) PlayMP3(_ context.Context, data []byte) error {
	f.played++
	return f.err
}

type fixture struct {
	recognizer  *fakeRecognizer
	chatter     *fakeChatter
	synthesizer *fakeSynthesizer
	player      *fakePlayer
	engine      *engine.Engine
}

func newFixture(cfg engine.EngineConfig, texts ...string) *fixture {
	f := &fixture{
		recognizer:  &fakeRecognizer{texts: texts},
		chatter:     &fakeChatter{},
		synthesizer: &fakeSynthesizer{},
		player:      &fakePlayer{},
	}
	f.engine = engine.NewEngine(cfg, f.recognizer, f.chatter, f.synthesizer, f.player,
		slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	return f
}

func utterance() vad.Segment {
	return vad.Segment{Samples: make([]float32, 16000), SampleRate: 16000}
}

func TestDeliver_FullCycle(t *testing.T) {
	f := newFixture(engine.EngineConfig{}, "my code does not compile")

	if err := f.engine.Deliver(context.Background(), utterance()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if f.recognizer.gotBytes != 32000 {
		t.Errorf("recognizer got %d bytes, want 32000", f.recognizer.gotBytes)
	}
	if f.recognizer.gotRate != 16000 {
		t.Errorf("recognizer got rate %d, want 16000", f.recognizer.gotRate)
	}
	if len(f.synthesizer.texts) != 1 || f.synthesizer.texts[0] != "why do you think so?" {
		t.Errorf("synthesized %v", f.synthesizer.texts)
	}
	if f.synthesizer.options != tts.GetDefaultSynthesisOptions() {
		t.Errorf("synthesis options = %+v, want defaults", f.synthesizer.options)
	}
	if f.player.played != 1 {
		t.Errorf("played %d clips, want 1", f.player.played)
	}

	history := f.engine.GetHistory()
	if len(history) != 1 || history[0].UserInput != "my code does not compile" {
		t.Fatalf("history = %+v", history)
	}
}

func TestDeliver_EmptyTranscriptionSkipped(t *testing.T) {
	f := newFixture(engine.EngineConfig{}, "   ")

	if err := f.engine.Deliver(context.Background(), utterance()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(f.chatter.requests) != 0 {
		t.Errorf("chat called %d times, want 0", len(f.chatter.requests))
	}
	if f.player.played != 0 {
		t.Errorf("played %d clips, want 0", f.player.played)
	}
}

func TestDeliver_BuildsMessagesFromHistory(t *testing.T) {
	f := newFixture(engine.EngineConfig{SystemPrompt: "be brief"}, "first", "second")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.engine.Deliver(ctx, utterance()); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}

	got := f.chatter.requests[1]
	want := []gpt.Message{
		{Role: gpt.RoleSystem, Text: "be brief"},
		{Role: gpt.RoleUser, Text: "first"},
		{Role: gpt.RoleAssistant, Text: "why do you think so?"},
		{Role: gpt.RoleUser, Text: "second"},
	}
	if len(got) != len(want) {
		t.Fatalf("messages = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDeliver_HistoryTrimmed(t *testing.T) {
	f := newFixture(engine.EngineConfig{MaxHistorySize: 2}, "a", "b", "c")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.engine.Deliver(ctx, utterance()); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}

	history := f.engine.GetHistory()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].UserInput != "b" || history[1].UserInput != "c" {
		t.Errorf("history = %+v, want b then c", history)
	}

	f.engine.ClearHistory()
	if n := len(f.engine.GetHistory()); n != 0 {
		t.Errorf("history length after clear = %d", n)
	}
}

func TestDeliver_ChatFailure(t *testing.T) {
	f := newFixture(engine.EngineConfig{}, "hello")
	f.chatter.err = errors.New("quota exceeded")

	err := f.engine.Deliver(context.Background(), utterance())
	if !errors.Is(err, f.chatter.err) {
		t.Fatalf("err = %v, want wrapped chat error", err)
	}
	if n := len(f.engine.GetHistory()); n != 0 {
		t.Errorf("history length = %d, want 0", n)
	}
}

func TestDeliver_PlaybackFailureKeepsHistory(t *testing.T) {
	f := newFixture(engine.EngineConfig{}, "hello")
	f.player.err = errors.New("no output device")

	if err := f.engine.Deliver(context.Background(), utterance()); !errors.Is(err, f.player.err) {
		t.Fatalf("err = %v, want wrapped playback error", err)
	}
	if n := len(f.engine.GetHistory()); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}
}

func TestClose_JoinsErrors(t *testing.T) {
	f := newFixture(engine.EngineConfig{})
	f.recognizer.closeErr = errors.New("stt")
	f.synthesizer.closeErr = errors.New("tts")

	err := f.engine.Close()
	if !errors.Is(err, f.recognizer.closeErr) || !errors.Is(err, f.synthesizer.closeErr) {
		t.Fatalf("err = %v, want both close errors", err)
	}
}

func TestNewEngine_NonPositiveHistorySizeUsesDefault(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = "question"
	}
	f := newFixture(engine.EngineConfig{MaxHistorySize: -1}, texts...)
	ctx := context.Background()

	for i := range texts {
		if err := f.engine.Deliver(ctx, utterance()); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}
	if n := len(f.engine.GetHistory()); n != 10 {
		t.Errorf("history length = %d, want the default of 10", n)
	}
}
