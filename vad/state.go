package vad

import "fmt"

// State is the detector's position in an utterance.
type State int

const (
	// Idle waits for speech.
	Idle State = iota

	// Recording accumulates an utterance.
	Recording

	// Finalizing has seen silence after speech and waits for the hangover to
	// expire before closing the utterance.
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Params are the detector thresholds on the logical clock. Durations are in
// samples.
type Params struct {
	Threshold float64
	Hangover  uint64
	MinLength uint64
}

// Machine is the complete detector state. The zero value is Idle.
type Machine struct {
	State State

	// Start is the absolute sample index where the current utterance began.
	Start uint64

	// SilenceStart is where the current silence run began. Only meaningful
	// while Finalizing.
	SilenceStart uint64
}

// Event is one energy observation covering samples [From, To).
type Event struct {
	Energy float64
	From   uint64
	To     uint64
}

// ActionKind tells the caller what to do after a transition.
type ActionKind int

const (
	ActionNone ActionKind = iota
	// ActionStart marks the start of an utterance at From.
	ActionStart
	// ActionResume means speech returned during the hangover.
	ActionResume
	// ActionEmit asks for samples [From, To) to be delivered as a segment.
	// Speech ends at SpeechEnd; the rest is the trailing hangover.
	ActionEmit
	// ActionDiscard reports a closed utterance whose speech is too short.
	ActionDiscard
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionStart:
		return "start"
	case ActionResume:
		return "resume"
	case ActionEmit:
		return "emit"
	case ActionDiscard:
		return "discard"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is the side effect requested by Transition.
type Action struct {
	Kind ActionKind
	From uint64
	To   uint64

	// SpeechEnd is where the closing silence began. Set for Emit and Discard.
	SpeechEnd uint64
}

// Transition applies one event to m. It is a pure function: the same inputs
// always yield the same outputs.
//
// Energy equal to the threshold counts as speech.
func Transition(p Params, m Machine, ev Event) (Machine, Action) {
	speech := ev.Energy >= p.Threshold

	switch m.State {
	case Recording:
		if speech {
			return m, Action{}
		}
		m.State = Finalizing
		m.SilenceStart = ev.From
		return expireHangover(p, m, ev.To)

	case Finalizing:
		if speech {
			m.State = Recording
			m.SilenceStart = 0
			return m, Action{Kind: ActionResume, From: m.Start, To: ev.To}
		}
		return expireHangover(p, m, ev.To)

	default:
		if speech {
			return Machine{State: Recording, Start: ev.From}, Action{Kind: ActionStart, From: ev.From, To: ev.To}
		}
		return Machine{}, Action{}
	}
}

// expireHangover closes the utterance once the silence run reaches the
// hangover. The closed window is [start, now].
func expireHangover(p Params, m Machine, now uint64) (Machine, Action) {
	if now-m.SilenceStart < p.Hangover {
		return m, Action{}
	}
	return Machine{}, closeSpan(p, m.Start, m.SilenceStart, now)
}

// closeSpan judges the minimum length on the speech, not on the window.
func closeSpan(p Params, from, speechEnd, to uint64) Action {
	kind := ActionEmit
	if speechEnd-from < p.MinLength {
		kind = ActionDiscard
	}
	return Action{Kind: kind, From: from, To: to, SpeechEnd: speechEnd}
}

// ShutdownPolicy decides what happens to an open utterance on shutdown.
type ShutdownPolicy int

const (
	// ShutdownDiscard drops a partial utterance.
	ShutdownDiscard ShutdownPolicy = iota
	// ShutdownFinalize closes a partial utterance as if the hangover expired.
	ShutdownFinalize
)

func (p ShutdownPolicy) String() string {
	if p == ShutdownFinalize {
		return "finalize"
	}
	return "discard"
}

// ParseShutdownPolicy accepts "discard" and "finalize". Empty means discard.
func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch s {
	case "", "discard":
		return ShutdownDiscard, nil
	case "finalize":
		return ShutdownFinalize, nil
	default:
		return ShutdownDiscard, fmt.Errorf("unknown shutdown policy %q", s)
	}
}

// Flush brings m to Idle at shutdown. now is the end of the last processed
// event and closes the window. With ShutdownDiscard an open utterance is
// reported as discarded.
func Flush(p Params, m Machine, now uint64, policy ShutdownPolicy) (Machine, Action) {
	var speechEnd uint64
	switch m.State {
	case Recording:
		speechEnd = now
	case Finalizing:
		speechEnd = m.SilenceStart
	default:
		return Machine{}, Action{}
	}

	if policy == ShutdownDiscard {
		return Machine{}, Action{Kind: ActionDiscard, From: m.Start, To: now, SpeechEnd: speechEnd}
	}
	return Machine{}, closeSpan(p, m.Start, speechEnd, now)
}
