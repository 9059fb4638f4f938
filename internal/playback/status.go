package playback

import "fmt"

// Kind is the coarse playback state.
type Kind int

const (
	// Idle means no story is playing.
	Idle Kind = iota
	// Loading means a section is being synthesized.
	Loading
	// Playing means a section is being spoken.
	Playing
	// Paused means the current section is paused.
	Paused
	// Error means the sequence halted on a failure.
	Error
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the observable playback state. Section is meaningful while
// loading, playing or paused; Message only in the Error state.
type Status struct {
	Kind    Kind
	Section int
	Message string
}

// Active reports whether a section is playing or paused.
func (s Status) Active() bool {
	return s.Kind == Playing || s.Kind == Paused
}

func (s Status) String() string {
	switch s.Kind {
	case Loading, Playing, Paused:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Section)
	case Error:
		return fmt.Sprintf("error(%s)", s.Message)
	default:
		return s.Kind.String()
	}
}

// transitions lists the states reachable from each state.
var transitions = map[Kind][]Kind{
	Idle:    {Loading},
	Loading: {Loading, Playing, Idle, Error},
	Playing: {Paused, Loading, Idle, Error},
	Paused:  {Playing, Loading, Idle, Error},
	Error:   {Loading, Idle},
}

func canTransition(from, to Kind) bool {
	for _, k := range transitions[from] {
		if k == to {
			return true
		}
	}
	return false
}
