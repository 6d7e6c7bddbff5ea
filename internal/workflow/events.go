package workflow

import "time"

// Event is one progress notice from a running workflow, consumed by the CLI
// status output.
type Event struct {
	Time     time.Time
	Workflow string
	Message  string
	Err      error
}

// Events is a bounded, non-blocking event feed. When no consumer keeps up,
// events are dropped rather than stalling the workflow.
type Events struct {
	ch chan Event
}

func NewEvents() *Events {
	return &Events{ch: make(chan Event, 256)}
}

// C returns the receive side of the feed.
func (e *Events) C() <-chan Event {
	return e.ch
}

func (e *Events) emit(workflow, message string, err error) {
	if e == nil {
		return
	}
	select {
	case e.ch <- Event{Time: time.Now(), Workflow: workflow, Message: message, Err: err}:
	default:
	}
}

// Drain empties the feed without blocking and returns what was buffered.
func (e *Events) Drain() []Event {
	var events []Event
	for {
		select {
		case ev := <-e.ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}
