package driver

import "time"

// EventStatus captures progress state for one function row.
type EventStatus string

const (
	// EventQueued indicates the function is waiting for a worker.
	EventQueued EventStatus = "queued"
	// EventExecuting indicates an execution is in flight.
	EventExecuting EventStatus = "executing"
	// EventRefining indicates derived facts are being applied.
	EventRefining EventStatus = "refining"
	// EventDone indicates the function reached a terminal status.
	EventDone EventStatus = "done"
	// EventError indicates the executor failed.
	EventError EventStatus = "error"
)

// Event reports progress for a function (or for the run overall when
// Function is empty).
type Event struct {
	Run       string
	Function  string
	Status    EventStatus
	Iteration int
	Outcome   Status        // set with EventDone
	Err       error         // set with EventError
	Elapsed   time.Duration // set on terminal events
}

// Sink consumes progress events.
type Sink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

func emit(sink Sink, evt Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(evt)
}
