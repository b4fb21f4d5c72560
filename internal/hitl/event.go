// Package hitl drives a resumable agent executor to completion without a
// human in the loop, resolving every approval checkpoint it raises.
package hitl

import (
	"context"
	"io"
)

type EventKind string

const (
	EventText      EventKind = "text"
	EventToolCall  EventKind = "tool_call"
	EventInterrupt EventKind = "interrupt"
)

// SourceSummarization marks synthetic messages produced while compacting
// history. They are never forwarded.
const SourceSummarization = "summarization"

// Event is one item of an executor stream.
type Event struct {
	Kind EventKind
	// Namespace is empty for top-level events and holds the delegation path
	// for events raised inside a sub-task.
	Namespace []string
	Source    string

	Text       string
	ToolCall   *ToolCallChunk
	Interrupts []Interrupt
}

// ToolCallChunk is a possibly partial tool invocation. Chunks of the same
// call share Index, or ID when the index is unknown.
type ToolCallChunk struct {
	Index     *int
	ID        string
	Name      string
	Arguments string
}

// Interrupt is a paused point of the executor. Value carries the raw
// approval payload and is validated before use.
type Interrupt struct {
	ID    string
	Value any
}

// Input starts a task or resumes a paused one.
type Input struct {
	Task   string
	Resume DecisionBatch
}

func TaskInput(task string) Input {
	return Input{Task: task}
}

func ResumeInput(batch DecisionBatch) Input {
	return Input{Resume: batch}
}

func (in Input) IsResume() bool {
	return in.Resume != nil
}

// EventStream yields events until io.EOF.
type EventStream interface {
	Recv() (Event, error)
	Close() error
}

// Executor is the resumable task executor driven by Runner.
type Executor interface {
	Stream(ctx context.Context, in Input) (EventStream, error)
}

// SliceStream replays a fixed list of events, then io.EOF.
type SliceStream struct {
	events []Event
	err    error
	pos    int
}

// NewSliceStream returns a stream over events. A non-nil err is returned
// after the last event instead of io.EOF.
func NewSliceStream(events []Event, err error) *SliceStream {
	return &SliceStream{events: events, err: err}
}

func (s *SliceStream) Recv() (Event, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

func (s *SliceStream) Close() error {
	return nil
}
