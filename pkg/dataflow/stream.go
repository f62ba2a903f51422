package dataflow

import "github.com/Sumatoshi-tech/tidalflow/pkg/progress"

// Message is one batch of records at one epoch. Consumers treat Data as
// read-only; a tee shares the slice among all attached queues.
type Message[D any] struct {
	Time progress.Epoch
	Data []D
}

// Queue is a FIFO of messages between two operators of one worker.
type Queue[D any] struct {
	messages []Message[D]
}

// Push appends a message.
func (q *Queue[D]) Push(message Message[D]) {
	q.messages = append(q.messages, message)
}

// Pop removes and returns the oldest message.
func (q *Queue[D]) Pop() (Message[D], bool) {
	if len(q.messages) == 0 {
		return Message[D]{}, false
	}

	message := q.messages[0]
	q.messages = q.messages[1:]

	return message, true
}

// Empty reports whether the queue holds no messages.
func (q *Queue[D]) Empty() bool { return len(q.messages) == 0 }

// Tee fans one operator output out to every attached queue.
type Tee[D any] struct {
	queues []*Queue[D]
}

// NewQueue attaches and returns a fresh queue.
func (t *Tee[D]) NewQueue() *Queue[D] {
	queue := &Queue[D]{}
	t.queues = append(t.queues, queue)

	return queue
}

// Push delivers a message to every attached queue.
func (t *Tee[D]) Push(message Message[D]) {
	for _, queue := range t.queues {
		queue.Push(message)
	}
}

// Stream is a flow of record batches from one operator output, usable both
// to move data and to register progress edges.
type Stream[D any] struct {
	scope  *Scope
	source progress.Source
	tee    *Tee[D]
}

// NewStream wraps an operator output port.
func NewStream[D any](scope *Scope, source progress.Source, tee *Tee[D]) *Stream[D] {
	return &Stream[D]{scope: scope, source: source, tee: tee}
}

// Scope returns the stream's scope.
func (s *Stream[D]) Scope() *Scope { return s.scope }

// Source returns the output port the stream flows from.
func (s *Stream[D]) Source() progress.Source { return s.source }

// ConnectTo attaches a consumer at target: the data-plane queue is created
// and the progress-plane dependence is revealed to the scope.
func (s *Stream[D]) ConnectTo(target progress.Target) *Queue[D] {
	s.scope.Builder().Connect(s.source, target)

	return s.tee.NewQueue()
}
