// Package starlingerr defines the error taxonomy shared by every starling
// component. InvalidTopic and TransportFault are returned to callers of
// Publisher.Send and Subscriber.Subscribe; the other kinds never leave the
// worker that observed them.
package starlingerr

import "fmt"

// InvalidTopic is returned synchronously to the caller of Send or Subscribe
// when a topic string fails the grammar in pkg/topic.
type InvalidTopic struct {
	Topic string
}

func (e *InvalidTopic) Error() string {
	return fmt.Sprintf("starling: invalid topic %q", e.Topic)
}

// MalformedMessage describes an incoming message dropped because it did not
// have exactly two frames, or its topic frame was not valid UTF-8. It never
// propagates to a caller; it exists so workers can log a consistent reason.
type MalformedMessage struct {
	Reason string
}

func (e *MalformedMessage) Error() string {
	return fmt.Sprintf("starling: malformed message: %s", e.Reason)
}

// QueueOverflow describes a per-subscription FIFO that was full on enqueue.
// The enqueuing message is dropped silently; this type exists for logging
// and for the optional drop counters described in SPEC_FULL.md §4.5.
type QueueOverflow struct {
	Pattern string
}

func (e *QueueOverflow) Error() string {
	return fmt.Sprintf("starling: queue overflow for subscription %q", e.Pattern)
}

// TransportFault wraps an underlying zmq socket error. Publisher.Send
// returns it when sending the message fails, and Subscriber.Subscribe
// returns it when issuing the upstream prefix subscription fails; it is not
// limited to shutdown. Workers that hit socket errors in their poll loops
// do not produce it.
type TransportFault struct {
	Err error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("starling: transport fault: %v", e.Err)
}

func (e *TransportFault) Unwrap() error {
	return e.Err
}

// DiscoveryLoss is not an error. It is documented here so operators reading
// the source find the statement next to the types it sits beside: losing a
// nexus's beacon is silent by design. Endpoints keep polling indefinitely
// and reattach automatically once a beacon resumes.
const DiscoveryLoss = "starling: a missing beacon is not reported as an error; endpoints poll indefinitely and reattach silently"
