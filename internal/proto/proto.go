// Package proto defines the narrow contract between the router core and
// whatever AMQP protocol engine owns the wire. The router never decodes or
// encodes frames itself; it only ever sees a Message once it is fully
// received, and only ever asks a LinkHandle to move bytes.
package proto

// Disposition mirrors the handful of AMQP delivery outcomes the router
// core sets or inspects.
type Disposition uint8

const (
	DispositionNone Disposition = iota
	DispositionAccepted
	DispositionRejected
	DispositionReleased
	DispositionModified
)

// Message is the subset of an AMQP message the router core needs in order
// to route it: the destination address and the delivery-annotations map it
// rewrites on every hop.
type Message interface {
	// To returns the message's "to" address and whether one was present.
	To() (string, bool)

	// DeliveryAnnotations returns the message's current delivery-annotations
	// map, or nil if none are set. Callers must not mutate the returned map.
	DeliveryAnnotations() map[string]any

	// SetDeliveryAnnotations replaces the message's delivery-annotations map.
	SetDeliveryAnnotations(map[string]any)

	// Copy returns an independent message with the same body and
	// properties, safe to hand to a second outgoing link concurrently with
	// the original.
	Copy() Message

	// ValidateProperties reports whether the message's application
	// properties and header satisfy whatever the protocol layer requires
	// of an AMQP message (field count, size limits, and the like).
	ValidateProperties() bool
}

// Delivery is the router core's handle on one AMQP delivery, in either
// direction. An ingress delivery is peered with the first egress delivery
// it fans out to so settlement and disposition propagate both ways.
type Delivery interface {
	// Message returns the delivery's fully received message, or false if
	// more transfer frames are still expected.
	Message() (Message, bool)

	Settled() bool
	Disposition() Disposition

	// Changed reports whether Disposition differs from the last value the
	// router core observed on this delivery.
	Changed() bool

	// Peer returns the delivery this one is bridged to, or nil.
	Peer() Delivery
	SetPeer(Delivery)

	Settle()
	Update(Disposition)

	// Link returns the link handle that owns this delivery.
	Link() LinkHandle
}

// LinkHandle is the router core's handle on one open AMQP link endpoint.
type LinkHandle interface {
	// Credit returns the link's current outstanding credit (outgoing links
	// only; meaningless on incoming links).
	Credit() int

	// Flow issues delta units of additional credit to the link's peer
	// (incoming links only).
	Flow(delta int)

	// Activate schedules the link's connection for I/O so queued work gets
	// serviced on the next pass through the event loop.
	Activate()

	// Advance signals that the protocol layer should move on to the next
	// delivery on this link.
	Advance()

	// Offer tells the protocol layer how many deliveries are ready to send
	// on this link, for drain/credit accounting.
	Offer(n int)

	// Drained tells the protocol layer this link's backlog is empty.
	Drained()

	// DrainChanged reports whether the link's drain mode changed since the
	// last call, and the new mode.
	DrainChanged() (changed, draining bool)

	// Send transmits msg as a new delivery tagged with tag and returns the
	// resulting Delivery handle.
	Send(tag []byte, msg Message) Delivery
}
