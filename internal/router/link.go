package router

import "github.com/routerd/routerd/internal/proto"

type LinkType int

const (
	LinkEndpoint LinkType = iota
	LinkRouter
)

func (t LinkType) String() string {
	if t == LinkRouter {
		return "router"
	}
	return "endpoint"
}

type LinkDirection int

const (
	Incoming LinkDirection = iota
	Outgoing
)

func (d LinkDirection) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// RoutedEvent is the tagged pair queued on a Link's msg_fifo or event_fifo
// (spec section 4.9). A message event carries Message, and Delivery only
// when the ingress delivery is unsettled and this is the first fan-out copy.
// A status event carries no Message; Delivery is the peer delivery a
// disposition/settlement is being relayed to.
type RoutedEvent struct {
	Message        proto.Message
	Delivery       proto.Delivery
	HasDisposition bool
	Disposition    proto.Disposition
	Settle         bool
}

// Link is the router's record of one open AMQP link (spec section 3).
type Link struct {
	handle    proto.LinkHandle
	linkType  LinkType
	direction LinkDirection
	maskBit   int

	owningAddr    *Address
	connectedLink *Link
	peerLink      *Link

	msgFIFO   fifo[*RoutedEvent]
	eventFIFO fifo[*RoutedEvent]
}

func (l *Link) MaskBit() int             { return l.maskBit }
func (l *Link) Type() LinkType           { return l.linkType }
func (l *Link) Direction() LinkDirection { return l.direction }
func (l *Link) Handle() proto.LinkHandle { return l.handle }

// SetConnectedLink wires this link for link-routing (spec section 4.3 step
// 4): messages received on it bypass address lookup entirely and are
// forwarded straight to other.
func (l *Link) SetConnectedLink(other *Link) { l.connectedLink = other }

// SetPeerLink records the outbound link used to physically reach a remote
// router over this inter-router connection (spec section 3).
func (l *Link) SetPeerLink(other *Link) { l.peerLink = other }
func (l *Link) PeerLink() *Link         { return l.peerLink }

func addLinkRef(order *[]*Link, link *Link) {
	*order = append(*order, link)
}

func removeLinkRef(order *[]*Link, link *Link) bool {
	items := *order
	for i, v := range items {
		if v == link {
			*order = append(items[:i], items[i+1:]...)
			return true
		}
	}
	return false
}
