package router

import "github.com/routerd/routerd/internal/proto"

// OnDisposition is the disposition bridge (spec section 4.5), invoked by
// the protocol layer whenever a delivery's disposition or settlement state
// changes. It relays the change to the delivery's peer, if one was
// established by the ingress pipeline's delivery-peering step.
func (r *Router) OnDisposition(delivery proto.Delivery) {
	changed := delivery.Changed()
	disp := delivery.Disposition()
	settled := delivery.Settled()
	peer := delivery.Peer()

	if peer != nil && (changed || settled) {
		r.mu.Lock()
		peerLink := r.handleToLink[peer.Link()]
		if peerLink != nil {
			re := &RoutedEvent{Delivery: peer, Settle: settled}
			if changed {
				re.HasDisposition = true
				re.Disposition = disp
			}
			peerLink.eventFIFO.push(re)
		}
		r.mu.Unlock()

		if peerLink != nil {
			peerLink.handle.Activate()
		}
	}

	if settled {
		delivery.Settle()
	}
}
