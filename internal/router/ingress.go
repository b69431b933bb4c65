package router

import (
	"go.uber.org/zap"

	"github.com/routerd/routerd/internal/metrics"
	"github.com/routerd/routerd/internal/proto"
)

// OnIncomingMessage is the ingress pipeline (spec section 4.3), invoked by
// the protocol layer once a delivery's message is fully received.
func (r *Router) OnIncomingMessage(link *Link, delivery proto.Delivery) {
	msg, complete := delivery.Message()
	if !complete {
		return
	}

	link.handle.Advance()
	link.handle.Flow(1)

	r.mu.Lock()

	if link.connectedLink != nil {
		dest := link.connectedLink
		re := &RoutedEvent{Message: msg}
		if delivery.Settled() {
			delivery.Settle()
		} else {
			re.Delivery = delivery
		}
		dest.msgFIFO.push(re)
		r.mu.Unlock()
		dest.handle.Activate()
		return
	}

	to, hasTo := msg.To()

	if !msg.ValidateProperties() {
		delivery.Update(proto.DispositionRejected)
		delivery.Settle()
		r.mu.Unlock()
		metrics.MessagesDroppedTotal.WithLabelValues("invalid_properties").Inc()
		r.logDropped("invalid_properties", to)
		return
	}

	var addr *Address
	var isLocal, isDirect bool
	if hasTo {
		cls := ClassifyAddress(to, r.area, r.id)
		isLocal, isDirect = cls.IsLocal, cls.IsDirect
		addr = r.addresses[cls.HashKey]
	}

	var (
		handler        Handler
		handlerContext any
		handlerCopy    proto.Message
		fanout         int
		toActivate     []*Link
	)

	if addr != nil {
		if link.linkType == LinkEndpoint {
			addr.ingress++
		}

		drop, ingressID, hadIngress := r.annotate(msg)

		if !drop && addr.handler != nil {
			handlerCopy = msg.Copy()
			handler = addr.handler
			handlerContext = addr.handlerContext
			addr.toContainer++
		}

		if !drop && !isLocal {
			for _, rl := range addr.rlinksOrder {
				re := &RoutedEvent{Message: msg.Copy()}
				fanout++
				if fanout == 1 && !delivery.Settled() {
					re.Delivery = delivery
				}
				addr.egress++
				rl.msgFIFO.push(re)
				toActivate = append(toActivate, rl)
			}

			if !isDirect {
				origin := 0
				if hadIngress && !addr.semantics.BypassValidOrigins {
					origin = -1
					if originAddr, ok := r.addresses[nodeHashKey(ingressID)]; ok && len(originAddr.rnodesOrder) == 1 {
						origin = originAddr.rnodesOrder[0].MaskBit
					}
				}

				if origin >= 0 {
					linkSet := NewBitmask(r.maskWidth, false)
					for _, rn := range addr.rnodesOrder {
						destLink := rn.nextHopLink()
						if destLink != nil && rn.ValidOrigins.Value(origin) {
							linkSet.Set(destLink.maskBit)
						}
					}
					for {
						bit, ok := linkSet.FirstSet()
						if !ok {
							break
						}
						linkSet.Clear(bit)
						destLink := r.outLinksByMaskBit[bit]
						if destLink == nil {
							continue
						}
						re := &RoutedEvent{Message: msg.Copy()}
						fanout++
						if fanout == 1 && !delivery.Settled() {
							re.Delivery = delivery
						}
						addr.transit++
						destLink.msgFIFO.push(re)
						toActivate = append(toActivate, destLink)
					}
				}
			}
		}
	}

	switch {
	case handler != nil:
		delivery.Update(proto.DispositionAccepted)
		delivery.Settle()
	case fanout == 0:
		delivery.Update(proto.DispositionReleased)
		delivery.Settle()
	case delivery.Settled():
		delivery.Settle()
	}

	r.mu.Unlock()

	for _, l := range toActivate {
		l.handle.Activate()
	}

	metrics.FanoutSize.Observe(float64(fanout))
	if handler == nil && fanout == 0 {
		metrics.MessagesDroppedTotal.WithLabelValues("no_route").Inc()
		r.logDropped("no_route", to)
	}

	if handler != nil {
		handler(handlerContext, handlerCopy, link.maskBit)
	}
}

// logDropped is a small helper kept separate from the hot path above so the
// common case never pays for a zap.Field allocation it doesn't need.
func (r *Router) logDropped(reason string, addr string) {
	r.logger.Debug("dropped ingress message", zap.String("reason", reason), zap.String("address", addr))
}
