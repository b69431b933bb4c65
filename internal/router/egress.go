package router

import (
	"encoding/binary"

	"github.com/routerd/routerd/internal/metrics"
)

// OnWritable is the egress scheduler (spec section 4.4), invoked by the
// protocol layer whenever a link gains credit or its connection otherwise
// becomes writable. It returns the number of AMQP operations performed, so
// the protocol layer can decide whether to keep looping.
func (r *Router) OnWritable(link *Link) int {
	credit := link.handle.Credit()

	r.mu.Lock()
	events := link.eventFIFO.drain()

	var toSend []*RoutedEvent
	if credit > 0 {
		toSend = link.msgFIFO.drainUpTo(credit)
	}
	offer := link.msgFIFO.len()

	tag := r.dtag
	r.dtag += uint64(len(toSend))
	r.mu.Unlock()

	count := 0

	for _, re := range toSend {
		tag++
		var tagBuf [8]byte
		binary.BigEndian.PutUint64(tagBuf[:], tag)

		outDelivery := link.handle.Send(tagBuf[:], re.Message)

		if re.Delivery != nil {
			re.Delivery.SetPeer(outDelivery)
			outDelivery.SetPeer(re.Delivery)
		} else {
			outDelivery.Settle()
		}

		link.handle.Advance()
		count++
		metrics.MessagesForwardedTotal.WithLabelValues(link.linkType.String(), link.direction.String()).Inc()
	}

	for _, re := range events {
		if re.Delivery == nil {
			continue
		}
		if re.HasDisposition {
			re.Delivery.Update(re.Disposition)
			count++
		}
		if re.Settle {
			re.Delivery.Settle()
			count++
		}
	}

	metrics.EgressQueueDepth.Observe(float64(offer))

	if offer > 0 {
		link.handle.Offer(offer)
	} else {
		link.handle.Drained()
		if changed, draining := link.handle.DrainChanged(); changed && draining {
			count++
		}
	}

	return count
}
