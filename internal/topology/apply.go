package topology

import (
	"fmt"

	"github.com/routerd/routerd/internal/router"
)

// ApplyUpdate maps one RouterNodeUpdate onto the corresponding Router
// mutation method (spec section 12). It is the entire body of this
// package's domain logic — everything else is Kafka plumbing.
func ApplyUpdate(r *router.Router, upd RouterNodeUpdate) error {
	id := upd.FullRouterID()

	switch upd.Kind {
	case KindRouterAdded:
		r.AddRouterNode(id, upd.MaskBit)
		return nil

	case KindRouterRemoved:
		r.RemoveRouterNode(id)
		return nil

	case KindNextHopChanged:
		if !r.SetNextHop(id, upd.NextHopRouterID) {
			return fmt.Errorf("topology: next_hop_changed for unknown router %q", id)
		}
		return nil

	case KindValidOriginsChanged:
		origins := router.DecodeBitmask(r.Stats().MaskBitsTotal, upd.ValidOrigins)
		if !r.SetValidOrigins(id, origins) {
			return fmt.Errorf("topology: valid_origins_changed for unknown router %q", id)
		}
		return nil

	case KindPeerLinkChanged:
		var link *router.Link
		if upd.HasPeerLink {
			link = r.LinkByMaskBit(upd.PeerLinkMaskBit)
			if link == nil {
				return fmt.Errorf("topology: peer_link_changed references unknown mask bit %d", upd.PeerLinkMaskBit)
			}
		}
		if !r.SetPeerLink(id, link) {
			return fmt.Errorf("topology: peer_link_changed for unknown router %q", id)
		}
		return nil

	default:
		return fmt.Errorf("topology: unknown update kind %q", upd.Kind)
	}
}
