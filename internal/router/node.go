package router

// RouterNode is the router's record of one other known router in the
// network, indexed by mask bit in Router.routersByMaskBit (spec section 3).
type RouterNode struct {
	RouterID     string
	MaskBit      int
	NextHop      *RouterNode
	PeerLink     *Link
	ValidOrigins *Bitmask
	RefCount     int
}

// nextHopLink returns the outbound link used to reach this router: its
// next hop's peer link if one is set, otherwise its own peer link directly
// (spec section 3's next_hop/peer_link pair).
func (rn *RouterNode) nextHopLink() *Link {
	if rn.NextHop != nil {
		return rn.NextHop.PeerLink
	}
	return rn.PeerLink
}

func addNodeRef(order *[]*RouterNode, rn *RouterNode) {
	*order = append(*order, rn)
	rn.RefCount++
}

func removeNodeRef(order *[]*RouterNode, rn *RouterNode) bool {
	items := *order
	for i, v := range items {
		if v == rn {
			*order = append(items[:i], items[i+1:]...)
			rn.RefCount--
			return true
		}
	}
	return false
}
