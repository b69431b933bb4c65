package topology

// Kind identifies which field of a RouterNodeUpdate is meaningful.
type Kind string

const (
	KindRouterAdded         Kind = "router_added"
	KindRouterRemoved       Kind = "router_removed"
	KindNextHopChanged      Kind = "next_hop_changed"
	KindValidOriginsChanged Kind = "valid_origins_changed"
	KindPeerLinkChanged     Kind = "peer_link_changed"
)

// RouterNodeUpdate is the wire record produced by the (out-of-scope) topology
// computation layer and consumed here: one JSON object per router-node table
// mutation (spec section 12).
type RouterNodeUpdate struct {
	Kind Kind `json:"kind"`

	Area     string `json:"area"`
	RouterID string `json:"router_id"`
	MaskBit  int    `json:"mask_bit,omitempty"`

	// NextHopRouterID is set for KindNextHopChanged: the full
	// "<area>/<router_id>" identifier of the intermediate router this node is
	// now reached through.
	NextHopRouterID string `json:"next_hop_router_id,omitempty"`

	// ValidOrigins is set for KindValidOriginsChanged: a little-endian
	// packed bitmask, one bit per router mask bit, matching the Bitmask
	// word layout.
	ValidOrigins []byte `json:"valid_origins,omitempty"`

	// PeerLinkMaskBit is set for KindPeerLinkChanged: the mask bit of the
	// outgoing router link to use to reach this node directly.
	PeerLinkMaskBit int  `json:"peer_link_mask_bit,omitempty"`
	HasPeerLink     bool `json:"has_peer_link,omitempty"`
}

// FullRouterID returns "<area>/<router_id>", the node-hash identifier the
// router core keys router-node lookups by.
func (u RouterNodeUpdate) FullRouterID() string {
	return u.Area + "/" + u.RouterID
}
