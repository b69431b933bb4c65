// Package router implements the routing core described in this repository's
// specification: a single-lock address table, router-node table, and link
// registry, with an ingress pipeline, egress scheduler, and disposition
// bridge wired around them.
package router

import (
	"sync"

	"go.uber.org/zap"

	"github.com/routerd/routerd/internal/metrics"
	"github.com/routerd/routerd/internal/proto"
)

// TopologyNotifier lets the router core announce local-subscription changes
// without importing the topology package directly (spec section 4.7
// "propagate" and section 4.8 "mobile_removed").
type TopologyNotifier interface {
	MobileAdded(hashKey string)
	MobileRemoved(hashKey string)
}

// Mode selects which well-known control addresses a Router bootstraps with.
type Mode string

const (
	ModeInterior   Mode = "interior"
	ModeEdge       Mode = "edge"
	ModeStandalone Mode = "standalone"
)

// Config configures a Router (spec sections 4.1, 6, 9).
type Config struct {
	Area          string
	ID            string
	Mode          Mode
	MaskBitWidth  int
	InitialCredit int
}

// Router is the single-lock, in-memory routing engine: the address table,
// router-node table, and link registry all hang off this type, guarded by
// one mutex (spec section 5 — no suspension points while holding it).
type Router struct {
	mu sync.Mutex

	area, id, nodeID string
	maskWidth        int
	initialCredit    int

	addresses         map[string]*Address
	links             map[*Link]struct{}
	handleToLink      map[proto.LinkHandle]*Link
	routersByMaskBit  []*RouterNode
	outLinksByMaskBit []*Link
	maskAlloc         *MaskBitAllocator

	dtag uint64

	helloAddr  *Address
	routerAddr *Address

	notifier TopologyNotifier
	logger   *zap.Logger
}

// New creates a Router. In interior mode it also registers the well-known
// qdrouter/qdhello control addresses with router semantics
// (bypass_valid_origins), mirroring qd_router()'s own bootstrap (spec
// section 9 design notes).
func New(cfg Config, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	width := cfg.MaskBitWidth
	if width <= 0 {
		width = 256
	}
	credit := cfg.InitialCredit
	if credit <= 0 {
		credit = 1000
	}

	r := &Router{
		area:              cfg.Area,
		id:                cfg.ID,
		nodeID:            cfg.Area + "/" + cfg.ID,
		maskWidth:         width,
		initialCredit:     credit,
		addresses:         make(map[string]*Address),
		links:             make(map[*Link]struct{}),
		handleToLink:      make(map[proto.LinkHandle]*Link),
		routersByMaskBit:  make([]*RouterNode, width),
		outLinksByMaskBit: make([]*Link, width),
		maskAlloc:         NewMaskBitAllocator(width),
		dtag:              1,
		logger:            logger,
	}

	if cfg.Mode == ModeInterior || cfg.Mode == "" {
		r.routerAddr = r.RegisterAddress("qdrouter", nil, nil, RouterSemantics)
		r.helloAddr = r.RegisterAddress("qdhello", nil, nil, RouterSemantics)
	} else {
		r.helloAddr = newAddress("Lqdhello", RouterSemantics)
		r.addresses[r.helloAddr.hashKey] = r.helloAddr
	}

	metrics.MaskBitsTotal.Set(float64(width))

	return r
}

// SetNotifier installs the topology-layer callback used for
// mobile_added/mobile_removed notifications.
func (r *Router) SetNotifier(n TopologyNotifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// NodeID returns this router's "<area>/<id>" identifier, as carried in the
// trace/ingress delivery annotations (spec section 6).
func (r *Router) NodeID() string { return r.nodeID }

// RegisterAddress registers an in-process handler for a local address,
// creating the address record if it doesn't already exist (spec section
// 4.2, "qd_router_register_address"). name is the bare local name; the
// hash key used internally is always "L"+name, matching a "_local/name"
// wire address.
func (r *Router) RegisterAddress(name string, handler Handler, handlerContext any, semantics AddressSemantics) *Address {
	hashKey := "L" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.addresses[hashKey]
	if !ok {
		a = newAddress(hashKey, semantics)
		r.addresses[hashKey] = a
		metrics.AddressesTotal.Set(float64(len(r.addresses)))
	}
	a.handler = handler
	a.handlerContext = handlerContext
	return a
}

// UnregisterAddress clears name's in-process handler and runs the address
// lifecycle check, reclaiming the address record if nothing else
// references it (spec section 9's resolution of the stubbed
// qd_router_unregister_address).
func (r *Router) UnregisterAddress(name string) {
	hashKey := "L" + name

	r.mu.Lock()
	a, ok := r.addresses[hashKey]
	if ok {
		a.handler = nil
		a.handlerContext = nil
	}
	r.mu.Unlock()

	if ok {
		r.checkAddr(a, false)
	}
}

// Send is the router's own local-origination path (spec section 9,
// "qd_router_send"): it fans a message out to every local link and remote
// router subscribed to address, without consulting valid_origins. There is
// no ingress router for locally originated traffic, so the loop-avoidance
// check this skips has nothing to check against; this is kept as
// intentional, matching the original's own behavior.
func (r *Router) Send(address string, msg proto.Message) {
	hashKey := ClassifyAddress(address, r.area, r.id).HashKey

	r.mu.Lock()

	addr, ok := r.addresses[hashKey]
	if !ok {
		r.mu.Unlock()
		return
	}
	addr.fromContainer++

	var toActivate []*Link
	for _, rl := range addr.rlinksOrder {
		rl.msgFIFO.push(&RoutedEvent{Message: msg.Copy()})
		addr.egress++
		toActivate = append(toActivate, rl)
	}

	linkSet := NewBitmask(r.maskWidth, false)
	for _, rn := range addr.rnodesOrder {
		if destLink := rn.nextHopLink(); destLink != nil {
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
		destLink.msgFIFO.push(&RoutedEvent{Message: msg.Copy()})
		addr.transit++
		toActivate = append(toActivate, destLink)
	}

	r.mu.Unlock()

	for _, l := range toActivate {
		l.handle.Activate()
	}
}

// AddRouterNode registers a newly reachable remote router at the given
// mask bit (spec section 3). It also creates the internal node-hash address
// entry OnIncomingMessage's origin-mask lookup depends on.
func (r *Router) AddRouterNode(routerID string, maskBit int) *RouterNode {
	r.mu.Lock()
	defer r.mu.Unlock()

	rn := &RouterNode{
		RouterID:     routerID,
		MaskBit:      maskBit,
		ValidOrigins: NewBitmask(r.maskWidth, false),
	}
	r.routersByMaskBit[maskBit] = rn

	key := nodeHashKey(routerID)
	a, ok := r.addresses[key]
	if !ok {
		a = newAddress(key, RouterSemantics)
		r.addresses[key] = a
	}
	addNodeRef(&a.rnodesOrder, rn)

	return rn
}

// RemoveRouterNode removes a remote router that is no longer reachable.
func (r *Router) RemoveRouterNode(routerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := nodeHashKey(routerID)
	a, ok := r.addresses[key]
	if !ok {
		return
	}
	for _, rn := range a.rnodesOrder {
		if rn.RouterID == routerID {
			removeNodeRef(&a.rnodesOrder, rn)
			r.routersByMaskBit[rn.MaskBit] = nil
			break
		}
	}
	r.checkAddrLocked(a, false)
}

// SetNextHop records that routerID is reached via an intermediate router
// rather than directly.
func (r *Router) SetNextHop(routerID, nextHopRouterID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rn := r.findRouterNodeLocked(routerID)
	if rn == nil {
		return false
	}
	rn.NextHop = r.findRouterNodeLocked(nextHopRouterID)
	return true
}

// SetPeerLink records the direct outbound link used to reach routerID.
func (r *Router) SetPeerLink(routerID string, link *Link) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rn := r.findRouterNodeLocked(routerID)
	if rn == nil {
		return false
	}
	rn.PeerLink = link
	return true
}

// SetValidOrigins replaces routerID's valid_origins bitmask, as computed by
// the topology layer's spanning-tree calculation (spec section 3).
func (r *Router) SetValidOrigins(routerID string, origins *Bitmask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rn := r.findRouterNodeLocked(routerID)
	if rn == nil {
		return false
	}
	rn.ValidOrigins = origins
	return true
}

// LinkByMaskBit returns the outgoing router link registered at bit, or nil
// if none is registered there. Used by the topology layer to resolve a
// peer_link_changed update's mask bit to a Link before calling SetPeerLink.
func (r *Router) LinkByMaskBit(bit int) *Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bit < 0 || bit >= len(r.outLinksByMaskBit) {
		return nil
	}
	return r.outLinksByMaskBit[bit]
}

// findRouterNodeLocked must be called with r.mu held.
func (r *Router) findRouterNodeLocked(routerID string) *RouterNode {
	a, ok := r.addresses[nodeHashKey(routerID)]
	if !ok {
		return nil
	}
	for _, rn := range a.rnodesOrder {
		if rn.RouterID == routerID {
			return rn
		}
	}
	return nil
}

// Stats is a point-in-time snapshot of router-wide gauges, used by the
// metrics and HTTP layers.
type Stats struct {
	Addresses     int
	MaskBitsInUse int
	MaskBitsTotal int
	Links         int
}

func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Addresses:     len(r.addresses),
		MaskBitsInUse: r.maskAlloc.InUse(),
		MaskBitsTotal: r.maskAlloc.Width(),
		Links:         len(r.links),
	}
}

// Tick performs the once-per-second timer-driven housekeeping named in spec
// section 6. This package has no periodic work of its own — the
// topology/hello-protocol computation runs outside this repository, and the
// topology package only applies its results as they arrive — so Tick only
// refreshes the gauges that change slowly enough not to warrant updating on
// every mutation.
func (r *Router) Tick() {
	s := r.Stats()
	metrics.AddressesTotal.Set(float64(s.Addresses))
	metrics.MaskBitsInUse.Set(float64(s.MaskBitsInUse))
}
