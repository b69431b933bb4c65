package router

import (
	"strings"

	"github.com/routerd/routerd/internal/proto"
)

type AddressClass byte

const (
	ClassLocal  AddressClass = 'L'
	ClassMobile AddressClass = 'M'
	ClassArea   AddressClass = 'A'
	ClassRouter AddressClass = 'R'
)

type ForwardingDiscipline int

const (
	ForwardMulticast ForwardingDiscipline = iota
)

// AddressSemantics controls the two routing-policy knobs named in spec
// section 4 that are not derived from the wire address itself.
type AddressSemantics struct {
	// BypassValidOrigins skips the origin-mask loop-avoidance check during
	// remote fan-out. Used for the router's own control addresses
	// (qdrouter, qdhello), which must reach every neighbor regardless of
	// spanning-tree origin.
	BypassValidOrigins bool
	Forwarding         ForwardingDiscipline
}

var (
	RouterSemantics  = AddressSemantics{BypassValidOrigins: true, Forwarding: ForwardMulticast}
	DefaultSemantics = AddressSemantics{BypassValidOrigins: false, Forwarding: ForwardMulticast}
)

// Handler is an in-process local subscriber. It runs outside the router
// lock, after an ingress message resolves to an address with one
// registered (spec section 4.3 step 11).
type Handler func(ctx any, msg proto.Message, ingressMaskBit int)

// Address is one entry in the router's address table: a hash-keyed
// destination with a set of local outgoing links, a set of remote router
// destinations, an optional in-process handler, and delivery counters
// (spec section 3).
type Address struct {
	hashKey   string
	semantics AddressSemantics

	handler        Handler
	handlerContext any

	rlinksOrder []*Link
	rnodesOrder []*RouterNode

	ingress, egress, transit, toContainer, fromContainer uint64
}

func newAddress(hashKey string, semantics AddressSemantics) *Address {
	return &Address{hashKey: hashKey, semantics: semantics}
}

func (a *Address) HashKey() string { return a.hashKey }

// Counters returns the five delivery counters spec section 3 names
// (ingress, egress, transit, to-container, from-container), in that order.
func (a *Address) Counters() (ingress, egress, transit, toContainer, fromContainer uint64) {
	return a.ingress, a.egress, a.transit, a.toContainer, a.fromContainer
}

// AddressClassification is the result of mapping one wire address to its
// hash key and to the is_local / is_direct flags the ingress pipeline
// consumes (spec section 6).
type AddressClassification struct {
	HashKey  string
	IsLocal  bool
	IsDirect bool
}

// ClassifyAddress maps a wire address to its hash key and to the is_local /
// is_direct flags, per the address hash-key table in spec section 6.
// IsLocal reflects only the literal "_local/" wire prefix; IsDirect
// reflects only the literal "_topo/<my-area>/<my-router>/" wire prefix.
// Both are computed independently of the resulting hash key, matching the
// original router_node.c: a message addressed via "_topo/<area>/all/..."
// can resolve to the same hash key as a "_local/..." address yet still be
// eligible for remote fan-out, because is_local is a prefix check, not a
// property of the hash key.
func ClassifyAddress(wireAddr, myArea, myRouter string) AddressClassification {
	isLocal := strings.HasPrefix(wireAddr, "_local/")
	isDirect := strings.HasPrefix(wireAddr, "_topo/"+myArea+"/"+myRouter+"/")

	if isLocal {
		return AddressClassification{
			HashKey:  "L" + strings.TrimPrefix(wireAddr, "_local/"),
			IsLocal:  true,
			IsDirect: isDirect,
		}
	}

	if strings.HasPrefix(wireAddr, "_topo/") {
		rest := strings.TrimPrefix(wireAddr, "_topo/")
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) == 3 {
			area, rtr, local := parts[0], parts[1], parts[2]
			var hashKey string
			switch {
			case area == "all" && rtr == "all":
				hashKey = "L" + local
			case area != myArea:
				hashKey = "A" + area
			case rtr == "all":
				hashKey = "L" + local
			case rtr == myRouter:
				hashKey = "L" + local
			default:
				hashKey = "R" + rtr
			}
			return AddressClassification{HashKey: hashKey, IsLocal: false, IsDirect: isDirect}
		}
	}

	return AddressClassification{HashKey: "M" + wireAddr, IsLocal: false, IsDirect: isDirect}
}

// nodeHashKey is a separate key space from the L/M/A/R classes above. It is
// used only to look up the RouterNode for a given router-id string (as
// carried in the "ingress" delivery annotation) during origin-mask
// computation, and is only ever populated by Router.AddRouterNode.
func nodeHashKey(routerID string) string {
	return "N" + routerID
}
