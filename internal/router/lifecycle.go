package router

import (
	"crypto/rand"
	"fmt"

	"go.uber.org/zap"

	"github.com/routerd/routerd/internal/proto"
)

// Fixed link names for the two halves of an inter-router connection (spec
// section 6).
const (
	InternodeLinkName1 = "QD_INTERNODE_LINK_NAME_1"
	InternodeLinkName2 = "QD_INTERNODE_LINK_NAME_2"
)

const tempAddrAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+_"

// ConnContext is a per-connection token shared by the incoming and outgoing
// halves of one inter-router connection, so both sides resolve to the same
// allocated mask bit (spec section 4.1).
type ConnContext struct {
	maskBit    int
	hasMaskBit bool
}

// GenerateTempAddress produces a router-scoped temporary address for a
// dynamic link (spec section 4.7): a fixed prefix plus a 36-bit
// discriminator rendered as six characters from a 64-character alphabet.
func GenerateTempAddress(area, routerID string) (string, error) {
	var buf [5]byte // 40 bits captured, 36 consumed below
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("router: generating temporary address: %w", err)
	}

	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}

	disc := make([]byte, 6)
	for i := 0; i < 6; i++ {
		idx := (v >> uint(i*6)) & 0x3F
		disc[i] = tempAddrAlphabet[idx]
	}

	return fmt.Sprintf("amqp:/_topo/%s/%s/temp.%s", area, routerID, disc), nil
}

// OutgoingLinkOpts carries the attach-frame facts the outgoing link handler
// needs to classify and register a new outgoing link (spec section 4.7).
type OutgoingLinkOpts struct {
	IsRouterCapable   bool
	IsInterRouterConn bool
	HasRemoteSource   bool
	RemoteSourceAddr  string
	IsDynamic         bool
}

// findOrAllocMaskBitLocked returns cc's shared mask bit if it already has
// one, otherwise allocates a fresh one and records it on cc. Must be called
// with r.mu held.
func (r *Router) findOrAllocMaskBitLocked(cc *ConnContext) (int, error) {
	if cc != nil && cc.hasMaskBit {
		return cc.maskBit, nil
	}
	bit, ok := r.maskAlloc.Allocate()
	if !ok {
		return 0, ErrMaskBitExhausted
	}
	if cc != nil {
		cc.maskBit = bit
		cc.hasMaskBit = true
	}
	return bit, nil
}

// OnIncomingLinkOpen is the incoming-link-open handler (spec section 4.7).
func (r *Router) OnIncomingLinkOpen(handle proto.LinkHandle, conn *ConnContext, isRouterCapable, isInterRouterConn bool) (*Link, error) {
	if isRouterCapable && !isInterRouterConn {
		r.logger.Warn("rejecting incoming link: router capability on a non-inter-router connection")
		return nil, ErrRouterCapabilityOnNonInterRouterConn
	}

	link := &Link{handle: handle, direction: Incoming}
	if isRouterCapable {
		link.linkType = LinkRouter
	}

	r.mu.Lock()
	if isRouterCapable {
		bit, err := r.findOrAllocMaskBitLocked(conn)
		if err != nil {
			r.mu.Unlock()
			r.logger.Error("exceeded maximum inter-router link count")
			return nil, err
		}
		link.maskBit = bit
	}
	r.links[link] = struct{}{}
	r.handleToLink[handle] = link
	r.mu.Unlock()

	handle.Flow(r.initialCredit)
	return link, nil
}

// OnOutgoingLinkOpen is the outgoing-link-open handler (spec section 4.7).
// It returns the dynamically assigned address, if any, so the caller can
// set it as the link's source address in the open/attach response.
func (r *Router) OnOutgoingLinkOpen(handle proto.LinkHandle, conn *ConnContext, opts OutgoingLinkOpts) (*Link, string, error) {
	if opts.IsRouterCapable && !opts.IsInterRouterConn {
		r.logger.Warn("rejecting outgoing link: router capability on a non-inter-router connection")
		return nil, "", ErrRouterCapabilityOnNonInterRouterConn
	}
	if !opts.IsRouterCapable && !opts.HasRemoteSource && !opts.IsDynamic {
		return nil, "", ErrNoSourceAddress
	}

	var hashKey string
	if opts.HasRemoteSource && !opts.IsRouterCapable && !opts.IsDynamic {
		cls := ClassifyAddress(opts.RemoteSourceAddr, r.area, r.id)
		if cls.HashKey[0] != byte(ClassMobile) {
			r.logger.Warn("rejecting outgoing endpoint link: source address is not mobile-class",
				zap.String("source", opts.RemoteSourceAddr))
			return nil, "", ErrNonMobileEndpointSource
		}
		hashKey = cls.HashKey
	}

	link := &Link{handle: handle, direction: Outgoing}
	if opts.IsRouterCapable {
		link.linkType = LinkRouter
	}

	var assignedAddr string
	var propagateKey string

	r.mu.Lock()

	if opts.IsRouterCapable {
		bit, err := r.findOrAllocMaskBitLocked(conn)
		if err != nil {
			r.mu.Unlock()
			r.logger.Error("exceeded maximum inter-router link count")
			return nil, "", err
		}
		link.maskBit = bit
		link.owningAddr = r.helloAddr
		addLinkRef(&r.helloAddr.rlinksOrder, link)
		r.outLinksByMaskBit[bit] = link
	} else {
		if opts.IsDynamic {
			addr, err := GenerateTempAddress(r.area, r.id)
			if err != nil {
				r.mu.Unlock()
				return nil, "", err
			}
			hashKey = ClassifyAddress(addr, r.area, r.id).HashKey
			assignedAddr = addr
		}

		a, ok := r.addresses[hashKey]
		if !ok {
			a = newAddress(hashKey, DefaultSemantics)
			r.addresses[hashKey] = a
		}
		link.owningAddr = a
		addLinkRef(&a.rlinksOrder, link)
		if !opts.IsDynamic && len(a.rlinksOrder) == 1 {
			propagateKey = hashKey
		}
	}

	r.links[link] = struct{}{}
	r.handleToLink[handle] = link
	r.mu.Unlock()

	if propagateKey != "" && r.notifier != nil {
		r.notifier.MobileAdded(propagateKey)
	}

	return link, assignedAddr, nil
}

// OpenInterRouterConnection wires the router-side bookkeeping for a
// connection this router initiated to a neighbor (spec section 4.7,
// "outbound connection setup"): one mask bit shared by an incoming and an
// outgoing router link. incoming and outgoing must already be live AMQP
// links opened by the protocol layer under the names InternodeLinkName1 and
// InternodeLinkName2 respectively.
func (r *Router) OpenInterRouterConnection(incoming, outgoing proto.LinkHandle) (*Link, *Link, error) {
	r.mu.Lock()

	bit, ok := r.maskAlloc.Allocate()
	if !ok {
		r.mu.Unlock()
		r.logger.Error("exceeded maximum inter-router link count")
		return nil, nil, ErrMaskBitExhausted
	}

	rcv := &Link{handle: incoming, linkType: LinkRouter, direction: Incoming, maskBit: bit}
	snd := &Link{handle: outgoing, linkType: LinkRouter, direction: Outgoing, maskBit: bit, owningAddr: r.helloAddr}

	addLinkRef(&r.helloAddr.rlinksOrder, snd)
	r.outLinksByMaskBit[bit] = snd

	r.links[rcv] = struct{}{}
	r.links[snd] = struct{}{}
	r.handleToLink[incoming] = rcv
	r.handleToLink[outgoing] = snd

	r.mu.Unlock()

	incoming.Flow(r.initialCredit)
	return rcv, snd, nil
}

// OnLinkDetach is the link-detach handler (spec section 4.7): it tears down
// whatever the link's open handler set up, then runs the address lifecycle
// check on the link's owning address.
func (r *Router) OnLinkDetach(link *Link) {
	r.mu.Lock()

	var ownerAddr *Address
	if link.direction == Outgoing && link.owningAddr != nil {
		if removeLinkRef(&link.owningAddr.rlinksOrder, link) {
			ownerAddr = link.owningAddr
		}
	}

	if link.linkType == LinkRouter && link.direction == Outgoing {
		if r.outLinksByMaskBit[link.maskBit] == link {
			r.outLinksByMaskBit[link.maskBit] = nil
		} else {
			r.logger.Error("detaching outgoing router link not found in mask-bit index", zap.Int("mask_bit", link.maskBit))
		}
	}
	if link.linkType == LinkRouter && link.direction == Incoming {
		r.maskAlloc.Release(link.maskBit)
	}

	delete(r.links, link)
	delete(r.handleToLink, link.handle)

	r.mu.Unlock()

	r.checkAddr(ownerAddr, true)
}
