package router

import "github.com/routerd/routerd/internal/proto"

// fakeMessage is a minimal proto.Message good enough to drive the router
// core's routing decisions in tests; it does not model AMQP encoding.
type fakeMessage struct {
	to          string
	hasTo       bool
	annotations map[string]any
	valid       bool
}

func (m *fakeMessage) To() (string, bool)                  { return m.to, m.hasTo }
func (m *fakeMessage) DeliveryAnnotations() map[string]any { return m.annotations }
func (m *fakeMessage) SetDeliveryAnnotations(a map[string]any) { m.annotations = a }

func (m *fakeMessage) Copy() proto.Message {
	cp := *m
	if m.annotations != nil {
		cp.annotations = make(map[string]any, len(m.annotations))
		for k, v := range m.annotations {
			cp.annotations[k] = v
		}
	}
	return &cp
}

func (m *fakeMessage) ValidateProperties() bool { return m.valid }

func newValidMessage(to string) *fakeMessage {
	return &fakeMessage{to: to, hasTo: to != "", valid: true}
}

// fakeDelivery is a minimal proto.Delivery.
type fakeDelivery struct {
	msg      proto.Message
	complete bool
	settled  bool
	disp     proto.Disposition
	lastSeen proto.Disposition
	peer     proto.Delivery
	link     proto.LinkHandle
}

func (d *fakeDelivery) Message() (proto.Message, bool) { return d.msg, d.complete }
func (d *fakeDelivery) Settled() bool                  { return d.settled }
func (d *fakeDelivery) Disposition() proto.Disposition { return d.disp }
func (d *fakeDelivery) Changed() bool                  { return d.disp != d.lastSeen }
func (d *fakeDelivery) Peer() proto.Delivery           { return d.peer }
func (d *fakeDelivery) SetPeer(p proto.Delivery)       { d.peer = p }
func (d *fakeDelivery) Settle()                        { d.settled = true }
func (d *fakeDelivery) Update(disp proto.Disposition)  { d.lastSeen = d.disp; d.disp = disp }
func (d *fakeDelivery) Link() proto.LinkHandle         { return d.link }

func newUnsettledDelivery(msg proto.Message) *fakeDelivery {
	return &fakeDelivery{msg: msg, complete: true}
}

// fakeLinkHandle is a minimal proto.LinkHandle that just counts calls and
// records sent deliveries, instead of touching any real wire.
type fakeLinkHandle struct {
	credit       int
	flowed       int
	activated    int
	advanced     int
	offered      int
	drained      bool
	drainChanged bool
	draining     bool
	sent         []*fakeDelivery
}

func (h *fakeLinkHandle) Credit() int    { return h.credit }
func (h *fakeLinkHandle) Flow(delta int) { h.flowed += delta; h.credit += delta }
func (h *fakeLinkHandle) Activate()      { h.activated++ }
func (h *fakeLinkHandle) Advance()       { h.advanced++ }
func (h *fakeLinkHandle) Offer(n int)    { h.offered = n }
func (h *fakeLinkHandle) Drained()       { h.drained = true }
func (h *fakeLinkHandle) DrainChanged() (bool, bool) {
	changed := h.drainChanged
	h.drainChanged = false
	return changed, h.draining
}

func (h *fakeLinkHandle) Send(tag []byte, msg proto.Message) proto.Delivery {
	d := &fakeDelivery{msg: msg, complete: true, link: h}
	h.sent = append(h.sent, d)
	if h.credit > 0 {
		h.credit--
	}
	return d
}

func newTestRouter(area, id string) *Router {
	return New(Config{Area: area, ID: id, Mode: ModeInterior, MaskBitWidth: 64, InitialCredit: 10}, nil)
}

func newEndpointLink(r *Router, direction LinkDirection) (*Link, *fakeLinkHandle) {
	h := &fakeLinkHandle{credit: 10}
	link := &Link{handle: h, linkType: LinkEndpoint, direction: direction}
	r.links[link] = struct{}{}
	r.handleToLink[h] = link
	return link, h
}
