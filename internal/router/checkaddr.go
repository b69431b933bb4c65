package router

// checkAddrLocked implements the address lifecycle manager (spec section
// 4.8). Must be called with r.mu held. It deletes addr from the address
// table once nothing references it any longer (no handler, no rlinks, no
// rnodes), and separately reports whether a local-link removal left the
// address with zero local subscribers, so the caller can notify the
// topology layer once the lock is released.
func (r *Router) checkAddrLocked(addr *Address, wasLocal bool) (deleted bool, mobileRemovedKey string) {
	if addr == nil {
		return false, ""
	}

	if wasLocal && len(addr.rlinksOrder) == 0 && addr.hashKey[0] == byte(ClassMobile) {
		mobileRemovedKey = addr.hashKey
	}

	if addr.handler == nil && len(addr.rlinksOrder) == 0 && len(addr.rnodesOrder) == 0 {
		delete(r.addresses, addr.hashKey)
		deleted = true
	}

	return deleted, mobileRemovedKey
}

// checkAddr acquires the lock, runs checkAddrLocked, and notifies the
// topology layer outside the lock if a mobile address just lost its last
// local subscriber.
func (r *Router) checkAddr(addr *Address, wasLocal bool) {
	if addr == nil {
		return
	}

	r.mu.Lock()
	_, mobileRemovedKey := r.checkAddrLocked(addr, wasLocal)
	r.mu.Unlock()

	if mobileRemovedKey != "" && r.notifier != nil {
		r.notifier.MobileRemoved(mobileRemovedKey)
	}
}
