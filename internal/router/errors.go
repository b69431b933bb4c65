package router

import "errors"

var (
	ErrMaskBitExhausted                     = errors.New("router: exceeded maximum inter-router link count")
	ErrRouterCapabilityOnNonInterRouterConn = errors.New("router: link claims router capability on a non-inter-router connection")
	ErrNonMobileEndpointSource              = errors.New("router: outgoing endpoint link source address is not mobile-class")
	ErrNoSourceAddress                      = errors.New("router: outgoing endpoint link has no source address and is not dynamic")
)
