package router

import "github.com/routerd/routerd/internal/proto"

const (
	daTrace   = "trace"
	daIngress = "ingress"
)

// annotate rewrites msg's delivery-annotations to exactly {trace, ingress}
// (spec section 4.6). It reports whether the message must be dropped
// because its existing trace already names this router, and the ingress
// router-id the message arrived with, if any — ingressID is meaningless
// unless hadIngress is true, which happens exactly when this router is not
// the point where the message first entered the network.
func (r *Router) annotate(msg proto.Message) (drop bool, ingressID string, hadIngress bool) {
	in := msg.DeliveryAnnotations()

	var trace []string
	if in != nil {
		switch v := in[daTrace].(type) {
		case []string:
			trace = v
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					trace = append(trace, s)
				}
			}
		}
		if s, ok := in[daIngress].(string); ok {
			ingressID = s
			hadIngress = true
		}
	}

	for _, id := range trace {
		if id == r.nodeID {
			drop = true
			break
		}
	}

	newTrace := make([]string, 0, len(trace)+1)
	newTrace = append(newTrace, trace...)
	newTrace = append(newTrace, r.nodeID)

	out := map[string]any{daTrace: newTrace}
	if hadIngress {
		out[daIngress] = ingressID
	} else {
		out[daIngress] = r.nodeID
	}
	msg.SetDeliveryAnnotations(out)

	return drop, ingressID, hadIngress
}
