package domain

// Endpoint is one configured upstream base-URL. Name is immutable after
// construction; AllowedAt is the EndpointRing's cool-down deadline — a
// request may only be dispatched to this endpoint once now >= AllowedAt.
type Endpoint struct {
	Name      string
	AllowedAt int64 // unix seconds; 0 means immediately routable
}

// NewEndpoint constructs an Endpoint ready for immediate dispatch.
func NewEndpoint(name string) *Endpoint {
	return &Endpoint{Name: name}
}

// CoolDown pushes AllowedAt to now+seconds, mirroring the cool-down the
// EndpointRing applies after a transport-level failure.
func (e *Endpoint) CoolDown(now, seconds int64) {
	e.AllowedAt = now + seconds
}

// Routable reports whether the endpoint may be dispatched to at the given
// wall-clock second.
func (e *Endpoint) Routable(now int64) bool {
	return e.AllowedAt <= now
}
