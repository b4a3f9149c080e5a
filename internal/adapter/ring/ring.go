// Package ring implements the EndpointRing: round-robin endpoint selection
// that skips endpoints in cool-down without ever deadlocking the dispatcher.
// Grounded on the source repository's own round-robin selector shape
// (atomic cursor over a routable subset) but reworked to match §4.1's
// pick(now) contract, including the unusual decay-on-full-rotation numerics
// original_source/capture/http.c's arkime_http_add_request uses — preserved
// verbatim per §9.
package ring

import (
	"fmt"

	"github.com/arkime/httppool/internal/core/domain"
)

// Ring is the EndpointRing: an ordered, non-empty list of endpoints plus a
// cursor. The cursor and every endpoint's cool-down are only ever touched
// by the dispatcher loop goroutine — see §5's concurrency table — so Ring
// itself carries no lock.
type Ring struct {
	endpoints []*domain.Endpoint
	pos       int
}

// New builds a Ring from a non-empty list of endpoint names. An empty list
// is the one construction-time fatal condition §6/§7 call out.
func New(names []string) *Ring {
	if len(names) == 0 {
		panic(fmt.Sprintf("ring: no valid endpoints in %v", names))
	}
	endpoints := make([]*domain.Endpoint, len(names))
	for i, n := range names {
		endpoints[i] = domain.NewEndpoint(n)
	}
	return &Ring{endpoints: endpoints}
}

// Len returns the number of configured endpoints.
func (r *Ring) Len() int {
	return len(r.endpoints)
}

// Endpoint returns the endpoint at idx, as set on a Request by a prior Pick.
func (r *Ring) Endpoint(idx int) *domain.Endpoint {
	return r.endpoints[idx]
}

// Pick selects the next endpoint to dispatch to, in round-robin order,
// skipping endpoints whose cool-down (AllowedAt) hasn't elapsed.
//
// If every endpoint is still cooling on the first lap, Pick keeps rotating
// and, once it has come all the way back around without finding one, starts
// decrementing each still-cooling endpoint's AllowedAt by one second per
// further lap. This guarantees termination — bounded by (sum of remaining
// cool-downs)/N further laps — while still preferring whichever endpoint's
// cool-down elapses first. Mirrors arkime_http_add_request's offset variable
// exactly; the numerics are unusual but intentional (§9 open question).
func (r *Ring) Pick(now int64) (idx int) {
	startPos := r.pos
	var offset int64

	for r.endpoints[r.pos].AllowedAt > now {
		r.endpoints[r.pos].AllowedAt -= offset
		r.pos = (r.pos + 1) % len(r.endpoints)
		if r.pos == startPos {
			offset = 1
		}
	}

	idx = r.pos
	r.pos = (r.pos + 1) % len(r.endpoints)
	return idx
}

// CoolDown marks the endpoint at idx as unavailable until now+seconds,
// called by the dispatcher after a transport-level failure (§4.1).
func (r *Ring) CoolDown(idx int, now, seconds int64) {
	r.endpoints[idx].CoolDown(now, seconds)
}

// BuildURL concatenates the endpoint's base name with the request's key
// tail exactly as arkime_http_add_request's "%s%s" snprintf does — plain
// concatenation, not url.ResolveReference, since keyTail already carries
// its own leading slash.
func (r *Ring) BuildURL(idx int, keyTail string) string {
	return r.endpoints[idx].Name + keyTail
}
