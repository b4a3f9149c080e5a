// Package syncchan implements the SyncChannel: a blocking sidecar for
// callers that cannot register a callback and must get a response inline.
// Grounded on original_source/capture/http.c's arkime_http_send_sync,
// which used a second, mutex-serialised curl easy handle retried in a
// tight loop. Go has no equivalent of a dedicated reusable handle, and
// giving SyncChannel its own direct access to the Ring would race with
// the dispatcher loop that otherwise owns it exclusively (§5) — so this
// version instead submits through the same Dispatcher/PriorityQueue path
// at High priority (§4.5: "bypasses admission drops"), with a size-1
// result channel standing in for the blocking curl_easy_perform call.
package syncchan

import (
	"context"
	"errors"

	"github.com/arkime/httppool/internal/core/domain"
)

// Enqueuer is the subset of *dispatcher.Dispatcher SyncChannel depends on.
type Enqueuer interface {
	Enqueue(req *domain.Request) bool
}

// ErrRejected is returned when the underlying Enqueuer refuses the
// request. High priority bypasses every admission drop threshold
// (§4.2) in this package's own Dispatcher, quitting or not, so this is
// dead in practice here — kept for any Enqueuer implementation that
// applies its own, stricter admission policy.
var ErrRejected = errors.New("syncchan: request rejected at admission")

// Result is what Send hands back: the final HTTP status (0 meaning every
// retry was exhausted without a response) and body.
type Result struct {
	Status int
	Body   []byte
}

// Send submits method/keyTail/body/headers at High priority and blocks
// until the dispatcher delivers a terminal outcome or ctx is cancelled.
// maxRetries mirrors server->maxRetries in the source: the number of
// additional attempts after the first failure.
func Send(ctx context.Context, d Enqueuer, method, keyTail string, body []byte, headers []domain.Header, maxRetries int) (Result, error) {
	resultCh := make(chan Result, 1)

	req := domain.NewRequest(method, keyTail, body, headers, domain.High, maxRetries,
		func(status int, respBody []byte, _ interface{}) {
			resultCh <- Result{Status: status, Body: respBody}
		}, nil)

	if !d.Enqueue(req) {
		return Result{}, ErrRejected
	}

	select {
	case res := <-resultCh:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Get is Send specialised for a bodyless GET, the shape
// arkime_http_send_sync's "arkime_http_get" wrapper exposes (§4.5).
func Get(ctx context.Context, d Enqueuer, keyTail string, maxRetries int) (Result, error) {
	return Send(ctx, d, "GET", keyTail, nil, nil, maxRetries)
}
