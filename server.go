// Package httppool is the asynchronous, priority-aware HTTP client pool a
// capture engine embeds to multiplex requests at a handful of backend
// endpoints (typically an Elasticsearch-shaped bulk/index API) without
// blocking packet processing on network I/O. Server is the package's sole
// entry point; everything else here wires EndpointRing, PriorityQueue,
// Dispatcher, AsyncTransport, ConnectionRegistry, GzipEncoder and
// SyncChannel together the way original_source/capture/http.c's
// arkime_http_create_server and its companion setters used to.
package httppool

import (
	"context"
	"crypto/tls"
	"fmt"
	"hash/fnv"
	"net"
	"strings"
	"time"

	"github.com/arkime/httppool/internal/adapter/dispatcher"
	"github.com/arkime/httppool/internal/adapter/gzipenc"
	"github.com/arkime/httppool/internal/adapter/queue"
	"github.com/arkime/httppool/internal/adapter/registry"
	"github.com/arkime/httppool/internal/adapter/ring"
	"github.com/arkime/httppool/internal/adapter/syncchan"
	"github.com/arkime/httppool/internal/adapter/transport"
	"github.com/arkime/httppool/internal/core/domain"
	"github.com/arkime/httppool/internal/core/ports"
	"github.com/arkime/httppool/internal/corrid"
	"github.com/arkime/httppool/pkg/eventbus"
	"github.com/arkime/httppool/pkg/pool"
)

// DefaultWorkers is the fixed worker-goroutine pool size used when a
// caller doesn't need to tune it.
const DefaultWorkers = 4

// Server is the pool: one EndpointRing, one PriorityQueue-backed
// Dispatcher, one AsyncTransport and one ConnectionRegistry, shared by
// every request submitted through it. The zero value is not usable;
// build one with CreateServer.
type Server struct {
	ring       *ring.Ring
	dispatcher *dispatcher.Dispatcher
	transport  *transport.Transport
	registry   *registry.Registry
	gzip       *gzipenc.Encoder
	events     *eventbus.EventBus[domain.PoolEvent]
	requests   *pool.Pool[*domain.Request]
	logger     ports.Logger
	sessionIDs ports.SessionIDBuilder
	headerCB   ports.HeaderCallback

	compress       bool
	maxRetries     int
	printErrors    bool
	logRequests    bool
	defaultHeaders []domain.Header
}

// Option customises a Server at construction time. Most callers only need
// CreateServer's four positional arguments; Option exists for the handful
// of collaborators (§6's host-supplied callbacks) that don't fit there.
type Option func(*Server)

// WithLogger installs a non-blocking diagnostic sink (§7). The default is
// ports.NopLogger, so a Server never needs a nil check before logging.
func WithLogger(l ports.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithSessionIDBuilder installs the host's session-id construction
// (§6's SessionIdV4/SessionIdV6), used to key ConnectionRegistry entries.
// Without one, Server falls back to defaultSessionIDBuilder.
func WithSessionIDBuilder(b ports.SessionIDBuilder) Option {
	return func(s *Server) { s.sessionIDs = b }
}

// WithEventBus installs a PoolEvent bus a host can subscribe to for
// lifecycle notifications (request dropped, endpoint cooling down,
// connection opened/closed) without sitting on the hot path of any single
// request. Without one, events are published to a Server-private bus that
// simply has no subscribers.
func WithEventBus(b *eventbus.EventBus[domain.PoolEvent]) Option {
	return func(s *Server) { s.events = b }
}

// CreateServer builds a Server rotating across hostnames, the pool's
// EndpointRing membership for its entire lifetime (§4.1, §5). hostnames is
// a comma-separated list; whitespace-only entries are skipped. An empty
// result after parsing is this constructor's one fatal condition (§7) and
// is returned as an error rather than a panic, since a library should
// never abort its host process on the host's behalf.
func CreateServer(hostnames string, maxConns, maxOutstandingRequests int, compress bool, opts ...Option) (*Server, error) {
	names := parseHostnames(hostnames)
	if len(names) == 0 {
		return nil, fmt.Errorf("httppool: no valid endpoints in %q", hostnames)
	}

	s := &Server{
		gzip:       gzipenc.New(),
		events:     eventbus.New[domain.PoolEvent](),
		requests:   pool.NewLitePool(func() *domain.Request { return &domain.Request{} }),
		logger:     ports.NopLogger{},
		sessionIDs: defaultSessionIDBuilder{},
		compress:   compress,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ring = ring.New(names)
	s.registry = registry.New(s.logger.Logf)

	s.transport = transport.New(transport.Config{
		SessionIDs: s.sessionIDs,
		OnSocketOpen: func(conn net.Conn, fd int) {
			s.onSocketOpen(conn, fd)
		},
		OnSocketClose: func(conn net.Conn, fd int) {
			s.onSocketClose(conn, fd)
		},
	})

	s.dispatcher = dispatcher.New(queue.New(), s.ring, s.transport, dispatcher.Config{
		Workers:                DefaultWorkers,
		MaxOutstandingRequests: maxOutstandingRequests,
		CoolDownSeconds:        30,
		Logger:                 s.logger,
		OnCoolDown: func(_ int, endpointName string, _ error) {
			s.events.PublishAsync(domain.PoolEvent{Kind: domain.EventEndpointCoolingDown, Time: time.Now(), Endpoint: endpointName})
		},
	})
	// maxConns is accepted for §6 signature parity and not enforced:
	// transport.New sets only the http.Transport's MaxIdleConnsPerHost,
	// which caps idle connections kept per host, not concurrent ones.

	return s, nil
}

// parseHostnames splits a comma-separated hostname list, trimming
// whitespace and dropping empty entries, per §6's CreateServer contract.
func parseHostnames(csv string) []string {
	var names []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

// Init starts the dispatcher's loop and worker goroutines; the gzip state,
// transport, and registry are already built by CreateServer. Mirrors
// arkime_http_init's role as the process-wide activation step separate
// from server construction (§6).
func (s *Server) Init() {
	s.dispatcher.Start()
}

// Exit drains outstanding work and tears the dispatcher down: Stop bypasses
// the admission drop thresholds so any final flush submitted during
// shutdown still lands, and blocks until every queued and in-flight attempt
// has reached a terminal outcome (§5 "Cancellation") before returning.
func (s *Server) Exit() {
	s.dispatcher.Stop()
	s.events.Shutdown()
}

// SetHeaders installs the default headers ("Name: Value" strings)
// appended to every request after its own headers (§4.3, §6). Must be
// called before any request is submitted.
func (s *Server) SetHeaders(defaultHeaders []string) {
	s.defaultHeaders = parseHeaders(defaultHeaders)
}

// SetRetries sets the number of additional attempts Normal-priority
// traffic gets after its first transport failure (§3, §6). Dropable
// traffic is never retried regardless of this setting.
func (s *Server) SetRetries(n int) {
	s.maxRetries = n
}

// SetClientCert installs a client certificate for mutual TLS, parsing the
// provided PEM pair. passphrase is accepted for API parity with §6's
// signature; encrypted PEM key files are a host-configuration detail this
// pool doesn't itself decrypt.
func (s *Server) SetClientCert(certFile, keyFile, _ string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("httppool: loading client cert: %w", err)
	}
	s.transport.SetClientCert(cert)
	return nil
}

// SetPrintErrors enables verbose logging of HTTP error-status responses
// (§7: "optional logging of first 4000 bytes of body"). Disabled by
// default to keep steady-state logging quiet.
func (s *Server) SetPrintErrors() {
	s.printErrors = true
}

// SetLogRequests enables the per-request byte-count and timing line
// (Supplemented Features: the source's logESRequests-gated LOG("%d/%d
// ASYNC ...") line), emitted for every completed request regardless of
// status. Disabled by default for the same reason SetPrintErrors is.
func (s *Server) SetLogRequests() {
	s.logRequests = true
}

// SetHeaderCallback installs fn to receive every response header line as
// a round trip completes (§6, §4.3's Supplemented Features).
func (s *Server) SetHeaderCallback(fn ports.HeaderCallback) {
	s.headerCB = fn
	s.transport.SetHeaderCallback(fn)
}

// Send is the thin wrapper §6 describes: dropable maps to domain.Dropable,
// everything else to domain.Normal, then calls Schedule.
func (s *Server) Send(method, keyTail string, body []byte, headers []domain.Header, dropable bool, cb domain.ResponseCallback, userdata interface{}) bool {
	priority := domain.Normal
	if dropable {
		priority = domain.Dropable
	}
	return s.Schedule(method, keyTail, body, headers, priority, cb, userdata)
}

// Schedule is the full submission form: builds a Request at the given
// priority, opportunistically gzips its body, and hands it to the
// Dispatcher's admission control. Returns false if the request was
// dropped — the caller's callback never fires in that case.
func (s *Server) Schedule(method, keyTail string, body []byte, headers []domain.Header, priority domain.Priority, cb domain.ResponseCallback, userdata interface{}) bool {
	if len(keyTail) > domain.MaxKeyTailLen {
		panic(fmt.Sprintf("httppool: key tail exceeds %d bytes", domain.MaxKeyTailLen))
	}

	if s.compress {
		if compressed, ok := s.gzip.Compress(body); ok {
			body = compressed
			headers = append(headers, domain.Header{Name: "Content-Encoding", Value: "gzip"})
		}
	}
	headers = append(headers, s.defaultHeaders...)

	retriesLeft := s.maxRetries
	if priority == domain.Dropable {
		retriesLeft = 0
	}

	uploadBytes := len(body)
	submittedAt := time.Now()

	req := s.requests.Get()
	req.Method = method
	req.KeyTail = keyTail
	req.Body = body
	req.Headers = headers
	req.Priority = priority
	req.Userdata = userdata
	req.RetriesLeft = retriesLeft
	req.CorrelationID = corrid.New()
	req.Callback = func(status int, respBody []byte, ud interface{}) {
		if s.printErrors && status >= 400 {
			s.logger.Logf("httppool: [%s] %s %s -> %d: %s", req.CorrelationID, method, keyTail, status, truncateForLog(respBody))
			if hint := versionConflictHint(respBody); hint != "" {
				s.logger.Logf("httppool: [%s] %s", req.CorrelationID, hint)
			}
		}
		if s.logRequests {
			totalMs := float64(time.Since(submittedAt)) / float64(time.Millisecond)
			s.logger.Logf("httppool: [%s] %s %s -> %d outstanding=%d connections=%d upload_bytes=%d download_bytes=%d total_ms=%.0f",
				req.CorrelationID, method, keyTail, status, s.QueueLength(), s.registry.Count(), uploadBytes, len(respBody), totalMs)
		}
		if cb != nil {
			cb(status, respBody, ud)
		}
		s.requests.Put(req)
	}

	if !s.dispatcher.Enqueue(req) {
		s.events.PublishAsync(domain.PoolEvent{Kind: domain.EventRequestDropped, Time: time.Now(), Priority: priority})
		s.requests.Put(req)
		return false
	}
	return true
}

// truncateForLog caps a logged response body at 4000 bytes, the limit
// §7's error-logging behaviour names.
func truncateForLog(body []byte) string {
	const maxLogBody = 4000
	if len(body) > maxLogBody {
		return string(body[:maxLogBody]) + "...(truncated)"
	}
	return string(body)
}

// versionConflictHint reproduces arkime_memstr's substring scan over the
// first 1000 bytes of an error body for Elasticsearch's version-conflict
// message, surfacing a one-line FAQ pointer instead of a bare status code
// (Supplemented Features). Returns "" when the substring isn't present.
func versionConflictHint(body []byte) string {
	const needle = "version conflict, current version"
	const scanLimit = 1000

	scan := body
	if len(scan) > scanLimit {
		scan = scan[:scanLimit]
	}
	if strings.Contains(string(scan), needle) {
		return "this is usually caused by two instances writing the same document concurrently; see the FAQ for version-conflict handling"
	}
	return ""
}

// Get is Send specialised for a bodyless GET delivered through the
// SyncChannel, blocking the caller until a terminal outcome arrives (§6).
func (s *Server) Get(ctx context.Context, keyTail string) ([]byte, int, error) {
	res, err := syncchan.Send(ctx, s.dispatcher, "GET", keyTail, nil, s.defaultHeaders, s.maxRetries)
	return res.Body, res.Status, err
}

// SendSync is SyncChannel's arbitrary-method entry point, blocking the
// caller until a terminal outcome arrives (§4.5, §6).
func (s *Server) SendSync(ctx context.Context, method, keyTail string, body []byte, headers []domain.Header) ([]byte, int, error) {
	headers = append(headers, s.defaultHeaders...)
	res, err := syncchan.Send(ctx, s.dispatcher, method, keyTail, body, headers, s.maxRetries)
	return res.Body, res.Status, err
}

// QueueLength returns the number of requests accepted but not yet
// terminally resolved — §6's "outstanding" introspection counter.
func (s *Server) QueueLength() int64 { return s.dispatcher.Outstanding() }

// DroppedCount returns the cumulative number of requests rejected by
// admission control since CreateServer (§6's "droppedTotal").
func (s *Server) DroppedCount() uint64 { return uint64(s.dispatcher.DroppedCount()) }

// IsArkime reports whether sessionID, looked up by hash, belongs to a
// connection this Server currently has open (§6's ConnectionRegistry
// lookup, the capture engine's "is this my own traffic" query).
func (s *Server) IsArkime(sessionIDHash uint32, sessionID []byte) bool {
	return s.registry.IsOurs(sessionIDHash, sessionID)
}

// onSocketOpen registers a newly dialed connection under its session-id
// and publishes a PoolEvent, mirroring the source's CURLOPT_OPENSOCKETFUNCTION
// hook driving arkime_http_add_connection (§4.4).
func (s *Server) onSocketOpen(conn net.Conn, fd int) {
	local, lok := conn.LocalAddr().(*net.TCPAddr)
	remote, rok := conn.RemoteAddr().(*net.TCPAddr)
	if !lok || !rok {
		return
	}

	var sessionID []byte
	if local.IP.To4() != nil {
		sessionID = s.sessionIDs.BuildV4(local, remote)
	} else {
		sessionID = s.sessionIDs.BuildV6(local, remote)
	}

	hash := hashSessionID(sessionID)
	s.registry.Insert(hash, sessionID, fd)
	s.events.PublishAsync(domain.PoolEvent{Kind: domain.EventConnectionOpened, Time: time.Now(), FD: fd, SessionID: sessionID})
}

// onSocketClose unregisters a closing connection, mirroring
// CURLOPT_CLOSESOCKETFUNCTION driving arkime_http_remove_connection (§4.4).
func (s *Server) onSocketClose(conn net.Conn, fd int) {
	local, lok := conn.LocalAddr().(*net.TCPAddr)
	remote, rok := conn.RemoteAddr().(*net.TCPAddr)
	if !lok || !rok {
		s.registry.Remove(0, nil, fd)
		return
	}

	var sessionID []byte
	if local.IP.To4() != nil {
		sessionID = s.sessionIDs.BuildV4(local, remote)
	} else {
		sessionID = s.sessionIDs.BuildV6(local, remote)
	}

	hash := hashSessionID(sessionID)
	s.registry.Remove(hash, sessionID, fd)
	s.events.PublishAsync(domain.PoolEvent{Kind: domain.EventConnectionClosed, Time: time.Now(), FD: fd, SessionID: sessionID})
}

// parseHeaders splits "Name: Value" strings into domain.Header pairs,
// skipping malformed entries rather than failing the whole batch.
func parseHeaders(raw []string) []domain.Header {
	headers := make([]domain.Header, 0, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			continue
		}
		headers = append(headers, domain.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return headers
}

// hashSessionID is ConnectionRegistry's bucket hash: FNV-1a over the
// opaque session-id bytes via the standard library's hash/fnv. No
// third-party hash in the example pack takes an arbitrary byte-string
// key, so this stays on hash/fnv rather than reaching for a library
// built for ASCII hostnames (see DESIGN.md).
func hashSessionID(sessionID []byte) uint32 {
	h := fnv.New32a()
	h.Write(sessionID) //nolint:errcheck // hash.Hash.Write never errors
	return h.Sum32()
}

// defaultSessionIDBuilder builds a session-id by concatenating the
// length-prefixed local/remote address and port, used when a host process
// doesn't supply its own SessionIDBuilder (§6 lists SessionIdV4/V6 as
// host-supplied, but a library shouldn't require one just to run).
type defaultSessionIDBuilder struct{}

func (defaultSessionIDBuilder) BuildV4(local, remote *net.TCPAddr) []byte {
	return buildSessionID(local, remote)
}

func (defaultSessionIDBuilder) BuildV6(local, remote *net.TCPAddr) []byte {
	return buildSessionID(local, remote)
}

func buildSessionID(local, remote *net.TCPAddr) []byte {
	id := make([]byte, 0, 1+len(local.IP)+len(remote.IP)+4)
	id = append(id, byte(len(local.IP)+len(remote.IP)+4))
	id = append(id, local.IP...)
	id = append(id, byte(local.Port>>8), byte(local.Port))
	id = append(id, remote.IP...)
	id = append(id, byte(remote.Port>>8), byte(remote.Port))
	return id
}
