// Package endpoint implements the Endpoint Facade (C7): the object
// that owns the node's private key, the listening HTTP server wrapping
// the Request Router, and the administrative key-rotation hook.
package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	sagecrypto "github.com/universa-net/ledgernode/crypto"
	"github.com/universa-net/ledgernode/internal/logger"
	"github.com/universa-net/ledgernode/internal/metrics"
	"github.com/universa-net/ledgernode/router"
)

// Endpoint is the facade construction captures: node identity,
// listening address, the router it fronts (which holds the roster),
// and the optional admin rotation hook. It owns the http.Server's
// lifecycle.
type Endpoint struct {
	NodeKey sagecrypto.KeyPair
	Addr    string
	Router  *router.Router
	Admin   *AdminRotation

	Logger logger.Logger

	mu     sync.Mutex
	server *http.Server
	done   bool
}

// New constructs an Endpoint. admin may be nil to disable the rotation
// hook entirely (e.g. in tests).
func New(nodeKey sagecrypto.KeyPair, addr string, rt *router.Router, admin *AdminRotation, log logger.Logger) *Endpoint {
	return &Endpoint{NodeKey: nodeKey, Addr: addr, Router: rt, Admin: admin, Logger: logger.WithComponent(log, "endpoint")}
}

// mux assembles the endpoint's single http.Server handler: the router
// fronts every protocol URI, /healthz and /metrics expose operational
// state (supplemental to spec.md, grounded on the teacher's
// pkg/health server), and, when configured, the admin hook fronts
// /admin/rotate.
func (e *Endpoint) mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(e.handleHealthz))
	mux.Handle("/metrics", metrics.Handler())
	if e.Admin != nil {
		mux.Handle("/admin/rotate", e.Admin.Handler())
	}
	mux.Handle("/", e.Router)
	return mux
}

// handleHealthz reports liveness plus a point-in-time snapshot of the
// router's request/handshake/command counters, grounded on the
// teacher's pkg/health handleLiveness/handleHealth JSON shape.
func (e *Endpoint) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snapshot := e.Router.Collector.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":               "alive",
		"uptime_seconds":       snapshot.Uptime.Seconds(),
		"requests_handled":     snapshot.RequestsHandled,
		"requests_rejected":    snapshot.RequestsRejected,
		"handshakes_completed": snapshot.HandshakesCompleted,
		"handshakes_failed":    snapshot.HandshakesFailed,
		"commands_dispatched":  snapshot.CommandsDispatched,
		"commands_failed":      snapshot.CommandsFailed,
	})
}

// ListenAndServe starts the HTTP server and blocks until it stops or
// fails. Call from a goroutine; use Shutdown to stop it.
func (e *Endpoint) ListenAndServe() error {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return http.ErrServerClosed
	}
	e.server = &http.Server{Addr: e.Addr, Handler: e.mux()}
	srv := e.server
	e.mu.Unlock()

	if e.Logger != nil {
		e.Logger.Info("listening", logger.String("addr", e.Addr))
	}
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes all connections and stops the server. It is
// idempotent: a second call, concurrent or sequential, is a no-op.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return nil
	}
	e.done = true

	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
