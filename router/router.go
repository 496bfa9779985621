// Package router implements the Request Router (C6): the HTTP
// boundary that turns a multipart POST into a params map, dispatches
// it across the five well-known URIs, and packs the result (or
// accumulated errors) back onto the wire.
package router

import (
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/universa-net/ledgernode/command"
	"github.com/universa-net/ledgernode/errset"
	"github.com/universa-net/ledgernode/handshake"
	"github.com/universa-net/ledgernode/internal/logger"
	"github.com/universa-net/ledgernode/internal/metrics"
	"github.com/universa-net/ledgernode/session"
	"github.com/universa-net/ledgernode/wire"
)

// formFieldMaxMemory bounds how much of a parsed multipart form Go
// keeps in memory before spilling named parts to temp files; set below
// the upload limit so large bodies always materialise on disk instead
// of doubling memory use.
const formFieldMaxMemory = 1 << 20 // 1 MiB

// NetworkEntry is one node's published address and public key, as
// handed out by /network.
type NetworkEntry struct {
	Port int
	IP   string
	Key  []byte
}

// Roster is the node_id -> NetworkEntry map the router was configured
// with; it never changes after construction.
type Roster map[string]NetworkEntry

// Router implements the C6 contract: body-size guard, requestData
// extraction, unpack, URI dispatch, and per-session critical section.
type Router struct {
	Registry  *session.Registry
	Handshake *handshake.Handshake
	Command   *command.Dispatcher
	Roster    Roster

	// UploadLimit is HARD_UPLOAD_LIMIT (spec §4.5); requests whose
	// declared Content-Length exceeds it are rejected before any body
	// is read.
	UploadLimit int64

	Logger    logger.Logger
	Collector *metrics.RouterCollector

	sem *semaphore.Weighted // nil means an unbounded pool

	netDir atomic.Pointer[wire.Map]
}

// New constructs a Router. threadPoolSize <= 0 means an unbounded
// elastic pool (spec §5 scheduling model).
func New(registry *session.Registry, hs *handshake.Handshake, cmd *command.Dispatcher, roster Roster, uploadLimit int64, threadPoolSize int, log logger.Logger) *Router {
	rt := &Router{
		Registry:    registry,
		Handshake:   hs,
		Command:     cmd,
		Roster:      roster,
		UploadLimit: uploadLimit,
		Logger:      logger.WithComponent(log, "router"),
		Collector:   metrics.NewRouterCollector(),
	}
	if threadPoolSize > 0 {
		rt.sem = semaphore.NewWeighted(int64(threadPoolSize))
	}
	return rt
}

// ServeHTTP is the single HTTP entry point; every URI in the dispatch
// table is served by the same handler, distinguished by r.URL.Path.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rt.sem != nil {
		ctx := r.Context()
		if err := rt.sem.Acquire(ctx, 1); err != nil {
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		defer rt.sem.Release(1)
	}

	start := time.Now()
	uri := r.URL.Path
	traceID := uuid.NewString()
	rejected := false
	defer func() {
		duration := time.Since(start)
		rt.Collector.RecordRequest(rejected, duration)
		metrics.RouterRequestDuration.WithLabelValues(uri).Observe(duration.Seconds())
	}()

	if r.Method != http.MethodPost {
		rejected = true
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if rt.UploadLimit > 0 && r.ContentLength > rt.UploadLimit {
		rejected = true
		metrics.RouterBodyRejections.Inc()
		rt.logWarn("request body too large", logger.String("uri", uri), logger.String("trace_id", traceID), logger.Int("content_length", int(r.ContentLength)))
		rt.writeFailure(w, http.StatusNotAcceptable, "body", "Body too large", traceID)
		return
	}

	body, ok := rt.extractRequestData(w, r, traceID)
	if !ok {
		rejected = true
		return
	}
	metrics.RequestBodySize.Observe(float64(len(body)))

	params, err := wire.Unpack(body)
	if err != nil {
		rejected = true
		rt.logWarn("unparsable request body", logger.String("uri", uri), logger.String("trace_id", traceID), logger.Error(err))
		rt.writeFailure(w, http.StatusOK, "requestData", "unparsable request body", traceID)
		return
	}

	out := rt.Dispatch(uri, params)
	rt.writeWire(w, http.StatusOK, out)
}

// extractRequestData implements spec §4.6 steps 1-3 after the
// content-length gate: parse the multipart body, locate the
// requestData field (as either a plain value or a file part), and
// return its raw bytes.
func (rt *Router) extractRequestData(w http.ResponseWriter, r *http.Request, traceID string) ([]byte, bool) {
	if err := r.ParseMultipartForm(formFieldMaxMemory); err != nil {
		rt.writeFailure(w, http.StatusOK, "request", "malformed multipart body", traceID)
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	if values := r.MultipartForm.Value["requestData"]; len(values) > 0 {
		return []byte(values[0]), true
	}

	files := r.MultipartForm.File["requestData"]
	if len(files) == 0 {
		rt.writeFailure(w, http.StatusOK, "requestData", "No requestData", traceID)
		return nil, false
	}

	f, err := files[0].Open()
	if err != nil {
		rt.writeFailure(w, http.StatusOK, "requestData", "tempfile missing", traceID)
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		rt.writeFailure(w, http.StatusOK, "requestData", "tempfile missing", traceID)
		return nil, false
	}
	return data, true
}

// Dispatch runs the URI dispatch table against an already-unpacked
// params map, independent of the HTTP transport; this is the seam
// exercised directly by the package's tests.
func (rt *Router) Dispatch(uri string, params wire.Map) wire.Map {
	switch uri {
	case "/ping":
		out := wire.Map{}
		for k, v := range params {
			out[k] = v
		}
		out["ping"] = "pong"
		return out
	case "/network":
		return rt.networkDirectory()
	case "/connect":
		return rt.handleConnect(params)
	case "/get_token":
		return rt.handleGetToken(params)
	case "/command":
		return rt.handleCommand(params)
	default:
		acc := &errset.Accumulator{}
		acc.Add(errset.NewUnknownCommand("uri", "no such endpoint: "+uri))
		return errset.Answer(nil, acc)
	}
}

func (rt *Router) handleConnect(params wire.Map) wire.Map {
	clientKey, err := params.GetBytes("client_key")
	if err != nil {
		acc := &errset.Accumulator{}
		acc.Add(errset.NewBadClientKey("client_key", "missing or wrong type"))
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		rt.Collector.RecordHandshake(false)
		return errset.Answer(nil, acc)
	}

	_, out, err := rt.Handshake.Connect(clientKey)
	if err != nil {
		acc := &errset.Accumulator{}
		acc.Add(errset.NewBadClientKey("client_key", err.Error()))
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		rt.Collector.RecordHandshake(false)
		return errset.Answer(nil, acc)
	}
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	rt.Collector.RecordHandshake(true)
	return out
}

func (rt *Router) handleGetToken(params wire.Map) wire.Map {
	rec, lookupErr := rt.lookupSession(params)
	if lookupErr != nil {
		acc := &errset.Accumulator{}
		acc.Add(*lookupErr)
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		rt.Collector.RecordHandshake(false)
		return errset.Answer(nil, acc)
	}

	rec.Mu.Lock()
	out := rt.Handshake.GetToken(rec, params)
	keyed := rec.IsKeyed()
	rec.Mu.Unlock()

	metrics.HandshakesCompleted.WithLabelValues(completionLabel(keyed)).Inc()
	rt.Collector.RecordHandshake(keyed)
	return out
}

func (rt *Router) handleCommand(params wire.Map) wire.Map {
	rec, lookupErr := rt.lookupSession(params)
	if lookupErr != nil {
		acc := &errset.Accumulator{}
		acc.Add(*lookupErr)
		metrics.CommandsDispatched.WithLabelValues("envelope", "failure").Inc()
		rt.Collector.RecordCommand(false)
		return errset.Answer(nil, acc)
	}

	rec.Mu.Lock()
	out := rt.Command.Run(rec, params)
	rec.Mu.Unlock()

	_, failed := out["errors"]
	metrics.CommandsDispatched.WithLabelValues("envelope", completionLabel(!failed)).Inc()
	rt.Collector.RecordCommand(!failed)
	return out
}

// lookupSession resolves session_id out of params. A missing or
// wrong-type session_id is a BAD_VALUE (the request itself is
// malformed); a well-formed id with no matching registry entry is the
// "bad session number" FAILURE spec.md §4.5/§8 names explicitly, since
// the id was syntactically fine but doesn't name a live session.
func (rt *Router) lookupSession(params wire.Map) (*session.Record, *errset.Record) {
	sessionID, err := params.GetLong("session_id")
	if err != nil {
		rec := errset.NewBadValue("session_id", "missing or wrong type")
		return nil, &rec
	}
	rec, err := rt.Registry.GetByID(sessionID)
	if err != nil {
		failure := errset.NewFailure("session_id", "bad session number")
		return nil, &failure
	}
	return rec, nil
}

func completionLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// networkDirectory returns the cached node_id -> {port, ip, key} map,
// built once from the roster under double-checked locking (spec
// §4.6): read the atomic pointer without a lock first, and only pay
// for the build-and-publish path on the first call.
func (rt *Router) networkDirectory() wire.Map {
	if dir := rt.netDir.Load(); dir != nil {
		return *dir
	}

	dir := wire.Map{}
	for id, entry := range rt.Roster {
		dir[id] = wire.Map{
			"port": int64(entry.Port),
			"ip":   entry.IP,
			"key":  entry.Key,
		}
	}
	rt.netDir.CompareAndSwap(nil, &dir)
	return *rt.netDir.Load()
}

func (rt *Router) writeFailure(w http.ResponseWriter, status int, object, message, traceID string) {
	acc := &errset.Accumulator{}
	acc.Add(errset.NewFailure(object, message).WithTrace(traceID))
	rt.writeWire(w, status, errset.Answer(nil, acc))
}

func (rt *Router) writeWire(w http.ResponseWriter, status int, m wire.Map) {
	packed, err := wire.Pack(m)
	if err != nil {
		rt.logWarn("failed to pack response", logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(status)
	_, _ = w.Write(packed)
}

func (rt *Router) logWarn(msg string, fields ...logger.Field) {
	if rt.Logger != nil {
		rt.Logger.Warn(msg, fields...)
	}
}
