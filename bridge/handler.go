package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asrgot/mcp-bridge/backend"
	"github.com/asrgot/mcp-bridge/internal/framing"
	"github.com/asrgot/mcp-bridge/internal/jsonrpc"
	"github.com/asrgot/mcp-bridge/internal/logctx"
	"github.com/asrgot/mcp-bridge/internal/metrics"
)

// Handler is the single-connection bridge over stdin/stdout. It owns message
// framing, routing, the in-flight request table, and response writing. By
// default it uses os.Stdin and os.Stdout.
type Handler struct {
	r io.Reader
	w io.Writer

	log *slog.Logger
	m   *metrics.Metrics

	sup     *backend.Supervisor
	fwd     *Forwarder
	session *SessionRef

	writer      *framing.Writer
	inflight    *inflightTable
	instanceID  string
	initialized bool
	initMu      sync.Mutex

	// wg tracks message goroutines and detached background work (launch,
	// teardown) so Serve can drain them before returning.
	wg sync.WaitGroup
}

// NewHandler constructs a Handler with defaults and applies options.
func NewHandler(sup *backend.Supervisor, fwd *Forwarder, session *SessionRef, opts ...Option) *Handler {
	h := &Handler{
		r:          os.Stdin,
		w:          os.Stdout,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		m:          metrics.New(),
		sup:        sup,
		fwd:        fwd,
		session:    session,
		inflight:   newInflightTable(),
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()}).With(
		slog.String("instance_id", h.instanceID),
	)
	return h
}

// Serve runs the event loop until EOF on the reader, an explicit shutdown
// request, or context cancellation. The frame-reading loop never blocks on a
// handler: each inbound message is dispatched on its own goroutine and the
// output stream is serialized by the frame writer.
func (h *Handler) Serve(ctx context.Context) error {
	dec := framing.NewDecoder(h.r)
	h.writer = framing.NewWriter(h.w)

	// msgCtx is cancelled when the loop exits so in-flight queries and a
	// pending background launch abort instead of outliving the transport.
	// The cancel must fire before the drain below.
	msgCtx, cancelMsgs := context.WithCancel(ctx)
	defer h.wg.Wait()
	defer cancelMsgs()

	h.log.Info("bridge.serve.start")

	for {
		payload, err := dec.Next()
		if err != nil {
			var fe *framing.FramingError
			switch {
			case errors.As(err, &fe):
				// One bad frame must not desynchronize the stream.
				h.m.FramingErrors.Inc()
				h.log.Warn("frame.decode.fail", slog.String("err", err.Error()))
				continue
			case errors.Is(err, io.EOF):
				h.log.Info("bridge.input.eof")
				return nil
			case errors.Is(err, io.ErrUnexpectedEOF):
				h.log.Warn("bridge.input.truncated")
				return nil
			default:
				return fmt.Errorf("read frame: %w", err)
			}
		}
		h.m.FramesDecoded.Inc()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var msg jsonrpc.AnyMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.m.ParseErrors.Inc()
			id := recoverRequestID(payload)
			h.log.Warn("frame.parse.fail", slog.String("err", err.Error()))
			h.write(jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeParseError, "Parse error", nil))
			continue
		}

		req := msg.AsRequest()
		if req == nil {
			// The bridge issues no outbound requests, so an inbound response
			// has nothing to correlate with.
			h.log.Debug("frame.response.ignored")
			continue
		}

		if Method(req.Method) == ShutdownMethod {
			h.handleShutdown(req, cancelMsgs)
			return nil
		}

		h.wg.Add(1)
		go h.dispatch(msgCtx, req)
	}
}

// dispatch routes one inbound request or notification. Any internal failure
// becomes an error response carrying the original request id; the process
// never dies because of a single message.
func (h *Handler) dispatch(ctx context.Context, req *jsonrpc.Request) {
	defer h.wg.Done()

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   msgType(req),
	})

	defer func() {
		if r := recover(); r != nil {
			h.log.ErrorContext(ctx, "rpc.handler.panic", slog.Any("panic", r))
			h.m.RequestsTotal.WithLabelValues(req.Method, "panic").Inc()
			h.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, fmt.Sprintf("Internal error: %v", r), nil))
		}
	}()

	h.log.InfoContext(ctx, "rpc.recv")

	switch Method(req.Method) {
	case InitializeMethod:
		h.handleInitialize(ctx, req)
	case QueryMethod:
		h.handleQuery(ctx, req)
	case CancelledNotificationMethod:
		h.handleCancelled(ctx, req)
	default:
		h.m.RequestsTotal.WithLabelValues(req.Method, "method_not_found").Inc()
		h.log.WarnContext(ctx, "rpc.method.unknown", slog.String("method", req.Method))
		// Unknown notifications are dropped without a reply.
		h.reply(req, jsonrpc.NewErrorResponse(
			req.ID,
			jsonrpc.ErrorCodeMethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method),
			map[string]string{"method": req.Method},
		))
	}
}

func (h *Handler) handleInitialize(ctx context.Context, req *jsonrpc.Request) {
	var params initializeParams
	if len(req.Params) > 0 {
		// Handshake params are diagnostic only; ignore malformed content.
		_ = json.Unmarshal(req.Params, &params)
	}
	h.log.InfoContext(ctx, "rpc.initialize",
		slog.String("protocol_version", params.ProtocolVersion),
	)

	h.initMu.Lock()
	h.initialized = true
	h.initMu.Unlock()

	// Bring the backend up without blocking the handshake; completion only
	// updates the backend state.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.sup.EnsureRunning(ctx)
	}()

	resp, err := jsonrpc.NewResultResponse(req.ID, newInitializeResult())
	if err != nil {
		h.m.RequestsTotal.WithLabelValues(req.Method, "error").Inc()
		h.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil))
		return
	}
	h.m.RequestsTotal.WithLabelValues(req.Method, "ok").Inc()
	h.reply(req, resp)
}

// handleShutdown runs inline on the serve loop: the null-result reply is
// flushed, in-flight work is cancelled, and teardown proceeds best-effort in
// the background (Serve drains it before returning).
func (h *Handler) handleShutdown(req *jsonrpc.Request, cancelMsgs context.CancelFunc) {
	h.log.Info("rpc.shutdown")
	h.m.RequestsTotal.WithLabelValues(req.Method, "ok").Inc()

	// No further queries are accepted from this point.
	h.sup.Tracker().Set(backend.StateStopped)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.sup.Stop(context.Background())
	}()

	h.reply(req, jsonrpc.NewNullResponse(req.ID))

	for _, rec := range h.inflight.drain() {
		rec.cancel()
	}
	cancelMsgs()
}

func (h *Handler) handleQuery(ctx context.Context, req *jsonrpc.Request) {
	h.initMu.Lock()
	initialized := h.initialized
	h.initMu.Unlock()

	if !initialized || h.sup.Tracker().Stopped() {
		h.m.RequestsTotal.WithLabelValues(req.Method, "not_initialized").Inc()
		h.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeNotInitialized, "Server not initialized", nil))
		return
	}

	var params queryParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			h.m.RequestsTotal.WithLabelValues(req.Method, "invalid_params").Inc()
			h.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "Invalid params: "+err.Error(), nil))
			return
		}
	}
	if params.Context == nil {
		h.m.RequestsTotal.WithLabelValues(req.Method, "invalid_params").Inc()
		h.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "Missing context parameter", nil))
		return
	}

	if res, ok := h.fastPathResult(params.Context); ok {
		h.m.RequestsTotal.WithLabelValues(req.Method, "fast_path").Inc()
		h.replyResult(req, res)
		return
	}

	// The query gate is "READY at least once", not the momentary state: a
	// backend that flaps after first readiness still takes queries (and the
	// forwarded call will surface its own failure).
	if !h.sup.Tracker().EverReady() {
		if h.sup.Tracker().State() == backend.StateUnreachable {
			// The launch budget ran out without a healthy probe.
			h.m.RequestsTotal.WithLabelValues(req.Method, "unavailable").Inc()
			h.reply(req, queryErrorResponse(req.ID, &backend.Error{
				Kind: backend.KindUnavailable,
				Op:   "launch",
				Err:  errors.New("launch budget exhausted"),
			}, 0))
			return
		}
		h.m.RequestsTotal.WithLabelValues(req.Method, "not_initialized").Inc()
		h.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeNotInitialized, "Server not initialized", nil))
		return
	}

	timeout := h.fwd.timeoutFor(params.TimeoutMs)

	ctx = logctx.WithBackendData(ctx, &logctx.BackendData{
		State:     h.sup.Tracker().State().String(),
		SessionID: h.session.Get(),
	})

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := req.ID.String()
	rec := &inflightRecord{id: key, enqueuedAt: time.Now(), cancel: cancel}
	if old := h.inflight.add(key, rec); old != nil {
		// Last write wins; the displaced request can no longer resolve.
		h.log.WarnContext(ctx, "rpc.id.duplicate", slog.String("id", key))
		old.cancel()
	}
	h.m.InFlight.Inc()
	defer h.m.InFlight.Dec()

	res, err := h.fwd.Forward(qctx, params.Context, timeout)

	if !h.inflight.remove(key, rec) {
		// A cancellation (or a duplicate id) already terminated this record;
		// whatever we got back is discarded and no response is sent.
		h.m.RequestsTotal.WithLabelValues(req.Method, "superseded").Inc()
		h.log.InfoContext(ctx, "rpc.query.superseded", slog.Duration("dur", time.Since(rec.enqueuedAt)))
		return
	}

	if err != nil {
		h.m.RequestsTotal.WithLabelValues(req.Method, "error").Inc()
		h.reply(req, queryErrorResponse(req.ID, err, timeout))
		return
	}

	h.m.RequestsTotal.WithLabelValues(req.Method, "ok").Inc()
	h.replyResult(req, res)
}

func (h *Handler) handleCancelled(ctx context.Context, req *jsonrpc.Request) {
	var params struct {
		RequestID *jsonrpc.RequestID `json:"requestId"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	if params.RequestID.IsNil() {
		h.log.DebugContext(ctx, "rpc.cancel.noid")
		return
	}

	// A cancellation for an unknown id is a silent no-op; for a live record
	// it stops the pending call and no response is ever sent.
	if rec := h.inflight.take(params.RequestID.String()); rec != nil {
		rec.cancel()
		h.log.InfoContext(ctx, "rpc.cancelled", slog.String("id", params.RequestID.String()))
	} else {
		h.log.DebugContext(ctx, "rpc.cancel.unmatched", slog.String("id", params.RequestID.String()))
	}
}

// fastPathResult answers canned smoke-test queries ("test" and the
// continuation prompts) without touching the backend.
func (h *Handler) fastPathResult(q *QueryContext) (*QueryResult, bool) {
	switch strings.ToLower(strings.TrimSpace(q.Query)) {
	case "test":
		sessionID := h.session.Get()
		if sessionID == "" {
			sessionID = "test-session"
		}
		return &QueryResult{
			Response:       "This is a test response. The ASR-GoT bridge is functioning correctly.",
			ReasoningTrace: "Test reasoning trace.",
			Confidence:     []float64{0.9, 0.9, 0.9, 0.9},
			GraphState:     json.RawMessage("{}"),
			SessionID:      sessionID,
		}, true
	case "continue", "continue to iterate?":
		confidence := []float64{0, 0, 0, 0}
		sessionID := h.session.Get()
		if sessionID != "" {
			confidence = []float64{0.9, 0.9, 0.9, 0.9}
		} else {
			sessionID = "continue-session"
		}
		return &QueryResult{
			Response:       "Yes, continuing with the current ASR-GoT graph. Provide your next query or say 'continue' to iterate further.",
			ReasoningTrace: "Continuing with existing graph...",
			Confidence:     confidence,
			GraphState:     json.RawMessage("{}"),
			SessionID:      sessionID,
		}, true
	}
	return nil, false
}

// queryParams is the wire shape of the query method's params.
type queryParams struct {
	Context   *QueryContext `json:"context"`
	TimeoutMs int64         `json:"timeout_ms,omitempty"`
}

// queryErrorResponse maps forwarder failures onto stable JSON-RPC codes.
func queryErrorResponse(id *jsonrpc.RequestID, err error, timeout time.Duration) *jsonrpc.Response {
	if errors.Is(err, ErrEmptyQuery) {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidParams, "Missing query in context", nil)
	}

	var be *backend.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case backend.KindTimeout:
			return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeBackendTimeout,
				fmt.Sprintf("Backend did not respond within %s", timeout), nil)
		case backend.KindTransport:
			return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeBackendTransport,
				"Error communicating with the ASR-GoT backend: "+be.Error(), nil)
		case backend.KindUnavailable:
			return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeBackendUnavailable,
				"ASR-GoT backend is unavailable", nil)
		}
	}

	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "Internal error: "+err.Error(), nil)
}

// reply writes resp unless req is a notification (notifications never
// produce a reply).
func (h *Handler) reply(req *jsonrpc.Request, resp *jsonrpc.Response) {
	if req.IsNotification() {
		return
	}
	h.write(resp)
}

func (h *Handler) replyResult(req *jsonrpc.Request, result any) {
	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		h.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil))
		return
	}
	h.reply(req, resp)
}

func (h *Handler) write(resp *jsonrpc.Response) {
	if err := h.writer.WriteMessage(resp); err != nil {
		h.log.Error("frame.write.fail", slog.String("err", err.Error()))
		return
	}
	h.m.FramesEncoded.Inc()
}

// recoverRequestID attempts a best-effort id extraction from a payload that
// failed envelope validation, falling back to the synthetic id 0.
func recoverRequestID(payload []byte) *jsonrpc.RequestID {
	var probe struct {
		ID *jsonrpc.RequestID `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && !probe.ID.IsNil() {
		return probe.ID
	}
	return jsonrpc.SyntheticID()
}

func msgType(req *jsonrpc.Request) string {
	if req.IsNotification() {
		return "notification"
	}
	return "request"
}
