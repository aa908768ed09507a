package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"
)

// WSHandler hosts one quiz-taking Session per connection. The connection loop
// is the session's only driver: it owns the countdown, the autosave ticker and
// the close hook that submits on abandonment.
type WSHandler struct {
	coord          *app.Coordinator
	log            *logger.Logger
	upgrader       websocket.Upgrader
	autosave       time.Duration
	abandonTimeout time.Duration
	after          func(time.Duration) <-chan time.Time
}

// WSOptions tunes session housekeeping.
type WSOptions struct {
	// Autosave flushes buffered answers at this interval; zero disables it.
	Autosave time.Duration
	// AbandonTimeout bounds the best-effort submit after a disconnect.
	AbandonTimeout time.Duration
}

func NewWSHandler(coord *app.Coordinator, log *logger.Logger, opts WSOptions) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	if opts.AbandonTimeout <= 0 {
		opts.AbandonTimeout = 5 * time.Second
	}
	return &WSHandler{
		coord: coord,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		autosave:       opts.Autosave,
		abandonTimeout: opts.AbandonTimeout,
		after:          time.After,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type resultPayload struct {
	Trigger app.Trigger         `json:"trigger"`
	Result  domain.SubmitResult `json:"result"`
}

// ServeWS upgrades HTTP requests to websockets and runs one attempt session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	if quizID == "" || userID == "" {
		http.Error(w, "missing quizId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.coord.Open(ctx, userID, quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorBody(err)})
		return
	}
	defer func() {
		// Runs on every exit; a no-op once the session has been finalized.
		abandonCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.abandonTimeout)
		defer cancel()
		session.Abandon(abandonCtx)
	}()

	inbound := make(chan inboundMessage)
	readerDone := make(chan struct{})
	stop := make(chan struct{})
	defer func() {
		close(stop)
		_ = conn.Close()
		<-readerDone
	}()
	go func() {
		defer close(readerDone)
		defer close(inbound)
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case inbound <- msg:
			case <-stop:
				return
			}
		}
	}()

	var timeout <-chan time.Time
	if left, ok := session.Remaining(); ok {
		timeout = h.after(left)
	}
	var autosave <-chan time.Time
	if h.autosave > 0 {
		ticker := time.NewTicker(h.autosave)
		defer ticker.Stop()
		autosave = ticker.C
	}

	if err := conn.WriteJSON(outboundMessage[attemptView]{Type: "started", Payload: h.view(session)}); err != nil {
		return
	}

	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if done := h.handle(ctx, conn, session, msg); done {
				return
			}
		case <-timeout:
			res, fired, err := session.Expire(ctx)
			if err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorBody(err)})
				return
			}
			if !fired {
				// Clock skew between the timer and the attempt record; re-arm.
				left, _ := session.Remaining()
				timeout = h.after(left + time.Second)
				continue
			}
			_ = conn.WriteJSON(outboundMessage[resultPayload]{Type: "result", Payload: resultPayload{Trigger: app.TriggerTimeout, Result: res}})
			return
		case <-autosave:
			if _, err := session.Save(ctx); err != nil {
				h.log.Warn("autosave failed", "attempt_id", session.Attempt().ID, "error", err)
				if session.Done() {
					_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorBody(err)})
					return
				}
			}
		}
	}
}

// handle processes one client message and reports whether the session ended.
func (h *WSHandler) handle(ctx context.Context, conn *websocket.Conn, session *app.Session, msg inboundMessage) bool {
	sendErr := func(err error) bool {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorBody(err)})
		return session.Done()
	}

	switch msg.Type {
	case "answer", "submit":
		if len(msg.Payload) > 0 {
			var req answersRequest
			dec := json.NewDecoder(bytes.NewReader(msg.Payload))
			dec.UseNumber()
			if err := dec.Decode(&req); err != nil {
				return sendErr(errBadRequest)
			}
			session.Record(req.Answers)
		}
		if msg.Type == "answer" {
			return false
		}
		res, err := session.Submit(ctx)
		if err != nil {
			return sendErr(err)
		}
		_ = conn.WriteJSON(outboundMessage[resultPayload]{Type: "result", Payload: resultPayload{Trigger: app.TriggerManual, Result: res}})
		return true
	case "save":
		attempt, err := session.Save(ctx)
		if err != nil {
			return sendErr(err)
		}
		_ = conn.WriteJSON(outboundMessage[attemptView]{Type: "saved", Payload: newAttemptView(attempt, session.Quiz(), time.Now())})
		return false
	default:
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		return false
	}
}

func (h *WSHandler) view(session *app.Session) attemptView {
	return newAttemptView(session.Attempt(), session.Quiz(), time.Now())
}
