package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carbon-quiz/internal/app"
	"carbon-quiz/internal/chat"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/session"
)

// WSHandler drives one session engine and one assistant conversation per
// websocket connection.
type WSHandler struct {
	service     *app.QuizService
	assistant   chat.Assistant
	autoAdvance time.Duration
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, assistant chat.Assistant, autoAdvance time.Duration, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service:     service,
		assistant:   assistant,
		autoAdvance: autoAdvance,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

const commandQueue = 16

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Option *int `json:"option"`
}

type chatPayload struct {
	Message string `json:"message"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type statePayload struct {
	Event    session.EventKind      `json:"event"`
	View     session.View           `json:"view"`
	Snapshot domain.ContextSnapshot `json:"snapshot"`
}

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into a session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	sess := h.service.NewSession(session.WithAutoAdvance(h.autoAdvance), session.WithContext(ctx))
	conv := chat.NewConversation(h.assistant, sess, h.logger)
	events, cancel := sess.Subscribe()
	defer cancel()

	logger := h.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Debug("ws session opened", zap.String("session_id", string(sess.Identity())))

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var workers sync.WaitGroup

	emit := func(typ string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-closeSignals:
		}
	}
	fail := func(err error) {
		if err == nil || errors.Is(err, domain.ErrStaleResponse) {
			return
		}
		// submission failures arrive as session events
		var subErr *domain.SubmissionError
		if errors.As(err, &subErr) {
			return
		}
		emit("error", toErrorPayload(err))
	}
	run := func(fn func()) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn()
		}()
	}
	// Quiz commands apply in arrival order on one worker so the read loop
	// stays free for chat and retake while a command waits on the network.
	commands := make(chan func(), commandQueue)
	enqueue := func(fn func()) {
		select {
		case commands <- fn:
		default:
			emit("error", errorPayload{Message: "too many pending commands"})
		}
	}
	run(func() {
		for fn := range commands {
			fn()
		}
	})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	run(func() {
		for ev := range events {
			conv.Observe(ev)
			emit("state", statePayload{Event: ev.Kind, View: ev.View, Snapshot: ev.Snapshot})
			switch ev.Kind {
			case session.EventResults:
				emit("results", ev.View.Results)
			case session.EventError:
				emit("error", toErrorPayload(ev.Err))
			}
		}
	})
	run(func() {
		for {
			select {
			case <-conv.Changes():
				emit("chat", conv.State())
			case <-closeSignals:
				return
			}
		}
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			enqueue(func() { fail(sess.Start(ctx)) })
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Option == nil {
				emit("error", errorPayload{Message: "invalid select payload"})
				continue
			}
			option := *payload.Option
			enqueue(func() { fail(sess.Select(option)) })
		case "next":
			enqueue(func() { fail(sess.Next(ctx)) })
		case "back":
			enqueue(func() { fail(sess.Back()) })
		case "retake":
			fail(sess.Retake())
		case "chat":
			var payload chatPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit("error", errorPayload{Message: "invalid chat payload"})
				continue
			}
			run(func() { conv.Send(ctx, payload.Message) })
		case "chat_open":
			conv.Open()
		case "chat_close":
			conv.Close()
		default:
			emit("error", errorPayload{Message: "unsupported message type"})
		}
	}

	cancelCtx()
	close(commands)
	sess.Close()
	close(closeSignals)
	workers.Wait()
	close(send)
	<-writerDone
	logger.Debug("ws session closed", zap.String("session_id", string(sess.Identity())))
}

func toErrorPayload(err error) errorPayload {
	var (
		fetchErr *domain.FetchError
		subErr   *domain.SubmissionError
	)
	switch {
	case errors.As(err, &fetchErr):
		return errorPayload{Message: "Could not load the questions. Please try again.", Status: fetchErr.Status}
	case errors.As(err, &subErr):
		return errorPayload{Message: "Failed to calculate results. Please try again.", Status: subErr.Status}
	default:
		return errorPayload{Message: err.Error()}
	}
}
