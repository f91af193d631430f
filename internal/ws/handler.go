// Package ws streams transcript chunks over a WebSocket connection,
// acknowledging each chunk and returning the full turn result on
// finalize.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/anchorhq/anchor/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler manages WebSocket turn sessions with admission control.
type Handler struct {
	pipe *pipeline.Pipeline
	sem  chan struct{}
}

// NewHandler creates a WebSocket handler with a concurrency limit.
func NewHandler(pipe *pipeline.Pipeline, maxConcurrent int) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Handler{
		pipe: pipe,
		sem:  make(chan struct{}, maxConcurrent),
	}
}

// sessionMetadata is the first text frame sent by the client.
type sessionMetadata struct {
	SessionID string `json:"session_id"`
}

// clientFrame is one command frame after the metadata handshake.
type clientFrame struct {
	Type       string   `json:"type"`
	TurnID     string   `json:"turn_id,omitempty"`
	ChunkIndex int      `json:"chunk_index"`
	Text       string   `json:"text,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// serverEvent is one reply frame.
type serverEvent struct {
	Type       string           `json:"type"`
	TurnID     string           `json:"turn_id,omitempty"`
	TurnIndex  *int             `json:"turn_index,omitempty"`
	ChunkIndex *int             `json:"chunk_index,omitempty"`
	Seq        *int             `json:"seq,omitempty"`
	Result     *pipeline.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ServeHTTP upgrades the connection and runs the session loop.
// Returns 503 when at max concurrent connection capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta, err := readMetadata(conn)
	if err != nil {
		slog.Error("read metadata", "error", err)
		return
	}

	send := newEventSender(conn)

	if _, err = h.pipe.GetTiming(ctx, meta.SessionID); err != nil {
		send(serverEvent{Type: "error", Error: "unknown session"})
		return
	}

	slog.Info("ws session started", "session_id", meta.SessionID)
	h.processFrames(ctx, conn, meta.SessionID, send)
	slog.Info("ws session ended", "session_id", meta.SessionID)
}

// processFrames reads command frames in a loop until the connection
// closes or the client ends the session.
func (h *Handler) processFrames(ctx context.Context, conn *websocket.Conn, sessionID string, send func(serverEvent)) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "error", err)
			return
		}

		var frame clientFrame
		if err = json.Unmarshal(data, &frame); err != nil {
			send(serverEvent{Type: "error", Error: "malformed frame"})
			continue
		}

		switch frame.Type {
		case "start_turn":
			turn, err := h.pipe.StartTurn(ctx, sessionID)
			if err != nil {
				send(errorEvent(frame, err))
				continue
			}
			send(serverEvent{Type: "turn_started", TurnID: turn.TurnID, TurnIndex: &turn.TurnIndex})

		case "chunk":
			seq, err := h.pipe.AppendChunk(ctx, sessionID, frame.TurnID, frame.ChunkIndex, frame.Text, frame.Confidence)
			if err != nil {
				send(errorEvent(frame, err))
				continue
			}
			idx := frame.ChunkIndex
			send(serverEvent{Type: "chunk_ack", TurnID: frame.TurnID, ChunkIndex: &idx, Seq: &seq})

		case "finalize":
			res, err := h.pipe.FinalizeTurn(ctx, sessionID, frame.TurnID)
			if err != nil {
				send(errorEvent(frame, err))
				continue
			}
			send(serverEvent{Type: "turn_result", TurnID: res.TurnID, Result: &res})

		case "end_session":
			if err := h.pipe.EndSession(ctx, sessionID); err != nil {
				send(errorEvent(frame, err))
				continue
			}
			send(serverEvent{Type: "session_ended"})
			return

		default:
			send(serverEvent{Type: "error", Error: "unknown frame type"})
		}
	}
}

func errorEvent(frame clientFrame, err error) serverEvent {
	msg := "internal error"
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		msg = err.Error()
	case errors.Is(err, pipeline.ErrNotFound):
		msg = "not found"
	default:
		slog.Error("ws frame failed", "type", frame.Type, "error", err)
	}
	return serverEvent{Type: "error", TurnID: frame.TurnID, Error: msg}
}

func newEventSender(conn *websocket.Conn) func(serverEvent) {
	var mu sync.Mutex
	return func(ev serverEvent) {
		mu.Lock()
		defer mu.Unlock()

		jsonBytes, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err = conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Error("write event", "error", err)
		}
	}
}

func readMetadata(conn *websocket.Conn) (*sessionMetadata, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var meta sessionMetadata
	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if meta.SessionID == "" {
		return nil, errors.New("session_id required")
	}
	return &meta, nil
}
