package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Frame types sent over the chat socket.
const (
	FrameHistory  = "history"
	FrameFragment = "fragment"
	FrameDone     = "done"
	FrameError    = "error"
)

// Frame is one server-to-client socket message.
type Frame struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Error    string    `json:"error,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// Inbound is one client-to-server socket message.
type Inbound struct {
	Message string `json:"message"`
}

// Room is a learner's chat. SendChat is called for every inbound message and
// must deliver it on the current conversation, so a conversation replaced by
// a chapter change is picked up without reconnecting.
type Room interface {
	Chat(ctx context.Context) (*Conversation, error)
	SendChat(ctx context.Context, text string, onFragment func(string)) error
}

// ServeSocket upgrades the request and runs the chat protocol until the
// client disconnects. The current history is sent on connect; each inbound
// message is answered by fragment frames followed by a done or error frame.
func ServeSocket(w http.ResponseWriter, r *http.Request, room Room) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	conv, err := room.Chat(ctx)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	if err := wsjson.Write(ctx, conn, Frame{Type: FrameHistory, Messages: conv.History()}); err != nil {
		return
	}

	for {
		var in Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					slog.Debug("websocket read ended", "error", err)
				}
			}
			return
		}

		if err := handleInbound(ctx, conn, room, in.Message); err != nil {
			slog.Debug("websocket write failed", "error", err)
			return
		}
	}
}

func handleInbound(ctx context.Context, conn *websocket.Conn, room Room, text string) error {
	var writeErr error
	err := room.SendChat(ctx, text, func(frag string) {
		if writeErr == nil {
			writeErr = wsjson.Write(ctx, conn, Frame{Type: FrameFragment, Text: frag})
		}
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		msg := err.Error()
		var se *StreamError
		if errors.As(err, &se) {
			msg = se.Err.Error()
		}
		return wsjson.Write(ctx, conn, Frame{Type: FrameError, Error: msg})
	}
	return wsjson.Write(ctx, conn, Frame{Type: FrameDone})
}
