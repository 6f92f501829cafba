package relay

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/agusx1211/hitlctl/session"
	"github.com/gorilla/websocket"
)

// serveWS attaches one websocket to a session: a snapshot first, then every
// session event, plus a reply per operator command.
// With a secret configured the client signs the thread id it asks for, in
// the signature header or the sig query parameter for browser clients.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	thread := r.URL.Query().Get("thread")
	if s.cfg.Secret != "" {
		sig := r.Header.Get(signatureHeader)
		if sig == "" {
			sig = r.URL.Query().Get("sig")
		}
		if !ValidateHMAC([]byte(thread), sig, s.cfg.Secret) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	sess, err := s.sessions.Open(r.Context(), thread)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}
	events, unsub := sess.Events().Subscribe()
	replies := make(chan Message, 16)
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeLoop(conn, snapshotMessage(sess), events, replies, stop)
	}()

	readLoop(conn, sess, replies, writerDone)
	close(stop)
	unsub()
	<-writerDone
}

func readLoop(conn *websocket.Conn, sess *session.Session, replies chan<- Message, writerDone <-chan struct{}) {
	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[relay] thread=%s read: %v", sess.ThreadID(), err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		reply := command(context.Background(), sess, m)
		select {
		case replies <- reply:
		case <-writerDone:
			return
		}
	}
}

func writeLoop(conn *websocket.Conn, first Message, events <-chan session.Event, replies <-chan Message, stop <-chan struct{}) {
	defer conn.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	write := func(m Message) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m) == nil
	}
	if !write(first) {
		return
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"), time.Now().Add(writeWait))
				return
			}
			if !write(eventMessage(ev)) {
				return
			}
		case m := <-replies:
			if !write(m) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// command applies one operator message and returns the reply for it.
func command(ctx context.Context, sess *session.Session, m Message) Message {
	var err error
	switch m.Type {
	case TypePing:
		return Message{Type: TypePong, Thread: sess.ThreadID()}
	case TypeSend:
		err = sess.Send(ctx, m.Text)
	case TypeApprove, TypeReject, TypeEdit:
		err = applyDecision(ctx, sess, Decision{Type: m.Type, Message: m.Reason, ToolCallID: m.ToolCallID, Args: m.Args})
	default:
		err = fmt.Errorf("%w: %q", errUnknownCommand, m.Type)
	}
	if err != nil {
		return Message{Type: TypeError, Thread: sess.ThreadID(), Command: m.Type, Message: err.Error()}
	}
	return Message{Type: TypeAck, Thread: sess.ThreadID(), Command: m.Type}
}
