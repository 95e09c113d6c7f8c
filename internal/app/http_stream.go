package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"synkris/api/internal/pubsub"
	"synkris/api/internal/rbac"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// SubscribeLocks opens a lock change feed for a document the caller can read.
func (s *Service) SubscribeLocks(ctx context.Context, session Session, documentID string) (*pubsub.Subscription, string, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, "", err
	}
	sub, err := s.broker.Subscribe(ctx, doc.ID)
	if err != nil {
		return nil, "", err
	}
	return sub, doc.ID, nil
}

func (s *HTTPServer) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if s.corsOrigin == "" || s.corsOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.corsOrigin
		},
	}
}

// handleLockStream pushes the full lock list on connect and again after every
// lock change, until either side goes away. Clients never receive deltas.
func (s *HTTPServer) handleLockStream(w http.ResponseWriter, r *http.Request, session Session, documentID string) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, docID, err := s.service.SubscribeLocks(ctx, session, documentID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	defer sub.Close()

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("lock stream upgrade for %s: %v", docID, err)
		return
	}
	defer conn.Close()

	// The read side only exists to notice the client leaving and to keep
	// pong deadlines moving.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := func() bool {
		locks, err := s.service.locks.List(ctx, docID)
		if err != nil {
			log.Printf("lock stream list for %s: %v", docID, err)
			return ctx.Err() == nil
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		err = conn.WriteJSON(map[string]any{
			"type":       "locks",
			"documentId": docID,
			"locks":      lockListPayload(locks),
		})
		return err == nil
	}
	if !push() {
		return
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if event.Kind != pubsub.KindLocks {
				continue
			}
			if !push() {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
