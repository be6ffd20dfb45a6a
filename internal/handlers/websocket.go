package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	orch   *contest.Orchestrator
	ledger *contest.Ledger
	hub    *WebSocketHub
}

// WebSocketHub owns the connected clients. Its Run loop is the only place
// the client set is touched.
type WebSocketHub struct {
	orch       *contest.Orchestrator
	ledger     *contest.Ledger
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn

	mu     sync.Mutex
	send   chan Message
	closed bool
}

// trySend queues msg without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) trySend(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type Message struct {
	Type   string      `json:"type"`
	UserID int64       `json:"user_id,omitempty"`
	Data   interface{} `json:"data"`
}

func NewWebSocketHub(orch *contest.Orchestrator, ledger *contest.Ledger) *WebSocketHub {
	return &WebSocketHub{
		orch:       orch,
		ledger:     ledger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func NewWebSocketHandler(orch *contest.Orchestrator, ledger *contest.Ledger, hub *WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		orch:   orch,
		ledger: ledger,
		hub:    hub,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetInt64("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade to websocket")
		return
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan Message, clientSendSize),
	}

	// initial state before the hub starts streaming
	client.trySend(Message{Type: "CONTEST_UPDATE", Data: h.orch.Snapshot()})
	client.trySend(h.balanceMessage(userID))

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	case <-c.Request.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	h.readPump(client)
}

func (h *WebSocketHandler) readPump(client *Client) {
	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
		client.Conn.Close()
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Int64("user_id", client.UserID).Msg("websocket read error")
			}
			return
		}
		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	var reply Message
	switch msg.Type {
	case "PING":
		reply = Message{Type: "PONG", Data: gin.H{"timestamp": time.Now().Unix()}}
	case "GET_CONTEST":
		reply = Message{Type: "CONTEST_UPDATE", Data: h.orch.Snapshot()}
	case "GET_BALANCE":
		reply = h.balanceMessage(client.UserID)
	default:
		return
	}

	client.trySend(reply)
}

func (h *WebSocketHandler) balanceMessage(userID int64) Message {
	wallet := h.ledger.Wallet(models.UserParticipantID(userID))
	return Message{
		Type:   "BALANCE_UPDATE",
		UserID: userID,
		Data:   wallet.Response(),
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Run pushes contest events to connected clients until ctx is done.
func (hub *WebSocketHub) Run(ctx context.Context, events <-chan contest.Event) {
	defer func() {
		close(hub.done)
		for client := range hub.clients {
			client.close()
			delete(hub.clients, client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-hub.register:
			hub.clients[client] = true
			log.Debug().Int64("user_id", client.UserID).Int("clients", len(hub.clients)).Msg("websocket client registered")

		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				client.close()
				log.Debug().Int64("user_id", client.UserID).Msg("websocket client unregistered")
			}

		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, msg := range hub.messagesFor(ev) {
				hub.broadcastMessage(msg)
			}
		}
	}
}

// messagesFor turns one event into the messages clients see: the raw
// event, a fresh contest view for lifecycle changes, and balance updates
// for the users whose wallets moved.
func (hub *WebSocketHub) messagesFor(ev contest.Event) []Message {
	msgs := []Message{{Type: "CONTEST_EVENT", Data: ev}}

	if ev.Type != contest.EventWalletUpdated {
		msgs = append(msgs, Message{Type: "CONTEST_UPDATE", Data: hub.orch.Snapshot()})
	}

	for _, change := range ev.Wallets {
		userID, ok := models.TelegramIDFromParticipant(change.UserID)
		if !ok {
			continue
		}
		wallet := hub.ledger.Wallet(change.UserID)
		msgs = append(msgs, Message{
			Type:   "BALANCE_UPDATE",
			UserID: userID,
			Data:   wallet.Response(),
		})
	}
	return msgs
}

// broadcastMessage delivers to one user when UserID is set, otherwise to
// everyone. A client that cannot keep up is disconnected.
func (hub *WebSocketHub) broadcastMessage(message Message) {
	for client := range hub.clients {
		if message.UserID != 0 && client.UserID != message.UserID {
			continue
		}
		if !client.trySend(message) {
			client.close()
			delete(hub.clients, client)
			log.Warn().Int64("user_id", client.UserID).Msg("websocket client too slow, disconnected")
		}
	}
}
