package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/models"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// BalanceSource reports the balance of the partition a user is playing in.
type BalanceSource interface {
	CurrentBalance(ctx context.Context, userID string) (*models.BalanceResponse, error)
}

type Client struct {
	UserID string
	conn   *websocket.Conn
	send   chan []byte
}

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WebSocketHub keeps every open socket per user and pushes ledger and
// round events to them. It serves as the ledger notifier when no Redis
// fan-out is configured, and as the crash round broadcaster either way.
type WebSocketHub struct {
	balances BalanceSource
	log      *logrus.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewWebSocketHub(balances BalanceSource, log *logrus.Logger) *WebSocketHub {
	return &WebSocketHub{
		balances: balances,
		log:      log,
		clients:  make(map[string]map[*Client]struct{}),
	}
}

func (hub *WebSocketHub) register(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.clients[client.UserID] == nil {
		hub.clients[client.UserID] = make(map[*Client]struct{})
	}
	hub.clients[client.UserID][client] = struct{}{}
	hub.log.WithField("user_id", client.UserID).Debug("websocket client registered")
}

func (hub *WebSocketHub) unregister(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conns, ok := hub.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; ok {
		delete(conns, client)
		close(client.send)
	}
	if len(conns) == 0 {
		delete(hub.clients, client.UserID)
	}
	hub.log.WithField("user_id", client.UserID).Debug("websocket client unregistered")
}

// Connected reports how many sockets a user has open.
func (hub *WebSocketHub) Connected(userID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients[userID])
}

func (hub *WebSocketHub) sendToUser(userID string, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		hub.log.WithError(err).Error("failed to marshal websocket message")
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for client := range hub.clients[userID] {
		select {
		case client.send <- data:
		default:
			// slow reader; it will catch up from the next balance update
			hub.log.WithField("user_id", userID).Warn("websocket send buffer full, dropping message")
		}
	}
}

// TransactionChanged pushes the transaction and the resulting balance.
func (hub *WebSocketHub) TransactionChanged(ctx context.Context, tx *models.Transaction) {
	hub.deliver(ctx, &models.Event{
		Type:        models.EventTransactionUpdate,
		UserID:      tx.UserID,
		Transaction: tx,
	})
}

func (hub *WebSocketHub) deliver(ctx context.Context, ev *models.Event) {
	if hub.Connected(ev.UserID) == 0 {
		return
	}

	switch ev.Type {
	case models.EventTransactionUpdate:
		hub.sendToUser(ev.UserID, &Message{Type: string(ev.Type), Data: ev.Transaction})
		hub.sendBalance(ctx, ev.UserID)
	case models.EventBalanceUpdate:
		hub.sendToUser(ev.UserID, &Message{Type: string(ev.Type), Data: ev.Balance})
	default:
		hub.sendToUser(ev.UserID, &Message{Type: string(ev.Type), Data: ev})
	}
}

func (hub *WebSocketHub) sendBalance(ctx context.Context, userID string) {
	balance, err := hub.balances.CurrentBalance(ctx, userID)
	if err != nil {
		hub.log.WithError(err).WithField("user_id", userID).Warn("failed to get balance for websocket")
		return
	}
	hub.sendToUser(userID, &Message{Type: string(models.EventBalanceUpdate), Data: balance})
}

func (hub *WebSocketHub) BroadcastRoundTick(userID, roundID string, multiplier float64) {
	hub.sendToUser(userID, &Message{
		Type: string(models.EventRoundTick),
		Data: gin.H{
			"round_id":   roundID,
			"multiplier": multiplier,
			"timestamp":  time.Now().UnixMilli(),
		},
	})
}

func (hub *WebSocketHub) BroadcastRoundCrash(userID, roundID string, crashPoint float64) {
	hub.sendToUser(userID, &Message{
		Type: string(models.EventRoundCrash),
		Data: gin.H{
			"round_id":    roundID,
			"crash_point": crashPoint,
			"timestamp":   time.Now().UnixMilli(),
		},
	})
}

// Run forwards events published on Redis by any API instance until ctx is
// done.
func (hub *WebSocketHub) Run(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				hub.log.WithError(err).WithField("channel", msg.Channel).Warn("failed to decode event")
				continue
			}
			hub.deliver(ctx, &ev)
		}
	}
}

func (hub *WebSocketHub) HandleWebSocket(c *gin.Context) {
	userID := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.WithError(err).Warn("failed to upgrade to websocket")
		return
	}

	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
	}
	hub.register(client)

	go hub.writePump(client)
	hub.sendBalance(c.Request.Context(), userID)
	hub.readPump(client)
}

func (hub *WebSocketHub) readPump(client *Client) {
	defer func() {
		hub.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.log.WithError(err).WithField("user_id", client.UserID).Warn("websocket error")
			}
			return
		}

		switch msg.Type {
		case "PING":
			hub.sendToUser(client.UserID, &Message{
				Type: "PONG",
				Data: gin.H{"timestamp": time.Now().Unix()},
			})
		case "BALANCE":
			hub.sendBalance(context.Background(), client.UserID)
		}
	}
}

func (hub *WebSocketHub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
