package chat

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
)

// client pairs a websocket connection with its write lock. Gorilla
// connections support at most one concurrent writer, so every outbound
// frame goes through writeJSON.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (cl *client) writeJSON(v interface{}) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	return cl.conn.WriteJSON(v)
}

// Hub owns the registry of live websocket connections, keyed by account
// id. All access goes through the mutex; nothing else in the process
// holds connection state.
type Hub struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]*client
	database *db.DB
}

func NewHub(database *db.DB) *Hub {
	return &Hub{
		conns:    make(map[uuid.UUID]*client),
		database: database,
	}
}

// Register binds a connection to an account, replacing any previous one.
func (h *Hub) Register(accountId uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	old, exists := h.conns[accountId]
	h.conns[accountId] = &client{conn: conn}
	h.mu.Unlock()

	if exists && old.conn != conn {
		old.conn.Close()
	}
	log.Printf("Hub: account %s connected", accountId)
}

func (h *Hub) Unregister(accountId uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	if cl, ok := h.conns[accountId]; ok && cl.conn == conn {
		delete(h.conns, accountId)
	}
	h.mu.Unlock()
	log.Printf("Hub: account %s disconnected", accountId)
}

func (h *Hub) Online(accountId uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, online := h.conns[accountId]
	return online
}

// WireMessage is the JSON frame exchanged over the socket.
type WireMessage struct {
	Id        string    `json:"id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Send persists the message, then delivers it to the recipient's live
// connection if there is one. Offline recipients read it from history.
func (h *Hub) Send(from, to uuid.UUID, body string) (*domain.Message, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: message body is required", domain.ErrValidation)
	}

	msg := &domain.Message{
		Id:        uuid.New(),
		FromId:    from,
		ToId:      to,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := h.database.CreateMessage(msg); err != nil {
		return nil, err
	}

	h.mu.RLock()
	cl, online := h.conns[to]
	h.mu.RUnlock()

	if online {
		frame := WireMessage{
			Id:        msg.Id.String(),
			From:      from.String(),
			To:        to.String(),
			Body:      body,
			CreatedAt: msg.CreatedAt,
		}
		if err := cl.writeJSON(frame); err != nil {
			log.Printf("Hub: delivery to %s failed: %v", to, err)
		}
	}
	return msg, nil
}

// Serve pumps inbound frames from one account's connection until it
// closes.
func (h *Hub) Serve(accountId uuid.UUID, conn *websocket.Conn) {
	h.Register(accountId, conn)
	defer func() {
		h.Unregister(accountId, conn)
		conn.Close()
	}()

	for {
		var frame WireMessage
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Hub: read from %s failed: %v", accountId, err)
			}
			return
		}

		to, err := uuid.Parse(frame.To)
		if err != nil {
			continue
		}
		if _, err := h.Send(accountId, to, frame.Body); err != nil {
			log.Printf("Hub: send from %s failed: %v", accountId, err)
		}
	}
}

// History returns the conversation between two accounts, oldest first.
func (h *Hub) History(a, b uuid.UUID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	err, msgs := h.database.ReadMessagesBetween(a, b, limit)
	if err != nil {
		return nil, err
	}
	return *msgs, nil
}
