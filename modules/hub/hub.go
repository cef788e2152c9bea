package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message types exchanged with the page.
const (
	TypeCredentialRequired  = "credential_required"
	TypeCredentialSelected  = "credential_selected"
	TypeCredentialCancelled = "credential_cancelled"
)

var (
	ErrNoClients          = errors.New("no browser is connected to select an API key")
	ErrSelectionCancelled = errors.New("API key selection was cancelled")
	ErrSelectionTimeout   = errors.New("API key selection was not completed in time")
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message - 웹소켓 메시지
type Message struct {
	Type    string `json:"type"`
	APIKey  string `json:"apiKey,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// 연결된 클라이언트 정보
type Client struct {
	conn *websocket.Conn
	id   string
	send chan []byte
}

// Metrics - 허브 메트릭
type Metrics struct {
	TotalConnections int       `json:"totalConnections"`
	CurrentClients   int       `json:"currentClients"`
	StartTime        time.Time `json:"startTime"`
}

type selection struct {
	key string
	err error
}

// Hub fans attempt events out to every connected page and collects API key selections.
type Hub struct {
	clients          map[string]*Client
	mutex            sync.RWMutex
	totalConnections int
	startTime        time.Time

	promptTimeout time.Duration
	selectMutex   sync.Mutex
	selections    chan selection
}

func New(promptTimeout time.Duration) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		startTime:     time.Now(),
		promptTimeout: promptTimeout,
		selections:    make(chan selection, 1),
	}
}

// HandleWebSocket - WebSocket 핸들러
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		id:   uuid.New().String(),
		send: make(chan []byte, 256),
	}
	h.addClient(client)

	go client.writePump()
	go client.readPump(h)
}

// 클라이언트 추가
func (h *Hub) addClient(c *Client) {
	h.mutex.Lock()
	h.clients[c.id] = c
	h.totalConnections++
	count := len(h.clients)
	h.mutex.Unlock()

	log.Printf("👤 Client %s connected (Clients: %d)", c.id, count)
}

// 클라이언트 제거
func (h *Hub) removeClient(id string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if c, ok := h.clients[id]; ok {
		close(c.send)
		delete(h.clients, id)
		log.Printf("👋 Client %s disconnected (Remaining: %d)", id, len(h.clients))
	}
}

// Publish broadcasts a message to every connected client. Clients with a full buffer are dropped.
func (h *Hub) Publish(msgType string, payload any) {
	messageBytes, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for id, c := range h.clients {
		select {
		case c.send <- messageBytes:
		default:
			close(c.send)
			delete(h.clients, id)
			log.Printf("⚠️  Dropped slow client %s", id)
		}
	}
}

// SelectCredential asks the connected pages for an API key and waits for the first answer.
func (h *Hub) SelectCredential(ctx context.Context) (string, error) {
	h.selectMutex.Lock()
	defer h.selectMutex.Unlock()

	if h.ClientCount() == 0 {
		return "", ErrNoClients
	}

	// stale answer from an earlier prompt
	select {
	case <-h.selections:
	default:
	}

	log.Printf("🔑 [Hub] Requesting API key selection from %d client(s)", h.ClientCount())
	h.Publish(TypeCredentialRequired, nil)

	timer := time.NewTimer(h.promptTimeout)
	defer timer.Stop()

	select {
	case sel := <-h.selections:
		return sel.key, sel.err
	case <-timer.C:
		return "", ErrSelectionTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *Hub) deliverSelection(sel selection) {
	select {
	case h.selections <- sel:
	default:
		// an answer is already waiting
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) Metrics() Metrics {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return Metrics{
		TotalConnections: h.totalConnections,
		CurrentClients:   len(h.clients),
		StartTime:        h.startTime,
	}
}

// 클라이언트로부터 메시지 읽기
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.removeClient(c.id)
		c.conn.Close()
	}()

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		switch message.Type {
		case TypeCredentialSelected:
			log.Printf("🔑 Client %s selected an API key", c.id)
			h.deliverSelection(selection{key: message.APIKey})
		case TypeCredentialCancelled:
			log.Printf("🔑 Client %s cancelled API key selection", c.id)
			h.deliverSelection(selection{err: ErrSelectionCancelled})
		}
	}
}

// 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
