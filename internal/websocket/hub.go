package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"futuresbot/internal/bot"
	"futuresbot/internal/models"
	"futuresbot/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Буферы для сериализации broadcast сообщений
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

const broadcastBufferSize = 256

// Hub управляет активными WebSocket соединениями и рассылает им
// снимки позиций, состояние риска и уведомления.
//
// Новому клиенту сразу отправляются последние снимки позиций и риска,
// чтобы не ждать следующей итерации монитора.
//
// Использование:
//
//	hub := NewHub()
//	go hub.Run()
//	defer hub.Stop()
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	// последние снимки для новых клиентов
	lastMu        sync.RWMutex
	lastPositions []byte
	lastRisk      []byte

	dropped atomic.Int64
	origins *OriginChecker
	log     *utils.Logger
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		origins:    NewOriginChecker(""),
		log:        utils.L().WithComponent("websocket"),
	}
}

// SetAllowedOrigins задает список разрешенных Origin (через запятую, "*" - все)
func (h *Hub) SetAllowedOrigins(origins string) {
	h.origins = NewOriginChecker(origins)
}

// Run - главный цикл Hub, работает до Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.prime(client)
			h.log.Info("client connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", utils.Int("clients", total))

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut отправляет сообщение всем клиентам без блокировки;
// клиенты с переполненным буфером отключаются
func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Warn("slow clients removed", utils.Int("removed", len(slow)), utils.Int("clients", total))
}

func (h *Hub) prime(client *Client) {
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()
	for _, msg := range [][]byte{h.lastRisk, h.lastPositions} {
		if msg == nil {
			continue
		}
		select {
		case client.send <- msg:
		default:
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Stop останавливает Run и закрывает соединения клиентов
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки.
// Не блокирует: при полной очереди сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	data, err := encode(message)
	if err != nil {
		h.log.Error("broadcast marshal failed", utils.Err(err))
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw ставит в очередь уже сериализованное сообщение
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

func encode(message interface{}) ([]byte, error) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		return nil, err
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")

	// буфер вернется в пул
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// BroadcastPositions отправляет снимок позиций
func (h *Hub) BroadcastPositions(positions []bot.PositionSnapshot) {
	data, err := encode(NewPositionsMessage(positions))
	if err != nil {
		h.log.Error("positions marshal failed", utils.Err(err))
		return
	}
	h.lastMu.Lock()
	h.lastPositions = data
	h.lastMu.Unlock()
	h.BroadcastRaw(data)
}

// BroadcastRiskState отправляет состояние риска
func (h *Hub) BroadcastRiskState(state models.RiskState) {
	data, err := encode(NewRiskStateMessage(state))
	if err != nil {
		h.log.Error("risk state marshal failed", utils.Err(err))
		return
	}
	h.lastMu.Lock()
	h.lastRisk = data
	h.lastMu.Unlock()
	h.BroadcastRaw(data)
}

// BroadcastNotification отправляет уведомление
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	if notif == nil {
		return
	}
	h.Broadcast(NewNotificationMessage(notif))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает число сообщений, отброшенных при полной очереди
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
