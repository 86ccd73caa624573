package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gptme-server/internal/observability"

	"go.uber.org/zap"
)

type Options struct {
	MaxConnPerUser int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

// Manager tracks live connections per user and pushes store events to them.
type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	register       chan *Client
	unregisterCh   chan *Client
	done           chan struct{}
	maxConnPerUser int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	metrics        *observability.Collector
	logger         *zap.Logger
}

func NewManager(opts Options, metrics *observability.Collector, logger *zap.Logger) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		register:       make(chan *Client),
		unregisterCh:   make(chan *Client),
		done:           make(chan struct{}),
		maxConnPerUser: opts.MaxConnPerUser,
		maxMessageSize: opts.MaxMessageSize,
		writeWait:      opts.WriteWait,
		pongWait:       opts.PongWait,
		pingPeriod:     opts.PingPeriod,
		metrics:        metrics,
		logger:         logger,
	}
}

// Run serves registrations until ctx is done, then closes every connection.
func (m *Manager) Run(ctx context.Context) error {
	defer m.closeAll()

	for {
		select {
		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregisterCh:
			m.unregisterClient(client)

		case <-ctx.Done():
			close(m.done)
			return nil
		}
	}
}

// Register hands a new connection to the manager. It returns false when the
// manager has stopped.
func (m *Manager) Register(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.unregisterCh <- client:
	case <-m.done:
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		m.logger.Warn("Max websocket connections reached", zap.String("user_id", client.UserID))
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true
	m.setGauge()

	m.logger.Debug("Websocket client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
	)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.userIndex[client.UserID], client.ID)

		if len(m.userIndex[client.UserID]) == 0 {
			delete(m.userIndex, client.UserID)
		}

		close(client.Send)
		m.setGauge()
		m.logger.Debug("Websocket client unregistered", zap.String("client_id", client.ID))
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.userIndex = make(map[string]map[string]bool)
	m.setGauge()
}

func (m *Manager) setGauge() {
	if m.metrics != nil {
		m.metrics.WSConnections.Set(float64(len(m.clients)))
	}
}

func (m *Manager) handleMessage(client *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.logger.Debug("Ignoring malformed websocket message", zap.String("client_id", client.ID), zap.Error(err))
		return
	}

	if msg.Type != TypePing {
		return
	}

	pong, err := NewMessage(TypePong, nil)
	if err != nil {
		return
	}
	m.SendToClient(client.ID, pong)
}

// PublishToUser sends an event to every connection of userID. Clients whose
// buffers are full are dropped.
func (m *Manager) PublishToUser(userID, event string, payload interface{}) {
	message, err := NewMessage(MessageType(event), payload)
	if err != nil {
		m.logger.Error("Failed to encode websocket event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := m.BroadcastToUser(userID, message); err != nil {
		m.logger.Error("Failed to broadcast websocket event", zap.String("event", event), zap.Error(err))
	}
}

func (m *Manager) BroadcastToUser(userID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client

	m.clientsMutex.RLock()
	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		m.logger.Warn("Websocket send buffer full, closing connection", zap.String("client_id", client.ID))
		go m.unregister(client)
	}

	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn("Websocket send buffer full", zap.String("client_id", clientID))
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.userIndex[userID])
}
