package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/metrics"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBufferSize = 256
	requestTimeout = 10 * time.Second

	messagesPerSecond = 20
	messageBurst      = 40
)

// ChannelKind tells what a realtime connection is for
type ChannelKind string

const (
	KindProctoring  ChannelKind = "proctoring"
	KindExamMonitor ChannelKind = "exam_monitor"
	KindAttempt     ChannelKind = "attempt_monitor"
)

// Message is the envelope of every frame on a realtime channel
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub keeps the open realtime connections grouped by topic and fans broker events out to them.
// Students only receive direct replies; observers also receive everything published to their topic.
type Hub struct {
	monitoring services.MonitoringService
	proctoring services.ProctoringService
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(monitoring services.MonitoringService, proctoring services.ProctoringService, logger *slog.Logger) *Hub {
	return &Hub{
		monitoring: monitoring,
		proctoring: proctoring,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
		rooms:  make(map[string]map[*Client]struct{}),
	}
}

// Run feeds broker events to local observers until ctx is done.
func (h *Hub) Run(ctx context.Context, broker events.Broker) error {
	h.logger.Info("Monitor hub subscribed to broker")
	return broker.Subscribe(ctx, h.Dispatch)
}

// Dispatch delivers one event to every observer of topic. Slow observers drop it.
func (h *Hub) Dispatch(topic string, event *events.MonitorEvent) {
	payload, err := json.Marshal(Message{Type: string(event.Type), Data: event.Data})
	if err != nil {
		h.logger.Error("Failed to encode monitor event", "event_id", event.ID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[topic] {
		client.enqueue(payload)
	}
}

// ServeProctoring opens the sensor channel of an attempt for its owner.
func (h *Hub) ServeProctoring(w http.ResponseWriter, r *http.Request, caller services.Caller, attemptID uint) error {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	examID, err := h.monitoring.AttemptExamID(ctx, caller, attemptID)
	if err != nil {
		return err
	}
	h.serve(w, r, &Client{caller: caller, kind: KindProctoring, examID: examID, attemptID: attemptID})
	return nil
}

// ServeExamMonitor opens an admin observer on every attempt of an exam.
func (h *Hub) ServeExamMonitor(w http.ResponseWriter, r *http.Request, caller services.Caller, examID uint) error {
	if !caller.IsAdmin {
		return services.NewPermissionError(caller.UserID, examID, "exam", "monitor", "admin role required")
	}
	h.serve(w, r, &Client{caller: caller, kind: KindExamMonitor, examID: examID, topic: events.ExamTopic(examID)})
	return nil
}

// ServeAttemptMonitor opens an admin observer on a single attempt.
func (h *Hub) ServeAttemptMonitor(w http.ResponseWriter, r *http.Request, caller services.Caller, attemptID uint) error {
	if !caller.IsAdmin {
		return services.NewPermissionError(caller.UserID, attemptID, "attempt", "monitor", "admin role required")
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	examID, err := h.monitoring.AttemptExamID(ctx, caller, attemptID)
	if err != nil {
		return err
	}
	h.serve(w, r, &Client{caller: caller, kind: KindAttempt, examID: examID, attemptID: attemptID, topic: events.AttemptTopic(attemptID)})
	return nil
}

// Stop closes every open connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	for topic, clients := range h.rooms {
		for client := range clients {
			client.close()
			metrics.MonitorConnections.WithLabelValues(string(client.kind)).Dec()
			closed++
		}
		delete(h.rooms, topic)
	}
	h.logger.Info("Monitor hub stopped", "closed_connections", closed)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, client *Client) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "kind", client.kind, "user_id", client.caller.UserID, "error", err)
		return
	}

	client.hub = h
	client.conn = conn
	client.send = make(chan []byte, sendBufferSize)
	client.limiter = rate.NewLimiter(rate.Limit(messagesPerSecond), messageBurst)

	h.register(client)
	h.logger.Info("Realtime connection opened",
		"kind", client.kind,
		"user_id", client.caller.UserID,
		"exam_id", client.examID,
		"attempt_id", client.attemptID)

	client.greet()

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[client.topic]
	if !ok {
		clients = make(map[*Client]struct{})
		h.rooms[client.topic] = clients
	}
	clients[client] = struct{}{}
	metrics.MonitorConnections.WithLabelValues(string(client.kind)).Inc()
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[client.topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.rooms, client.topic)
	}
	client.close()
	metrics.MonitorConnections.WithLabelValues(string(client.kind)).Dec()
}

// observers counts open connections on topic.
func (h *Hub) observers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}
