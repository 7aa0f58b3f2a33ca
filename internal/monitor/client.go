package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/metrics"
	"github.com/SAP-F-2025/exam-proctoring-service/internal/services"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client is one realtime connection. readPump and writePump own the connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	caller    services.Caller
	kind      ChannelKind
	topic     string
	examID    uint
	attemptID uint

	mu     sync.Mutex
	closed bool
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type targetRequest struct {
	ExamID    uint `json:"exam_id"`
	AttemptID uint `json:"attempt_id"`
}

var errUnknownMessage = errors.New("unknown message type")

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		c.hub.logger.Info("Realtime connection closed", "kind", c.kind, "user_id", c.caller.UserID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket unexpected close", "user_id", c.caller.UserID, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.reply("error", map[string]string{"message": "rate limit exceeded"})
			continue
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply("error", map[string]string{"message": "invalid message"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err = c.handle(ctx, msg)
		cancel()
		if err != nil {
			c.hub.logger.Warn("Realtime message failed",
				"kind", c.kind,
				"type", msg.Type,
				"user_id", c.caller.UserID,
				"error", err)
			c.reply("error", map[string]string{"message": err.Error(), "request": msg.Type})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// greet sends observers their first snapshot.
func (c *Client) greet() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch c.kind {
	case KindExamMonitor:
		err = c.sendLiveAttempts(ctx, c.examID)
	case KindAttempt:
		err = c.sendAttemptDetails(ctx, c.attemptID)
	}
	if err != nil {
		c.hub.logger.Warn("Failed to send initial snapshot", "kind", c.kind, "error", err)
		c.reply("error", map[string]string{"message": err.Error()})
	}
}

func (c *Client) handle(ctx context.Context, msg inbound) error {
	switch msg.Type {
	case "heartbeat":
		c.reply("heartbeat_ack", map[string]interface{}{"timestamp": time.Now().UTC()})
		return nil
	case "ping":
		c.reply("pong", map[string]interface{}{"timestamp": time.Now().UTC()})
		return nil
	}

	if c.kind == KindProctoring {
		return c.handleSensor(ctx, msg)
	}
	return c.handleObserver(ctx, msg)
}

func (c *Client) handleSensor(ctx context.Context, msg inbound) error {
	proctoring := c.hub.proctoring
	switch msg.Type {
	case "face_detection":
		var req services.FaceSampleRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		result, err := proctoring.RecordFaceSample(ctx, c.caller, c.attemptID, &req)
		if err != nil {
			return err
		}
		c.reply("face_detection_result", result)
	case "audio_level":
		var req services.AudioSampleRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		if _, err := proctoring.RecordAudioSample(ctx, c.caller, c.attemptID, &req); err != nil {
			return err
		}
	case "violation":
		var req services.ReportViolationRequest
		if err := decode(msg.Data, &req); err != nil {
			return err
		}
		req.AttemptID = c.attemptID
		if _, err := proctoring.ReportViolation(ctx, c.caller, &req); err != nil {
			return err
		}
	default:
		return errUnknownMessage
	}
	return nil
}

func (c *Client) handleObserver(ctx context.Context, msg inbound) error {
	var target targetRequest
	if err := decode(msg.Data, &target); err != nil {
		return err
	}
	examID, attemptID := c.examID, c.attemptID
	if target.ExamID != 0 && c.kind == KindExamMonitor {
		examID = target.ExamID
	}
	if target.AttemptID != 0 {
		attemptID = target.AttemptID
	}

	switch msg.Type {
	case "get_live_attempts":
		return c.sendLiveAttempts(ctx, examID)
	case "get_attempt_details":
		return c.sendAttemptDetails(ctx, attemptID)
	case "get_activities":
		activities, err := c.hub.monitoring.Activities(ctx, c.caller, attemptID)
		if err != nil {
			return err
		}
		c.reply("activities", map[string]interface{}{"attempt_id": attemptID, "activities": activities})
		return nil
	}
	return errUnknownMessage
}

func (c *Client) sendLiveAttempts(ctx context.Context, examID uint) error {
	rows, err := c.hub.monitoring.LiveAttempts(ctx, c.caller, examID)
	if err != nil {
		return err
	}
	c.reply("live_attempts", map[string]interface{}{"exam_id": examID, "attempts": rows})
	return nil
}

func (c *Client) sendAttemptDetails(ctx context.Context, attemptID uint) error {
	if attemptID == 0 {
		return errors.New("attempt_id is required")
	}
	details, err := c.hub.monitoring.AttemptDetails(ctx, c.caller, attemptID)
	if err != nil {
		return err
	}
	c.reply("attempt_details", details)
	return nil
}

func (c *Client) reply(messageType string, data interface{}) {
	payload, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		c.hub.logger.Error("Failed to encode realtime reply", "type", messageType, "error", err)
		return
	}
	c.enqueue(payload)
}

// enqueue never blocks: a full buffer drops the message.
func (c *Client) enqueue(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		metrics.MessagesDropped.Inc()
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

func decode(data json.RawMessage, dest interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.New("invalid message data")
	}
	return nil
}
