package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/models"
)

// MessageType WebSocket 消息类型
const (
	MsgTypeInit          = "init"           // 初始化数据（区域列表）
	MsgTypeAlarm         = "alarm"          // 停车到期提醒
	MsgTypeSessionUpdate = "session_update" // 会话开始或结束
	MsgTypeError         = "error"          // 错误消息
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

// ErrNoClients 没有在线客户端，提醒保留到下次分发
var ErrNoClients = errors.New("no websocket clients connected")

// Message WebSocket 消息结构
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// InitData 初始化数据
type InitData struct {
	Zones interface{} `json:"zones"`
}

// AlarmData 提醒推送内容
type AlarmData struct {
	AlarmID   int64     `json:"alarm_id"`
	SessionID int64     `json:"session_id"`
	VehicleID int64     `json:"vehicle_id"`
	ZoneID    *int64    `json:"zone_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	FireAt    time.Time `json:"fire_at"`
}

// Client WebSocket 客户端
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub WebSocket 连接管理中心
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	// 初始数据提供者回调
	getInitData func() *InitData
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetInitDataProvider 设置初始数据提供者
func (h *Hub) SetInitDataProvider(provider func() *InitData) {
	h.getInitData = provider
}

// Run 运行 Hub，ctx 取消时断开所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client connected", zap.Int("total_clients", total))

			h.sendInitData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client disconnected", zap.Int("total_clients", total))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 慢消费者，关闭连接
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// sendInitData 发送初始数据给新连接的客户端
func (h *Hub) sendInitData(client *Client) {
	if h.getInitData == nil {
		return
	}

	initData := h.getInitData()
	if initData == nil {
		h.logger.Warn("Init data provider returned nil")
		return
	}

	data, err := json.Marshal(Message{Type: MsgTypeInit, Data: initData})
	if err != nil {
		h.logger.Error("Failed to marshal init data", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
		h.logger.Debug("Sent init data to client")
	default:
		h.logger.Warn("Failed to send init data, client buffer full")
	}
}

// BroadcastMessage 广播结构化消息给所有客户端
func (h *Hub) BroadcastMessage(msgType string, data interface{}) error {
	jsonData, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- jsonData:
		return nil
	default:
		return errors.New("broadcast queue full")
	}
}

// NotifyAlarm 推送到期提醒；没有在线客户端时返回 ErrNoClients
func (h *Hub) NotifyAlarm(alarm *models.Alarm, s *models.ParkingSession) error {
	if h.ClientCount() == 0 {
		return ErrNoClients
	}
	return h.BroadcastMessage(MsgTypeAlarm, AlarmData{
		AlarmID:   alarm.ID,
		SessionID: s.ID,
		VehicleID: s.VehicleID,
		ZoneID:    s.ZoneID,
		Kind:      string(alarm.Kind),
		Message:   alarm.Message,
		FireAt:    alarm.FireAt,
	})
}

// NotifySession 广播会话变化
func (h *Hub) NotifySession(s *models.ParkingSession) {
	if h.ClientCount() == 0 {
		return
	}
	if err := h.BroadcastMessage(MsgTypeSessionUpdate, s); err != nil {
		h.logger.Warn("Failed to broadcast session update", zap.Int64("session_id", s.ID), zap.Error(err))
	}
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Register 注册客户端
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// Unregister 注销客户端
func (c *Client) Unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// ReadPump 读取消息（保持连接活跃）
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump 发送消息
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
