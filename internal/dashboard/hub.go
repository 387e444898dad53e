package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub 维护 WebSocket 客户端，按固定间隔推送看板快照
type Hub struct {
	agg      *Aggregator
	interval time.Duration
	logger   *zap.Logger

	lock    sync.Mutex // 同时保护 clients 和对连接的写入
	clients map[*websocket.Conn]struct{}
}

func NewHub(agg *Aggregator, interval time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		agg:      agg,
		interval: interval,
		logger:   logger,
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Run 每个 interval 推送一次快照，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.push(); err != nil {
				h.logger.Error("Failed to encode dashboard snapshot", zap.Error(err))
			}
		}
	}
}

func (h *Hub) push() error {
	h.lock.Lock()
	empty := len(h.clients) == 0
	h.lock.Unlock()
	if empty {
		return nil
	}
	msg, err := json.Marshal(h.agg.Snapshot())
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Broadcast 写给所有客户端，写失败的客户端会被移除
func (h *Hub) Broadcast(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		if err := h.write(client, msg); err != nil {
			h.logger.Debug("Dropping websocket client", zap.String("Remote", client.RemoteAddr().String()), zap.Error(err))
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) write(client *websocket.Conn, msg []byte) error {
	_ = client.SetWriteDeadline(time.Now().Add(writeWait))
	return client.WriteMessage(websocket.TextMessage, msg)
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// ServeWS 升级连接并立即发送一次当前快照
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS Upgrade Error", zap.Error(err))
		return
	}
	msg, err := json.Marshal(h.agg.Snapshot())
	if err != nil {
		h.logger.Error("Failed to encode dashboard snapshot", zap.Error(err))
		conn.Close()
		return
	}

	h.lock.Lock()
	if err := h.write(conn, msg); err != nil {
		h.lock.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	h.lock.Unlock()

	// 只读取控制帧，对端关闭后移除客户端
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		_ = client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(writeWait))
		client.Close()
		delete(h.clients, client)
	}
}
