package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/xpwu/go-log/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub 把模拟事件广播给所有 websocket 客户端
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	lock      sync.Mutex
}

// NewHub 创建 Hub，buffer 为待发送消息的缓冲数
func NewHub(buffer int) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, buffer),
	}
}

// Run 发送循环，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.lock.Unlock()
			return
		case message := <-h.broadcast:
			h.lock.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Publish 序列化并广播；缓冲已满时丢弃，不阻塞模拟
func (h *Hub) Publish(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// ServeHTTP 升级为 websocket 并加入广播列表
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, logger := log.WithCtx(r.Context())
	logger.PushPrefix("Hub")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket 升级失败", "error", err)
		return
	}
	h.lock.Lock()
	h.clients[conn] = true
	h.lock.Unlock()

	// 读循环只用于发现断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.lock.Lock()
				if h.clients[conn] {
					conn.Close()
					delete(h.clients, conn)
				}
				h.lock.Unlock()
				return
			}
		}
	}()
}
