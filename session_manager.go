package main

import (
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

type mcpSession struct {
	server   *mcp.Server
	lastSeen time.Time
}

// SessionManager 为每个 MCP 客户端维护独立的 Server 实例，长时间不活跃的会话会被回收
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*mcpSession
	newFn    func() *mcp.Server
	now      func() time.Time
}

// NewSessionManager 创建会话管理器
func NewSessionManager(newFn func() *mcp.Server) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*mcpSession),
		newFn:    newFn,
		now:      time.Now,
	}
}

// GetOrCreateSession 获取或创建会话
func (sm *SessionManager) GetOrCreateSession(sessionID string) *mcp.Server {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, ok := sm.sessions[sessionID]; ok {
		s.lastSeen = sm.now()
		return s.server
	}

	s := &mcpSession{server: sm.newFn(), lastSeen: sm.now()}
	sm.sessions[sessionID] = s
	return s.server
}

// RemoveSession 删除会话
func (sm *SessionManager) RemoveSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, sessionID)
}

// Len 当前会话数
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Sweep 回收超过 idle 未使用的会话，返回回收数量
func (sm *SessionManager) Sweep(idle time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	cutoff := sm.now().Add(-idle)
	n := 0
	for id, s := range sm.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(sm.sessions, id)
			n++
		}
	}
	if n > 0 {
		logrus.Debugf("回收 %d 个空闲 MCP 会话", n)
	}
	return n
}
