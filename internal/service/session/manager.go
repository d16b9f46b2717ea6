package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/word-typesetter/internal/service/download"
	"github.com/feichai0017/word-typesetter/internal/service/upload"
	"github.com/feichai0017/word-typesetter/pkg/logger"
)

// ErrRunInProgress 同一会话同时只能有一次处理运行
var ErrRunInProgress = errors.New("当前有文件正在处理，请等待完成")

// BoardFactory 为会话创建下载页看板
type BoardFactory func(sessionID string) *download.Board

// State 单个浏览器会话：上传页的选择和下载页的看板
type State struct {
	ID        string
	Selection *upload.Selection
	Board     *download.Board

	mu           sync.Mutex
	running      bool
	lastAccessed time.Time
}

// TryStartRun 标记运行开始；已有运行时返回 ErrRunInProgress
func (s *State) TryStartRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunInProgress
	}
	s.running = true
	return nil
}

func (s *State) FinishRun() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *State) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccessed = now
	s.mu.Unlock()
}

func (s *State) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return 0
	}
	return now.Sub(s.lastAccessed)
}

// Manager 内存中的会话表
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State
	newBoard BoardFactory
	logger   logger.Logger
	now      func() time.Time
}

func NewManager(newBoard BoardFactory, log logger.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*State),
		newBoard: newBoard,
		logger:   log.Named("session"),
		now:      time.Now,
	}
}

// Get 返回已有会话
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// GetOrCreate 返回 id 对应的会话，id 为空时生成新的。
// 服务重启后客户端带来的旧 id 会被重新登记，结果槽仍按这个 id 读取
func (m *Manager) GetOrCreate(id string) *State {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s
		}
	} else {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := &State{
		ID:           id,
		Selection:    upload.NewSelection(),
		Board:        m.newBoard(id),
		lastAccessed: m.now(),
	}
	m.sessions[id] = s
	m.logger.Debug("Session created", logger.String("session", id))
	return s
}

// Cleanup 移除闲置超过 maxAge 的会话，正在运行的会话不会被移除
func (m *Manager) Cleanup(maxAge time.Duration) int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.idleSince(now) > maxAge {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Idle sessions removed", logger.Int("count", removed))
	}
	return removed
}

// Len 当前会话数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
