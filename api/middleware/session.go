package middleware

import (
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/word-typesetter/internal/service/session"
)

const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "typeset_session"

	sessionContextKey = "typeset.session"
)

// 会话 id 会进入存储键，只接受安全字符
var validSessionID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Session 从请求头或 cookie 取会话 id，没有或不合法时新建会话
func Session(m *session.Manager, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			id, _ = c.Cookie(SessionCookie)
		}
		if !validSessionID.MatchString(id) {
			id = ""
		}

		state := m.GetOrCreate(id)
		if state.ID != id {
			c.SetCookie(SessionCookie, state.ID, int(ttl.Seconds()), "/", "", false, true)
		}
		c.Header(SessionHeader, state.ID)
		c.Set(sessionContextKey, state)
		c.Next()
	}
}

// CurrentSession 由 Session 中间件放入的会话
func CurrentSession(c *gin.Context) *session.State {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	s, _ := v.(*session.State)
	return s
}
