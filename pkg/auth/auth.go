// Package auth 连接鉴权
//
// 同一个 Auth 既校验客户端的握手请求（Validate），
// 也给 postback 等外发请求附加凭证（Apply）。
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/tokmz/scatter/pkg/config"
)

// 鉴权类型
const (
	TypeNoAuth = "noauth"
	TypeHeader = "header"
	TypeBearer = "bearer"
	TypeCookie = "cookie"
	TypeJWT    = "jwt"
)

// Auth 鉴权方式
type Auth interface {
	Type() string
	// Validate 校验入站请求，实现 chat.Authenticator
	Validate(r *http.Request) bool
	// Apply 给外发请求附加凭证
	Apply(r *http.Request)
}

// New 根据配置创建鉴权，类型为空时不鉴权
func New(s config.AuthSettings) (Auth, error) {
	switch s.Type {
	case "", TypeNoAuth:
		return NoAuth{}, nil
	case TypeHeader:
		if s.Name == "" {
			return nil, ErrInvalidSettings.WithMessage("header auth requires name")
		}
		return NewHeader(s.Name, s.Value), nil
	case TypeBearer:
		return NewBearer(s.Value), nil
	case TypeCookie:
		if s.Name == "" {
			return nil, ErrInvalidSettings.WithMessage("cookie auth requires name")
		}
		return NewCookie(s.Name, s.Value), nil
	case TypeJWT:
		if s.Secret == "" {
			return nil, ErrInvalidSettings.WithMessage("jwt auth requires secret")
		}
		return NewJWT(s.Secret, s.Issuer, s.MatchID), nil
	default:
		return nil, ErrUnknownType.WithMessage("unknown auth type: " + s.Type)
	}
}

// NoAuth 不鉴权
type NoAuth struct{}

func (NoAuth) Type() string                { return TypeNoAuth }
func (NoAuth) Validate(*http.Request) bool { return true }
func (NoAuth) Apply(*http.Request)         {}

// Header 请求头等值校验
type Header struct {
	name  string
	value string
}

// NewHeader 创建请求头鉴权
func NewHeader(name, value string) *Header {
	return &Header{name: name, value: value}
}

func (h *Header) Type() string { return TypeHeader }

func (h *Header) Validate(r *http.Request) bool {
	return equal(r.Header.Get(h.name), h.value)
}

func (h *Header) Apply(r *http.Request) {
	r.Header.Set(h.name, h.value)
}

// Bearer Authorization: Bearer <token>
type Bearer struct {
	Header
}

// NewBearer 创建 Bearer 鉴权
func NewBearer(token string) *Bearer {
	return &Bearer{Header{name: "Authorization", value: "Bearer " + token}}
}

func (b *Bearer) Type() string { return TypeBearer }

// Cookie cookie 等值校验
type Cookie struct {
	name  string
	value string
}

// NewCookie 创建 cookie 鉴权
func NewCookie(name, value string) *Cookie {
	return &Cookie{name: name, value: value}
}

func (c *Cookie) Type() string { return TypeCookie }

func (c *Cookie) Validate(r *http.Request) bool {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return false
	}
	return equal(cookie.Value, c.value)
}

func (c *Cookie) Apply(r *http.Request) {
	r.AddCookie(&http.Cookie{Name: c.name, Value: c.value})
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
