package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// outgoingTTL 外发请求所签 token 的有效期
const outgoingTTL = time.Minute

// JWT HS256 token 校验
//
// token 取自 Authorization: Bearer 头，浏览器无法设置握手请求头时可用 ?token= 传递。
// matchID 为 true 时要求 sub 与 ?id= 一致。
type JWT struct {
	secret  []byte
	issuer  string
	matchID bool
	parser  *jwt.Parser
}

// NewJWT 创建 JWT 鉴权
func NewJWT(secret, issuer string, matchID bool) *JWT {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWT{
		secret:  []byte(secret),
		issuer:  issuer,
		matchID: matchID,
		parser:  jwt.NewParser(opts...),
	}
}

func (j *JWT) Type() string { return TypeJWT }

func (j *JWT) Validate(r *http.Request) bool {
	raw, err := extractToken(r)
	if err != nil {
		return false
	}
	claims, err := j.Parse(raw)
	if err != nil {
		return false
	}
	if j.matchID && claims.Subject != r.URL.Query().Get("id") {
		return false
	}
	return true
}

// Parse 校验签名、签发方与有效期
func (j *JWT) Parse(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := j.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken.WithError(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Sign 签发 token
func (j *JWT) Sign(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Apply 以服务身份（sub=0）签发短期 token
func (j *JWT) Apply(r *http.Request) {
	token, err := j.Sign("0", outgoingTTL)
	if err != nil {
		return
	}
	r.Header.Set("Authorization", "Bearer "+token)
}

func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return ExtractBearerToken(header)
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}

// ExtractBearerToken 从 Authorization 头取出 token
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidToken
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
