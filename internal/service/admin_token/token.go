// Package admin_token 为控制平面（权重更新、缓存清除）签发和校验 HS256 JWT。
// file: internal/service/admin_token/token.go
package admin_token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer    = "PluginLens"
	RoleAdmin = "admin"

	// minKeyLen HS256 密钥的最短长度
	minKeyLen = 16
)

// ErrInvalidToken 表示 JWT 无效、过期或解析失败。
var ErrInvalidToken = errors.New("invalid or expired token")

// Claim 定义 JWT 的载荷结构
type Claim struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer 持有签名密钥
type Issuer struct {
	key []byte
	now func() time.Time
}

// NewIssuer key 过短时返回错误
func NewIssuer(key string) (*Issuer, error) {
	if len(key) < minKeyLen {
		return nil, fmt.Errorf("管理令牌密钥长度至少为 %d 个字符", minKeyLen)
	}
	return &Issuer{key: []byte(key), now: time.Now}, nil
}

// Issue 生成一个新的管理令牌
func (i *Issuer) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("令牌有效期必须大于 0")
	}
	now := i.now()
	claims := Claim{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("签名 JWT 失败: %w", err)
	}
	return signed, nil
}

// Verify 解析并验证 JWT 字符串，只接受本服务签发的 admin 令牌
func (i *Issuer) Verify(tokenString string) (*Claim, error) {
	claims := &Claim{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名方法: %v", token.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, jwt.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w (detail: %v)", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
