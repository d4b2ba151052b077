package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"lanchat/config"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// JWTService 推送通道令牌的签发与校验
// 使用对称密钥 HS256，Subject 存放用户ID
type JWTService struct {
	secretKey   []byte        // 对称密钥
	issuer      string        // 签发者
	expireAfter time.Duration // 过期时间
	now         func() time.Time
}

// CustomClaims 自定义声明载荷
type CustomClaims struct {
	Username string `json:"username,omitempty"`
	jwtv5.RegisteredClaims
}

// NewJWTService 创建 JWT 服务
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secretKey:   []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		expireAfter: cfg.ExpireTime,
		now:         time.Now,
	}
}

// IssueToken 为已登录用户签发令牌
func (s *JWTService) IssueToken(userID uint, username string) (string, error) {
	if userID == 0 {
		return "", errors.New("userID is required")
	}

	now := s.now()
	claims := &CustomClaims{
		Username: username,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(s.expireAfter)),
		},
	}

	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return signed, nil
}

// ValidateToken 校验并解析令牌
func (s *JWTService) ValidateToken(tokenString string) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token is empty")
	}

	claims := &CustomClaims{}
	parsedToken, err := jwtv5.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwtv5.Token) (interface{}, error) {
			if token.Method != jwtv5.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secretKey, nil
		},
		jwtv5.WithIssuer(s.issuer),
		jwtv5.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token failed: %w", err)
	}
	if !parsedToken.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// UserID 从声明中取出用户ID
func (c *CustomClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return uint(id), nil
}
