package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// userIDClaim 令牌中携带用户ID的字段，没有时退回 sub
const userIDClaim = "userId"

// JWTVerifier HS256 令牌校验
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

var _ out.TokenVerifier = (*JWTVerifier)(nil)

// Verify 解析令牌，错误为 entity.ErrMissingToken / ErrInvalidToken / ErrExpiredToken
func (v *JWTVerifier) Verify(tokenStr string) (*entity.Identity, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, entity.ErrMissingToken
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, entity.ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, entity.ErrInvalidToken
	}

	userID, _ := claims[userIDClaim].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: no user id claim", entity.ErrInvalidToken)
	}
	return &entity.Identity{UserID: userID}, nil
}

// Issue 签发令牌，供测试和本地调试使用
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		userIDClaim: userID,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
