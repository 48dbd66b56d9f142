package entity

import "github.com/google/uuid"

// Identity 握手时由令牌解析出的身份
type Identity struct {
	UserID string
}

// ValidID 判断是否为合法的 UUID 标识
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// NewID 生成新的标识
func NewID() string {
	return uuid.NewString()
}
