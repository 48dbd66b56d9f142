package entity

import "errors"

var (
	// 握手失败原因
	ErrMissingToken = errors.New("missing-token")
	ErrInvalidToken = errors.New("invalid-token")
	ErrExpiredToken = errors.New("expired-token")

	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
)

// ClientError 需要原样返回给客户端的错误
type ClientError struct {
	Kind    error
	Message string
}

func (e *ClientError) Error() string { return e.Message }

func (e *ClientError) Unwrap() error { return e.Kind }

// Invalid 构造校验错误
func Invalid(msg string) error {
	return &ClientError{Kind: ErrValidation, Message: msg}
}

// Missing 构造未找到错误
func Missing(msg string) error {
	return &ClientError{Kind: ErrNotFound, Message: msg}
}

// ClientMessage 提取客户端可见的错误信息，非 ClientError 时返回 fallback
func ClientMessage(err error, fallback string) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return fallback
}

// AuthReason 握手失败时返回给客户端的原因
func AuthReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return ErrMissingToken.Error()
	case errors.Is(err, ErrExpiredToken):
		return ErrExpiredToken.Error()
	default:
		return ErrInvalidToken.Error()
	}
}
