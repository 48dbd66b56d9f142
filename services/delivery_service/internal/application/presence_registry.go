package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/event"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/in"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

const (
	onlineUserKeyPrefix    = "online_users:"
	onlineReverseKeyPrefix = "online_users_reverse:"
	userStatusKeyPrefix    = "user_status:"
	pushTokenKeyPrefix     = "fcm_tokens:"

	// 在线状态过期时间
	userStatusTTL = 24 * time.Hour
	// 守卫冲突时的重试次数
	maxRemoveAttempts = 3
)

func onlineUserKey(userID string) string { return onlineUserKeyPrefix + userID }

func onlineReverseKey(connID string) string { return onlineReverseKeyPrefix + connID }

func userStatusKey(userID string) string { return userStatusKeyPrefix + userID }

func pushTokenKey(userID string) string { return pushTokenKeyPrefix + userID }

var (
	_ in.PresenceRegistry = (*PresenceRegistryImpl)(nil)
	_ in.PresenceQuery    = (*PresenceRegistryImpl)(nil)
)

// PresenceRegistryImpl 基于共享 KV 的在线状态登记
type PresenceRegistryImpl struct {
	kv out.KVStore
}

func NewPresenceRegistry(kv out.KVStore) *PresenceRegistryImpl {
	return &PresenceRegistryImpl{kv: kv}
}

// Register 用户上线，同一事务内写入正向、反向映射和状态
// 重复注册时旧连接的反向映射保留，直到该连接断开
func (r *PresenceRegistryImpl) Register(ctx context.Context, userID, connID string) error {
	err := r.kv.MultiSet(ctx, []out.KVWrite{
		{Key: onlineUserKey(userID), Value: connID},
		{Key: onlineReverseKey(connID), Value: userID},
		{Key: userStatusKey(userID), Value: string(entity.PresenceStatusOnline), TTL: userStatusTTL},
	})
	if err != nil {
		return fmt.Errorf("register presence failed: %w", err)
	}
	return nil
}

// Remove 连接断开
func (r *PresenceRegistryImpl) Remove(ctx context.Context, connID string) (string, bool, error) {
	var userID string
	for attempt := 0; attempt < maxRemoveAttempts; attempt++ {
		uid, found, err := r.kv.Get(ctx, onlineReverseKey(connID))
		if err != nil {
			return "", false, fmt.Errorf("get reverse mapping failed: %w", err)
		}
		if !found {
			return "", false, nil
		}
		userID = uid

		current, found, err := r.kv.Get(ctx, onlineUserKey(userID))
		if err != nil {
			return userID, false, fmt.Errorf("get forward mapping failed: %w", err)
		}
		if !found || current != connID {
			// 用户已由新连接接管，只清理本连接的反向映射
			if err := r.kv.Delete(ctx, onlineReverseKey(connID)); err != nil {
				return userID, false, fmt.Errorf("delete reverse mapping failed: %w", err)
			}
			return userID, false, nil
		}

		err = r.kv.MultiSet(ctx, []out.KVWrite{
			{Key: onlineReverseKey(connID), Delete: true},
			{Key: onlineUserKey(userID), Delete: true},
			{Key: userStatusKey(userID), Value: string(entity.PresenceStatusOffline), TTL: userStatusTTL},
		}, out.KVGuard{Key: onlineUserKey(userID), Value: connID})
		if errors.Is(err, out.ErrKVConflict) {
			continue
		}
		if err != nil {
			return userID, false, fmt.Errorf("remove presence failed: %w", err)
		}
		return userID, true, nil
	}
	return userID, false, fmt.Errorf("remove presence for %s: %w", connID, out.ErrKVConflict)
}

// Lookup 用户当前连接
func (r *PresenceRegistryImpl) Lookup(ctx context.Context, userID string) (string, error) {
	connID, _, err := r.kv.Get(ctx, onlineUserKey(userID))
	if err != nil {
		return "", fmt.Errorf("lookup presence failed: %w", err)
	}
	return connID, nil
}

// Status 没有记录时视为离线
func (r *PresenceRegistryImpl) Status(ctx context.Context, userID string) (entity.PresenceStatus, error) {
	status, found, err := r.kv.Get(ctx, userStatusKey(userID))
	if err != nil {
		return entity.PresenceStatusOffline, fmt.Errorf("get status failed: %w", err)
	}
	if !found || status != string(entity.PresenceStatusOnline) {
		return entity.PresenceStatusOffline, nil
	}
	return entity.PresenceStatusOnline, nil
}

// SetPushToken 每个用户只保留最新的令牌
func (r *PresenceRegistryImpl) SetPushToken(ctx context.Context, userID, token string) error {
	if err := r.kv.Set(ctx, pushTokenKey(userID), token, 0); err != nil {
		return fmt.Errorf("set push token failed: %w", err)
	}
	return nil
}

func (r *PresenceRegistryImpl) GetPushToken(ctx context.Context, userID string) (string, error) {
	token, _, err := r.kv.Get(ctx, pushTokenKey(userID))
	if err != nil {
		return "", fmt.Errorf("get push token failed: %w", err)
	}
	return token, nil
}

// GetPresence 在线状态查询
func (r *PresenceRegistryImpl) GetPresence(ctx context.Context, userID string) (*entity.PresenceView, error) {
	if !entity.ValidID(userID) {
		return nil, entity.Invalid(event.MsgInvalidUserID)
	}
	status, err := r.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	connID, err := r.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &entity.PresenceView{
		UserID: userID,
		Online: connID != "" && status == entity.PresenceStatusOnline,
		Status: status,
	}, nil
}
