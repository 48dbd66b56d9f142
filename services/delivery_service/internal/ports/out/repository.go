package out

import (
	"context"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
)

// LocationRepository 用户位置仓储
type LocationRepository interface {
	// Upsert 每个用户一条记录
	Upsert(ctx context.Context, pin *entity.LocationPin) error
	// GetByUserID 不存在时返回 nil, nil
	GetByUserID(ctx context.Context, userID string) (*entity.LocationPin, error)
}

// ReportRepository 路况上报仓储
type ReportRepository interface {
	// GetByID 不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.HazardReport, error)
	// DeleteInaccurate 删除 inaccuracies 大于 threshold 的上报
	DeleteInaccurate(ctx context.Context, threshold int) (int64, error)
}

// MessageRepository 私信仓储
type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
}

// NotificationRepository 通知仓储
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
}

// GeoMatcher 地理范围查询，结果按距离由近到远，limit <= 0 表示不限
type GeoMatcher interface {
	FindReportsNear(ctx context.Context, center entity.GeoPoint, radiusMeters float64, limit int) ([]*entity.HazardReport, error)
	FindPinsNear(ctx context.Context, center entity.GeoPoint, radiusMeters float64, limit int) ([]*entity.LocationPin, error)
}
