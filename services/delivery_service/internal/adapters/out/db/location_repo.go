package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// LocationRepositoryMySQL MySQL实现
type LocationRepositoryMySQL struct {
	db *gorm.DB
}

func NewLocationRepositoryMySQL(db *gorm.DB) out.LocationRepository {
	return &LocationRepositoryMySQL{db: db}
}

// Upsert 按 user_id 覆盖
func (r *LocationRepositoryMySQL) Upsert(ctx context.Context, pin *entity.LocationPin) error {
	model := &LocationPinModel{
		UserID:    pin.UserID,
		Lat:       pin.Point.Lat,
		Lng:       pin.Point.Lng,
		UpdatedAt: pin.UpdatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"lat", "lng", "updated_at"}),
	}).Create(model).Error
}

func (r *LocationRepositoryMySQL) GetByUserID(ctx context.Context, userID string) (*entity.LocationPin, error) {
	var model LocationPinModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.toEntity(), nil
}
