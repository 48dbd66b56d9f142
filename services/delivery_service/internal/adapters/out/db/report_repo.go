package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
)

// ReportRepositoryMySQL MySQL实现
type ReportRepositoryMySQL struct {
	db *gorm.DB
}

func NewReportRepositoryMySQL(db *gorm.DB) *ReportRepositoryMySQL {
	return &ReportRepositoryMySQL{db: db}
}

func (r *ReportRepositoryMySQL) GetByID(ctx context.Context, id string) (*entity.HazardReport, error) {
	var model HazardReportModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.toEntity(), nil
}

// Create 上报由 REST 服务写入，这里供测试和数据初始化使用
func (r *ReportRepositoryMySQL) Create(ctx context.Context, report *entity.HazardReport) error {
	if report.ID == "" {
		report.ID = entity.NewID()
	}
	return r.db.WithContext(ctx).Create(fromReportEntity(report)).Error
}

func (r *ReportRepositoryMySQL) DeleteInaccurate(ctx context.Context, threshold int) (int64, error) {
	result := r.db.WithContext(ctx).Where("inaccuracies > ?", threshold).Delete(&HazardReportModel{})
	return result.RowsAffected, result.Error
}
