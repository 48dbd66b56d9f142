package db

import (
	"time"

	"github.com/paulmach/orb"
	"gorm.io/gorm"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
)

// LocationPinModel 用户最后位置，每个用户一行
type LocationPinModel struct {
	UserID    string    `gorm:"column:user_id;type:char(36);primaryKey"`
	Lat       float64   `gorm:"column:lat;not null;index:idx_pin_lat_lng,priority:1"`
	Lng       float64   `gorm:"column:lng;not null;index:idx_pin_lat_lng,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (LocationPinModel) TableName() string {
	return "location_pins"
}

func (m *LocationPinModel) point() orb.Point { return orb.Point{m.Lng, m.Lat} }

func (m *LocationPinModel) toEntity() *entity.LocationPin {
	return &entity.LocationPin{
		UserID:    m.UserID,
		Point:     entity.GeoPoint{Lng: m.Lng, Lat: m.Lat},
		UpdatedAt: m.UpdatedAt,
	}
}

// HazardReportModel 路况上报，由外部 REST 服务写入
type HazardReportModel struct {
	ID           string    `gorm:"column:id;type:char(36);primaryKey"`
	DriverID     string    `gorm:"column:driver_id;type:char(36);not null;index"`
	ReportType   string    `gorm:"column:report_type;type:varchar(32);not null"`
	SubCategory  string    `gorm:"column:sub_category;type:varchar(64)"`
	Lat          float64   `gorm:"column:lat;not null;index:idx_report_lat_lng,priority:1"`
	Lng          float64   `gorm:"column:lng;not null;index:idx_report_lat_lng,priority:2"`
	Address      string    `gorm:"column:address;type:varchar(255)"`
	Description  string    `gorm:"column:description;type:text"`
	ImageURL     string    `gorm:"column:image_url;type:varchar(512)"`
	Validations  int       `gorm:"column:validations;default:0"`
	Inaccuracies int       `gorm:"column:inaccuracies;default:0;index"`
	ReportDate   time.Time `gorm:"column:report_date"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (HazardReportModel) TableName() string {
	return "hazard_reports"
}

func (m *HazardReportModel) point() orb.Point { return orb.Point{m.Lng, m.Lat} }

func (m *HazardReportModel) toEntity() *entity.HazardReport {
	return &entity.HazardReport{
		ID:           m.ID,
		DriverID:     m.DriverID,
		ReportType:   entity.ReportType(m.ReportType),
		SubCategory:  m.SubCategory,
		Point:        entity.GeoPoint{Lng: m.Lng, Lat: m.Lat},
		Address:      m.Address,
		Description:  m.Description,
		ImageURL:     m.ImageURL,
		Validations:  m.Validations,
		Inaccuracies: m.Inaccuracies,
		ReportDate:   m.ReportDate,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fromReportEntity(r *entity.HazardReport) *HazardReportModel {
	return &HazardReportModel{
		ID:           r.ID,
		DriverID:     r.DriverID,
		ReportType:   string(r.ReportType),
		SubCategory:  r.SubCategory,
		Lat:          r.Point.Lat,
		Lng:          r.Point.Lng,
		Address:      r.Address,
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		Validations:  r.Validations,
		Inaccuracies: r.Inaccuracies,
		ReportDate:   r.ReportDate,
	}
}

// MessageModel 私信
type MessageModel struct {
	ID         string    `gorm:"column:id;type:char(36);primaryKey"`
	SenderID   string    `gorm:"column:sender_id;type:char(36);not null;index"`
	ReceiverID string    `gorm:"column:receiver_id;type:char(36);not null;index"`
	Content    string    `gorm:"column:content;type:text;not null"`
	MediaURL   string    `gorm:"column:media_url;type:varchar(512)"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (MessageModel) TableName() string {
	return "messages"
}

// NotificationModel 通知
type NotificationModel struct {
	ID        string    `gorm:"column:id;type:char(36);primaryKey"`
	UserID    string    `gorm:"column:user_id;type:char(36);not null;index"`
	Title     string    `gorm:"column:title;type:varchar(255);not null"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// AutoMigrate 建表，开发和测试环境使用
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&LocationPinModel{},
		&HazardReportModel{},
		&MessageModel{},
		&NotificationModel{},
	)
}
