package db

import (
	"context"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gorm.io/gorm"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// GeoMatcherMySQL 先用经纬度索引做矩形预筛选，再按球面距离精确过滤
type GeoMatcherMySQL struct {
	db *gorm.DB
}

func NewGeoMatcherMySQL(db *gorm.DB) out.GeoMatcher {
	return &GeoMatcherMySQL{db: db}
}

func (m *GeoMatcherMySQL) FindReportsNear(ctx context.Context, center entity.GeoPoint, radiusMeters float64, limit int) ([]*entity.HazardReport, error) {
	c := orb.Point{center.Lng, center.Lat}
	var models []*HazardReportModel
	if err := withinBound(m.db.WithContext(ctx), c, radiusMeters).Find(&models).Error; err != nil {
		return nil, err
	}

	nearest := nearestFirst(c, radiusMeters, limit, models)
	reports := make([]*entity.HazardReport, 0, len(nearest))
	for _, model := range nearest {
		reports = append(reports, model.toEntity())
	}
	return reports, nil
}

func (m *GeoMatcherMySQL) FindPinsNear(ctx context.Context, center entity.GeoPoint, radiusMeters float64, limit int) ([]*entity.LocationPin, error) {
	c := orb.Point{center.Lng, center.Lat}
	var models []*LocationPinModel
	if err := withinBound(m.db.WithContext(ctx), c, radiusMeters).Find(&models).Error; err != nil {
		return nil, err
	}

	nearest := nearestFirst(c, radiusMeters, limit, models)
	pins := make([]*entity.LocationPin, 0, len(nearest))
	for _, model := range nearest {
		pins = append(pins, model.toEntity())
	}
	return pins, nil
}

// withinBound 半径换算成经纬度矩形，跨越 180 度经线时只按纬度过滤
func withinBound(tx *gorm.DB, center orb.Point, radiusMeters float64) *gorm.DB {
	b := geo.NewBoundAroundPoint(center, radiusMeters)
	tx = tx.Where("lat BETWEEN ? AND ?", b.Min.Lat(), b.Max.Lat())
	// 跨越时经度可能回绕，最小值大于最大值
	minLon, maxLon := b.Min.Lon(), b.Max.Lon()
	if minLon <= maxLon && minLon >= -180 && maxLon <= 180 {
		tx = tx.Where("lng BETWEEN ? AND ?", minLon, maxLon)
	}
	return tx
}

type located interface {
	point() orb.Point
}

type ranked[T located] struct {
	item     T
	distance float64
}

// nearestFirst 过滤掉半径外的点，按距离升序，limit <= 0 表示不限
func nearestFirst[T located](center orb.Point, radiusMeters float64, limit int, items []T) []T {
	candidates := make([]ranked[T], 0, len(items))
	for _, it := range items {
		d := geo.DistanceHaversine(center, it.point())
		if d <= radiusMeters {
			candidates = append(candidates, ranked[T]{item: it, distance: d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]T, len(candidates))
	for i, c := range candidates {
		result[i] = c.item
	}
	return result
}
