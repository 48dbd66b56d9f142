package entity

import "time"

// GeoPoint 经纬度坐标
type GeoPoint struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Valid 坐标是否在合法范围内
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// LocationPin 用户最后上报的位置，每个用户一条
type LocationPin struct {
	UserID    string
	Point     GeoPoint
	UpdatedAt time.Time
}

// LocationUpdate location_update 事件负载
type LocationUpdate struct {
	UserID    string  `json:"userId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
