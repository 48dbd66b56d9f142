package entity

import (
	"fmt"
	"time"
)

// ReportType 路况上报类型
type ReportType string

const (
	ReportTypePolice       ReportType = "Police"
	ReportTypeTraffic      ReportType = "Traffic"
	ReportTypeCrash        ReportType = "Crash"
	ReportTypeHazard       ReportType = "Hazard"
	ReportTypeClosure      ReportType = "Closure"
	ReportTypeBlockedLane  ReportType = "Blocked Lane"
	ReportTypeMapIssue     ReportType = "Map Issue"
	ReportTypeBadWeather   ReportType = "Bad Weather"
	ReportTypeFuelPrices   ReportType = "Fuel Prices"
	ReportTypeRoadsideHelp ReportType = "Roadside Help"
	ReportTypeMapChat      ReportType = "Map Chat"
	ReportTypeExplore      ReportType = "Explore"
)

// HazardReport 路况上报
type HazardReport struct {
	ID           string
	DriverID     string
	ReportType   ReportType
	SubCategory  string
	Point        GeoPoint
	Address      string
	Description  string
	ImageURL     string
	Validations  int
	Inaccuracies int
	ReportDate   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReportLocation GeoJSON 点
type ReportLocation struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

// ReportView nearby_report 事件负载
type ReportView struct {
	ID           string         `json:"_id"`
	DriverID     string         `json:"driverId"`
	ReportType   ReportType     `json:"reportType"`
	SubCategory  string         `json:"subCategory,omitempty"`
	Location     ReportLocation `json:"location"`
	Description  string         `json:"description,omitempty"`
	ImageURL     string         `json:"imageUrl,omitempty"`
	Validations  int            `json:"validations"`
	Inaccuracies int            `json:"inaccuracies"`
	ReportDate   time.Time      `json:"reportDate"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// View 转换为推送给客户端的结构
func (r *HazardReport) View() ReportView {
	return ReportView{
		ID:          r.ID,
		DriverID:    r.DriverID,
		ReportType:  r.ReportType,
		SubCategory: r.SubCategory,
		Location: ReportLocation{
			Type:        "Point",
			Coordinates: [2]float64{r.Point.Lng, r.Point.Lat},
			Address:     r.Address,
		},
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		Validations:  r.Validations,
		Inaccuracies: r.Inaccuracies,
		ReportDate:   r.ReportDate,
		CreatedAt:    r.CreatedAt,
	}
}

// PushNotification 离线推送内容
func (r *HazardReport) PushNotification() *PushNotification {
	return &PushNotification{
		Title: "New Nearby Report",
		Body:  fmt.Sprintf("%s: %s", r.ReportType, r.Description),
		Data:  map[string]string{"reportId": r.ID},
	}
}
