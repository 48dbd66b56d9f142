package event

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
)

// Type 客户端上行事件类型
type Type string

const (
	TypeRegisterUser     Type = "register_user"
	TypeRegisterFCMToken Type = "register_fcm_token"
	TypeUpdateLocation   Type = "update_location"
	TypeNewReport        Type = "new_report"
	TypeSendMessage      Type = "send_message"
	TypeSendNotification Type = "send_notification"
)

// NeedsAck 需要回执的事件
func (t Type) NeedsAck() bool {
	return t == TypeSendMessage || t == TypeSendNotification
}

// Inbound 解码后的上行事件
type Inbound interface {
	Type() Type
}

type RegisterUser struct {
	UserID string
}

type RegisterFCMToken struct {
	UserID string
	Token  string
}

type UpdateLocation struct {
	UserID string
	Point  entity.GeoPoint
}

type NewReport struct {
	ReportID string
}

type SendMessage struct {
	Sender   string
	Receiver string
	Content  string
	MediaURL string
}

type SendNotification struct {
	UserID  string
	Title   string
	Message string
}

func (RegisterUser) Type() Type     { return TypeRegisterUser }
func (RegisterFCMToken) Type() Type { return TypeRegisterFCMToken }
func (UpdateLocation) Type() Type   { return TypeUpdateLocation }
func (NewReport) Type() Type        { return TypeNewReport }
func (SendMessage) Type() Type      { return TypeSendMessage }
func (SendNotification) Type() Type { return TypeSendNotification }

// 客户端可见的校验信息
const (
	MsgInvalidUserID       = "Invalid user ID."
	MsgMissingFCMToken     = "Missing userId or token."
	MsgMissingLocation     = "Missing location data."
	MsgInvalidLocation     = "Invalid coordinates."
	MsgInvalidReportID     = "Invalid report ID."
	MsgMissingMessage      = "Missing message data."
	MsgMissingNotification = "Missing notification data."
	MsgUnknownEvent        = "unknown event type"
)

type fcmTokenData struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type locationData struct {
	UserID    string     `json:"userId"`
	Latitude  coordinate `json:"latitude"`
	Longitude coordinate `json:"longitude"`
}

type reportData struct {
	ReportID string `json:"reportId"`
}

type messageData struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl"`
}

type notificationData struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Decode 按事件类型解码并校验负载
func Decode(t Type, data json.RawMessage) (Inbound, error) {
	switch t {
	case TypeRegisterUser:
		userID, ok := decodeID(data, "userId")
		if !ok || !entity.ValidID(userID) {
			return nil, entity.Invalid(MsgInvalidUserID)
		}
		return RegisterUser{UserID: userID}, nil

	case TypeRegisterFCMToken:
		var d fcmTokenData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, entity.Invalid(MsgMissingFCMToken)
		}
		d.Token = strings.TrimSpace(d.Token)
		if d.UserID == "" || d.Token == "" {
			return nil, entity.Invalid(MsgMissingFCMToken)
		}
		if !entity.ValidID(d.UserID) {
			return nil, entity.Invalid(MsgInvalidUserID)
		}
		return RegisterFCMToken{UserID: d.UserID, Token: d.Token}, nil

	case TypeUpdateLocation:
		var d locationData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, entity.Invalid(MsgMissingLocation)
		}
		if d.UserID == "" || !d.Latitude.set || !d.Longitude.set {
			return nil, entity.Invalid(MsgMissingLocation)
		}
		if !entity.ValidID(d.UserID) {
			return nil, entity.Invalid(MsgInvalidUserID)
		}
		p := entity.GeoPoint{Lng: d.Longitude.value, Lat: d.Latitude.value}
		if !p.Valid() {
			return nil, entity.Invalid(MsgInvalidLocation)
		}
		return UpdateLocation{UserID: d.UserID, Point: p}, nil

	case TypeNewReport:
		reportID, ok := decodeID(data, "reportId")
		if !ok || !entity.ValidID(reportID) {
			return nil, entity.Invalid(MsgInvalidReportID)
		}
		return NewReport{ReportID: reportID}, nil

	case TypeSendMessage:
		var d messageData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, entity.Invalid(MsgMissingMessage)
		}
		if d.Sender == "" || d.Receiver == "" || strings.TrimSpace(d.Content) == "" {
			return nil, entity.Invalid(MsgMissingMessage)
		}
		if !entity.ValidID(d.Sender) || !entity.ValidID(d.Receiver) {
			return nil, entity.Invalid(MsgInvalidUserID)
		}
		return SendMessage{Sender: d.Sender, Receiver: d.Receiver, Content: d.Content, MediaURL: d.MediaURL}, nil

	case TypeSendNotification:
		var d notificationData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, entity.Invalid(MsgMissingNotification)
		}
		if d.UserID == "" || d.Title == "" || d.Message == "" {
			return nil, entity.Invalid(MsgMissingNotification)
		}
		if !entity.ValidID(d.UserID) {
			return nil, entity.Invalid(MsgInvalidUserID)
		}
		return SendNotification{UserID: d.UserID, Title: d.Title, Message: d.Message}, nil

	}

	return nil, entity.Invalid(MsgUnknownEvent)
}

// decodeID 负载可以是字符串，也可以是带 field 字段的对象
func decodeID(data json.RawMessage, field string) (string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s), s != ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false
	}
	raw, ok := obj[field]
	if !ok {
		return "", false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), s != ""
}

// coordinate 接受数字或数字字符串
type coordinate struct {
	value float64
	set   bool
}

func (c *coordinate) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		c.value, c.set = f, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// 非数字按非法坐标处理
		f = math.NaN()
	}
	c.value, c.set = f, true
	return nil
}
