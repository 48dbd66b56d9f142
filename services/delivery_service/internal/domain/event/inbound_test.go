package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
)

const (
	uidA = "2f1c6a52-5d7e-4a53-9b0e-8f1a3e2d4c10"
	uidB = "7b9d2c41-0e6f-4f18-a2c3-5d6e7f8a9b01"
)

func decodeMessage(t *testing.T, typ Type, data string) (Inbound, string) {
	t.Helper()
	ev, err := Decode(typ, json.RawMessage(data))
	if err != nil {
		require.ErrorIs(t, err, entity.ErrValidation)
		return nil, entity.ClientMessage(err, "")
	}
	return ev, ""
}

func TestDecode_RegisterUser(t *testing.T) {
	ev, msg := decodeMessage(t, TypeRegisterUser, `"`+uidA+`"`)
	assert.Empty(t, msg)
	assert.Equal(t, RegisterUser{UserID: uidA}, ev)

	ev, msg = decodeMessage(t, TypeRegisterUser, `{"userId":"`+uidA+`"}`)
	assert.Empty(t, msg)
	assert.Equal(t, RegisterUser{UserID: uidA}, ev)

	for _, data := range []string{`"not-a-uuid"`, `""`, `{}`, `42`, ``} {
		_, msg = decodeMessage(t, TypeRegisterUser, data)
		assert.Equal(t, MsgInvalidUserID, msg, data)
	}
}

func TestDecode_UpdateLocation(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		want  Inbound
		error string
	}{
		{
			name: "numbers",
			data: `{"userId":"` + uidA + `","latitude":40.7128,"longitude":-74.006}`,
			want: UpdateLocation{UserID: uidA, Point: entity.GeoPoint{Lat: 40.7128, Lng: -74.006}},
		},
		{
			name: "numeric strings",
			data: `{"userId":"` + uidA + `","latitude":"40.7128","longitude":" -74.006 "}`,
			want: UpdateLocation{UserID: uidA, Point: entity.GeoPoint{Lat: 40.7128, Lng: -74.006}},
		},
		{
			name: "zero is a valid coordinate",
			data: `{"userId":"` + uidA + `","latitude":0,"longitude":0}`,
			want: UpdateLocation{UserID: uidA, Point: entity.GeoPoint{}},
		},
		{
			name:  "latitude omitted",
			data:  `{"userId":"` + uidA + `","longitude":-74.006}`,
			error: MsgMissingLocation,
		},
		{
			name:  "latitude null",
			data:  `{"userId":"` + uidA + `","latitude":null,"longitude":-74.006}`,
			error: MsgMissingLocation,
		},
		{
			name:  "missing user",
			data:  `{"latitude":1,"longitude":2}`,
			error: MsgMissingLocation,
		},
		{
			name:  "out of range",
			data:  `{"userId":"` + uidA + `","latitude":91,"longitude":0}`,
			error: MsgInvalidLocation,
		},
		{
			name:  "not a number",
			data:  `{"userId":"` + uidA + `","latitude":"north","longitude":0}`,
			error: MsgInvalidLocation,
		},
		{
			name:  "bad user id",
			data:  `{"userId":"abc","latitude":1,"longitude":2}`,
			error: MsgInvalidUserID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, msg := decodeMessage(t, TypeUpdateLocation, tt.data)
			assert.Equal(t, tt.error, msg)
			if tt.error == "" {
				assert.Equal(t, tt.want, ev)
			}
		})
	}
}

func TestDecode_SendMessage(t *testing.T) {
	ev, msg := decodeMessage(t, TypeSendMessage,
		`{"sender":"`+uidA+`","receiver":"`+uidB+`","content":"Hi","mediaUrl":"https://cdn/x.png"}`)
	assert.Empty(t, msg)
	assert.Equal(t, SendMessage{Sender: uidA, Receiver: uidB, Content: "Hi", MediaURL: "https://cdn/x.png"}, ev)

	_, msg = decodeMessage(t, TypeSendMessage, `{"sender":"`+uidA+`","content":"Hi"}`)
	assert.Equal(t, MsgMissingMessage, msg)

	_, msg = decodeMessage(t, TypeSendMessage, `{"sender":"`+uidA+`","receiver":"`+uidB+`","content":"   "}`)
	assert.Equal(t, MsgMissingMessage, msg)

	_, msg = decodeMessage(t, TypeSendMessage, `{"sender":"x","receiver":"`+uidB+`","content":"Hi"}`)
	assert.Equal(t, MsgInvalidUserID, msg)
}

func TestDecode_Others(t *testing.T) {
	ev, msg := decodeMessage(t, TypeRegisterFCMToken, `{"userId":"`+uidA+`","token":" fcm-1 "}`)
	assert.Empty(t, msg)
	assert.Equal(t, RegisterFCMToken{UserID: uidA, Token: "fcm-1"}, ev)

	_, msg = decodeMessage(t, TypeRegisterFCMToken, `{"userId":"`+uidA+`"}`)
	assert.Equal(t, MsgMissingFCMToken, msg)

	ev, msg = decodeMessage(t, TypeNewReport, `{"reportId":"`+uidB+`"}`)
	assert.Empty(t, msg)
	assert.Equal(t, NewReport{ReportID: uidB}, ev)

	_, msg = decodeMessage(t, TypeNewReport, `"r-1"`)
	assert.Equal(t, MsgInvalidReportID, msg)

	ev, msg = decodeMessage(t, TypeSendNotification, `{"userId":"`+uidA+`","title":"T","message":"B"}`)
	assert.Empty(t, msg)
	assert.Equal(t, SendNotification{UserID: uidA, Title: "T", Message: "B"}, ev)

	_, msg = decodeMessage(t, TypeSendNotification, `{"userId":"`+uidA+`","title":"T"}`)
	assert.Equal(t, MsgMissingNotification, msg)

	_, msg = decodeMessage(t, Type("join_room"), `{}`)
	assert.Equal(t, MsgUnknownEvent, msg)
}

func TestType_NeedsAck(t *testing.T) {
	assert.True(t, TypeSendMessage.NeedsAck())
	assert.True(t, TypeSendNotification.NeedsAck())
	assert.False(t, TypeRegisterUser.NeedsAck())
	assert.False(t, TypeUpdateLocation.NeedsAck())
}
