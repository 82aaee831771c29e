package backend

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeList_Envelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"nested data", `{"data":{"data":[{"id":1,"name":"Notary"}],"current_page":1}}`},
		{"data", `{"success":true,"data":[{"id":1,"name":"Notary"}]}`},
		{"named key", `{"services":[{"id":1,"name":"Notary"}]}`},
		{"named key inside data", `{"data":{"services":[{"id":1,"name":"Notary"}]}}`},
		{"bare array", `[{"id":1,"name":"Notary"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := decodeList[Service](envServices, []byte(tt.body))
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, ID("1"), out[0].ID)
			assert.Equal(t, "Notary", out[0].Name)
		})
	}
}

func TestDecodeList_RejectsUnknownObject(t *testing.T) {
	_, err := decodeList[Service](envServices, []byte(`{"items":[{"id":1}]}`))
	assert.True(t, errors.Is(err, ErrUnexpectedShape))
}

func TestDecodeList_NullIsEmpty(t *testing.T) {
	out, err := decodeList[Service](envServices, []byte(`{"data":null}`))
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestDecodeObject_RejectsNonObject(t *testing.T) {
	_, err := decodeObject[DailyLimitInfo](envUserLimit, []byte(`{"data":null}`))
	assert.True(t, errors.Is(err, ErrUnexpectedShape))

	_, err = decodeObject[DailyLimitInfo](envUserLimit, []byte(`[]`))
	assert.True(t, errors.Is(err, ErrUnexpectedShape))
}

func TestDecodeObject_SuccessFalse(t *testing.T) {
	_, err := decodeObject[DashboardStats](envDashboardStats, []byte(`{"success":false,"message":"forbidden"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedShape))
	assert.Contains(t, err.Error(), "forbidden")
}

func TestDecodeAck(t *testing.T) {
	assert.NoError(t, decodeAck(envBulkCancel, nil))
	assert.NoError(t, decodeAck(envBulkCancel, []byte(`{"success":true}`)))
	assert.Error(t, decodeAck(envBulkCancel, []byte(`{"success":false}`)))
}

func TestNormalizeClock(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"09:30:00", "09:30"},
		{" 09:30 ", "09:30"},
		{"8:00", "08:00"},
		{"9:00:00", "09:00"},
		{"2:00 PM", "14:00"},
		{"2:30pm", "14:30"},
		{"12:00 PM", "12:00"},
		{"12:30 AM", "00:30"},
		{"13:00 PM", ""},
		{"24:00", ""},
		{"9:5", ""},
		{"noon", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeClock(tt.in), tt.in)
	}
}

func TestNormalizeAlternatives_LooseTimes(t *testing.T) {
	got := normalizeAlternatives([]rawAlternative{
		{Date: "2025-03-11", FirstAvailableTime: "9:00:00"},
		{Date: "2025-03-12", AvailableTimes: []string{"2:00 PM", "2:30 PM"}},
		{Date: "2025-03-13", FirstAvailableTime: "10:00", AvailableSlots: []byte("0")},
	})
	assert.Equal(t, []Alternative{
		{Date: "2025-03-11", Time: "09:00", AvailableSlots: 1},
		{Date: "2025-03-12", Time: "14:00", AvailableSlots: 2},
		{Date: "2025-03-13", Time: "10:00", AvailableSlots: 1},
	}, got)
}

func TestWeekdaysAcceptsArrayAndString(t *testing.T) {
	var a, b UnavailableDate
	require.NoError(t, jsonUnmarshal(`{"is_recurring":true,"recurring_days":["Saturday"]}`, &a))
	require.NoError(t, jsonUnmarshal(`{"is_recurring":"1","recurring_days":"[\"saturday\"]"}`, &b))
	assert.True(t, a.RecurringDays.Contains("saturday"))
	assert.True(t, b.RecurringDays.Contains("Saturday"))
	assert.True(t, bool(b.IsRecurring))
}

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
