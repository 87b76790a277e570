package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBranchRecord_FullRecord(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "8d3f1c2a",
		"name": {"en": "Olaya", "ar": "العليا"},
		"reference": "B01",
		"phone": "+966500000000",
		"address": "",
		"latitude": "24.7136",
		"longitude": 46.6753,
		"opening_from": "08:00",
		"opening_to": "23:00",
		"receives_online_orders": true,
		"deleted_at": null
	}`)

	rec, err := DecodeBranchRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, ExternalID("8d3f1c2a"), rec.ID)
	assert.Equal(t, "العليا", rec.Name["ar"])
	assert.Empty(t, rec.SkipReason())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := rec.ToBranch(now)
	assert.Equal(t, "8d3f1c2a", b.ExternalID)
	require.NotNil(t, b.Latitude)
	assert.InDelta(t, 24.7136, *b.Latitude, 1e-9)
	require.NotNil(t, b.Longitude)
	assert.InDelta(t, 46.6753, *b.Longitude, 1e-9)
	assert.Nil(t, b.Address, "blank address is stored as absent")
	assert.Equal(t, "B01", *b.Reference)
	assert.True(t, b.ReceivesOnlineOrders)
	assert.True(t, b.IsActive)
	assert.Equal(t, now, b.SyncedAt)
}

func TestDecodeBranchRecord_AbsentOptionalFields(t *testing.T) {
	rec, err := DecodeBranchRecord(json.RawMessage(`{"id": 42, "name": "Main", "latitude": ""}`))
	require.NoError(t, err)

	b := rec.ToBranch(time.Now())
	assert.Equal(t, "42", b.ExternalID)
	assert.Equal(t, LocalizedText{DefaultLocale: "Main"}, b.Name)
	assert.Nil(t, b.Latitude)
	assert.Nil(t, b.Longitude)
	assert.Nil(t, b.OpeningFrom)
	assert.Nil(t, b.OpeningTo)
	assert.True(t, b.ReceivesOnlineOrders, "absent flag counts as eligible")
}

func TestDecodeBranchRecord_MissingID(t *testing.T) {
	rec, err := DecodeBranchRecord(json.RawMessage(`{"name": "No id"}`))
	require.NoError(t, err)
	assert.Empty(t, rec.ToBranch(time.Now()).ExternalID)
}

func TestDecodeBranchRecord_Malformed(t *testing.T) {
	tests := map[string]string{
		"not an object":   `[1,2]`,
		"bad coordinate":  `{"id": "1", "latitude": "north"}`,
		"bad name":        `{"id": "1", "name": 5}`,
		"bad external id": `{"id": true}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBranchRecord(json.RawMessage(raw))
			assert.Error(t, err)
		})
	}
}

func TestBranchRecord_SkipReason(t *testing.T) {
	deleted := time.Now()
	no := false
	yes := true

	tests := []struct {
		name string
		rec  BranchRecord
		want string
	}{
		{"eligible", BranchRecord{ReceivesOnlineOrders: &yes}, ""},
		{"flag absent", BranchRecord{}, ""},
		{"deleted upstream", BranchRecord{DeletedAt: &deleted, ReceivesOnlineOrders: &yes}, SkipReasonDeleted},
		{"deleted wins over offline", BranchRecord{DeletedAt: &deleted, ReceivesOnlineOrders: &no}, SkipReasonDeleted},
		{"not online", BranchRecord{ReceivesOnlineOrders: &no}, SkipReasonNotOnline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.SkipReason())
		})
	}
}
