package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultLocale is the key under which a plain string name is stored.
const DefaultLocale = "en"

// LocalizedText maps a locale to its text.
type LocalizedText map[string]string

// UnmarshalJSON accepts either a locale map or a plain string.
func (t *LocalizedText) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = LocalizedText{DefaultLocale: s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("localized text: %w", err)
	}
	*t = m
	return nil
}

// ExternalID is an upstream identifier. The provider sends it as a string or
// as a number; both decode to the same value.
type ExternalID string

func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExternalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("external id: %w", err)
	}
	*id = ExternalID(n.String())
	return nil
}

// Coordinate is a latitude or longitude that may arrive as a number or a
// numeric string. null and "" decode as absent.
type Coordinate struct {
	Value float64
	Valid bool
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Coordinate{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*c = Coordinate{}
			return nil
		}
		data = []byte(s)
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("coordinate %q: %w", data, err)
	}
	*c = Coordinate{Value: f, Valid: true}
	return nil
}

// Ptr returns the value, or nil when absent.
func (c Coordinate) Ptr() *float64 {
	if !c.Valid {
		return nil
	}
	v := c.Value
	return &v
}

// Branch is a provider branch reconciled into local storage. ExternalID is
// the upsert key; ID is our own surrogate key.
type Branch struct {
	ID                   string        `json:"id"`
	ExternalID           string        `json:"external_id" validate:"required,max=64"`
	Name                 LocalizedText `json:"name"`
	Reference            *string       `json:"reference,omitempty"`
	Phone                *string       `json:"phone,omitempty"`
	Address              *string       `json:"address,omitempty"`
	Latitude             *float64      `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude            *float64      `json:"longitude,omitempty" validate:"omitempty,longitude"`
	OpeningFrom          *string       `json:"opening_from,omitempty"`
	OpeningTo            *string       `json:"opening_to,omitempty"`
	ReceivesOnlineOrders bool          `json:"receives_online_orders"`
	IsActive             bool          `json:"is_active"`
	DeletedUpstreamAt    *time.Time    `json:"deleted_upstream_at,omitempty"`
	SyncedAt             time.Time     `json:"synced_at"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// BranchRecord is a branch as the provider sends it.
type BranchRecord struct {
	ID                   ExternalID    `json:"id"`
	Name                 LocalizedText `json:"name"`
	Reference            *string       `json:"reference"`
	Phone                *string       `json:"phone"`
	Address              *string       `json:"address"`
	Latitude             Coordinate    `json:"latitude"`
	Longitude            Coordinate    `json:"longitude"`
	OpeningFrom          *string       `json:"opening_from"`
	OpeningTo            *string       `json:"opening_to"`
	ReceivesOnlineOrders *bool         `json:"receives_online_orders"`
	DeletedAt            *time.Time    `json:"deleted_at"`
}

// Skip reasons for records that are valid but must not be reconciled.
const (
	SkipReasonDeleted       = "deleted_upstream"
	SkipReasonNotOnline     = "not_receiving_online_orders"
	SkipReasonInvalidRecord = "invalid_record"
)

// DecodeBranchRecord decodes one element of the provider's data array.
func DecodeBranchRecord(raw json.RawMessage) (*BranchRecord, error) {
	var rec BranchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode branch record: %w", err)
	}
	return &rec, nil
}

// SkipReason returns why the record is excluded from reconciliation, or ""
// when it is eligible. An absent online-orders flag counts as eligible.
func (r *BranchRecord) SkipReason() string {
	if r.DeletedAt != nil {
		return SkipReasonDeleted
	}
	if r.ReceivesOnlineOrders != nil && !*r.ReceivesOnlineOrders {
		return SkipReasonNotOnline
	}
	return ""
}

// ToBranch maps the record to a local branch synced at now. Absent optional
// fields stay nil.
func (r *BranchRecord) ToBranch(now time.Time) *Branch {
	b := &Branch{
		ExternalID:           string(r.ID),
		Name:                 r.Name,
		Reference:            nonEmpty(r.Reference),
		Phone:                nonEmpty(r.Phone),
		Address:              nonEmpty(r.Address),
		OpeningFrom:          nonEmpty(r.OpeningFrom),
		OpeningTo:            nonEmpty(r.OpeningTo),
		ReceivesOnlineOrders: r.ReceivesOnlineOrders == nil || *r.ReceivesOnlineOrders,
		IsActive:             true,
		Latitude:             r.Latitude.Ptr(),
		Longitude:            r.Longitude.Ptr(),
		DeletedUpstreamAt:    r.DeletedAt,
		SyncedAt:             now,
	}
	if b.Name == nil {
		b.Name = LocalizedText{}
	}
	return b
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// BranchFilter narrows a local branch listing.
type BranchFilter struct {
	Active *bool
	Search string
}
