package model

import (
	"fmt"
	"strings"
	"time"
)

// CRMTime decodes the timestamp formats the order registry emits:
// RFC3339 and "2006-01-02 15:04:05" (with or without fractional seconds).
type CRMTime struct {
	time.Time
}

var crmTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *CRMTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	// Drop fractional seconds the registry sometimes includes in the
	// space-separated format.
	if i := strings.IndexByte(s, '.'); i > 0 && !strings.ContainsAny(s[i:], "+Z") {
		s = s[:i]
	}
	for _, layout := range crmTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable CRM timestamp %q", s)
}

// OrderPhone is one phone entry on an order's customer.
type OrderPhone struct {
	Number string `json:"number"`
}

// OrderCustomer is the customer block embedded in an order.
type OrderCustomer struct {
	Phones []OrderPhone `json:"phones"`
}

// Order is a business record in the external order registry. The core
// never mutates orders; it only classifies and links them.
type Order struct {
	ID          int64         `json:"id"`
	ExternalID  string        `json:"externalId"`
	Slug        int64         `json:"slug"`
	Number      string        `json:"number"`
	Status      string        `json:"status"`
	OrderType   string        `json:"orderType"`
	OrderMethod string        `json:"orderMethod"`
	TotalSumm   float64       `json:"totalSumm"`
	ManagerID   int64         `json:"managerId"`
	CreatedAt   CRMTime       `json:"createdAt"`
	Customer    OrderCustomer `json:"customer"`
}

// IsB2B reports whether the order belongs to a legal entity.
func (o *Order) IsB2B() bool {
	return o.OrderType == "b2b"
}

// CustomerPhone returns the first phone number on the order, if any.
func (o *Order) CustomerPhone() string {
	if len(o.Customer.Phones) == 0 {
		return ""
	}
	return o.Customer.Phones[0].Number
}

// MatchResult is the outcome of an order lookup for one phone number.
// Recomputed on every need because order state changes externally.
type MatchResult struct {
	// NewOrder is the first order that is both younger than the freshness
	// window and in an actionable status.
	NewOrder *Order
	// LatestOrder is the chronologically most recent order for the phone.
	LatestOrder *Order
	// ClientActive is true when the client has a new order or their latest
	// order was modified today.
	ClientActive bool
}

// Manager is a user record from the manager directory.
type Manager struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DisplayName renders the manager's human-readable name.
func (m *Manager) DisplayName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}
