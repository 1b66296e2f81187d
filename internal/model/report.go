package model

import "time"

// DialogTiming holds the per-dialog response-speed classification used by
// the daily report.
type DialogTiming struct {
	ResponseTimes        []time.Duration
	FirstResponseTooSlow bool
	UnansweredWorking    bool
	UnansweredNonWorking bool
}

// DailyReport aggregates one day's closed dialogs. Produced once per
// scheduled run and transmitted, never stored.
type DailyReport struct {
	Date time.Time

	// Inquiries
	TotalInquiries int

	// Orders matched to today's inquiries
	OrdersCreated int
	PhysicalCount int
	LegalCount    int

	// Registry links for clients with no actionable order
	ClientsWithoutOrder []string

	// Response speed
	AvgResponseTime   time.Duration
	HasResponseTimes  bool
	SlowFirstResponse int

	// Unanswered chats
	UnansweredWorking    int
	UnansweredNonWorking int

	// Same-day close: orders created and paid on the report day by a
	// client who inquired that day
	SameDayCount int
	SameDaySum   float64
}
