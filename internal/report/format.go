package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/crmops/chatwatch/internal/model"
)

// Format renders the daily report as Telegram HTML.
func Format(r *model.DailyReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>📊 Daily chat report for %s</b>\n\n", r.Date.Format("02.01.2006"))

	fmt.Fprintf(&b, "1. New inquiries: %d (Individuals %d / Legal %d)\n\n",
		r.TotalInquiries, r.PhysicalCount, r.LegalCount)

	fmt.Fprintf(&b, "2. Orders created: <b>%d</b>\n", r.OrdersCreated)
	if len(r.ClientsWithoutOrder) > 0 {
		fmt.Fprintf(&b, "   ❌ Clients without an actionable order (%d):\n", len(r.ClientsWithoutOrder))
		for _, link := range r.ClientsWithoutOrder {
			fmt.Fprintf(&b, "• <a href='%s'>Client</a>\n", link)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("   ✅ Every new client has an actionable order.\n\n")
	}

	if r.HasResponseTimes {
		fmt.Fprintf(&b, "3. Response speed (avg cycle): <b>%s</b>\n", FormatDuration(r.AvgResponseTime))
	} else {
		b.WriteString("3. Response speed (avg cycle): <b>n/a</b> (not enough data)\n")
	}
	if r.SlowFirstResponse > 0 {
		fmt.Fprintf(&b, "   🚨 Slow first response (> 5 min): <b>%d</b>\n", r.SlowFirstResponse)
	} else {
		b.WriteString("   ✅ All first responses under 5 min.\n")
	}

	fmt.Fprintf(&b, "4. Unanswered chats (20:00-23:30): <b>%d</b>\n", r.UnansweredNonWorking)
	fmt.Fprintf(&b, "5. Unanswered chats (working hours 9:00-20:00): <b>%d</b>\n\n", r.UnansweredWorking)

	fmt.Fprintf(&b, "6. Same-day close (count/sum): <b>%d / %.0f</b>", r.SameDayCount, r.SameDaySum)

	return b.String()
}

// FormatDuration renders a duration as "2h 5m", "3m", or "45s".
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 {
		if seconds > 0 {
			return fmt.Sprintf("%ds", seconds)
		}
		return "0s"
	}
	return strings.Join(parts, " ")
}
