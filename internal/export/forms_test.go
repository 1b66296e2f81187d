package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/crmops/chatwatch/pkg/logger"
)

func formSink(t *testing.T, got *url.Values, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		*got = r.PostForm
		w.WriteHeader(status)
	}))
}

func TestSendRich(t *testing.T) {
	var got url.Values
	srv := formSink(t, &got, http.StatusOK)
	defer srv.Close()

	c := NewFormsClient(srv.URL, "", logger.NewNop())
	record := &RichRecord{
		OrderLink:    "https://crm.example.com/orders/5",
		TotalSumm:    "1500.00",
		CustomerType: "Individual",
		ManagerName:  "Anna Petrova",
		Transcript:   "[2026-03-10T12:00:00Z] CLIENT: hello",
		Scores:       []int{1, 0, 1, 0, 0, 0, 0, 0, 1},
	}
	if err := c.SendRich(context.Background(), record); err != nil {
		t.Fatalf("SendRich: %v", err)
	}

	if got.Get(richEntryOrderLink) != record.OrderLink {
		t.Errorf("order link = %q", got.Get(richEntryOrderLink))
	}
	if got.Get(richEntryManagerName) != "Anna Petrova" {
		t.Errorf("manager = %q", got.Get(richEntryManagerName))
	}
	if got.Get(richScoreEntryIDs[0]) != "1" || got.Get(richScoreEntryIDs[1]) != "0" {
		t.Errorf("scores = %q/%q", got.Get(richScoreEntryIDs[0]), got.Get(richScoreEntryIDs[1]))
	}
	if got.Get(richScoreEntryIDs[8]) != "1" {
		t.Errorf("last score = %q", got.Get(richScoreEntryIDs[8]))
	}
}

func TestSendBasic(t *testing.T) {
	var got url.Values
	srv := formSink(t, &got, http.StatusOK)
	defer srv.Close()

	c := NewFormsClient("", srv.URL, logger.NewNop())
	record := &BasicRecord{
		OrderLink:    "Unknown",
		TotalSumm:    "Unknown",
		CustomerType: "Unknown",
		Transcript:   "[2026-03-10T12:00:00Z] CLIENT: hi",
	}
	if err := c.SendBasic(context.Background(), record); err != nil {
		t.Fatalf("SendBasic: %v", err)
	}

	if got.Get(basicEntryOrderLink) != "Unknown" {
		t.Errorf("order link = %q", got.Get(basicEntryOrderLink))
	}
	if got.Get(basicEntryTranscript) == "" {
		t.Error("transcript missing")
	}
}

func TestSendRejectedByForm(t *testing.T) {
	var got url.Values
	srv := formSink(t, &got, http.StatusBadRequest)
	defer srv.Close()

	c := NewFormsClient(srv.URL, srv.URL, logger.NewNop())
	if err := c.SendRich(context.Background(), &RichRecord{}); err == nil {
		t.Error("SendRich succeeded on 400")
	}
	if err := c.SendBasic(context.Background(), &BasicRecord{}); err == nil {
		t.Error("SendBasic succeeded on 400")
	}
}

func TestSendRichExtraScoresIgnored(t *testing.T) {
	var got url.Values
	srv := formSink(t, &got, http.StatusOK)
	defer srv.Close()

	c := NewFormsClient(srv.URL, "", logger.NewNop())
	record := &RichRecord{Scores: make([]int, len(richScoreEntryIDs)+3)}
	if err := c.SendRich(context.Background(), record); err != nil {
		t.Fatalf("SendRich: %v", err)
	}
	for key := range got {
		if len(key) == 0 {
			t.Errorf("empty form key submitted")
		}
	}
}
