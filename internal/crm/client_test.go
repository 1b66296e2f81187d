package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crmops/chatwatch/internal/model"
	"github.com/crmops/chatwatch/pkg/logger"
)

func TestOrdersByPhone(t *testing.T) {
	var gotQuery map[string][]string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{"success":true,"orders":[{"id":1,"status":"new","totalSumm":500,"createdAt":"2026-03-10 12:00:00"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", logger.NewNop())
	orders, err := c.OrdersByPhone(context.Background(), "79991234567", 0)
	if err != nil {
		t.Fatalf("OrdersByPhone: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != 1 || orders[0].Status != "new" {
		t.Errorf("orders = %+v", orders)
	}
	if orders[0].CreatedAt.IsZero() {
		t.Error("createdAt not parsed")
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}
	if got := gotQuery["filter[customer]"]; len(got) != 1 || got[0] != "79991234567" {
		t.Errorf("filter[customer] = %v", got)
	}
	if got := gotQuery["limit"]; len(got) != 1 || got[0] != "50" {
		t.Errorf("limit = %v", got)
	}
}

func TestOrdersByPhoneAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":false,"errorMsg":"wrong api key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", logger.NewNop())
	if _, err := c.OrdersByPhone(context.Background(), "79991234567", 10); err == nil {
		t.Fatal("OrdersByPhone succeeded on API error")
	}
}

func TestOrderModifiedBetween(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filter[orderId]") != "7" {
			t.Errorf("filter[orderId] = %q", r.URL.Query().Get("filter[orderId]"))
		}
		w.Write([]byte(`{"success":true,"history":[{"id":1},{"id":2}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", logger.NewNop())
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	modified, err := c.OrderModifiedBetween(context.Background(), 7, from, from.Add(24*time.Hour-time.Second))
	if err != nil {
		t.Fatalf("OrderModifiedBetween: %v", err)
	}
	if !modified {
		t.Error("modified = false, want true")
	}
}

func TestOrderModifiedBetweenEmptyHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":true,"history":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", logger.NewNop())
	modified, err := c.OrderModifiedBetween(context.Background(), 7, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("OrderModifiedBetween: %v", err)
	}
	if modified {
		t.Error("modified = true, want false")
	}
}

func TestManager(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/users/3" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"user":{"firstName":"Anna","lastName":"Petrova"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", logger.NewNop())
	manager, err := c.Manager(context.Background(), 3)
	if err != nil {
		t.Fatalf("Manager: %v", err)
	}
	if manager.DisplayName() != "Anna Petrova" {
		t.Errorf("DisplayName = %q", manager.DisplayName())
	}
}

func TestCreateTask(t *testing.T) {
	var gotTask Task
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v5/tasks/create" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if err := json.Unmarshal([]byte(r.PostForm.Get("task")), &gotTask); err != nil {
			t.Errorf("task payload: %v", err)
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", logger.NewNop())
	err := c.CreateTask(context.Background(), Task{
		Text:        "request phone from the client",
		PerformerID: 42,
		Datetime:    "2026-03-10 16:00",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if gotTask.PerformerID != 42 || gotTask.Datetime != "2026-03-10 16:00" {
		t.Errorf("task = %+v", gotTask)
	}
}

func TestOrderEditLink(t *testing.T) {
	c := NewClient("https://demo.retailcrm.ru/", "k", logger.NewNop())

	if got := c.OrderEditLink(&model.Order{ID: 5, Slug: 900}); got != "https://demo.retailcrm.ru/orders/900/edit" {
		t.Errorf("link = %q", got)
	}
	if got := c.OrderEditLink(&model.Order{ID: 5}); got != "https://demo.retailcrm.ru/orders/5/edit" {
		t.Errorf("link = %q", got)
	}
	if got := c.OrderEditLink(nil); got != "" {
		t.Errorf("link for nil order = %q", got)
	}
}

func TestOrderEditLinkByID(t *testing.T) {
	c := NewClient("https://demo.retailcrm.ru/", "k", logger.NewNop())

	// The id wins even when the order carries a slug.
	if got := c.OrderEditLinkByID(&model.Order{ID: 5, Slug: 900}); got != "https://demo.retailcrm.ru/orders/5/edit" {
		t.Errorf("link = %q", got)
	}
	if got := c.OrderEditLinkByID(nil); got != "" {
		t.Errorf("link for nil order = %q", got)
	}
}

func TestCustomerSearchLink(t *testing.T) {
	c := NewClient("https://demo.retailcrm.ru", "k", logger.NewNop())
	want := "https://demo.retailcrm.ru/customers?filter[text]=79991234567"
	if got := c.CustomerSearchLink("79991234567"); got != want {
		t.Errorf("link = %q, want %q", got, want)
	}
}
