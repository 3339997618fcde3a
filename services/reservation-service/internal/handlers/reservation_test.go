package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/reservation"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := reservation.New(memory.New(), logger, reservation.Config{
		GranularityMinutes: 30,
		Now:                func() time.Time { return fixedNow },
	})

	mux := http.NewServeMux()
	NewReservationHandler(coord, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// One service to book against.
	resp := doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/services", nil, map[string]any{
		"name":             "Consultation",
		"duration_minutes": 60,
		"price":            5000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create service status = %d", resp.StatusCode)
	}
	var svc struct {
		ServiceID string `json:"service_id"`
	}
	decodeBody(t, resp, &svc)
	return srv, svc.ServiceID
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, headers map[string]string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

func bookBody(serviceID, clientID, start string) map[string]any {
	return map[string]any{
		"service_id": serviceID,
		"client_id":  clientID,
		"date":       "2026-03-02",
		"start_time": start,
	}
}

func TestCreateBooking_StatusMapping(t *testing.T) {
	srv, serviceID := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/bookings", nil,
		bookBody(serviceID, "client-1", "10:00"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first booking status = %d", resp.StatusCode)
	}
	var booked struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"status"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	decodeBody(t, resp, &booked)
	if booked.Status != "confirmed" || booked.StartTime != "10:00" || booked.EndTime != "11:00" {
		t.Fatalf("unexpected booking body: %+v", booked)
	}

	// Same interval, different client: slot_unavailable with a reason.
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/bookings", nil,
		bookBody(serviceID, "client-2", "10:00"))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double booking status = %d", resp.StatusCode)
	}
	var envelope errorEnvelope
	decodeBody(t, resp, &envelope)
	if envelope.Error.Code != "slot_unavailable" || envelope.Error.Reason != "overlaps" {
		t.Fatalf("double booking error = %+v", envelope.Error)
	}

	// Off-grid start: validation, not conflict.
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/bookings", nil,
		bookBody(serviceID, "client-2", "10:15"))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("off-grid status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &envelope)
	if envelope.Error.Code != "validation_error" {
		t.Fatalf("off-grid error = %+v", envelope.Error)
	}

	// Unknown service.
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/bookings", nil,
		bookBody("3b4b0b1e-0000-0000-0000-000000000000", "client-2", "13:00"))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown service status = %d", resp.StatusCode)
	}
}

func TestCreateBooking_IdempotencyReplay(t *testing.T) {
	srv, serviceID := newTestServer(t)
	headers := map[string]string{"Idempotency-Key": "key-1"}

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/bookings", headers,
		bookBody(serviceID, "client-1", "10:00"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d", resp.StatusCode)
	}
	var first struct {
		BookingID string `json:"booking_id"`
	}
	decodeBody(t, resp, &first)

	resp = doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/bookings", headers,
		bookBody(serviceID, "client-1", "10:00"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("replay status = %d", resp.StatusCode)
	}
	var second struct {
		BookingID string `json:"booking_id"`
	}
	decodeBody(t, resp, &second)
	if second.BookingID != first.BookingID {
		t.Fatalf("replay created new booking %s, want %s", second.BookingID, first.BookingID)
	}

	// The key may also travel in the body.
	body := bookBody(serviceID, "client-1", "10:00")
	body["idempotency_key"] = "key-1"
	resp = doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/bookings", nil, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("body-key replay status = %d", resp.StatusCode)
	}
	var third struct {
		BookingID string `json:"booking_id"`
	}
	decodeBody(t, resp, &third)
	if third.BookingID != first.BookingID {
		t.Fatalf("body-key replay created new booking %s", third.BookingID)
	}
}

func TestCancelBooking(t *testing.T) {
	srv, serviceID := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/api/v1/providers/prov-1/bookings", nil,
		bookBody(serviceID, "client-1", "10:00"))
	var booked struct {
		BookingID string `json:"booking_id"`
	}
	decodeBody(t, resp, &booked)

	// No actor header.
	resp = doJSON(t, srv, http.MethodPatch, "/api/v1/bookings/"+booked.BookingID+"/cancel", nil, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing actor status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A stranger may not cancel.
	resp = doJSON(t, srv, http.MethodPatch, "/api/v1/bookings/"+booked.BookingID+"/cancel",
		map[string]string{"X-Actor-Id": "stranger"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger cancel status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodPatch, "/api/v1/bookings/"+booked.BookingID+"/cancel",
		map[string]string{"X-Actor-Id": "client-1"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}
	var cancelled struct {
		Status      string `json:"status"`
		CancelledAt string `json:"cancelled_at"`
	}
	decodeBody(t, resp, &cancelled)
	if cancelled.Status != "cancelled" || cancelled.CancelledAt == "" {
		t.Fatalf("cancel body: %+v", cancelled)
	}

	// Cancelling again is a conflict, not a success.
	resp = doJSON(t, srv, http.MethodPatch, "/api/v1/bookings/"+booked.BookingID+"/cancel",
		map[string]string{"X-Actor-Id": "client-1"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double cancel status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown booking.
	resp = doJSON(t, srv, http.MethodPatch, "/api/v1/bookings/does-not-exist/cancel",
		map[string]string{"X-Actor-Id": "client-1"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown booking status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSlots(t *testing.T) {
	srv, serviceID := newTestServer(t)

	resp := doJSON(t, srv, http.MethodGet, "/api/v1/providers/prov-1/services/"+serviceID+"/slots?date=2026-03-02", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("slots status = %d", resp.StatusCode)
	}
	var body struct {
		Date  string `json:"date"`
		Slots []struct {
			StartTime string `json:"start_time"`
			Available bool   `json:"available"`
			Reason    string `json:"reason"`
		} `json:"slots"`
	}
	decodeBody(t, resp, &body)
	if body.Date != "2026-03-02" || len(body.Slots) == 0 {
		t.Fatalf("slots body: date=%s count=%d", body.Date, len(body.Slots))
	}
	if body.Slots[0].StartTime != "09:00" || !body.Slots[0].Available {
		t.Fatalf("first slot: %+v", body.Slots[0])
	}

	// Missing or malformed date.
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/providers/prov-1/services/"+serviceID+"/slots", nil, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing date status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/providers/prov-1/services/"+serviceID+"/slots?date=02-03-2026", nil, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("malformed date status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPutScheduleDay(t *testing.T) {
	srv, serviceID := newTestServer(t)

	// Valid update with a break.
	resp := doJSON(t, srv, http.MethodPut, "/api/v1/providers/prov-1/schedule/monday", nil, map[string]any{
		"available":   true,
		"work_start":  "09:00",
		"work_end":    "18:00",
		"break_start": "12:00",
		"break_end":   "13:00",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put schedule status = %d", resp.StatusCode)
	}
	var day struct {
		Weekday    string `json:"weekday"`
		BreakStart string `json:"break_start"`
	}
	decodeBody(t, resp, &day)
	if day.Weekday != "monday" || day.BreakStart != "12:00" {
		t.Fatalf("schedule body: %+v", day)
	}

	// The break carves slots out of availability.
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/providers/prov-1/services/"+serviceID+"/slots?date=2026-03-02", nil, nil)
	var slots struct {
		Slots []struct {
			StartTime string `json:"start_time"`
			Available bool   `json:"available"`
			Reason    string `json:"reason"`
		} `json:"slots"`
	}
	decodeBody(t, resp, &slots)
	for _, s := range slots.Slots {
		if s.StartTime == "12:00" && (s.Available || s.Reason != "during_break") {
			t.Fatalf("12:00 slot after break update: %+v", s)
		}
	}

	// Break outside the working window.
	resp = doJSON(t, srv, http.MethodPut, "/api/v1/providers/prov-1/schedule/monday", nil, map[string]any{
		"available":   true,
		"work_start":  "09:00",
		"work_end":    "17:00",
		"break_start": "08:00",
		"break_end":   "09:30",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid break status = %d", resp.StatusCode)
	}
	var envelope errorEnvelope
	decodeBody(t, resp, &envelope)
	if envelope.Error.Code != "validation_error" {
		t.Fatalf("invalid break error = %+v", envelope.Error)
	}

	// Unknown weekday segment.
	resp = doJSON(t, srv, http.MethodPut, "/api/v1/providers/prov-1/schedule/funday", nil, map[string]any{
		"available": false,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unknown weekday status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// GET returns all seven days.
	resp = doJSON(t, srv, http.MethodGet, "/api/v1/providers/prov-1/schedule", nil, nil)
	var week []struct {
		Weekday string `json:"weekday"`
	}
	decodeBody(t, resp, &week)
	if len(week) != 7 {
		t.Fatalf("expected 7 days, got %d", len(week))
	}
}
