// Package handlers is the HTTP facade over the reservation coordinator. It
// does JSON shaping and status mapping only; every booking rule lives below.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/reservation"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/schedule"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/store"
)

type ReservationHandler struct {
	coord  *reservation.Coordinator
	logger *slog.Logger
}

func NewReservationHandler(coord *reservation.Coordinator, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{coord: coord, logger: logger}
}

// Register mounts every route on the mux using method-qualified patterns.
func (h *ReservationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/providers/{providerID}/services/{serviceID}/slots", h.Slots)
	mux.HandleFunc("POST /api/v1/providers/{providerID}/bookings", h.CreateBooking)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/bookings", h.ListBookings)
	mux.HandleFunc("PATCH /api/v1/bookings/{bookingID}/cancel", h.CancelBooking)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/schedule", h.GetSchedule)
	mux.HandleFunc("PUT /api/v1/providers/{providerID}/schedule/{weekday}", h.PutScheduleDay)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/services", h.ListServices)
	mux.HandleFunc("POST /api/v1/providers/{providerID}/services", h.CreateService)
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
	Price     int64  `json:"price"`
	Reason    string `json:"reason,omitempty"`
}

type slotsResponse struct {
	Date  string     `json:"date"`
	Slots []slotItem `json:"slots"`
}

type createBookingRequest struct {
	ServiceID string `json:"service_id"`
	ClientID  string `json:"client_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	// Body-level alternative to the Idempotency-Key header; the header wins
	// when both are present.
	IdempotencyKey string `json:"idempotency_key"`
}

type bookingResponse struct {
	BookingID   string `json:"booking_id"`
	ProviderID  string `json:"provider_id"`
	ServiceID   string `json:"service_id"`
	ClientID    string `json:"client_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	CancelledAt string `json:"cancelled_at,omitempty"`
}

type scheduleDayItem struct {
	Weekday    string `json:"weekday"`
	Available  bool   `json:"available"`
	WorkStart  string `json:"work_start,omitempty"`
	WorkEnd    string `json:"work_end,omitempty"`
	BreakStart string `json:"break_start,omitempty"`
	BreakEnd   string `json:"break_end,omitempty"`
}

type putScheduleDayRequest struct {
	Available  bool    `json:"available"`
	WorkStart  *string `json:"work_start"`
	WorkEnd    *string `json:"work_end"`
	BreakStart *string `json:"break_start"`
	BreakEnd   *string `json:"break_end"`
}

type createServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}

type serviceItem struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
	IsActive        bool   `json:"is_active"`
}

func (h *ReservationHandler) Slots(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerID")
	serviceID := r.PathValue("serviceID")

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "date query parameter is required",
		})
		return
	}
	date, err := model.ParseDate(dateStr)
	if err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "date must be YYYY-MM-DD",
		})
		return
	}

	slots, err := h.coord.AvailableSlots(r.Context(), providerID, serviceID, date)
	if err != nil {
		h.writeDomainError(w, err, "failed to compute slots")
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.String(),
			EndTime:   s.End.String(),
			Available: s.Available,
			Price:     s.Price,
			Reason:    string(s.Reason),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Date: dateStr, Slots: items})
}

func (h *ReservationHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerID")

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{
			Code: "validation_error", Message: "invalid json body",
		})
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ServiceID == "" || req.ClientID == "" {
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "service_id and client_id are required",
		})
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "date must be YYYY-MM-DD",
		})
		return
	}
	start, err := model.ParseMinuteOfDay(strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "start_time must be HH:MM",
		})
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey == "" {
		idemKey = strings.TrimSpace(req.IdempotencyKey)
	}

	b, err := h.coord.Reserve(r.Context(), reservation.ReserveRequest{
		ProviderID:     providerID,
		ServiceID:      req.ServiceID,
		ClientID:       req.ClientID,
		Date:           date,
		Start:          start,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		h.writeDomainError(w, err, "failed to create booking")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bookingToResponse(b))
}

func (h *ReservationHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := r.PathValue("bookingID")

	actorID := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	if actorID == "" {
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "X-Actor-Id header is required",
		})
		return
	}

	b, err := h.coord.Cancel(r.Context(), bookingID, actorID)
	if err != nil {
		h.writeDomainError(w, err, "failed to cancel booking")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookingToResponse(b))
}

func (h *ReservationHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerID")

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.coord.ListBookings(r.Context(), providerID, limit)
	if err != nil {
		h.writeDomainError(w, err, "failed to list bookings")
		return
	}
	items := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, bookingToResponse(b))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *ReservationHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerID")

	week, err := h.coord.Week(r.Context(), providerID)
	if err != nil {
		h.writeDomainError(w, err, "failed to load schedule")
		return
	}
	items := make([]scheduleDayItem, 0, 7)
	for _, d := range week.Days() {
		items = append(items, dayToItem(d))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *ReservationHandler) PutScheduleDay(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerID")

	wd, ok := parseWeekday(r.PathValue("weekday"))
	if !ok {
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "unknown weekday",
		})
		return
	}

	var req putScheduleDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{
			Code: "validation_error", Message: "invalid json body",
		})
		return
	}

	in := schedule.DayInput{Available: req.Available}
	for _, f := range []struct {
		raw  *string
		dst  **model.MinuteOfDay
		name string
	}{
		{req.WorkStart, &in.WorkStart, "work_start"},
		{req.WorkEnd, &in.WorkEnd, "work_end"},
		{req.BreakStart, &in.BreakStart, "break_start"},
		{req.BreakEnd, &in.BreakEnd, "break_end"},
	} {
		if f.raw == nil {
			continue
		}
		m, err := model.ParseMinuteOfDay(*f.raw)
		if err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
				Code: "validation_error", Message: f.name + " must be HH:MM",
			})
			return
		}
		*f.dst = &m
	}

	day, err := h.coord.SetDay(r.Context(), providerID, wd, in)
	if err != nil {
		h.writeDomainError(w, err, "failed to update schedule")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dayToItem(day))
}

func (h *ReservationHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerID")

	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{
			Code: "validation_error", Message: "invalid json body",
		})
		return
	}
	svc, err := h.coord.CreateService(r.Context(), providerID, strings.TrimSpace(req.Name), req.DurationMinutes, req.Price)
	if err != nil {
		h.writeDomainError(w, err, "failed to create service")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, serviceToItem(svc))
}

func (h *ReservationHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerID")

	services, err := h.coord.ListServices(r.Context(), providerID)
	if err != nil {
		h.writeDomainError(w, err, "failed to list services")
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, svc := range services {
		items = append(items, serviceToItem(svc))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// writeDomainError maps coordinator errors onto the wire taxonomy. Anything
// unrecognised is a storage failure: logged with detail, returned without.
func (h *ReservationHandler) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
	var vErr *reservation.ValidationError
	var slotErr *reservation.SlotUnavailableError

	switch {
	case errors.As(err, &vErr):
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: vErr.Field + ": " + vErr.Msg,
		})
	case errors.As(err, &slotErr):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorBody{
			Code: "slot_unavailable", Message: "requested slot is not available", Reason: string(slotErr.Reason),
		})
	case errors.Is(err, reservation.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorBody{
			Code: "concurrency_conflict", Message: "another request won the slot; re-fetch availability and retry",
		})
	case errors.Is(err, reservation.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorBody{
			Code: "not_found", Message: "resource not found",
		})
	case errors.Is(err, reservation.ErrAlreadyCancelled):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorBody{
			Code: "concurrency_conflict", Message: "booking is already cancelled",
		})
	case errors.Is(err, reservation.ErrImmutable):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorBody{
			Code: "concurrency_conflict", Message: "booking can no longer be modified",
		})
	case errors.Is(err, reservation.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, httpx.ErrorBody{
			Code: "forbidden", Message: "actor may not modify this booking",
		})
	case errors.Is(err, schedule.ErrInvalidRange):
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "working window is invalid",
		})
	case errors.Is(err, schedule.ErrBreakOutOfBounds):
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Code: "validation_error", Message: "break must sit strictly inside the working window",
		})
	case errors.Is(err, store.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorBody{
			Code: "concurrency_conflict", Message: "conflicting write; retry",
		})
	default:
		h.logger.Error(logMsg, "err", err)
		httpx.WriteError(w, http.StatusBadGateway, httpx.ErrorBody{
			Code: "storage_failure", Message: "temporary storage failure; retry with the same idempotency key",
		})
	}
}

func bookingToResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		ServiceID:  b.ServiceID,
		ClientID:   b.ClientID,
		Date:       b.Date.Format(time.DateOnly),
		StartTime:  b.StartMinute.String(),
		EndTime:    b.EndMinute.String(),
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		resp.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func dayToItem(d schedule.Day) scheduleDayItem {
	item := scheduleDayItem{
		Weekday:   strings.ToLower(d.Weekday.String()),
		Available: d.Available,
	}
	if d.Available {
		item.WorkStart = d.Work.Start.String()
		item.WorkEnd = d.Work.End.String()
		if d.Break != nil {
			item.BreakStart = d.Break.Start.String()
			item.BreakEnd = d.Break.End.String()
		}
	}
	return item
}

func serviceToItem(svc model.Service) serviceItem {
	return serviceItem{
		ServiceID:       svc.ID,
		Name:            svc.Name,
		DurationMinutes: svc.DurationMinutes,
		Price:           svc.Price,
		IsActive:        svc.IsActive,
	}
}

func parseWeekday(s string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(s, wd.String()) {
			return wd, true
		}
	}
	return 0, false
}
