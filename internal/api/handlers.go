package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/export"
	"seatbook/internal/models"
	"seatbook/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const timeLayout = time.RFC3339

// Handler adapts HTTP requests onto the services.
type Handler struct {
	bookings      *service.BookingService
	attendance    *service.AttendanceService
	wallets       *service.WalletService
	sweeps        *service.SweepService
	exporter      *export.Exporter
	notifications domain.NotificationSource
	production    bool
	logger        *zerolog.Logger
	now           func() time.Time
}

type Deps struct {
	Bookings      *service.BookingService
	Attendance    *service.AttendanceService
	Wallets       *service.WalletService
	Sweeps        *service.SweepService
	Exporter      *export.Exporter
	Notifications domain.NotificationSource
	Production    bool
}

func NewHandler(deps Deps, logger *zerolog.Logger) *Handler {
	return &Handler{
		bookings:      deps.Bookings,
		attendance:    deps.Attendance,
		wallets:       deps.Wallets,
		sweeps:        deps.Sweeps,
		exporter:      deps.Exporter,
		notifications: deps.Notifications,
		production:    deps.Production,
		logger:        logger,
		now:           time.Now,
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func principal(r *http.Request) models.Principal {
	p, _ := PrincipalFromContext(r.Context())
	return p
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.InvalidInput("invalid JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.InvalidInput("invalid %s", name)
	}
	return id, nil
}

func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	d, err := models.ParseDate(v)
	if err != nil {
		return time.Time{}, domain.InvalidInput("invalid %s; expected YYYY-MM-DD", field)
	}
	return d, nil
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.InvalidInput("invalid %s", name)
	}
	return v, nil
}

func parseAmount(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, domain.InvalidInput("invalid amount %q", v)
	}
	return d, nil
}

type bookingRequest struct {
	SeatID     int64  `json:"seat_id"`
	TimeSlotID int64  `json:"time_slot_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date,omitempty"`
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	end, err := parseDate("end_date", body.EndDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.bookings.CreateBooking(r.Context(), principal(r), service.CreateBookingRequest{
		SeatID:     body.SeatID,
		TimeSlotID: body.TimeSlotID,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	single, monthly, err := h.bookings.UserBookings(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if single == nil {
		single = []*models.Booking{}
	}
	if monthly == nil {
		monthly = []*models.MonthlyBooking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": single, "monthly_bookings": monthly})
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	b, err := h.bookings.GetBooking(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	b, err := h.bookings.CancelBooking(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) rejectBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	b, err := h.bookings.RejectBooking(r.Context(), principal(r), id, body.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type monthlyRequest struct {
	SeatID     int64  `json:"seat_id"`
	TimeSlotID int64  `json:"time_slot_id,omitempty"`
	StartDate  string `json:"start_date"`
}

func (h *Handler) createMonthly(w http.ResponseWriter, r *http.Request) {
	h.createMonthlyWith(w, r, h.bookings.CreateMonthlyBooking)
}

// createMonthlyLegacy keeps the library-fee pricing reachable for old
// clients. Responses carry a Deprecation header.
func (h *Handler) createMonthlyLegacy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Deprecation", "true")
	h.createMonthlyWith(w, r, h.bookings.CreateMonthlyBookingLegacy)
}

type monthlyCreator func(ctx context.Context, p models.Principal, req service.MonthlyBookingRequest) (*service.MonthlyBookingResult, error)

func (h *Handler) createMonthlyWith(w http.ResponseWriter, r *http.Request, create monthlyCreator) {
	var body monthlyRequest
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := create(r.Context(), principal(r), service.MonthlyBookingRequest{
		SeatID:     body.SeatID,
		TimeSlotID: body.TimeSlotID,
		StartDate:  start,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) cancelMonthly(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	m, err := h.bookings.CancelMonthlyBooking(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	seatID, err := queryInt(r, "seat_id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	slotID, err := queryInt(r, "time_slot_id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	start, err := parseDate("start", q.Get("start"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	end, err := parseDate("end", q.Get("end"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if end.IsZero() {
		end = start
	}

	days, err := h.bookings.Availability(r.Context(), seatID, slotID, start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	results := make([]map[string]any, 0, len(days))
	for _, d := range days {
		results = append(results, map[string]any{
			"date":      d.Date.Format("2006-01-02"),
			"available": d.Available,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type attendanceRequest struct {
	LibraryID int64  `json:"library_id"`
	Method    string `json:"method,omitempty"`
}

func (h *Handler) decodeAttendance(w http.ResponseWriter, r *http.Request) (attendanceRequest, bool) {
	var body attendanceRequest
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return body, false
	}
	return body, true
}

func (h *Handler) attend(w http.ResponseWriter, r *http.Request) {
	action := strings.ReplaceAll(chi.URLParam(r, "action"), "-", "")
	body, ok := h.decodeAttendance(w, r)
	if !ok {
		return
	}
	res, err := h.attendance.Attend(r.Context(), principal(r), body.LibraryID, action, body.Method)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	body, ok := h.decodeAttendance(w, r)
	if !ok {
		return
	}
	a, err := h.attendance.CheckIn(r.Context(), principal(r), body.LibraryID, id, body.Method)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	body, ok := h.decodeAttendance(w, r)
	if !ok {
		return
	}
	a, err := h.attendance.CheckOut(r.Context(), principal(r), body.LibraryID, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) monthlyCheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	body, ok := h.decodeAttendance(w, r)
	if !ok {
		return
	}
	doc, err := h.attendance.MonthlyCheckIn(r.Context(), principal(r), body.LibraryID, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) monthlyCheckOut(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	body, ok := h.decodeAttendance(w, r)
	if !ok {
		return
	}
	doc, err := h.attendance.MonthlyCheckOut(r.Context(), principal(r), body.LibraryID, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) monthlyAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	days, err := h.attendance.MonthlyAttendanceHistory(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if days == nil {
		days = []*models.MonthlyAttendance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *Handler) todayAttendance(w http.ResponseWriter, r *http.Request) {
	libraryID, err := queryInt(r, "library_id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rows, err := h.attendance.TodayAttendance(r.Context(), principal(r), libraryID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []*models.Attendance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": rows})
}

func (h *Handler) wallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.wallets.Balance(r.Context(), principal(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	txs, err := h.wallets.Transactions(r.Context(), principal(r), int(limit))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	tx, err := h.wallets.Withdraw(r.Context(), principal(r), amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// topUp is the hook the payment gateway adapter calls after a verified
// payment; reference is the gateway payment id.
func (h *Handler) topUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    int64  `json:"user_id"`
		Amount    string `json:"amount"`
		Reference string `json:"reference"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	tx, err := h.wallets.TopUp(r.Context(), body.UserID, amount, body.Reference)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rep, err := h.wallets.Reconcile(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := h.sweeps.RunSweep(r.Context(), h.now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"skipped":           rep.Skipped,
		"missed":            rep.Missed,
		"no_checkout":       rep.NoCheckout,
		"completed":         rep.Completed,
		"monthly_missed":    rep.MonthlyMissed,
		"monthly_completed": rep.MonthlyCompleted,
		"sessions_closed":   rep.SessionsClosed,
		"total":             rep.Total(),
	})
}

func (h *Handler) exportLibrary(w http.ResponseWriter, r *http.Request) {
	libraryID, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	start, err := parseDate("start", q.Get("start"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	end, err := parseDate("end", q.Get("end"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if start.IsZero() || end.IsZero() {
		h.writeServiceError(w, r, domain.InvalidInput("start and end are required"))
		return
	}

	path, err := h.exporter.LibraryStatement(r.Context(), principal(r), libraryID, start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}
