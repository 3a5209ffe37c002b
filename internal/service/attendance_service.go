package service

import (
	"context"
	"errors"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/events"
	"seatbook/internal/metrics"
	"seatbook/internal/models"

	"github.com/rs/zerolog"
)

const (
	ActionCheckIn  = "checkin"
	ActionCheckOut = "checkout"
)

// AttendanceService runs the check-in/check-out state machines. Single-day
// bookings allow one session; monthly bookings allow any number of
// sessions per calendar day, one open at a time.
type AttendanceService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	policy   Policy
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewAttendanceService(store domain.Store, eventBus domain.EventPublisher, policy Policy, logger *zerolog.Logger) *AttendanceService {
	return &AttendanceService{
		store:    store,
		eventBus: eventBus,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// AttendanceResult is what the dispatcher returns: exactly one of Single
// and Day is set.
type AttendanceResult struct {
	Kind      string                    `json:"kind"`
	BookingID int64                     `json:"booking_id"`
	Single    *models.Attendance        `json:"attendance,omitempty"`
	Day       *models.MonthlyAttendance `json:"day,omitempty"`
}

func (s *AttendanceService) ownedBooking(ctx context.Context, q domain.Queries, p models.Principal, libraryID, bookingID int64) (*models.Booking, error) {
	b, err := q.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != p.UserID {
		return nil, domain.Forbidden("booking %d belongs to another user", bookingID)
	}
	if libraryID != 0 && b.LibraryID != libraryID {
		return nil, domain.InvalidInput("booking %d is not for library %d", bookingID, libraryID)
	}
	return b, nil
}

// CheckIn opens the single session of a single-day booking. The current
// time must lie within the slot window, both ends inclusive.
func (s *AttendanceService) CheckIn(ctx context.Context, p models.Principal, libraryID, bookingID int64, method string) (*models.Attendance, error) {
	if method == "" {
		method = models.MethodQR
	}
	if !models.IsValidMethod(method) {
		return nil, domain.InvalidInput("unknown check-in method %q", method)
	}
	now := s.now()

	var a *models.Attendance
	var b *models.Booking
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var err error
		b, err = s.ownedBooking(ctx, q, p, libraryID, bookingID)
		if err != nil {
			return err
		}
		switch b.Status {
		case models.StatusConfirmed, models.StatusCheckedIn:
		case models.StatusCompleted:
			return &domain.Error{Kind: domain.ErrAlreadyCompleted, Message: "booking already checked out"}
		default:
			return domain.InvalidState("booking is %s", b.Status)
		}

		slot, err := q.GetTimeSlot(ctx, b.TimeSlotID)
		if err != nil {
			return err
		}
		from, to, err := slot.Window(b.BookingDate, s.policy.Location)
		if err != nil {
			return err
		}
		if now.Before(from) || now.After(to) {
			return &domain.OutOfWindowError{From: from, To: to}
		}

		latest, err := q.LatestAttendance(ctx, b.ID)
		switch {
		case err == nil && latest.IsOpen():
			return &domain.Error{Kind: domain.ErrAlreadyActive, Message: "already checked in, check out first"}
		case err == nil:
			return &domain.Error{Kind: domain.ErrAlreadyCompleted, Message: "booking already checked out"}
		case !isNotFound(err):
			return err
		}

		a = &models.Attendance{
			UserID:      b.UserID,
			LibraryID:   b.LibraryID,
			BookingID:   b.ID,
			TimeSlotID:  b.TimeSlotID,
			CheckInTime: now.UTC(),
			Method:      method,
		}
		if err := q.CreateAttendance(ctx, a); err != nil {
			return err
		}
		if b.Status == models.StatusConfirmed {
			ok, err := q.TransitionBookingStatus(ctx, b.ID, models.StatusConfirmed, models.StatusCheckedIn)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrConcurrentModification
			}
			b.Status = models.StatusCheckedIn
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAttendance("single", ActionCheckIn)
	s.logger.Info().Int64("booking_id", b.ID).Int64("user_id", p.UserID).Str("method", method).Msg("checked in")
	publish(s.eventBus, s.logger, events.EventCheckedIn, events.AttendanceEventPayload{
		UserID: b.UserID, BookingID: b.ID, LibraryID: b.LibraryID, At: a.CheckInTime,
	})
	return a, nil
}

// CheckOut closes the open session and completes the booking.
func (s *AttendanceService) CheckOut(ctx context.Context, p models.Principal, libraryID, bookingID int64) (*models.Attendance, error) {
	now := s.now()

	var a *models.Attendance
	var b *models.Booking
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var err error
		b, err = s.ownedBooking(ctx, q, p, libraryID, bookingID)
		if err != nil {
			return err
		}

		a, err = q.LatestAttendance(ctx, b.ID)
		if isNotFound(err) || (err == nil && !a.IsOpen()) {
			return &domain.Error{Kind: domain.ErrNoActiveSession, Message: "no open check-in for this booking"}
		}
		if err != nil {
			return err
		}

		a.Close(now.UTC())
		if err := q.CloseAttendance(ctx, a); err != nil {
			return err
		}
		if b.Status == models.StatusCheckedIn || b.Status == models.StatusConfirmed {
			ok, err := q.TransitionBookingStatus(ctx, b.ID, b.Status, models.StatusCompleted)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrConcurrentModification
			}
			b.Status = models.StatusCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAttendance("single", ActionCheckOut)
	s.logger.Info().Int64("booking_id", b.ID).Int("duration_minutes", *a.DurationMinutes).Msg("checked out")
	publish(s.eventBus, s.logger, events.EventCheckedOut, events.AttendanceEventPayload{
		UserID: b.UserID, BookingID: b.ID, LibraryID: b.LibraryID, At: *a.CheckOutTime,
		DurationMinutes: *a.DurationMinutes,
	})
	return a, nil
}

func (s *AttendanceService) ownedMonthly(ctx context.Context, q domain.Queries, p models.Principal, libraryID, id int64) (*models.MonthlyBooking, error) {
	m, err := q.GetMonthlyBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.UserID != p.UserID {
		return nil, domain.Forbidden("monthly booking %d belongs to another user", id)
	}
	if libraryID != 0 && m.LibraryID != libraryID {
		return nil, domain.InvalidInput("monthly booking %d is not for library %d", id, libraryID)
	}
	return m, nil
}

// MonthlyCheckIn opens a new session in today's attendance document.
func (s *AttendanceService) MonthlyCheckIn(ctx context.Context, p models.Principal, libraryID, monthlyID int64) (*models.MonthlyAttendance, error) {
	now := s.now()
	today := s.policy.today(now)

	var doc *models.MonthlyAttendance
	var m *models.MonthlyBooking
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var err error
		m, err = s.ownedMonthly(ctx, q, p, libraryID, monthlyID)
		if err != nil {
			return err
		}
		if m.Status != models.StatusConfirmed {
			return domain.InvalidState("monthly booking is %s", m.Status)
		}
		if !m.Covers(today) {
			return &domain.OutOfWindowError{
				From: s.policy.midnight(m.StartDate),
				To:   s.policy.midnight(m.EndDate).AddDate(0, 0, 1).Add(-time.Second),
			}
		}

		doc, err = q.GetMonthlyAttendance(ctx, m.ID, today)
		if isNotFound(err) {
			doc = &models.MonthlyAttendance{MonthlyBookingID: m.ID, UserID: m.UserID, LibraryID: m.LibraryID, Date: today}
		} else if err != nil {
			return err
		}
		if doc.OpenSession() >= 0 {
			return &domain.Error{Kind: domain.ErrAlreadyActive, Message: "already checked in, check out first"}
		}
		doc.Open(now.UTC())
		return q.SaveMonthlyAttendance(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAttendance("monthly", ActionCheckIn)
	s.logger.Info().Int64("monthly_booking_id", m.ID).Int64("user_id", p.UserID).Int("session", len(doc.Sessions)).Msg("monthly check-in")
	publish(s.eventBus, s.logger, events.EventCheckedIn, events.AttendanceEventPayload{
		UserID: m.UserID, BookingID: m.ID, Monthly: true, LibraryID: m.LibraryID, At: now.UTC(),
	})
	return doc, nil
}

// MonthlyCheckOut closes today's open session and recomputes the day total.
func (s *AttendanceService) MonthlyCheckOut(ctx context.Context, p models.Principal, libraryID, monthlyID int64) (*models.MonthlyAttendance, error) {
	now := s.now()
	today := s.policy.today(now)

	var doc *models.MonthlyAttendance
	var m *models.MonthlyBooking
	var closed int
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var err error
		m, err = s.ownedMonthly(ctx, q, p, libraryID, monthlyID)
		if err != nil {
			return err
		}
		doc, err = q.GetMonthlyAttendance(ctx, m.ID, today)
		if isNotFound(err) {
			return &domain.Error{Kind: domain.ErrNoActiveSession, Message: "no check-in recorded today"}
		}
		if err != nil {
			return err
		}
		i := doc.OpenSession()
		if i < 0 {
			return &domain.Error{Kind: domain.ErrNoActiveSession, Message: "no open session today"}
		}
		doc.CloseSession(i, now.UTC())
		closed = *doc.Sessions[i].DurationMinutes
		return q.SaveMonthlyAttendance(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAttendance("monthly", ActionCheckOut)
	s.logger.Info().Int64("monthly_booking_id", m.ID).Int("duration_minutes", closed).
		Int("total_minutes", doc.TotalDurationMinutes).Msg("monthly check-out")
	publish(s.eventBus, s.logger, events.EventCheckedOut, events.AttendanceEventPayload{
		UserID: m.UserID, BookingID: m.ID, Monthly: true, LibraryID: m.LibraryID, At: now.UTC(),
		DurationMinutes: closed,
	})
	return doc, nil
}

// Attend routes a check-in or check-out to the right state machine: a
// confirmed monthly booking covering today wins over today's single-day
// bookings.
func (s *AttendanceService) Attend(ctx context.Context, p models.Principal, libraryID int64, action, method string) (*AttendanceResult, error) {
	if action != ActionCheckIn && action != ActionCheckOut {
		return nil, domain.InvalidInput("unknown attendance action %q", action)
	}
	if libraryID <= 0 {
		return nil, domain.InvalidInput("library_id is required")
	}
	today := s.policy.today(s.now())

	m, err := s.store.FindActiveMonthlyCovering(ctx, p.UserID, libraryID, today)
	switch {
	case err == nil:
		var doc *models.MonthlyAttendance
		if action == ActionCheckIn {
			doc, err = s.MonthlyCheckIn(ctx, p, libraryID, m.ID)
		} else {
			doc, err = s.MonthlyCheckOut(ctx, p, libraryID, m.ID)
		}
		if err != nil {
			return nil, err
		}
		return &AttendanceResult{Kind: "monthly", BookingID: m.ID, Day: doc}, nil
	case !isNotFound(err):
		return nil, err
	}

	bookings, err := s.store.FindUserBookingsForDate(ctx, p.UserID, libraryID, today)
	if err != nil {
		return nil, err
	}
	b := pickBooking(bookings, action)
	if b == nil {
		return nil, &domain.Error{Kind: domain.ErrNoBooking, Message: "no booking at this library today"}
	}

	var a *models.Attendance
	if action == ActionCheckIn {
		a, err = s.CheckIn(ctx, p, libraryID, b.ID, method)
	} else {
		a, err = s.CheckOut(ctx, p, libraryID, b.ID)
	}
	if err != nil {
		return nil, err
	}
	return &AttendanceResult{Kind: "single", BookingID: b.ID, Single: a}, nil
}

// pickBooking chooses among today's bookings, which arrive ordered by slot
// start. Check-out prefers a checked-in booking; check-in prefers one still
// awaiting arrival.
func pickBooking(bookings []*models.Booking, action string) *models.Booking {
	if len(bookings) == 0 {
		return nil
	}
	want := models.StatusConfirmed
	if action == ActionCheckOut {
		want = models.StatusCheckedIn
	}
	for _, b := range bookings {
		if b.Status == want {
			return b
		}
	}
	for _, b := range bookings {
		if models.IsActive(b.Status) {
			return b
		}
	}
	return bookings[0]
}

// TodayAttendance lists the caller's single-day check-ins at a library today.
func (s *AttendanceService) TodayAttendance(ctx context.Context, p models.Principal, libraryID int64) ([]*models.Attendance, error) {
	from := s.policy.midnight(s.policy.today(s.now()))
	return s.store.ListUserAttendance(ctx, p.UserID, libraryID, from, from.AddDate(0, 0, 1))
}

// MonthlyAttendanceHistory returns every attendance day of a monthly booking.
func (s *AttendanceService) MonthlyAttendanceHistory(ctx context.Context, p models.Principal, monthlyID int64) ([]*models.MonthlyAttendance, error) {
	m, err := s.store.GetMonthlyBooking(ctx, monthlyID)
	if err != nil {
		return nil, err
	}
	if m.UserID != p.UserID && !p.IsAdmin() {
		return nil, domain.Forbidden("monthly booking %d belongs to another user", monthlyID)
	}
	days, err := s.store.ListMonthlyAttendance(ctx, monthlyID)
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []*models.MonthlyAttendance{}
	}
	return days, nil
}

// IsStateError reports whether err is an attendance state violation.
func IsStateError(err error) bool {
	return errors.Is(err, domain.ErrAlreadyActive) || errors.Is(err, domain.ErrAlreadyCompleted) ||
		errors.Is(err, domain.ErrNoActiveSession) || errors.Is(err, domain.ErrNoBooking)
}
