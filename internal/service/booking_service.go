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
	"github.com/shopspring/decimal"
)

type BookingService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	policy   Policy
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(store domain.Store, eventBus domain.EventPublisher, policy Policy, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		store:    store,
		eventBus: eventBus,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateBookingRequest asks for one seat/slot on every date in
// [StartDate, EndDate]. A zero EndDate books StartDate only.
type CreateBookingRequest struct {
	SeatID     int64     `json:"seat_id"`
	TimeSlotID int64     `json:"time_slot_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

type BookingResult struct {
	Bookings    []*models.Booking     `json:"bookings"`
	Transaction *models.Transaction   `json:"transaction"`
	Summary     models.BookingSummary `json:"summary"`
}

type MonthlyBookingRequest struct {
	SeatID     int64     `json:"seat_id"`
	TimeSlotID int64     `json:"time_slot_id"`
	StartDate  time.Time `json:"start_date"`
}

type MonthlyBookingResult struct {
	Booking     *models.MonthlyBooking `json:"booking"`
	Transaction *models.Transaction    `json:"transaction"`
	Summary     models.BookingSummary  `json:"summary"`
}

// PriceRange computes the charge for days of a slot. The settings snapshot
// is mandatory.
func PriceRange(slotPrice decimal.Decimal, settings *models.Settings, days int) (models.BookingSummary, error) {
	if settings == nil {
		return models.BookingSummary{}, domain.InvalidState("pricing settings missing")
	}
	n := decimal.NewFromInt(int64(days))
	sum := models.BookingSummary{
		TotalDays:  days,
		SlotPrice:  slotPrice.Mul(n),
		Commission: settings.BookingCommission.Mul(n),
	}
	sum.TotalAmount = sum.SlotPrice.Add(sum.Commission)
	return sum, nil
}

// PriceMonthly is the flat monthly charge: base fee plus one commission.
func PriceMonthly(base decimal.Decimal, settings *models.Settings, windowDays int) (models.BookingSummary, error) {
	if settings == nil {
		return models.BookingSummary{}, domain.InvalidState("pricing settings missing")
	}
	return models.BookingSummary{
		TotalDays:   windowDays,
		SlotPrice:   base,
		Commission:  settings.BookingCommission,
		TotalAmount: base.Add(settings.BookingCommission),
	}, nil
}

func loadSettings(ctx context.Context, q domain.Queries) (*models.Settings, error) {
	s, err := q.GetSettings(ctx)
	if isNotFound(err) {
		return nil, domain.InvalidState("pricing settings missing")
	}
	return s, err
}

// loadSeatSlot resolves and cross-checks the seat and slot of a request.
func loadSeatSlot(ctx context.Context, q domain.Queries, seatID, slotID int64) (*models.Seat, *models.TimeSlot, error) {
	seat, err := q.GetSeat(ctx, seatID)
	if err != nil {
		return nil, nil, err
	}
	slot, err := q.GetTimeSlot(ctx, slotID)
	if err != nil {
		return nil, nil, err
	}
	if slot.LibraryID != seat.LibraryID {
		return nil, nil, domain.InvalidInput("time slot %d does not belong to the seat's library", slotID)
	}
	if !seat.IsActive {
		return nil, nil, domain.InvalidState("seat %d is inactive", seatID)
	}
	if !slot.IsActive {
		return nil, nil, domain.InvalidState("time slot %d is inactive", slotID)
	}
	serves, err := q.SeatServesSlot(ctx, seatID, slotID)
	if err != nil {
		return nil, nil, err
	}
	if !serves {
		return nil, nil, domain.InvalidInput("time slot %d is not offered for seat %d", slotID, seatID)
	}
	return seat, slot, nil
}

func (s *BookingService) validateRange(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() {
		return time.Time{}, time.Time{}, domain.InvalidInput("start date is required")
	}
	if end.IsZero() {
		end = start
	}
	start, end = models.NormalizeDate(start), models.NormalizeDate(end)
	if start.After(end) {
		return time.Time{}, time.Time{}, domain.InvalidInput("start date is after end date")
	}
	if start.Before(s.policy.today(s.now())) {
		return time.Time{}, time.Time{}, domain.InvalidInput("start date is in the past")
	}
	if days := models.DaysInclusive(start, end); days > s.policy.MaxRangeDays {
		return time.Time{}, time.Time{}, domain.InvalidInput("range of %d days exceeds the limit of %d", days, s.policy.MaxRangeDays)
	}
	return start, end, nil
}

// CreateBooking books one seat/slot for each date in the requested range and
// charges the wallet once for all of them. Nothing persists on failure.
func (s *BookingService) CreateBooking(ctx context.Context, p models.Principal, req CreateBookingRequest) (*BookingResult, error) {
	if req.SeatID <= 0 || req.TimeSlotID <= 0 {
		return nil, domain.InvalidInput("seat_id and time_slot_id are required")
	}
	start, end, err := s.validateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	var res *BookingResult
	err = s.store.WithTx(ctx, func(q domain.Queries) error {
		seat, slot, err := loadSeatSlot(ctx, q, req.SeatID, req.TimeSlotID)
		if err != nil {
			return err
		}
		settings, err := loadSettings(ctx, q)
		if err != nil {
			return err
		}

		taken, err := q.ConflictingDates(ctx, seat.ID, slot.ID, seat.LibraryID, start, end)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &domain.ConflictError{Dates: taken}
		}

		summary, err := PriceRange(slot.Price, settings, models.DaysInclusive(start, end))
		if err != nil {
			return err
		}

		_, entry, err := debit(ctx, q, p.UserID, s.policy.Currency, summary.TotalAmount, "Seat booking")
		if err != nil {
			return err
		}

		perDay := slot.Price.Add(settings.BookingCommission)
		bookings := make([]*models.Booking, 0, summary.TotalDays)
		ids := make([]int64, 0, summary.TotalDays)
		for _, date := range models.EachDate(start, end) {
			b := &models.Booking{
				UserID:        p.UserID,
				SeatID:        seat.ID,
				TimeSlotID:    slot.ID,
				LibraryID:     seat.LibraryID,
				BookingDate:   date,
				Status:        models.StatusConfirmed,
				PaymentStatus: models.PaymentPaid,
				Amount:        perDay,
				TransactionID: &entry.ID,
			}
			if err := q.CreateBooking(ctx, b); err != nil {
				if errors.Is(err, domain.ErrSlotTaken) {
					return &domain.ConflictError{Dates: []time.Time{date}}
				}
				return err
			}
			bookings = append(bookings, b)
			ids = append(ids, b.ID)
		}

		if err := settle(ctx, q, entry, models.Linkage{BookingIDs: ids}); err != nil {
			return err
		}
		res = &BookingResult{Bookings: bookings, Transaction: entry, Summary: summary}
		return nil
	})
	metrics.IncBooking("single", outcome(err))
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", p.UserID).Int64("seat_id", req.SeatID).
			Int64("time_slot_id", req.TimeSlotID).Msg("booking rejected")
		return nil, err
	}

	first := res.Bookings[0]
	s.logger.Info().Int64("user_id", p.UserID).Int64("transaction_id", res.Transaction.ID).
		Int("days", res.Summary.TotalDays).Str("amount", res.Summary.TotalAmount.String()).Msg("booking created")
	publish(s.eventBus, s.logger, events.EventBookingCreated, events.BookingEventPayload{
		UserID:     p.UserID,
		BookingIDs: res.Transaction.BookingIDs,
		LibraryID:  first.LibraryID,
		SeatID:     first.SeatID,
		TimeSlotID: first.TimeSlotID,
		Status:     first.Status,
		Dates:      dateStrings(models.EachDate(start, end)),
		Amount:     res.Summary.TotalAmount.String(),
	})
	return res, nil
}

// CreateMonthlyBooking is the slot-aware monthly variant: slot monthly price
// plus a flat commission, exclusive per (seat, slot) window.
func (s *BookingService) CreateMonthlyBooking(ctx context.Context, p models.Principal, req MonthlyBookingRequest) (*MonthlyBookingResult, error) {
	if req.SeatID <= 0 || req.TimeSlotID <= 0 {
		return nil, domain.InvalidInput("seat_id and time_slot_id are required")
	}
	return s.createMonthly(ctx, p, req, models.PricingSlot)
}

// CreateMonthlyBookingLegacy prices by the library's flat monthly fee and
// holds the seat for every slot.
//
// Deprecated: use CreateMonthlyBooking.
func (s *BookingService) CreateMonthlyBookingLegacy(ctx context.Context, p models.Principal, req MonthlyBookingRequest) (*MonthlyBookingResult, error) {
	if req.SeatID <= 0 {
		return nil, domain.InvalidInput("seat_id is required")
	}
	return s.createMonthly(ctx, p, req, models.PricingLibraryFee)
}

func (s *BookingService) createMonthly(ctx context.Context, p models.Principal, req MonthlyBookingRequest, pricing string) (*MonthlyBookingResult, error) {
	if req.StartDate.IsZero() {
		return nil, domain.InvalidInput("start date is required")
	}
	start := models.NormalizeDate(req.StartDate)
	if start.Before(s.policy.today(s.now())) {
		return nil, domain.InvalidInput("start date is in the past")
	}
	end := start.AddDate(0, 0, s.policy.MonthlyWindowDays-1)

	var res *MonthlyBookingResult
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var (
			seat     *models.Seat
			slotID   *int64
			base     decimal.Decimal
			err      error
			settings *models.Settings
		)

		if pricing == models.PricingSlot {
			var slot *models.TimeSlot
			seat, slot, err = loadSeatSlot(ctx, q, req.SeatID, req.TimeSlotID)
			if err != nil {
				return err
			}
			if slot.MonthlyPrice == nil {
				return domain.InvalidState("time slot %d has no monthly price", slot.ID)
			}
			base = *slot.MonthlyPrice
			slotID = &slot.ID
		} else {
			if req.TimeSlotID > 0 {
				// the slot is kept for reference; the booking still holds every slot
				var slot *models.TimeSlot
				if seat, slot, err = loadSeatSlot(ctx, q, req.SeatID, req.TimeSlotID); err != nil {
					return err
				}
				slotID = &slot.ID
			} else if seat, err = q.GetSeat(ctx, req.SeatID); err != nil {
				return err
			}
			if !seat.IsActive {
				return domain.InvalidState("seat %d is inactive", seat.ID)
			}
			lib, err := q.GetLibrary(ctx, seat.LibraryID)
			if err != nil {
				return err
			}
			if !lib.MonthlyFee.IsPositive() {
				return domain.InvalidState("library %d has no monthly fee", lib.ID)
			}
			base = lib.MonthlyFee
		}

		if settings, err = loadSettings(ctx, q); err != nil {
			return err
		}

		// the legacy variant holds the whole seat, so it checks seat-only
		check := slotID
		if pricing == models.PricingLibraryFee {
			check = nil
		}
		overlap, err := q.HasMonthlyOverlap(ctx, seat.ID, check, start, end)
		if err != nil {
			return err
		}
		if overlap {
			return &domain.ConflictError{WindowStart: start, WindowEnd: end}
		}

		summary, err := PriceMonthly(base, settings, s.policy.MonthlyWindowDays)
		if err != nil {
			return err
		}

		_, entry, err := debit(ctx, q, p.UserID, s.policy.Currency, summary.TotalAmount, "Monthly seat booking")
		if err != nil {
			return err
		}

		m := &models.MonthlyBooking{
			UserID:        p.UserID,
			SeatID:        seat.ID,
			TimeSlotID:    slotID,
			LibraryID:     seat.LibraryID,
			StartDate:     start,
			EndDate:       end,
			Amount:        summary.TotalAmount,
			Status:        models.StatusConfirmed,
			PaymentStatus: models.PaymentPaid,
			Pricing:       pricing,
			TransactionID: &entry.ID,
			BookedAt:      s.now().UTC(),
		}
		if err := q.CreateMonthlyBooking(ctx, m); err != nil {
			return err
		}
		if err := settle(ctx, q, entry, models.Linkage{MonthlyBookingID: &m.ID}); err != nil {
			return err
		}
		res = &MonthlyBookingResult{Booking: m, Transaction: entry, Summary: summary}
		return nil
	})
	metrics.IncBooking("monthly", outcome(err))
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", p.UserID).Int64("seat_id", req.SeatID).
			Str("pricing", pricing).Msg("monthly booking rejected")
		return nil, err
	}

	m := res.Booking
	s.logger.Info().Int64("user_id", p.UserID).Int64("monthly_booking_id", m.ID).Str("pricing", pricing).
		Str("amount", m.Amount.String()).Msg("monthly booking created")
	var slot int64
	if m.TimeSlotID != nil {
		slot = *m.TimeSlotID
	}
	publish(s.eventBus, s.logger, events.EventMonthlyBookingCreated, events.BookingEventPayload{
		UserID:           p.UserID,
		MonthlyBookingID: m.ID,
		LibraryID:        m.LibraryID,
		SeatID:           m.SeatID,
		TimeSlotID:       slot,
		Status:           m.Status,
		Dates:            dateStrings([]time.Time{m.StartDate, m.EndDate}),
		Amount:           m.Amount.String(),
	})
	return res, nil
}

// Availability reports per-date occupancy of a seat/slot over [start, end].
func (s *BookingService) Availability(ctx context.Context, seatID, slotID int64, start, end time.Time) ([]models.DateAvailability, error) {
	if seatID <= 0 || slotID <= 0 || start.IsZero() {
		return nil, domain.InvalidInput("seat_id, time_slot_id and start are required")
	}
	if end.IsZero() {
		end = start
	}
	start, end = models.NormalizeDate(start), models.NormalizeDate(end)
	if start.After(end) {
		return nil, domain.InvalidInput("start date is after end date")
	}
	if days := models.DaysInclusive(start, end); days > s.policy.MaxRangeDays {
		return nil, domain.InvalidInput("range of %d days exceeds the limit of %d", days, s.policy.MaxRangeDays)
	}

	seat, err := s.store.GetSeat(ctx, seatID)
	if err != nil {
		return nil, err
	}
	taken, err := s.store.ConflictingDates(ctx, seatID, slotID, seat.LibraryID, start, end)
	if err != nil {
		return nil, err
	}
	busy := make(map[string]bool, len(taken))
	for _, d := range taken {
		busy[d.Format(models.DateLayout)] = true
	}

	dates := models.EachDate(start, end)
	out := make([]models.DateAvailability, len(dates))
	for i, d := range dates {
		out[i] = models.DateAvailability{Date: d, Available: !busy[d.Format(models.DateLayout)]}
	}
	return out, nil
}

func (s *BookingService) GetBooking(ctx context.Context, p models.Principal, id int64) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID == p.UserID || p.IsAdmin() {
		return b, nil
	}
	if p.IsLibrarian() {
		lib, err := s.store.GetLibrary(ctx, b.LibraryID)
		if err != nil {
			return nil, err
		}
		if lib.OwnerID == p.UserID {
			return b, nil
		}
	}
	return nil, domain.Forbidden("booking %d belongs to another user", id)
}

// UserBookings lists the caller's single-day and monthly bookings.
func (s *BookingService) UserBookings(ctx context.Context, p models.Principal) ([]*models.Booking, []*models.MonthlyBooking, error) {
	single, err := s.store.ListUserBookings(ctx, p.UserID)
	if err != nil {
		return nil, nil, err
	}
	monthly, err := s.store.ListUserMonthlyBookings(ctx, p.UserID)
	if err != nil {
		return nil, nil, err
	}
	return single, monthly, nil
}
