package service

import (
	"context"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/events"
	"seatbook/internal/metrics"
	"seatbook/internal/models"
)

// CancelBooking lets the owner cancel a pending or confirmed single-day
// booking while its slot starts more than the grace period from now. A paid
// booking is refunded in full in the same transaction.
func (s *BookingService) CancelBooking(ctx context.Context, p models.Principal, bookingID int64) (*models.Booking, error) {
	now := s.now()
	var b *models.Booking
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var err error
		b, err = q.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.UserID != p.UserID {
			return domain.Forbidden("booking %d belongs to another user", bookingID)
		}
		if b.Status != models.StatusPending && b.Status != models.StatusConfirmed {
			return domain.InvalidState("booking is %s and can no longer be cancelled", b.Status)
		}

		slot, err := q.GetTimeSlot(ctx, b.TimeSlotID)
		if err != nil {
			return err
		}
		start, _, err := slot.Window(b.BookingDate, s.policy.Location)
		if err != nil {
			return err
		}
		if start.Sub(now) <= s.policy.CancelGrace {
			return domain.InvalidState("cancellation window passed")
		}

		prev := b.Status
		if err := s.refundBooking(ctx, q, b); err != nil {
			return err
		}
		at := now.UTC()
		actor := p.UserID
		b.Status = models.StatusCancelled
		b.CancelledAt = &at
		b.CancelledBy = &actor
		return q.SaveBookingState(ctx, b, prev)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("booking_id", b.ID).Int64("user_id", p.UserID).Msg("booking cancelled")
	s.publishBooking(events.EventBookingCancelled, b, p.UserID, "")
	return b, nil
}

// RejectBooking is the librarian/admin counterpart of CancelBooking. It has
// no time gate; librarians may only reject bookings at their own library.
func (s *BookingService) RejectBooking(ctx context.Context, p models.Principal, bookingID int64, reason string) (*models.Booking, error) {
	if !p.IsAdmin() && !p.IsLibrarian() {
		return nil, domain.Forbidden("only librarians and admins can reject bookings")
	}
	now := s.now()
	var b *models.Booking
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var err error
		b, err = q.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !p.IsAdmin() {
			lib, err := q.GetLibrary(ctx, b.LibraryID)
			if err != nil {
				return err
			}
			if lib.OwnerID != p.UserID {
				return domain.Forbidden("library %d is managed by another librarian", lib.ID)
			}
		}
		if b.Status != models.StatusPending && b.Status != models.StatusConfirmed {
			return domain.InvalidState("booking is %s and can no longer be rejected", b.Status)
		}

		prev := b.Status
		if err := s.refundBooking(ctx, q, b); err != nil {
			return err
		}
		at := now.UTC()
		actor := p.UserID
		b.Status = models.StatusRejected
		b.RejectedAt = &at
		b.RejectedBy = &actor
		b.RejectReason = reason
		return q.SaveBookingState(ctx, b, prev)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("booking_id", b.ID).Int64("rejected_by", p.UserID).Str("reason", reason).Msg("booking rejected by library")
	s.publishBooking(events.EventBookingRejected, b, p.UserID, reason)
	return b, nil
}

// CancelMonthlyBooking cancels a monthly booking up to one grace period
// after its start date. Terminal bookings are refused.
func (s *BookingService) CancelMonthlyBooking(ctx context.Context, p models.Principal, id int64) (*models.MonthlyBooking, error) {
	now := s.now()
	var m *models.MonthlyBooking
	err := s.store.WithTx(ctx, func(q domain.Queries) error {
		var err error
		m, err = q.GetMonthlyBooking(ctx, id)
		if err != nil {
			return err
		}
		if m.UserID != p.UserID {
			return domain.Forbidden("monthly booking %d belongs to another user", id)
		}
		switch m.Status {
		case models.StatusCancelled, models.StatusCompleted, models.StatusRejected, models.StatusMissed:
			return domain.InvalidState("monthly booking is %s and can no longer be cancelled", m.Status)
		}
		deadline := s.policy.midnight(m.StartDate).Add(s.policy.MonthlyCancelGrace)
		if !now.Before(deadline) {
			return domain.InvalidState("cancellation window passed")
		}

		prev := m.Status
		if m.PaymentStatus == models.PaymentPaid {
			if _, err := refund(ctx, q, m.UserID, s.policy.Currency, m.Amount, models.Linkage{MonthlyBookingID: &m.ID}); err != nil {
				return err
			}
			m.PaymentStatus = models.PaymentRefunded
		}
		at := now.UTC()
		actor := p.UserID
		m.Status = models.StatusCancelled
		m.CancelledAt = &at
		m.CancelledBy = &actor
		return q.SaveMonthlyState(ctx, m, prev)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("monthly_booking_id", m.ID).Int64("user_id", p.UserID).Msg("monthly booking cancelled")
	payload := events.BookingEventPayload{
		UserID:           m.UserID,
		MonthlyBookingID: m.ID,
		LibraryID:        m.LibraryID,
		SeatID:           m.SeatID,
		Status:           m.Status,
		Amount:           m.Amount.String(),
		ChangedByID:      p.UserID,
	}
	publish(s.eventBus, s.logger, events.EventMonthlyBookingCancelled, payload)
	if m.PaymentStatus == models.PaymentRefunded {
		metrics.IncRefund("monthly_cancel")
		publish(s.eventBus, s.logger, events.EventRefundIssued, payload)
	}
	return m, nil
}

// refundBooking credits a paid booking's amount back to its owner.
func (s *BookingService) refundBooking(ctx context.Context, q domain.Queries, b *models.Booking) error {
	if b.PaymentStatus != models.PaymentPaid {
		return nil
	}
	if _, err := refund(ctx, q, b.UserID, s.policy.Currency, b.Amount, models.Linkage{BookingIDs: []int64{b.ID}}); err != nil {
		return err
	}
	b.PaymentStatus = models.PaymentRefunded
	return nil
}

func (s *BookingService) publishBooking(eventType string, b *models.Booking, actor int64, reason string) {
	payload := events.BookingEventPayload{
		UserID:      b.UserID,
		BookingIDs:  []int64{b.ID},
		LibraryID:   b.LibraryID,
		SeatID:      b.SeatID,
		TimeSlotID:  b.TimeSlotID,
		Status:      b.Status,
		Dates:       dateStrings([]time.Time{b.BookingDate}),
		Amount:      b.Amount.String(),
		ChangedByID: actor,
		Reason:      reason,
	}
	publish(s.eventBus, s.logger, eventType, payload)
	if b.PaymentStatus == models.PaymentRefunded {
		metrics.IncRefund(eventType)
		publish(s.eventBus, s.logger, events.EventRefundIssued, payload)
	}
}
