package service

import (
	"context"
	"fmt"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/events"
	"seatbook/internal/metrics"
	"seatbook/internal/models"

	"github.com/rs/zerolog"
)

const SweepLockKey = "seatbook:sweep:lock"

// SweepReport counts the transitions one sweep applied.
type SweepReport struct {
	Skipped          bool `json:"skipped"`
	Missed           int  `json:"missed"`
	NoCheckout       int  `json:"no_checkout"`
	Completed        int  `json:"completed"`
	MonthlyMissed    int  `json:"monthly_missed"`
	MonthlyCompleted int  `json:"monthly_completed"`
	SessionsClosed   int  `json:"sessions_closed"`
}

func (r SweepReport) Total() int {
	return r.Missed + r.NoCheckout + r.Completed + r.MonthlyMissed + r.MonthlyCompleted + r.SessionsClosed
}

// SweepService relabels bookings whose time has passed without a proper
// check-in/check-out cycle. Every transition is conditional on the status it
// read, so overlapping or repeated runs change nothing twice.
type SweepService struct {
	store    domain.Store
	locker   domain.Locker
	eventBus domain.EventPublisher
	grace    time.Duration
	lockTTL  time.Duration
	loc      *time.Location
	logger   *zerolog.Logger
}

// NewSweepService builds the sweeper. locker may be nil when a single
// process runs the sweep.
func NewSweepService(store domain.Store, locker domain.Locker, eventBus domain.EventPublisher,
	grace, lockTTL time.Duration, loc *time.Location, logger *zerolog.Logger) *SweepService {
	if loc == nil {
		loc = time.UTC
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &SweepService{
		store:    store,
		locker:   locker,
		eventBus: eventBus,
		grace:    grace,
		lockTTL:  lockTTL,
		loc:      loc,
		logger:   logger,
	}
}

// RunSweep applies every due transition as of now.
func (s *SweepService) RunSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var rep SweepReport
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, SweepLockKey, s.lockTTL)
		if err != nil {
			metrics.IncSweepRun("error")
			return rep, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			s.logger.Info().Msg("sweep already running elsewhere, skipping")
			metrics.IncSweepRun("skipped")
			rep.Skipped = true
			return rep, nil
		}
		defer unlock()
	}

	if err := s.sweepSingle(ctx, now, &rep); err != nil {
		metrics.IncSweepRun("error")
		return rep, err
	}
	if err := s.sweepMonthly(ctx, now, &rep); err != nil {
		metrics.IncSweepRun("error")
		return rep, err
	}
	if err := s.closeStaleSessions(ctx, now, &rep); err != nil {
		metrics.IncSweepRun("error")
		return rep, err
	}

	metrics.AddSweepTransitions(models.StatusMissed, rep.Missed+rep.MonthlyMissed)
	metrics.AddSweepTransitions(models.StatusNoCheckout, rep.NoCheckout)
	metrics.AddSweepTransitions(models.StatusCompleted, rep.Completed+rep.MonthlyCompleted)
	metrics.AddSweepTransitions("session_closed", rep.SessionsClosed)
	metrics.IncSweepRun("ok")
	s.logger.Info().
		Int("missed", rep.Missed).
		Int("no_checkout", rep.NoCheckout).
		Int("completed", rep.Completed).
		Int("monthly_missed", rep.MonthlyMissed).
		Int("monthly_completed", rep.MonthlyCompleted).
		Int("sessions_closed", rep.SessionsClosed).
		Msg("sweep finished")
	return rep, nil
}

func (s *SweepService) sweepSingle(ctx context.Context, now time.Time, rep *SweepReport) error {
	stale, err := s.store.ListStaleBookings(ctx, models.DateIn(now, s.loc))
	if err != nil {
		return err
	}
	for _, sb := range stale {
		_, end, err := sb.Slot.Window(sb.BookingDate, s.loc)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", sb.BookingID).Msg("bad slot window, skipping")
			continue
		}
		if now.Sub(end) <= s.grace {
			continue
		}

		target, eventType := models.StatusCompleted, events.EventBookingCompleted
		switch {
		case sb.AttendanceRows == 0:
			target, eventType = models.StatusMissed, events.EventBookingMissed
		case sb.OpenRows > 0:
			target, eventType = models.StatusNoCheckout, events.EventBookingNoCheckout
		}

		ok, err := s.store.TransitionBookingStatus(ctx, sb.BookingID, sb.Status, target)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch target {
		case models.StatusMissed:
			rep.Missed++
		case models.StatusNoCheckout:
			rep.NoCheckout++
		default:
			rep.Completed++
		}
		s.logger.Debug().Int64("booking_id", sb.BookingID).Str("from", sb.Status).Str("to", target).Msg("booking swept")
		publish(s.eventBus, s.logger, eventType, events.BookingEventPayload{
			UserID:     sb.UserID,
			BookingIDs: []int64{sb.BookingID},
			LibraryID:  sb.Slot.LibraryID,
			TimeSlotID: sb.Slot.ID,
			Status:     target,
			Dates:      dateStrings([]time.Time{sb.BookingDate}),
		})
	}
	return nil
}

func (s *SweepService) sweepMonthly(ctx context.Context, now time.Time, rep *SweepReport) error {
	ended, err := s.store.ListEndedMonthly(ctx, models.DateIn(now, s.loc))
	if err != nil {
		return err
	}
	for _, em := range ended {
		y, m, d := em.EndDate.Date()
		closesAt := time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
		if !now.After(closesAt) {
			continue
		}

		target, eventType := models.StatusCompleted, events.EventMonthlyBookingCompleted
		if em.AttendanceDays == 0 {
			target, eventType = models.StatusMissed, events.EventMonthlyBookingMissed
		}
		ok, err := s.store.TransitionMonthlyStatus(ctx, em.ID, em.Status, target)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if target == models.StatusMissed {
			rep.MonthlyMissed++
		} else {
			rep.MonthlyCompleted++
		}
		publish(s.eventBus, s.logger, eventType, events.BookingEventPayload{
			UserID:           em.UserID,
			MonthlyBookingID: em.ID,
			Status:           target,
			Dates:            dateStrings([]time.Time{em.StartDate, em.EndDate}),
		})
	}
	return nil
}

// closeStaleSessions closes monthly sessions still open from an earlier day.
// Check-out only works on the day of check-in, so nothing else would ever
// close them. They are recorded with zero duration.
func (s *SweepService) closeStaleSessions(ctx context.Context, now time.Time, rep *SweepReport) error {
	open, err := s.store.ListOpenMonthlyAttendance(ctx, models.DateIn(now, s.loc))
	if err != nil {
		return err
	}
	for _, doc := range open {
		closed := 0
		err := s.store.WithTx(ctx, func(q domain.Queries) error {
			cur, err := q.GetMonthlyAttendance(ctx, doc.MonthlyBookingID, doc.Date)
			if err != nil {
				return err
			}
			for i := cur.OpenSession(); i >= 0; i = cur.OpenSession() {
				cur.AutoClose(i)
				closed++
			}
			if closed == 0 {
				return nil
			}
			return q.SaveMonthlyAttendance(ctx, cur)
		})
		if err != nil {
			return err
		}
		if closed == 0 {
			continue
		}
		rep.SessionsClosed += closed
		s.logger.Debug().Int64("monthly_booking_id", doc.MonthlyBookingID).
			Str("date", doc.Date.Format(models.DateLayout)).Int("sessions", closed).Msg("stale session closed")
	}
	return nil
}
