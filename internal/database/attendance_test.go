package database

import (
	"context"
	"testing"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceEpisodes(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	b := newBooking(fx, 1, day("2025-01-01"))
	require.NoError(t, db.CreateBooking(ctx, b))

	_, err := db.LatestAttendance(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	in := time.Date(2025, 1, 1, 9, 5, 0, 0, time.UTC)
	a := &models.Attendance{UserID: 1, LibraryID: fx.library.ID, BookingID: b.ID,
		TimeSlotID: fx.slot.ID, CheckInTime: in, Method: models.MethodQR}
	require.NoError(t, db.CreateAttendance(ctx, a))

	t.Run("SecondOpenRowRejected", func(t *testing.T) {
		dup := *a
		dup.ID = 0
		assert.ErrorIs(t, db.CreateAttendance(ctx, &dup), domain.ErrAlreadyActive)
	})

	latest, err := db.LatestAttendance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, latest.IsOpen())
	assert.True(t, in.Equal(latest.CheckInTime))

	latest.Close(in.Add(95 * time.Minute))
	require.NoError(t, db.CloseAttendance(ctx, latest))

	closed, err := db.LatestAttendance(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())
	require.NotNil(t, closed.DurationMinutes)
	assert.Equal(t, 95, *closed.DurationMinutes)

	t.Run("CloseTwice", func(t *testing.T) {
		assert.ErrorIs(t, db.CloseAttendance(ctx, latest), domain.ErrNoActiveSession)
	})

	t.Run("ListUserAttendance", func(t *testing.T) {
		rows, err := db.ListUserAttendance(ctx, 1, fx.library.ID, day("2025-01-01"), day("2025-01-02"))
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		rows, err = db.ListUserAttendance(ctx, 1, fx.library.ID, day("2025-01-02"), day("2025-01-03"))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestMonthlyAttendanceDocument(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	m := newMonthly(fx, 1, day("2025-03-01"))
	require.NoError(t, db.CreateMonthlyBooking(ctx, m))

	date := day("2025-03-02")
	_, err := db.GetMonthlyAttendance(ctx, m.ID, date)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	doc := &models.MonthlyAttendance{MonthlyBookingID: m.ID, UserID: 1, LibraryID: fx.library.ID, Date: date}
	doc.Open(time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, db.SaveMonthlyAttendance(ctx, doc))
	assert.NotZero(t, doc.ID)

	loaded, err := db.GetMonthlyAttendance(ctx, m.ID, date)
	require.NoError(t, err)
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, 0, loaded.OpenSession())

	loaded.CloseSession(0, time.Date(2025, 3, 2, 11, 30, 0, 0, time.UTC))
	loaded.Open(time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC))
	require.NoError(t, db.SaveMonthlyAttendance(ctx, loaded))

	again, err := db.GetMonthlyAttendance(ctx, m.ID, date)
	require.NoError(t, err)
	require.Len(t, again.Sessions, 2)
	assert.Equal(t, 150, again.TotalDurationMinutes)
	assert.Equal(t, 1, again.OpenSession())

	t.Run("DuplicateDayInsert", func(t *testing.T) {
		other := &models.MonthlyAttendance{MonthlyBookingID: m.ID, UserID: 1, LibraryID: fx.library.ID, Date: date}
		assert.ErrorIs(t, db.SaveMonthlyAttendance(ctx, other), domain.ErrConcurrentModification)
	})

	t.Run("List", func(t *testing.T) {
		next := &models.MonthlyAttendance{MonthlyBookingID: m.ID, UserID: 1, LibraryID: fx.library.ID, Date: day("2025-03-01")}
		require.NoError(t, db.SaveMonthlyAttendance(ctx, next))

		days, err := db.ListMonthlyAttendance(ctx, m.ID)
		require.NoError(t, err)
		require.Len(t, days, 2)
		assert.Equal(t, day("2025-03-01"), days[0].Date)
		assert.Empty(t, days[0].Sessions)
	})
}

func TestListOpenMonthlyAttendance(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	m := newMonthly(fx, 1, day("2025-03-01"))
	require.NoError(t, db.CreateMonthlyBooking(ctx, m))

	save := func(date string, open bool) *models.MonthlyAttendance {
		d := day(date)
		doc := &models.MonthlyAttendance{MonthlyBookingID: m.ID, UserID: 1, LibraryID: fx.library.ID, Date: d}
		doc.Open(d.Add(9 * time.Hour))
		if !open {
			doc.CloseSession(0, d.Add(10*time.Hour))
		}
		require.NoError(t, db.SaveMonthlyAttendance(ctx, doc))
		return doc
	}
	stale := save("2025-03-02", true)
	save("2025-03-03", false)
	save("2025-03-05", true)

	got, err := db.ListOpenMonthlyAttendance(ctx, day("2025-03-05"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)

	got[0].AutoClose(0)
	require.NoError(t, db.SaveMonthlyAttendance(ctx, got[0]))

	got, err = db.ListOpenMonthlyAttendance(ctx, day("2025-03-05"))
	require.NoError(t, err)
	assert.Empty(t, got)

	closed, err := db.GetMonthlyAttendance(ctx, m.ID, day("2025-03-02"))
	require.NoError(t, err)
	assert.True(t, closed.Sessions[0].AutoClosed)
	assert.Equal(t, 0, closed.TotalDurationMinutes)
	assert.Equal(t, -1, closed.OpenSession())
}
