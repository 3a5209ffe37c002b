package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"seatbook/internal/domain"
	"seatbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"

	// maxRangeDays bounds one statement.
	maxRangeDays = 366
)

// Exporter writes per-library booking statements as xlsx workbooks.
type Exporter struct {
	store  domain.Queries
	dir    string
	logger *zerolog.Logger
}

func NewExporter(store domain.Queries, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, dir: dir, logger: logger}
}

type statusTotal struct {
	count  int
	amount decimal.Decimal
}

type totals struct {
	byStatus map[string]*statusTotal
	paid     decimal.Decimal
	refunded decimal.Decimal
}

// LibraryStatement exports every booking of libraryID between start and end
// inclusive and returns the path of the written file. Only the library owner
// or an admin may export.
func (e *Exporter) LibraryStatement(ctx context.Context, p models.Principal, libraryID int64, start, end time.Time) (string, error) {
	start, end = models.NormalizeDate(start), models.NormalizeDate(end)
	if end.Before(start) {
		return "", domain.InvalidInput("end date %s is before start date %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if models.DaysInclusive(start, end) > maxRangeDays {
		return "", domain.InvalidInput("statement range exceeds %d days", maxRangeDays)
	}

	lib, err := e.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return "", err
	}
	if !p.IsAdmin() && lib.OwnerID != p.UserID {
		return "", domain.Forbidden("library %d belongs to another librarian", libraryID)
	}

	bookings, err := e.store.ListLibraryBookings(ctx, libraryID, start, end)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(summarySheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	sum, err := e.writeBookings(ctx, f, bookings)
	if err != nil {
		return "", err
	}
	e.writeSummary(f, lib, start, end, sum)

	name := fmt.Sprintf("library_%d_%s_to_%s.xlsx", libraryID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	path := filepath.Join(e.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", path).Int64("library_id", libraryID).Int("rows", len(bookings)).Msg("statement exported")
	return path, nil
}

func (e *Exporter) writeBookings(ctx context.Context, f *excelize.File, bookings []*models.Booking) (*totals, error) {
	headers := []string{"Date", "Seat", "Time slot", "User", "Status", "Payment", "Amount"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, h)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetCellStyle(bookingsSheet, "A1", "G1", headerStyle)

	seats := map[int64]string{}
	slots := map[int64]string{}
	sum := &totals{byStatus: map[string]*statusTotal{}}

	for i, b := range bookings {
		seat, err := e.seatLabel(ctx, seats, b.SeatID)
		if err != nil {
			return nil, err
		}
		slot, err := e.slotLabel(ctx, slots, b.TimeSlotID)
		if err != nil {
			return nil, err
		}
		row := []any{b.BookingDate.Format("2006-01-02"), seat, slot, b.UserID, b.Status, b.PaymentStatus, money(b.Amount)}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(bookingsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("error writing row: %w", err)
		}

		t, ok := sum.byStatus[b.Status]
		if !ok {
			t = &statusTotal{}
			sum.byStatus[b.Status] = t
		}
		t.count++
		t.amount = t.amount.Add(b.Amount)

		switch b.PaymentStatus {
		case models.PaymentPaid:
			sum.paid = sum.paid.Add(b.Amount)
		case models.PaymentRefunded:
			sum.refunded = sum.refunded.Add(b.Amount)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 14)
	_ = f.SetColWidth(bookingsSheet, "B", "G", 16)
	return sum, nil
}

func (e *Exporter) writeSummary(f *excelize.File, lib *models.Library, start, end time.Time, sum *totals) {
	_ = f.SetCellValue(summarySheet, "A1", fmt.Sprintf("%s: %s - %s", lib.Name, start.Format("02.01.2006"), end.Format("02.01.2006")))
	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	_ = f.SetCellStyle(summarySheet, "A1", "A1", titleStyle)
	_ = f.MergeCell(summarySheet, "A1", "C1")

	_ = f.SetSheetRow(summarySheet, "A3", &[]any{"Status", "Bookings", "Amount"})

	statuses := make([]string, 0, len(sum.byStatus))
	for s := range sum.byStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	row := 4
	count := 0
	for _, s := range statuses {
		t := sum.byStatus[s]
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(summarySheet, cell, &[]any{s, t.count, money(t.amount)})
		count += t.count
		row++
	}

	row++
	for _, line := range [][]any{
		{"Total", count, ""},
		{"Paid", "", money(sum.paid)},
		{"Refunded", "", money(sum.refunded)},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(summarySheet, cell, &line)
		row++
	}
	_ = f.SetColWidth(summarySheet, "A", "C", 18)
}

func money(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func (e *Exporter) seatLabel(ctx context.Context, cache map[int64]string, id int64) (string, error) {
	if v, ok := cache[id]; ok {
		return v, nil
	}
	seat, err := e.store.GetSeat(ctx, id)
	if err != nil {
		return "", err
	}
	cache[id] = seat.Label
	return seat.Label, nil
}

func (e *Exporter) slotLabel(ctx context.Context, cache map[int64]string, id int64) (string, error) {
	if v, ok := cache[id]; ok {
		return v, nil
	}
	slot, err := e.store.GetTimeSlot(ctx, id)
	if err != nil {
		return "", err
	}
	label := fmt.Sprintf("%s-%s", slot.StartTime, slot.EndTime)
	if slot.Name != "" {
		label = slot.Name + " " + label
	}
	cache[id] = label
	return label, nil
}
