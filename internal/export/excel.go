package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"studiodesk/internal/domain"
	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet  = "Bookings"
	equipmentSheet = "Equipment"
)

var bookingHeaders = []string{"ID", "Date", "Start", "End", "Name", "Type", "Status", "Client", "Equipment", "Notes"}

// Exporter renders bookings and equipment reservations for a date range
// into an xlsx workbook.
type Exporter struct {
	bookings  domain.BookingRepository
	inventory domain.InventoryRepository
	dir       string
	logger    *zerolog.Logger
}

func NewExporter(bookings domain.BookingRepository, inventory domain.InventoryRepository, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		bookings:  bookings,
		inventory: inventory,
		dir:       dir,
		logger:    logger,
	}
}

// Build assembles the workbook. The caller owns the returned file.
func (e *Exporter) Build(ctx context.Context, window timeslot.DateRange) (*excelize.File, error) {
	if window.Until.Before(window.From) {
		return nil, timeslot.ErrInvalidRange
	}

	bookings, err := e.bookings.GetBookingsByDateRange(ctx, window.From, window.Until)
	if err != nil {
		return nil, fmt.Errorf("error getting bookings: %w", err)
	}
	items, err := e.inventory.ListInventoryItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting inventory: %w", err)
	}
	reservations, err := e.inventory.GetReservationsInRange(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("error getting reservations: %w", err)
	}

	itemNames := make(map[string]string, len(items))
	for _, item := range items {
		itemNames[item.ID] = item.Name
	}
	byBooking := make(map[string][]string)
	for _, r := range reservations {
		name := itemNames[r.InventoryID]
		if name == "" {
			name = r.InventoryID
		}
		byBooking[r.BookingID] = append(byBooking[r.BookingID], name)
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	writeBookings(f, bookings, byBooking)

	if _, err := f.NewSheet(equipmentSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	writeEquipmentGrid(f, window, items, bookings, reservations)

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// Save writes the workbook under the export directory and returns its path.
func (e *Exporter) Save(ctx context.Context, window timeslot.DateRange) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.Build(ctx, window)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, FileName(window))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", path).Msg("excel export created")
	return path, nil
}

// Write streams the workbook to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, window timeslot.DateRange) error {
	f, err := e.Build(ctx, window)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func FileName(window timeslot.DateRange) string {
	return fmt.Sprintf("studio_%s_to_%s.xlsx", timeslot.FormatDate(window.From), timeslot.FormatDate(window.Until))
}

func writeBookings(f *excelize.File, bookings []*models.Booking, equipment map[string][]string) {
	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, h)
	}
	header, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(bookingHeaders), 1)
	_ = f.SetCellStyle(bookingsSheet, "A1", lastHeader, header)

	cancelled, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "#999999", Strike: true}})

	for i, b := range bookings {
		row := i + 2
		values := []any{
			b.ID,
			timeslot.FormatDate(b.Date),
			b.Start.String(),
			b.End.String(),
			b.DisplayName(),
			b.BookingType,
			b.Status,
			b.ClientID,
			strings.Join(equipment[b.ID], ", "),
			b.Notes,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(bookingsSheet, start, &values)
		if b.Status == models.StatusCancelled {
			end, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(bookingsSheet, start, end, cancelled)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 38)
	_ = f.SetColWidth(bookingsSheet, "B", "D", 12)
	_ = f.SetColWidth(bookingsSheet, "E", "J", 22)
}

// writeEquipmentGrid lays out items as rows and dates as columns; each cell
// lists the bookings holding the item that day.
func writeEquipmentGrid(f *excelize.File, window timeslot.DateRange, items []*models.InventoryItem, bookings []*models.Booking, reservations []*models.InventoryReservation) {
	_ = f.SetCellValue(equipmentSheet, "A1", fmt.Sprintf("Period: %s - %s",
		timeslot.FormatDate(window.From), timeslot.FormatDate(window.Until)))

	dateCols := make(map[string]int)
	col := 2
	for d := window.From; !d.After(window.Until); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(equipmentSheet, cell, d.Format("02.01"))
		dateCols[timeslot.FormatDate(d)] = col
		col++
	}

	names := make(map[string]string, len(bookings))
	for _, b := range bookings {
		names[b.ID] = b.DisplayName()
	}

	rows := make(map[string]int, len(items))
	for i, item := range items {
		row := i + 3
		rows[item.ID] = row
		cell, _ := excelize.CoordinatesToCellName(1, row)
		label := item.Name
		if item.Status != models.ItemAvailable {
			label = fmt.Sprintf("%s (%s)", item.Name, item.Status)
		}
		_ = f.SetCellValue(equipmentSheet, cell, label)
	}

	cells := make(map[string][]string)
	for _, r := range reservations {
		row, ok := rows[r.InventoryID]
		if !ok {
			continue
		}
		for d := r.ReservedFrom; !d.After(r.ReservedUntil); d = d.AddDate(0, 0, 1) {
			c, ok := dateCols[timeslot.FormatDate(d)]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c, row)
			name := names[r.BookingID]
			if name == "" {
				name = r.BookingID
			}
			cells[cell] = append(cells[cell], name)
		}
	}

	busy, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true},
	})
	for cell, holders := range cells {
		_ = f.SetCellValue(equipmentSheet, cell, strings.Join(holders, "\n"))
		_ = f.SetCellStyle(equipmentSheet, cell, cell, busy)
	}

	lastCol, _ := excelize.ColumnNumberToName(max(col-1, 2))
	_ = f.MergeCell(equipmentSheet, "A1", lastCol+"1")
	title, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(equipmentSheet, "A1", "A1", title)
	_ = f.SetColWidth(equipmentSheet, "A", "A", 25)
	_ = f.SetColWidth(equipmentSheet, "B", lastCol, 18)
}
