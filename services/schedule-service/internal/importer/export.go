package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Schedules"

var exportHeader = []string{
	"id", "tenant_id", "provider_id", "user_id", "category_id", "product_id",
	"start_date", "end_date", "status", "price", "recurrence_type", "notes",
}

func exportRecord(s model.Schedule, loc *time.Location) []string {
	price := ""
	if s.ServicePrice != nil {
		price = fmt.Sprintf("%d.%02d", *s.ServicePrice/100, *s.ServicePrice%100)
	}
	return []string{
		s.ID,
		strconv.FormatInt(s.TenantID, 10),
		strconv.FormatInt(s.ProviderID, 10),
		strconv.FormatInt(s.UserID, 10),
		strconv.FormatInt(s.CategoryID, 10),
		strconv.FormatInt(s.ProductID, 10),
		s.Start.In(loc).Format(time.RFC3339),
		s.End.In(loc).Format(time.RFC3339),
		string(s.Status),
		price,
		string(s.Recurrence.Type),
		s.Notes,
	}
}

// Export writes schedules to w in the given format with times in loc.
func Export(w io.Writer, format Format, schedules []model.Schedule, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	if format == FormatXLSX {
		return exportXLSX(w, schedules, loc)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, s := range schedules {
		if err := cw.Write(exportRecord(s, loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportXLSX(w io.Writer, schedules []model.Schedule, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
		_ = f.SetCellStyle(exportSheet, "A1", last, style)
	}

	for i, s := range schedules {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		rec := exportRecord(s, loc)
		if err := f.SetSheetRow(exportSheet, cell, &rec); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(exportSheet, "A", "A", 38)
	_ = f.SetColWidth(exportSheet, "G", "H", 26)

	_, err = f.WriteTo(w)
	return err
}
