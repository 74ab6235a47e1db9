package importer_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/importer"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling/schedulingtest"
	"github.com/xuri/excelize/v2"
)

var (
	now   = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	actor = scheduling.Actor{UserID: 99, TenantIDs: []int64{1}}
)

func newImporter(t *testing.T) (*importer.Importer, *schedulingtest.Store) {
	t.Helper()
	store := schedulingtest.New()
	store.AddTenant(model.Tenant{ID: 1, Name: "Clinic", IsActive: true})
	store.AddTenant(model.Tenant{ID: 2, Name: "Other", IsActive: true})
	store.AddUser(model.User{ID: 10, Email: "dr@clinic.test", UserType: model.UserTypeProvider, IsActive: true})
	store.AddUser(model.User{ID: 20, Email: "pat@clinic.test", UserType: model.UserTypeClient, IsActive: true})
	store.AddCategory(model.Category{ID: 30, TenantID: 1, Name: "Dental"})
	store.AddProduct(model.Product{ID: 40, TenantID: 1, CategoryID: 30, Name: "Cleaning", Price: 40000})
	store.AddProduct(model.Product{ID: 41, TenantID: 2, CategoryID: 30, Name: "Whitening"})

	svc := scheduling.NewService(store, nil, scheduling.Options{Now: func() time.Time { return now }})
	return importer.New(store, svc, time.UTC, nil), store
}

func TestImportCSVLedger(t *testing.T) {
	im, store := newImporter(t)
	file := strings.Join([]string{
		"provider_email,user_email,category,product,start_date,end_date,price",
		"dr@clinic.test,pat@clinic.test,Dental,Cleaning,2025-06-02 09:00,2025-06-02 10:00,150.5",
		"DR@clinic.test,pat@clinic.test,dental,cleaning,2025-06-02 09:30,,",
		"dr@clinic.test,pat@clinic.test,Dental,Cleaning,2025-06-02 09:00,2025-06-02 10:00,",
		"pat@clinic.test,pat@clinic.test,Dental,Cleaning,2025-06-03 09:00,,",
		"dr@clinic.test,pat@clinic.test,Dental,Whitening,2025-06-03 09:00,,",
		"dr@clinic.test,pat@clinic.test,Dental,Cleaning,2025-04-01 09:00,,",
		"dr@clinic.test,pat@clinic.test,Dental,Cleaning,2025-06-04 11:00,,",
	}, "\n")

	ledger, err := im.Import(context.Background(), actor, 1, importer.FormatCSV, strings.NewReader(file))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if ledger.TotalRecords != 7 || ledger.NewRecords != 2 {
		t.Fatalf("unexpected totals %+v", ledger)
	}
	if len(ledger.ConflictsFound) != 1 || ledger.ConflictsFound[0].Row != 3 {
		t.Fatalf("expected conflict on row 3, got %+v", ledger.ConflictsFound)
	}
	if len(ledger.DuplicatesFound) != 1 || ledger.DuplicatesFound[0].Row != 4 {
		t.Fatalf("expected duplicate on row 4, got %+v", ledger.DuplicatesFound)
	}
	rows := []int{}
	for _, e := range ledger.Errors {
		rows = append(rows, e.Row)
	}
	if len(rows) != 3 || rows[0] != 5 || rows[1] != 6 || rows[2] != 7 {
		t.Fatalf("expected errors on rows 5,6,7, got %v", rows)
	}
	if ledger.ConflictsFound[0].Data["start_date"] != "2025-06-02 09:30" {
		t.Fatalf("expected original row data, got %v", ledger.ConflictsFound[0].Data)
	}

	list, _ := store.List(context.Background(), scheduling.Filter{})
	if len(list) != 2 {
		t.Fatalf("expected 2 stored schedules, got %d", len(list))
	}
	first := list[0]
	if first.ServicePrice == nil || *first.ServicePrice != 15050 {
		t.Fatalf("expected price 15050, got %v", first.ServicePrice)
	}
	if got := list[1].End.Sub(list[1].Start); got != time.Hour {
		t.Fatalf("expected default one hour, got %s", got)
	}
}

func TestImportAliasedHeaders(t *testing.T) {
	im, _ := newImporter(t)
	file := "profissional_email,usuario_email,categoria,produto,data_inicio,data_fim,preco\n" +
		"dr@clinic.test,pat@clinic.test,Dental,Cleaning,2025-06-02T09:00:00Z,2025-06-02T09:45:00Z,80\n"
	ledger, err := im.Import(context.Background(), actor, 1, importer.FormatCSV, strings.NewReader(file))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if ledger.NewRecords != 1 {
		t.Fatalf("expected 1 created, got %+v", ledger)
	}
}

func TestImportXLSX(t *testing.T) {
	im, _ := newImporter(t)

	f := excelize.NewFile()
	rows := [][]any{
		{"provider_email", "user_email", "category", "product", "start_date"},
		{"dr@clinic.test", "pat@clinic.test", "Dental", "Cleaning", "2025-06-05 14:00"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	ledger, err := im.Import(context.Background(), actor, 1, importer.FormatXLSX, &buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if ledger.NewRecords != 1 || ledger.TotalRecords != 1 {
		t.Fatalf("unexpected ledger %+v", ledger)
	}
}

func TestImportUnreadableFile(t *testing.T) {
	im, _ := newImporter(t)
	_, err := im.Import(context.Background(), actor, 1, importer.FormatCSV, strings.NewReader(""))
	if !scheduling.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"150", 15000, true},
		{"150.5", 15050, true},
		{"0.07", 7, true},
		{"12.345", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
		{"1.", 0, false},
	}
	for _, tc := range cases {
		got, err := importer.ParseMinorUnits(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParseMinorUnits(%q) = %d, %v", tc.in, got, err)
		}
	}
}

func TestExportCSV(t *testing.T) {
	price := int64(15050)
	s := model.Schedule{
		ID: "s1", TenantID: 1, ProviderID: 10, UserID: 20, CategoryID: 30, ProductID: 40,
		Start:        time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		End:          time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		Status:       model.StatusActive,
		ServicePrice: &price,
		Recurrence:   model.Recurrence{Type: model.RecurrenceNone},
	}
	var buf bytes.Buffer
	if err := importer.Export(&buf, importer.FormatCSV, []model.Schedule{s}, time.UTC); err != nil {
		t.Fatalf("export: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus 1 row, got %d", len(records))
	}
	if records[1][6] != "2025-06-02T09:00:00Z" || records[1][9] != "150.50" {
		t.Fatalf("unexpected row %v", records[1])
	}
}

func TestExportXLSX(t *testing.T) {
	s := model.Schedule{ID: "s1", Start: now, End: now.Add(time.Hour), Status: model.StatusActive}
	var buf bytes.Buffer
	if err := importer.Export(&buf, importer.FormatXLSX, []model.Schedule{s}, time.UTC); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	id, err := f.GetCellValue("Schedules", "A2")
	if err != nil || id != "s1" {
		t.Fatalf("expected s1 in A2, got %q (%v)", id, err)
	}
}
