package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/batch"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

// MaxRows bounds one import file.
const MaxRows = 5000

const defaultDuration = time.Hour

// Directory resolves the human readable references used in import files.
// Misses return model.ErrNotFound.
type Directory interface {
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	FindCategoryByName(ctx context.Context, tenantID int64, name string) (model.Category, error)
	FindProductByName(ctx context.Context, tenantID int64, name string) (model.Product, error)
}

type Creator interface {
	Create(ctx context.Context, actor scheduling.Actor, in scheduling.CreateInput) (model.Schedule, error)
}

type Importer struct {
	dir     Directory
	creator Creator
	loc     *time.Location
	logger  *slog.Logger
}

func New(dir Directory, creator Creator, loc *time.Location, logger *slog.Logger) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Importer{dir: dir, creator: creator, loc: loc, logger: logger}
}

// Import creates one single schedule per row of the file. Row numbers in
// the ledger count the header as row 1. Only unreadable files and context
// cancellation fail the whole call.
func (im *Importer) Import(ctx context.Context, actor scheduling.Actor, tenantID int64, format Format, r io.Reader) (*batch.Ledger, error) {
	rows, err := ReadRows(format, r)
	if err != nil {
		return nil, &scheduling.ValidationError{Reason: "cannot read file: " + err.Error()}
	}
	if len(rows) > MaxRows {
		return nil, &scheduling.ValidationError{Reason: fmt.Sprintf("file has %d rows, limit is %d", len(rows), MaxRows)}
	}

	ledger := batch.NewLedger()
	seen := map[string]int{}
	for i, row := range rows {
		if row.Blank() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := i + 2
		data := map[string]string(row)

		in, err := im.parseRow(ctx, tenantID, row)
		if err != nil {
			ledger.Error(line, err.Error(), data)
			continue
		}

		key := fmt.Sprintf("%d|%d|%d|%s|%s", in.ProviderID, in.UserID, in.ProductID,
			in.Start.UTC().Format(time.RFC3339), in.End.UTC().Format(time.RFC3339))
		if first, dup := seen[key]; dup {
			ledger.Duplicate(line, fmt.Sprintf("same booking as row %d", first), data)
			continue
		}
		seen[key] = line

		_, err = im.creator.Create(ctx, actor, in)
		switch {
		case err == nil:
			ledger.Created()
		case scheduling.IsConflict(err):
			ledger.Conflict(line, err.Error(), data)
		case scheduling.IsNotFound(err), scheduling.IsValidation(err):
			ledger.Error(line, err.Error(), data)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			im.logger.Error("import row failed", "row", line, "tenant_id", tenantID, "err", err)
			ledger.Error(line, "internal error", data)
		}
	}

	im.logger.Info("schedule import finished",
		"tenant_id", tenantID,
		"total", ledger.TotalRecords,
		"created", ledger.NewRecords,
		"failed", ledger.Failed(),
	)
	return ledger, nil
}

func (im *Importer) parseRow(ctx context.Context, tenantID int64, row Row) (scheduling.CreateInput, error) {
	in := scheduling.CreateInput{TenantID: tenantID}

	providerEmail := row.Get("provider_email", "profissional_email")
	if providerEmail == "" {
		return in, errors.New("provider_email is required")
	}
	provider, err := im.dir.FindUserByEmail(ctx, providerEmail)
	if err != nil || provider.UserType != model.UserTypeProvider {
		return in, lookupError(err, fmt.Sprintf("provider %q not found", providerEmail))
	}
	in.ProviderID = provider.ID

	userEmail := row.Get("user_email", "usuario_email")
	if userEmail == "" {
		return in, errors.New("user_email is required")
	}
	user, err := im.dir.FindUserByEmail(ctx, userEmail)
	if err != nil {
		return in, lookupError(err, fmt.Sprintf("user %q not found", userEmail))
	}
	in.UserID = user.ID

	categoryName := row.Get("category", "categoria")
	if categoryName == "" {
		return in, errors.New("category is required")
	}
	category, err := im.dir.FindCategoryByName(ctx, tenantID, categoryName)
	if err != nil {
		return in, lookupError(err, fmt.Sprintf("category %q not found", categoryName))
	}
	in.CategoryID = category.ID

	productName := row.Get("product", "produto")
	if productName == "" {
		return in, errors.New("product is required")
	}
	product, err := im.dir.FindProductByName(ctx, tenantID, productName)
	if err != nil {
		return in, lookupError(err, fmt.Sprintf("product %q not found in tenant", productName))
	}
	in.ProductID = product.ID

	startRaw := row.Get("start_date", "data_inicio")
	if startRaw == "" {
		return in, errors.New("start_date is required")
	}
	if in.Start, err = ParseTime(startRaw, im.loc); err != nil {
		return in, err
	}
	in.End = in.Start.Add(defaultDuration)
	if endRaw := row.Get("end_date", "data_fim"); endRaw != "" {
		if in.End, err = ParseTime(endRaw, im.loc); err != nil {
			return in, err
		}
	}

	if priceRaw := row.Get("price", "preco"); priceRaw != "" {
		price, err := ParseMinorUnits(priceRaw)
		if err != nil {
			return in, err
		}
		in.ServicePrice = &price
	}
	in.Notes = row.Get("notes", "observacoes")
	return in, nil
}

// lookupError keeps infrastructure failures distinct from plain misses so
// they are not reported as bad input.
func lookupError(err error, miss string) error {
	if err == nil || errors.Is(err, model.ErrNotFound) {
		return errors.New(miss)
	}
	return fmt.Errorf("%s: %w", miss, err)
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 or a zone-less timestamp read in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range timeLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ParseMinorUnits converts a decimal amount such as "150.5" into minor
// units (15050). More than two fractional digits is an error.
func ParseMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || strings.HasPrefix(whole, "-") || strings.HasPrefix(whole, "+") || (hasFrac && (frac == "" || len(frac) > 2)) {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	var minor int64
	if hasFrac {
		for len(frac) < 2 {
			frac += "0"
		}
		if minor, err = strconv.ParseInt(frac, 10, 64); err != nil || strings.HasPrefix(frac, "-") || strings.HasPrefix(frac, "+") {
			return 0, fmt.Errorf("invalid price %q", s)
		}
	}
	return major*100 + minor, nil
}
