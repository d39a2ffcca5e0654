// Package vendormix breaks a POS's purchase volume down by vendor, overall
// and per week, from the delivered-orders export.
package vendormix

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"

	"github.com/r2flows/churn-agent/pkg/tracing"
)

// PurchaseRecord is one order line from the export with its synthesized total
type PurchaseRecord struct {
	PosID     string
	VendorID  string
	OrderDate string
	Total     decimal.Decimal
}

// VendorTotal is the purchase volume of one vendor at one POS
type VendorTotal struct {
	PosID    string          `json:"pos_id"`
	VendorID string          `json:"vendor_id"`
	Total    decimal.Decimal `json:"total"`
}

// MixRow is one vendor's slice of a POS's purchases
type MixRow struct {
	PosID      string          `json:"pos_id"`
	VendorID   string          `json:"vendor_id"`
	Total      decimal.Decimal `json:"total"`
	Percentage decimal.Decimal `json:"percentage"`
}

// WeeklyRow is one vendor's purchase volume at one POS for one week
type WeeklyRow struct {
	PosID    string          `json:"pos_id"`
	VendorID string          `json:"vendor_id"`
	Week     string          `json:"week"`
	Total    decimal.Decimal `json:"total"`
}

// Service loads the purchase export and answers vendor mix queries
type Service struct {
	path string
	log  ectologger.Logger
}

// NewService creates a vendor mix service reading from path
func NewService(path string, log ectologger.Logger) *Service {
	return &Service{path: path, log: log}
}

// Mix returns the vendor shares for one POS, largest first. Percentages are
// rounded to two decimals.
func (s *Service) Mix(ctx context.Context, posID string) ([]MixRow, error) {
	ctx, span := tracing.StartSpan(ctx, "vendormix.Service.Mix")
	defer span.End()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	totals := map[string]decimal.Decimal{}
	posTotal := decimal.Zero
	for _, record := range records {
		if record.PosID != posID {
			continue
		}
		totals[record.VendorID] = totals[record.VendorID].Add(record.Total)
		posTotal = posTotal.Add(record.Total)
	}

	rows := make([]MixRow, 0, len(totals))
	hundred := decimal.NewFromInt(100)
	for vendorID, total := range totals {
		percentage := decimal.Zero
		if posTotal.IsPositive() {
			percentage = total.Div(posTotal).Mul(hundred).Round(2)
		}
		rows = append(rows, MixRow{
			PosID:      posID,
			VendorID:   vendorID,
			Total:      total,
			Percentage: percentage,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Total.Equal(rows[j].Total) {
			return rows[i].Total.GreaterThan(rows[j].Total)
		}
		return rows[i].VendorID < rows[j].VendorID
	})

	return rows, nil
}

// Weekly returns the per-week purchase series for one POS, grouped by vendor
// and week.
func (s *Service) Weekly(ctx context.Context, posID string) ([]WeeklyRow, error) {
	ctx, span := tracing.StartSpan(ctx, "vendormix.Service.Weekly")
	defer span.End()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	type key struct{ vendorID, week string }
	totals := map[key]decimal.Decimal{}
	for _, record := range records {
		if record.PosID != posID {
			continue
		}
		k := key{vendorID: record.VendorID, week: WeekNumber(record.OrderDate)}
		totals[k] = totals[k].Add(record.Total)
	}

	rows := make([]WeeklyRow, 0, len(totals))
	for k, total := range totals {
		rows = append(rows, WeeklyRow{
			PosID:    posID,
			VendorID: k.vendorID,
			Week:     k.week,
			Total:    total,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Week != rows[j].Week {
			return rows[i].Week < rows[j].Week
		}
		return rows[i].VendorID < rows[j].VendorID
	})

	return rows, nil
}

// Totals returns the purchase volume per POS and vendor across the export
func (s *Service) Totals(ctx context.Context) ([]VendorTotal, error) {
	ctx, span := tracing.StartSpan(ctx, "vendormix.Service.Totals")
	defer span.End()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	type key struct{ posID, vendorID string }
	totals := map[key]decimal.Decimal{}
	for _, record := range records {
		k := key{posID: record.PosID, vendorID: record.VendorID}
		totals[k] = totals[k].Add(record.Total)
	}

	rows := make([]VendorTotal, 0, len(totals))
	for k, total := range totals {
		rows = append(rows, VendorTotal{PosID: k.posID, VendorID: k.vendorID, Total: total})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PosID != rows[j].PosID {
			return rows[i].PosID < rows[j].PosID
		}
		return rows[i].VendorID < rows[j].VendorID
	})

	return rows, nil
}

// load reads the export. A missing file degrades to an empty result; a
// malformed file is an error.
func (s *Service) load(ctx context.Context) ([]PurchaseRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.WithContext(ctx).WithField("path", s.path).Warn("Purchase export missing; vendor mix is empty")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read purchase export: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse purchase export: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := map[string]int{}
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}

	column := func(row []string, names ...string) string {
		for _, name := range names {
			idx, ok := header[name]
			if !ok || idx >= len(row) {
				continue
			}
			if value := strings.TrimSpace(row[idx]); value != "" {
				return value
			}
		}
		return ""
	}

	records := make([]PurchaseRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		posID := column(row, "point_of_sale_id", "pos_id")
		vendorID := column(row, "vendor_id_x", "vendor_id")
		if posID == "" || vendorID == "" {
			continue
		}

		records = append(records, PurchaseRecord{
			PosID:     posID,
			VendorID:  vendorID,
			OrderDate: column(row, "order_date"),
			Total:     rowTotal(row, column),
		})
	}

	return records, nil
}

// rowTotal synthesizes the purchase total for one line: the vendor value when
// the export carries it, units times minimum price otherwise.
func rowTotal(row []string, column func([]string, ...string) string) decimal.Decimal {
	if raw := column(row, "total_compra"); raw != "" {
		if total, err := decimal.NewFromString(raw); err == nil {
			return total
		}
	}
	if raw := column(row, "valor_vendedor"); raw != "" {
		if total, err := decimal.NewFromString(raw); err == nil {
			return total
		}
	}

	units, err := decimal.NewFromString(column(row, "unidades_pedidas"))
	if err != nil {
		return decimal.Zero
	}
	price, err := decimal.NewFromString(column(row, "precio_minimo"))
	if err != nil {
		return decimal.Zero
	}
	return units.Mul(price)
}

// WeekNumber renders an order date as its week label, calendar year plus ISO
// week number. Unparseable dates group under "Unknown".
func WeekNumber(dateStr string) string {
	raw := strings.TrimSpace(dateStr)
	if raw == "" {
		return "Unknown"
	}

	layouts := []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339}
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		_, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", t.Year(), week)
	}
	return "Unknown"
}
