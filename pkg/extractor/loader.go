// Package extractor loads the raw signal sources into typed records. All
// format tolerance lives here: the scoring core only ever sees well-typed
// optional fields.
package extractor

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"

	"github.com/r2flows/churn-agent/pkg/metrics"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// Source names used in warnings and logs
const (
	SourceTrial    = "trial_data"
	SourceOrders   = "orders_delivered"
	SourceTrend    = "purchase_trend"
	SourceZombies  = "zombies"
	SourcePosOwner = "pos_owner"
)

// Config holds the source file locations. Immutable once constructed.
type Config struct {
	TrialPath    string
	OrdersPath   string
	TrendPath    string
	ZombiesPath  string
	PosOwnerPath string
}

// DefaultConfig returns the conventional data directory layout
func DefaultConfig() Config {
	return Config{
		TrialPath:    "data/trial_data.json",
		OrdersPath:   "data/orders_delivered.json",
		TrendPath:    "data/purchase_trend.json",
		ZombiesPath:  "data/zombies.json",
		PosOwnerPath: "data/pos_owner.csv",
	}
}

// Loader reads the five sources. A missing or unreadable source degrades to
// an empty collection plus a warning, never a failed pass. Malformed rows
// lose their bad fields, not their place in the batch.
type Loader struct {
	cfg Config
	log ectologger.Logger
}

// NewLoader creates a source loader
func NewLoader(cfg Config, log ectologger.Logger) *Loader {
	return &Loader{cfg: cfg, log: log}
}

// LoadSnapshot reads every source once and returns the immutable input of a
// single scoring pass.
func (l *Loader) LoadSnapshot(ctx context.Context) models.SignalSnapshot {
	ctx, span := tracing.StartSpan(ctx, "extractor.Loader.LoadSnapshot")
	defer span.End()

	snapshot := models.SignalSnapshot{
		Trials:     map[string]models.TrialRecord{},
		Deliveries: map[string]models.DeliveryRecord{},
		Trends:     map[string]models.TrendRecord{},
		Zombies:    map[string]models.ZombieRecord{},
		Owners:     models.OwnerMap{},
	}

	warn := func(source, path string, err error) {
		l.log.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source": source,
			"path":   path,
		}).Warnf("Source %s unavailable; scoring proceeds with defaults", source)
		snapshot.SourceWarnings = append(snapshot.SourceWarnings,
			fmt.Sprintf("%s source unavailable: %v", source, err))
		metrics.RecordSourceWarning(source)
	}

	if rows, err := l.readJSONRows(l.cfg.TrialPath); err != nil {
		warn(SourceTrial, l.cfg.TrialPath, err)
	} else {
		snapshot.Trials = l.parseTrials(ctx, rows)
	}

	if rows, err := l.readJSONRows(l.cfg.OrdersPath); err != nil {
		warn(SourceOrders, l.cfg.OrdersPath, err)
	} else {
		snapshot.Deliveries = l.parseDeliveries(ctx, rows)
	}

	if rows, err := l.readJSONRows(l.cfg.TrendPath); err != nil {
		warn(SourceTrend, l.cfg.TrendPath, err)
	} else {
		snapshot.Trends = l.parseTrends(ctx, rows)
	}

	if rows, err := l.readJSONRows(l.cfg.ZombiesPath); err != nil {
		warn(SourceZombies, l.cfg.ZombiesPath, err)
	} else {
		snapshot.Zombies = l.parseZombies(ctx, rows)
	}

	if owners, err := l.readOwnerCSV(l.cfg.PosOwnerPath); err != nil {
		warn(SourcePosOwner, l.cfg.PosOwnerPath, err)
	} else {
		snapshot.Owners = owners
	}

	return snapshot
}

func (l *Loader) readJSONRows(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var rows []map[string]any
	if err := decoder.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (l *Loader) parseTrials(ctx context.Context, rows []map[string]any) map[string]models.TrialRecord {
	records := make(map[string]models.TrialRecord, len(rows))
	for _, row := range rows {
		posID := posIDField(row)
		if posID == "" {
			l.log.WithContext(ctx).WithField("source", SourceTrial).Debug("Skipping row without POS id")
			continue
		}
		records[posID] = models.TrialRecord{
			PosID:                      posID,
			PlatformUse:                models.ParsePlatformUse(stringField(row, "platform_use", "platform use")),
			TimeSaved:                  models.ParseTimeSaved(stringField(row, "time_saved", "time saved")),
			AverageDailySavings:        decimalField(row, "average_daily_savings", "average daily savings"),
			PredictedSubscriptionValue: decimalField(row, "predicted_subscription_value", "predicted subscription value"),
		}
	}
	return records
}

func (l *Loader) parseDeliveries(ctx context.Context, rows []map[string]any) map[string]models.DeliveryRecord {
	records := make(map[string]models.DeliveryRecord, len(rows))
	for _, row := range rows {
		posID := posIDField(row)
		if posID == "" {
			l.log.WithContext(ctx).WithField("source", SourceOrders).Debug("Skipping row without POS id")
			continue
		}

		risk := stringField(row, "malicious_use_risk", "malicious_use_risk_4_weeks")
		if risk == "" {
			risk = stringField(row, "malicious_use_risk_2_weeks")
		}

		records[posID] = models.DeliveryRecord{
			PosID:                 posID,
			OrdersDelivered4w:     decimalField(row, "orders_delivered_4w", "orders_delivered (4 weeks)"),
			PercentageDelivered4w: decimalField(row, "percentage_delivered_4w", "percentage_delivered (4 weeks)"),
			PercentageDelivered2w: decimalField(row, "percentage_delivered_2w", "percentage_delivered (2 weeks)"),
			MaliciousUseRisk:      models.ParseMaliciousUseRisk(risk),
		}
	}
	return records
}

func (l *Loader) parseTrends(ctx context.Context, rows []map[string]any) map[string]models.TrendRecord {
	records := make(map[string]models.TrendRecord, len(rows))
	for _, row := range rows {
		posID := posIDField(row)
		if posID == "" {
			l.log.WithContext(ctx).WithField("source", SourceTrend).Debug("Skipping row without POS id")
			continue
		}
		records[posID] = models.TrendRecord{
			PosID:               posID,
			TrendClassification: models.ParseTrendClassification(stringField(row, "trend_classification")),
		}
	}
	return records
}

func (l *Loader) parseZombies(ctx context.Context, rows []map[string]any) map[string]models.ZombieRecord {
	records := make(map[string]models.ZombieRecord, len(rows))
	for _, row := range rows {
		posID := posIDField(row)
		if posID == "" {
			l.log.WithContext(ctx).WithField("source", SourceZombies).Debug("Skipping row without POS id")
			continue
		}
		records[posID] = models.ZombieRecord{
			PosID:                      posID,
			DaysSinceFirstPurchase:     intField(row, "days_since_first_purchase"),
			PlatformUse:                models.ParsePlatformUse(stringField(row, "platform_use")),
			TimeSaved:                  models.ParseTimeSaved(stringField(row, "time_saved")),
			PredictedSubscriptionValue: decimalField(row, "predicted_subscription_value"),
		}
	}
	return records
}

// readOwnerCSV parses the CRM mapping. Rows with an empty owner column are
// kept: those POS group under the unassigned sentinel at aggregation time.
func (l *Loader) readOwnerCSV(path string) (models.OwnerMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return models.OwnerMap{}, nil
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

	owners := make(models.OwnerMap, len(rows)-1)
	for _, row := range rows[1:] {
		posID := column(row, "pos_id", "id")
		if posID == "" {
			continue
		}
		owners[posID] = models.OwnerRef{
			ClientID:    column(row, "client_id"),
			HSCompanyID: column(row, "hs_company_id"),
			OwnerID:     column(row, "owner_id", "company_owner_id"),
		}
	}
	return owners, nil
}

// Field coercion helpers. Sources mix numbers, numeric strings, nulls and
// legacy column names; anything unusable becomes absent.

func posIDField(row map[string]any) string {
	return rawString(firstField(row, "pos_id", "point_of_sale_id"))
}

func stringField(row map[string]any, names ...string) string {
	return rawString(firstField(row, names...))
}

func decimalField(row map[string]any, names ...string) *decimal.Decimal {
	raw := rawString(firstField(row, names...))
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &value
}

func intField(row map[string]any, names ...string) *int {
	value := decimalField(row, names...)
	if value == nil {
		return nil
	}
	days := int(value.IntPart())
	return &days
}

func firstField(row map[string]any, names ...string) any {
	for _, name := range names {
		if value, ok := row[name]; ok && value != nil {
			return value
		}
	}
	return nil
}

func rawString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
