package vendormix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders_delivered_pos_vendor_geozone.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func TestService_Mix(t *testing.T) {
	path := writeExport(t, `point_of_sale_id,vendor_id,unidades_pedidas,precio_minimo,valor_vendedor,order_date
7,vendor-a,3,40,100,2025-01-06 00:00:00
7,vendor-a,5,10,,2025-01-07 00:00:00
7,vendor-b,1,50,50,2025-01-06 00:00:00
9,vendor-a,2,15,30,2025-01-06 00:00:00
`)
	service := NewService(path, testLogger())

	rows, err := service.Mix(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "vendor-a", rows[0].VendorID)
	assert.True(t, rows[0].Total.Equal(dec(t, "150")), "total was %s", rows[0].Total)
	assert.True(t, rows[0].Percentage.Equal(dec(t, "75")), "percentage was %s", rows[0].Percentage)

	assert.Equal(t, "vendor-b", rows[1].VendorID)
	assert.True(t, rows[1].Total.Equal(dec(t, "50")))
	assert.True(t, rows[1].Percentage.Equal(dec(t, "25")))
}

func TestService_Mix_RoundsShares(t *testing.T) {
	path := writeExport(t, `point_of_sale_id,vendor_id,unidades_pedidas,precio_minimo,valor_vendedor,order_date
7,vendor-a,,,1,2025-01-06
7,vendor-b,,,2,2025-01-06
`)
	service := NewService(path, testLogger())

	rows, err := service.Mix(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "vendor-b", rows[0].VendorID)
	assert.Equal(t, "66.67", rows[0].Percentage.StringFixed(2))
	assert.Equal(t, "33.33", rows[1].Percentage.StringFixed(2))
}

func TestService_Mix_ZeroVolume(t *testing.T) {
	path := writeExport(t, `point_of_sale_id,vendor_id,unidades_pedidas,precio_minimo,valor_vendedor,order_date
7,vendor-a,0,10,,2025-01-06
`)
	service := NewService(path, testLogger())

	rows, err := service.Mix(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Total.IsZero())
	assert.True(t, rows[0].Percentage.IsZero())
}

func TestService_Mix_PrefersJoinedVendorColumn(t *testing.T) {
	path := writeExport(t, `point_of_sale_id,vendor_id,vendor_id_x,valor_vendedor,order_date
7,stale-id,vendor-a,100,2025-01-06
`)
	service := NewService(path, testLogger())

	rows, err := service.Mix(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "vendor-a", rows[0].VendorID)
}

func TestService_Weekly(t *testing.T) {
	path := writeExport(t, `point_of_sale_id,vendor_id,valor_vendedor,order_date
7,vendor-a,100,2025-01-06 00:00:00
7,vendor-a,50,2025-01-13 00:00:00
7,vendor-b,25,2025-01-06 00:00:00
7,vendor-b,10,not a date
`)
	service := NewService(path, testLogger())

	rows, err := service.Weekly(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "vendor-a", rows[0].VendorID)
	assert.Equal(t, "2025-W02", rows[0].Week)
	assert.True(t, rows[0].Total.Equal(dec(t, "100")))
	assert.Equal(t, "vendor-b", rows[1].VendorID)
	assert.Equal(t, "2025-W02", rows[1].Week)
	assert.Equal(t, "2025-W03", rows[2].Week)
	assert.True(t, rows[2].Total.Equal(dec(t, "50")))
	assert.Equal(t, "Unknown", rows[3].Week)
}

func TestService_Totals(t *testing.T) {
	path := writeExport(t, `point_of_sale_id,vendor_id,valor_vendedor,order_date
9,vendor-a,30,2025-01-06
7,vendor-a,100,2025-01-06
7,vendor-a,50,2025-01-07
`)
	service := NewService(path, testLogger())

	rows, err := service.Totals(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "7", rows[0].PosID)
	assert.True(t, rows[0].Total.Equal(dec(t, "150")))
	assert.Equal(t, "9", rows[1].PosID)
}

func TestService_MissingExport(t *testing.T) {
	service := NewService(filepath.Join(t.TempDir(), "nope.csv"), testLogger())

	rows, err := service.Mix(context.Background(), "7")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWeekNumber(t *testing.T) {
	assert.Equal(t, "2025-W02", WeekNumber("2025-01-06 00:00:00"))
	assert.Equal(t, "2025-W02", WeekNumber("2025-01-10"))
	// ISO week 1 of 2025 starts in calendar 2024; the label keeps the
	// calendar year.
	assert.Equal(t, "2024-W01", WeekNumber("2024-12-30 00:00:00"))
	assert.Equal(t, "Unknown", WeekNumber(""))
	assert.Equal(t, "Unknown", WeekNumber("soon"))
}
