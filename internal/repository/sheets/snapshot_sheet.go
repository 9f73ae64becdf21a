// Package sheets keeps the daily stock snapshots in a Google spreadsheet.
// Each snapshot is one row per product on the "Stock" tab:
//
//	Date | ID | Produit | Stock | Prix | Valeur | Stock faible
package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/stockapp/internal/config"
	"github.com/mamadbah2/stockapp/internal/domain/models"
)

const (
	// DateLayout is how snapshot days are written in the first column.
	DateLayout = "2006-01-02"

	snapshotRowsRange  = "Stock!A:G"
	snapshotDatesRange = "Stock!A:A"
	lowStockMark       = "OUI"
)

// SnapshotStore persists daily stock snapshots.
type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, rows []models.StockSnapshotRow) error
	HasSnapshot(ctx context.Context, day time.Time) (bool, error)
}

// Values is the slice of the Sheets values API the store needs.
type Values interface {
	Append(ctx context.Context, sheetRange string, rows [][]interface{}) error
	Get(ctx context.Context, sheetRange string) ([][]interface{}, error)
}

// SnapshotSheet stores snapshots on the "Stock" tab of a spreadsheet.
type SnapshotSheet struct {
	values Values
	logger *zap.Logger
}

// NewSnapshotSheet builds a store over values.
func NewSnapshotSheet(values Values, logger *zap.Logger) *SnapshotSheet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotSheet{values: values, logger: logger}
}

// NewGoogleSnapshotSheet connects to the spreadsheet named in cfg with a
// service account credentials file.
func NewGoogleSnapshotSheet(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*SnapshotSheet, error) {
	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}
	return NewSnapshotSheet(&googleValues{service: service, spreadsheetID: cfg.SpreadsheetID}, logger), nil
}

// AppendSnapshot writes rows below the last filled row in a single call.
func (s *SnapshotSheet) AppendSnapshot(ctx context.Context, rows []models.StockSnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		low := ""
		if row.LowStock {
			low = lowStockMark
		}
		values = append(values, []interface{}{
			row.Date.Format(DateLayout),
			row.ProductID.String(),
			row.ProductName,
			row.CurrentStock,
			row.Price,
			row.Value,
			low,
		})
	}
	if err := s.values.Append(ctx, snapshotRowsRange, values); err != nil {
		return fmt.Errorf("append %d snapshot rows: %w", len(values), err)
	}
	s.logger.Debug("snapshot rows appended", zap.Int("rows", len(values)))
	return nil
}

// HasSnapshot reports whether rows dated day are already on the sheet.
// Cells that are not dates, such as the header, are skipped.
func (s *SnapshotSheet) HasSnapshot(ctx context.Context, day time.Time) (bool, error) {
	values, err := s.values.Get(ctx, snapshotDatesRange)
	if err != nil {
		return false, fmt.Errorf("load snapshot dates: %w", err)
	}
	want := day.Format(DateLayout)
	// Newest rows are at the bottom.
	for i := len(values) - 1; i >= 0; i-- {
		if len(values[i]) == 0 {
			continue
		}
		date, err := parseDate(values[i][0])
		if err != nil {
			s.logger.Debug("skip snapshot row with invalid date", zap.Any("value", values[i][0]), zap.Error(err))
			continue
		}
		if date.Format(DateLayout) == want {
			return true, nil
		}
	}
	return false, nil
}

func parseDate(value interface{}) (time.Time, error) {
	str := fmt.Sprint(value)
	if str == "" {
		return time.Time{}, errors.New("empty date")
	}
	if len(str) > len(DateLayout) {
		str = str[:len(DateLayout)]
	}
	return time.Parse(DateLayout, str)
}

type googleValues struct {
	service       *sheetsapi.Service
	spreadsheetID string
}

func (g *googleValues) Append(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	_, err := g.service.Spreadsheets.Values.Append(g.spreadsheetID, sheetRange, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (g *googleValues) Get(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	resp, err := g.service.Spreadsheets.Values.Get(g.spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}
