package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/obr-ledger/internal/ledger"
	"github.com/dvloznov/obr-ledger/internal/money"
)

// obligationDateLayouts are tried in order; extracted dates use the first.
var obligationDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"01/02/2006",
}

// InsertLedgerRowsWithClient streams a batch of LedgerRow into ledger_rows.
func InsertLedgerRowsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, rows []*LedgerRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.Dataset(datasetID).Table(ledgerRowsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertLedgerRows: inserting rows: %w", err)
	}
	return nil
}

// ToLedgerRows maps ledger data rows onto LedgerRow. Pass the rows without
// the TOTAL row. Dates that do not parse stay NULL with the text kept in
// date_text; non-numeric amounts stay NULL.
func ToLedgerRows(exportID, runID string, rows [][]string, now time.Time) []*LedgerRow {
	out := make([]*LedgerRow, 0, len(rows))
	for _, values := range rows {
		cell := func(c ledger.Column) string {
			if int(c) < len(values) {
				return strings.TrimSpace(values[c])
			}
			return ""
		}
		out = append(out, &LedgerRow{
			ExportID:       exportID,
			RunID:          runID,
			Position:       int64(len(out)),
			FileName:       cell(ledger.ColFileName),
			Serial:         cell(ledger.ColSerial),
			ObligationDate: parseObligationDate(cell(ledger.ColDate)),
			DateText:       cell(ledger.ColDate),
			Payee:          cell(ledger.ColPayee),
			Particulars:    cell(ledger.ColParticulars),
			TotalAmount:    numeric(cell(ledger.ColTotalAmount)),
			Payment:        numeric(cell(ledger.ColPayment)),
			Tax:            numeric(cell(ledger.ColTax)),
			Balance:        numeric(cell(ledger.ColBalance)),
			Remarks:        cell(ledger.ColRemarks),
			ExportedTS:     now,
		})
	}
	return out
}

func parseObligationDate(s string) bigquery.NullDate {
	if s == "" {
		return bigquery.NullDate{}
	}
	for _, layout := range obligationDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return bigquery.NullDate{Date: civil.DateOf(t), Valid: true}
		}
	}
	return bigquery.NullDate{}
}

// numeric converts a ledger amount to a NUMERIC value. Blank cells are zero
// like everywhere else in the ledger.
func numeric(s string) *big.Rat {
	d, ok := money.Parse(s)
	if !ok {
		return nil
	}
	return d.Rat()
}
