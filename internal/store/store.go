// Package store keeps membership payment records in a Google Spreadsheet:
// a reference sheet of members plus one sheet per billing period.
package store

import (
	"context"
	"fmt"

	"membership-billing/internal/common/errors"
	"membership-billing/internal/common/logger"
	"membership-billing/internal/common/metrics"
)

// periodHeader is the first row of every period sheet. Column order is
// part of the store's contract.
var periodHeader = []interface{}{
	"memberId", "memberEmail", "paymentLink", "paymentLinkSent",
	"uniquePaymentLink", "paid", "paidDate",
}

const periodColumns = "A:G"

// Store reads and writes payment records. All operations go through the
// valuesAPI so the backing spreadsheet can be faked in tests.
type Store struct {
	api          valuesAPI
	membersSheet string
	logger       logger.Logger
}

// NewStore connects to the spreadsheet using a service-account credentials
// file (or ambient credentials when the path is empty).
func NewStore(ctx context.Context, spreadsheetID, membersSheet, credentialsFile string, log logger.Logger) (*Store, error) {
	api, err := newSheetsValues(ctx, spreadsheetID, credentialsFile)
	if err != nil {
		return nil, err
	}
	return newStoreWithAPI(api, membersSheet, log), nil
}

func newStoreWithAPI(api valuesAPI, membersSheet string, log logger.Logger) *Store {
	return &Store{
		api:          api,
		membersSheet: membersSheet,
		logger:       log.WithFields(map[string]interface{}{"component": "store"}),
	}
}

// ReadAllMembers returns the reference sheet rows. Rows missing the id or
// the email are skipped, not errors.
func (s *Store) ReadAllMembers(ctx context.Context) ([]Member, error) {
	rows, err := s.api.Get(ctx, s.membersSheet+"!A2:B")
	if err != nil {
		metrics.SheetOperations.WithLabelValues("read_members", "error").Inc()
		return nil, errors.NewSheetReadFailedError(s.membersSheet, err)
	}
	metrics.SheetOperations.WithLabelValues("read_members", "success").Inc()

	members := make([]Member, 0, len(rows))
	for _, row := range rows {
		id, email := cell(row, 0), cell(row, 1)
		if id == "" || email == "" {
			continue
		}
		members = append(members, Member{ID: id, Email: email})
	}
	return members, nil
}

// ReadPeriod returns every record of the period sheet, skipping rows
// missing the id or the email.
func (s *Store) ReadPeriod(ctx context.Context, period Period) ([]PaymentRecord, error) {
	records, _, err := s.readPeriodRows(ctx, period)
	return records, err
}

// readPeriodRows also returns, per record, the 1-based sheet row number it
// came from, so updates can address the exact row.
func (s *Store) readPeriodRows(ctx context.Context, period Period) ([]PaymentRecord, []int, error) {
	sheet := period.String()
	if err := s.requireSheet(ctx, sheet); err != nil {
		return nil, nil, err
	}

	rows, err := s.api.Get(ctx, sheet+"!A2:G")
	if err != nil {
		metrics.SheetOperations.WithLabelValues("read_period", "error").Inc()
		return nil, nil, errors.NewSheetReadFailedError(sheet, err)
	}
	metrics.SheetOperations.WithLabelValues("read_period", "success").Inc()

	records := make([]PaymentRecord, 0, len(rows))
	rowNums := make([]int, 0, len(rows))
	for i, row := range rows {
		rec := PaymentRecord{
			MemberID:          cell(row, 0),
			MemberEmail:       cell(row, 1),
			PaymentLink:       cell(row, 2),
			PaymentLinkSent:   cell(row, 3),
			UniquePaymentLink: cell(row, 4),
			Paid:              cell(row, 5),
			PaidDate:          cell(row, 6),
		}
		if rec.MemberID == "" || rec.MemberEmail == "" {
			continue
		}
		records = append(records, rec)
		rowNums = append(rowNums, i+2) // data starts at row 2
	}
	return records, rowNums, nil
}

// EnsurePeriodSheet creates the period sheet with its header when absent.
// Calling it on an existing sheet is a no-op.
func (s *Store) EnsurePeriodSheet(ctx context.Context, period Period) error {
	sheet := period.String()

	titles, err := s.api.SheetTitles(ctx)
	if err != nil {
		return errors.NewSheetReadFailedError(sheet, err)
	}
	for _, t := range titles {
		if t == sheet {
			return nil
		}
	}

	if err := s.api.AddSheet(ctx, sheet); err != nil {
		metrics.SheetOperations.WithLabelValues("create_sheet", "error").Inc()
		return errors.NewSheetUpdateFailedError(sheet, err)
	}
	if err := s.api.Update(ctx, sheet+"!A1:G1", [][]interface{}{periodHeader}); err != nil {
		metrics.SheetOperations.WithLabelValues("create_sheet", "error").Inc()
		return errors.NewSheetUpdateFailedError(sheet, err)
	}
	metrics.SheetOperations.WithLabelValues("create_sheet", "success").Inc()

	s.logger.Info("period sheet created", map[string]interface{}{"sheet": sheet})
	return nil
}

// AppendRecords appends rows to the period sheet.
func (s *Store) AppendRecords(ctx context.Context, period Period, records []PaymentRecord) error {
	if len(records) == 0 {
		return nil
	}
	sheet := period.String()
	if err := s.requireSheet(ctx, sheet); err != nil {
		return err
	}

	values := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		values = append(values, []interface{}{
			rec.MemberID, rec.MemberEmail, rec.PaymentLink, rec.PaymentLinkSent,
			rec.UniquePaymentLink, rec.Paid, rec.PaidDate,
		})
	}
	if err := s.api.Append(ctx, sheet+"!"+periodColumns, values); err != nil {
		metrics.SheetOperations.WithLabelValues("append", "error").Inc()
		return errors.NewSheetUpdateFailedError(sheet, err)
	}
	metrics.SheetOperations.WithLabelValues("append", "success").Inc()
	return nil
}

// UpdateOne applies a partial update to the first row matching memberID.
// Rows after the first match are ignored.
func (s *Store) UpdateOne(ctx context.Context, period Period, memberID string, update RecordUpdate) error {
	if memberID == "" {
		return errors.NewArgumentMismatchError("memberId is required")
	}

	records, rowNums, err := s.readPeriodRows(ctx, period)
	if err != nil {
		return err
	}

	sheet := period.String()
	for i, rec := range records {
		if rec.MemberID != memberID {
			continue
		}
		update.applyTo(&rec)
		writeRange := fmt.Sprintf("%s!A%d:G%d", sheet, rowNums[i], rowNums[i])
		row := []interface{}{
			rec.MemberID, rec.MemberEmail, rec.PaymentLink, rec.PaymentLinkSent,
			rec.UniquePaymentLink, rec.Paid, rec.PaidDate,
		}
		if err := s.api.Update(ctx, writeRange, [][]interface{}{row}); err != nil {
			metrics.SheetOperations.WithLabelValues("update", "error").Inc()
			return errors.NewSheetUpdateFailedError(sheet, err)
		}
		metrics.SheetOperations.WithLabelValues("update", "success").Inc()
		return nil
	}

	return errors.NewRecordNotFoundError(sheet, memberID)
}

// UpdateBatch applies updates[i] to memberIDs[i] sequentially. A failing
// row is recorded and the remaining rows still run; partial completion is
// visible in the result. The slices must pair up exactly.
func (s *Store) UpdateBatch(ctx context.Context, period Period, memberIDs []string, updates []RecordUpdate) (*BatchUpdateResult, error) {
	if len(memberIDs) != len(updates) {
		return nil, errors.NewArgumentMismatchError(
			fmt.Sprintf("memberIDs and updates must pair up: %d vs %d", len(memberIDs), len(updates)))
	}

	result := &BatchUpdateResult{
		Total: len(memberIDs),
		Rows:  make([]RowOutcome, 0, len(memberIDs)),
	}
	for i, memberID := range memberIDs {
		err := s.UpdateOne(ctx, period, memberID, updates[i])
		result.Rows = append(result.Rows, RowOutcome{MemberID: memberID, Err: err})
		if err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	s.logger.Info("batch update completed", map[string]interface{}{
		"period":    period.String(),
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
	return result, nil
}

func (s *Store) requireSheet(ctx context.Context, sheet string) error {
	titles, err := s.api.SheetTitles(ctx)
	if err != nil {
		return errors.NewSheetReadFailedError(sheet, err)
	}
	for _, t := range titles {
		if t == sheet {
			return nil
		}
	}
	return errors.NewRecordNotFoundError(sheet, "")
}

func cell(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	v, ok := row[idx].(string)
	if !ok {
		return fmt.Sprintf("%v", row[idx])
	}
	return v
}
