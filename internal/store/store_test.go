package store

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-billing/internal/common/errors"
	"membership-billing/internal/common/logger"
)

// fakeSheets is an in-memory valuesAPI. Row index 0 corresponds to sheet
// row 1.
type fakeSheets struct {
	sheets map[string][][]interface{}
	order  []string

	getErr    error
	updateErr error
	appendErr error

	getCalls    int
	updateCalls int
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{sheets: map[string][][]interface{}{}}
}

func (f *fakeSheets) addSheet(title string, rows ...[]interface{}) {
	f.sheets[title] = rows
	f.order = append(f.order, title)
}

var rangeRe = regexp.MustCompile(`^([A-Z]+)(\d*):([A-Z]+)(\d*)$`)

func splitRange(fullRange string) (sheet string, startRow, endRow int) {
	parts := strings.SplitN(fullRange, "!", 2)
	sheet = parts[0]
	startRow, endRow = 1, 0 // 0 = unbounded
	if len(parts) == 2 {
		m := rangeRe.FindStringSubmatch(parts[1])
		if m == nil {
			panic(fmt.Sprintf("fakeSheets: unsupported range %q", fullRange))
		}
		if m[2] != "" {
			startRow, _ = strconv.Atoi(m[2])
		}
		if m[4] != "" {
			endRow, _ = strconv.Atoi(m[4])
		}
	}
	return sheet, startRow, endRow
}

func (f *fakeSheets) Get(ctx context.Context, readRange string) ([][]interface{}, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	sheet, startRow, _ := splitRange(readRange)
	rows, ok := f.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}
	if startRow > len(rows) {
		return nil, nil
	}
	return rows[startRow-1:], nil
}

func (f *fakeSheets) Update(ctx context.Context, writeRange string, values [][]interface{}) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	sheet, startRow, _ := splitRange(writeRange)
	rows, ok := f.sheets[sheet]
	if !ok {
		return fmt.Errorf("sheet %q not found", sheet)
	}
	for i, row := range values {
		idx := startRow - 1 + i
		for len(rows) <= idx {
			rows = append(rows, nil)
		}
		rows[idx] = row
	}
	f.sheets[sheet] = rows
	return nil
}

func (f *fakeSheets) Append(ctx context.Context, writeRange string, values [][]interface{}) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	sheet, _, _ := splitRange(writeRange)
	if _, ok := f.sheets[sheet]; !ok {
		return fmt.Errorf("sheet %q not found", sheet)
	}
	f.sheets[sheet] = append(f.sheets[sheet], values...)
	return nil
}

func (f *fakeSheets) AddSheet(ctx context.Context, title string) error {
	if _, ok := f.sheets[title]; ok {
		return fmt.Errorf("sheet %q already exists", title)
	}
	f.addSheet(title)
	return nil
}

func (f *fakeSheets) SheetTitles(ctx context.Context) ([]string, error) {
	return append([]string(nil), f.order...), nil
}

func testStore(t *testing.T, fake *fakeSheets) *Store {
	t.Helper()
	return newStoreWithAPI(fake, "members", logger.NewTestLogger(t))
}

func memberRow(id, email string) []interface{} {
	return []interface{}{id, email}
}

func recordRow(id, email, link, sent, unique, paid, paidDate string) []interface{} {
	return []interface{}{id, email, link, sent, unique, paid, paidDate}
}

func TestReadAllMembers(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("members",
		[]interface{}{"memberId", "memberEmail"},
		memberRow("m1", "m1@example.com"),
		memberRow("", "orphan@example.com"), // no id, skipped
		memberRow("m3", ""),                 // no email, skipped
		memberRow("m4", "m4@example.com"),
	)

	members, err := testStore(t, fake).ReadAllMembers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Member{
		{ID: "m1", Email: "m1@example.com"},
		{ID: "m4", Email: "m4@example.com"},
	}, members)
}

func TestReadAllMembers_ReadError(t *testing.T) {
	fake := newFakeSheets()
	fake.getErr = fmt.Errorf("quota exceeded")

	_, err := testStore(t, fake).ReadAllMembers(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeSheetReadFailed))
	assert.True(t, errors.AsStandard(err).Retryable)
}

func TestReadPeriod(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("202603",
		periodHeader,
		recordRow("m1", "m1@example.com", "https://pay/1", "Y", "", "Y", "2026/03/05"),
		recordRow("", "", "", "", "", "", ""), // blank row, skipped
		recordRow("m2", "m2@example.com", "https://pay/2", "", "", "", ""),
	)

	records, err := testStore(t, fake).ReadPeriod(context.Background(), Period{2026, 3})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, PaymentRecord{
		MemberID: "m1", MemberEmail: "m1@example.com",
		PaymentLink: "https://pay/1", PaymentLinkSent: "Y",
		Paid: "Y", PaidDate: "2026/03/05",
	}, records[0])
	assert.Equal(t, "m2", records[1].MemberID)
}

func TestReadPeriod_MissingSheet(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("members")

	_, err := testStore(t, fake).ReadPeriod(context.Background(), Period{2026, 4})
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecordNotFound))
}

func TestEnsurePeriodSheet(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("members")
	s := testStore(t, fake)
	period := Period{2026, 3}

	require.NoError(t, s.EnsurePeriodSheet(context.Background(), period))
	require.Contains(t, fake.sheets, "202603")
	assert.Equal(t, periodHeader, fake.sheets["202603"][0])

	// second call is a no-op, not an "already exists" failure
	require.NoError(t, s.EnsurePeriodSheet(context.Background(), period))
}

func TestAppendRecords(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("202603", periodHeader)
	s := testStore(t, fake)

	err := s.AppendRecords(context.Background(), Period{2026, 3}, []PaymentRecord{
		{MemberID: "m1", MemberEmail: "m1@example.com", PaymentLink: "https://pay/1"},
	})
	require.NoError(t, err)

	records, err := s.ReadPeriod(context.Background(), Period{2026, 3})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://pay/1", records[0].PaymentLink)
}

func TestUpdateOne_PartialUpdate(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("202603",
		periodHeader,
		recordRow("m1", "m1@example.com", "https://pay/1", "Y", "https://unique/1", "", ""),
	)
	s := testStore(t, fake)

	err := s.UpdateOne(context.Background(), Period{2026, 3}, "m1", RecordUpdate{
		Paid:              String("Y"),
		PaidDate:          String("2026/03/10"),
		UniquePaymentLink: String(""), // explicit blank
	})
	require.NoError(t, err)

	records, err := s.ReadPeriod(context.Background(), Period{2026, 3})
	require.NoError(t, err)
	rec := records[0]

	// untouched fields survive
	assert.Equal(t, "https://pay/1", rec.PaymentLink)
	assert.Equal(t, "Y", rec.PaymentLinkSent)
	// updated fields applied
	assert.Equal(t, "Y", rec.Paid)
	assert.Equal(t, "2026/03/10", rec.PaidDate)
	// pointer-to-empty blanks the cell
	assert.Equal(t, "", rec.UniquePaymentLink)
}

func TestUpdateOne_FirstMatchWins(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("202603",
		periodHeader,
		recordRow("m1", "first@example.com", "", "", "", "", ""),
		recordRow("m1", "second@example.com", "", "", "", "", ""),
	)
	s := testStore(t, fake)

	require.NoError(t, s.UpdateOne(context.Background(), Period{2026, 3}, "m1", RecordUpdate{Paid: String("Y")}))

	records, err := s.ReadPeriod(context.Background(), Period{2026, 3})
	require.NoError(t, err)
	assert.Equal(t, "Y", records[0].Paid)
	assert.Equal(t, "", records[1].Paid)
}

func TestUpdateOne_NotFound(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("202603", periodHeader)
	s := testStore(t, fake)

	err := s.UpdateOne(context.Background(), Period{2026, 3}, "ghost", RecordUpdate{Paid: String("Y")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecordNotFound))

	err = s.UpdateOne(context.Background(), Period{2026, 5}, "m1", RecordUpdate{Paid: String("Y")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecordNotFound))
}

func TestUpdateBatch(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("202603",
		periodHeader,
		recordRow("m1", "m1@example.com", "", "", "", "", ""),
		recordRow("m3", "m3@example.com", "", "", "", "", ""),
	)
	s := testStore(t, fake)

	sent := RecordUpdate{PaymentLinkSent: String("Y")}
	result, err := s.UpdateBatch(context.Background(), Period{2026, 3},
		[]string{"m1", "m2", "m3"}, []RecordUpdate{sent, sent, sent})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, result.Rows, 3)
	assert.NoError(t, result.Rows[0].Err)
	assert.True(t, errors.IsCode(result.Rows[1].Err, errors.ErrCodeRecordNotFound))
	assert.NoError(t, result.Rows[2].Err)

	// the failing middle row must not stop the rows after it
	records, err := s.ReadPeriod(context.Background(), Period{2026, 3})
	require.NoError(t, err)
	assert.Equal(t, "Y", records[0].PaymentLinkSent)
	assert.Equal(t, "Y", records[1].PaymentLinkSent)
}

func TestUpdateBatch_LengthMismatch(t *testing.T) {
	fake := newFakeSheets()
	fake.addSheet("202603", periodHeader)
	s := testStore(t, fake)

	_, err := s.UpdateBatch(context.Background(), Period{2026, 3},
		[]string{"m1", "m2"}, []RecordUpdate{{}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeArgumentMismatch))

	// argument check fires before any spreadsheet traffic
	assert.Zero(t, fake.getCalls)
	assert.Zero(t, fake.updateCalls)
}
