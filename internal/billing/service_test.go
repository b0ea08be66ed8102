package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-billing/internal/batch"
	"membership-billing/internal/common/database"
	"membership-billing/internal/common/errors"
	commonhttp "membership-billing/internal/common/http"
	"membership-billing/internal/common/logger"
	"membership-billing/internal/ecpay"
	"membership-billing/internal/store"
)

type fakePaymentStore struct {
	mu      sync.Mutex
	members []store.Member
	periods map[string][]store.PaymentRecord
	updates []string // "memberId:field=value" trail for assertions
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{periods: map[string][]store.PaymentRecord{}}
}

func (f *fakePaymentStore) EnsurePeriodSheet(ctx context.Context, period store.Period) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.periods[period.String()]; !ok {
		f.periods[period.String()] = nil
	}
	return nil
}

func (f *fakePaymentStore) ReadAllMembers(ctx context.Context) ([]store.Member, error) {
	return f.members, nil
}

func (f *fakePaymentStore) ReadPeriod(ctx context.Context, period store.Period) ([]store.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, ok := f.periods[period.String()]
	if !ok {
		return nil, errors.NewRecordNotFoundError(period.String(), "")
	}
	return append([]store.PaymentRecord(nil), records...), nil
}

func (f *fakePaymentStore) AppendRecords(ctx context.Context, period store.Period, records []store.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods[period.String()] = append(f.periods[period.String()], records...)
	return nil
}

func (f *fakePaymentStore) UpdateOne(ctx context.Context, period store.Period, memberID string, update store.RecordUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	records := f.periods[period.String()]
	for i, rec := range records {
		if rec.MemberID != memberID {
			continue
		}
		if update.Paid != nil {
			records[i].Paid = *update.Paid
			f.updates = append(f.updates, fmt.Sprintf("%s:paid=%s", memberID, *update.Paid))
		}
		if update.PaidDate != nil {
			records[i].PaidDate = *update.PaidDate
		}
		if update.UniquePaymentLink != nil {
			records[i].UniquePaymentLink = *update.UniquePaymentLink
			f.updates = append(f.updates, fmt.Sprintf("%s:unique=%s", memberID, *update.UniquePaymentLink))
		}
		return nil
	}
	return errors.NewRecordNotFoundError(period.String(), memberID)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEvents) Record(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) ofType(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testGateway(t *testing.T) *ecpay.Client {
	t.Helper()
	c := ecpay.NewClient(ecpay.Config{
		MerchantID:  "2000132",
		HashKey:     "testkey",
		HashIV:      "testiv",
		CheckoutURL: "https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5",
		ReturnURL:   "https://billing.example.com/api/payments/callback",
		EncodeTable: ecpay.EncodeTableDotNet,
	}, commonhttp.NewClient(5*time.Second), logger.NewNoOpLogger())
	return c
}

type billingFixture struct {
	svc       *Service
	store     *fakePaymentStore
	events    *recordingEvents
	gateway   *ecpay.Client
	redisMock redismock.ClientMock
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	st := newFakePaymentStore()
	events := &recordingEvents{}
	gw := testGateway(t)

	redisClient, redisMock := redismock.NewClientMock()
	guard := &database.RedisClient{Client: redisClient}

	dispatcher, err := batch.NewDispatcher[store.Member](5, 0, logger.NewNoOpLogger())
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		Store:       st,
		Gateway:     gw,
		Guard:       guard,
		Events:      events,
		Dispatcher:  dispatcher,
		Amount:      300,
		ItemName:    "Annual Membership",
		LinkBaseURL: "https://billing.example.com/api/payments",
		Logger:      logger.NewTestLogger(t),
	})
	return &billingFixture{svc: svc, store: st, events: events, gateway: gw, redisMock: redisMock}
}

var testPeriod = store.Period{Year: 2026, Month: 3}

func TestGenerateLinks(t *testing.T) {
	f := newBillingFixture(t)
	f.store.members = []store.Member{
		{ID: "m1", Email: "m1@example.com"},
		{ID: "m2", Email: "m2@example.com"},
		{ID: "m3", Email: "m3@example.com"},
	}
	// m2 already has a row from an earlier run
	f.store.periods["202603"] = []store.PaymentRecord{
		{MemberID: "m2", MemberEmail: "m2@example.com", PaymentLink: "https://billing.example.com/api/payments/202603m2/checkout"},
	}

	result, err := f.svc.GenerateLinks(context.Background(), testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Succeeded)

	records := f.store.periods["202603"]
	require.Len(t, records, 3)

	byMember := map[string]store.PaymentRecord{}
	for _, rec := range records {
		byMember[rec.MemberID] = rec
	}
	assert.Equal(t, "https://billing.example.com/api/payments/202603m1/checkout", byMember["m1"].PaymentLink)
	assert.Equal(t, "https://billing.example.com/api/payments/202603m3/checkout", byMember["m3"].PaymentLink)

	created := f.events.ofType(EventLinkCreated)
	assert.Len(t, created, 2)
}

func TestGenerateLinks_CreatesMissingSheet(t *testing.T) {
	f := newBillingFixture(t)
	f.store.members = []store.Member{{ID: "m1", Email: "m1@example.com"}}

	result, err := f.svc.GenerateLinks(context.Background(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, f.store.periods["202603"], 1)
}

func TestOrderIDFor(t *testing.T) {
	assert.Equal(t, "202603m1", orderIDFor(testPeriod, "m1"))
	// separators are stripped, never signed
	assert.Equal(t, "202603member42", orderIDFor(testPeriod, "member-42"))
	// long member ids are trimmed to the gateway limit
	long := orderIDFor(testPeriod, "member12345678901234567890")
	assert.Len(t, long, ecpay.MaxTradeNoLength)
}

func TestIssueUniqueLink(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = []store.PaymentRecord{
		{MemberID: "m1", MemberEmail: "m1@example.com", PaymentLink: "https://billing.example.com/api/payments/202603m1/checkout"},
	}
	f.svc.newOrderID = func(period store.Period) string { return period.String() + "UNIQUE0000001" }

	link, err := f.svc.IssueUniqueLink(context.Background(), testPeriod, "m1")
	require.NoError(t, err)

	assert.Equal(t, "https://billing.example.com/api/payments/202603UNIQUE0000001/checkout", link)
	assert.Equal(t, link, f.store.periods["202603"][0].UniquePaymentLink)
	assert.Len(t, f.events.ofType(EventLinkCreated), 1)
}

func TestIssueUniqueLink_UnknownMember(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = nil

	_, err := f.svc.IssueUniqueLink(context.Background(), testPeriod, "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecordNotFound))
}

func signedCallback(t *testing.T, gw *ecpay.Client, orderID, tradeNo, rtnCode string) map[string]string {
	t.Helper()
	params := map[string]string{
		ecpay.FieldMerchantID:      "2000132",
		ecpay.FieldMerchantTradeNo: orderID,
		ecpay.FieldRtnCode:         rtnCode,
		ecpay.FieldRtnMsg:          "callback",
		ecpay.FieldTradeNo:         tradeNo,
		ecpay.FieldTradeAmt:        "300",
		ecpay.FieldPaymentDate:     "2026/03/05 09:00:00",
	}
	params[ecpay.FieldCheckMacValue] = gw.Signer().Sign(params)
	return params
}

func TestConfirmPayment_Success(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = []store.PaymentRecord{
		{MemberID: "m1", MemberEmail: "m1@example.com", PaymentLink: "https://billing.example.com/api/payments/202603m1/checkout"},
	}
	f.redisMock.ExpectSetNX("billing:callback:TN123", "202603m1", callbackKeyTTL).SetVal(true)

	result, err := f.svc.ConfirmPayment(context.Background(),
		signedCallback(t, f.gateway, "202603m1", "TN123", "1"))
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.True(t, result.Paid)
	assert.False(t, result.Duplicate)

	rec := f.store.periods["202603"][0]
	assert.Equal(t, "Y", rec.Paid)
	assert.Equal(t, "2026/03/05 09:00:00", rec.PaidDate)

	confirmed := f.events.ofType(EventConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "m1", confirmed[0].MemberID)
	assert.Equal(t, "300", confirmed[0].Amount)

	assert.NoError(t, f.redisMock.ExpectationsWereMet())
}

func TestConfirmPayment_DuplicateCallback(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = []store.PaymentRecord{
		{MemberID: "m1", MemberEmail: "m1@example.com"},
	}
	f.redisMock.ExpectSetNX("billing:callback:TN123", "202603m1", callbackKeyTTL).SetVal(false)

	result, err := f.svc.ConfirmPayment(context.Background(),
		signedCallback(t, f.gateway, "202603m1", "TN123", "1"))
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.True(t, result.Duplicate)
	assert.False(t, result.Paid)
	assert.Equal(t, "Callback already processed", result.Reason)

	// replay leaves the record untouched
	assert.Equal(t, "", f.store.periods["202603"][0].Paid)
	duplicates := f.events.ofType(EventDuplicate)
	require.Len(t, duplicates, 1)
	assert.Equal(t, "Callback already processed", duplicates[0].Detail)
}

func TestConfirmPayment_GuardUnavailable(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = []store.PaymentRecord{
		{MemberID: "m1", MemberEmail: "m1@example.com"},
	}
	f.redisMock.ExpectSetNX("billing:callback:TN123", "202603m1", callbackKeyTTL).
		SetErr(fmt.Errorf("connection refused"))

	_, err := f.svc.ConfirmPayment(context.Background(),
		signedCallback(t, f.gateway, "202603m1", "TN123", "1"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIdempotencyCheckFailed))
	assert.True(t, errors.AsStandard(err).Retryable)

	// nothing applied while the guard is down
	assert.Equal(t, "", f.store.periods["202603"][0].Paid)
}

func TestConfirmPayment_TamperedCallback(t *testing.T) {
	f := newBillingFixture(t)
	params := signedCallback(t, f.gateway, "202603m1", "TN123", "1")
	params[ecpay.FieldTradeAmt] = "1"

	result, err := f.svc.ConfirmPayment(context.Background(), params)
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Contains(t, result.Reason, "CheckMacValue")
	rejected := f.events.ofType(EventRejected)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Detail, "202603m1")
}

func TestConfirmPayment_FailedTrade(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = []store.PaymentRecord{
		{MemberID: "m1", MemberEmail: "m1@example.com"},
	}

	result, err := f.svc.ConfirmPayment(context.Background(),
		signedCallback(t, f.gateway, "202603m1", "TN124", "10200073"))
	require.NoError(t, err)

	// authentic failure: acknowledge so the gateway stops retrying
	assert.True(t, result.Accepted)
	assert.False(t, result.Paid)
	assert.Equal(t, "", f.store.periods["202603"][0].Paid)
	assert.Len(t, f.events.ofType(EventFailed), 1)
}

func TestConfirmPayment_UnknownOrder(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = nil
	f.redisMock.ExpectSetNX("billing:callback:TN125", "202603ghost", callbackKeyTTL).SetVal(true)
	// the guard is released so a later retry can still land
	f.redisMock.ExpectDel("billing:callback:TN125").SetVal(1)

	_, err := f.svc.ConfirmPayment(context.Background(),
		signedCallback(t, f.gateway, "202603ghost", "TN125", "1"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecordNotFound))
	assert.NoError(t, f.redisMock.ExpectationsWereMet())
}

func TestConfirmPayment_ResolvesUniqueLink(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = []store.PaymentRecord{
		{
			MemberID:          "m1",
			MemberEmail:       "m1@example.com",
			UniquePaymentLink: "https://billing.example.com/api/payments/202603UNIQUE0000001/checkout",
		},
	}
	f.redisMock.ExpectSetNX("billing:callback:TN126", "202603UNIQUE0000001", callbackKeyTTL).SetVal(true)

	result, err := f.svc.ConfirmPayment(context.Background(),
		signedCallback(t, f.gateway, "202603UNIQUE0000001", "TN126", "1"))
	require.NoError(t, err)

	assert.True(t, result.Paid)
	assert.Equal(t, "Y", f.store.periods["202603"][0].Paid)
}

func TestBuildCheckoutForOrder(t *testing.T) {
	f := newBillingFixture(t)
	f.store.periods["202603"] = []store.PaymentRecord{
		{MemberID: "m1", MemberEmail: "m1@example.com"},
	}

	payload, err := f.svc.BuildCheckoutForOrder(context.Background(), "202603m1")
	require.NoError(t, err)

	assert.Equal(t, "202603m1", payload.OrderID)
	assert.Equal(t, "300", payload.Fields[ecpay.FieldTotalAmount])
	assert.Contains(t, payload.HTML, "form")
}

func TestBuildCheckoutForOrder_BadOrderID(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.svc.BuildCheckoutForOrder(context.Background(), "x")
	assert.True(t, errors.IsCode(err, errors.ErrCodeArgumentMismatch))

	_, err = f.svc.BuildCheckoutForOrder(context.Background(), "badqqqm1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeArgumentMismatch))
}
