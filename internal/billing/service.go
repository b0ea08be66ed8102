// Package billing orchestrates the payment lifecycle: link generation,
// delivery bookkeeping, callback confirmation, and the audit trail.
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"membership-billing/internal/batch"
	"membership-billing/internal/common/errors"
	"membership-billing/internal/common/logger"
	"membership-billing/internal/common/metrics"
	"membership-billing/internal/ecpay"
	"membership-billing/internal/store"
)

// callbackKeyTTL bounds how long a trade number blocks replays. Gateway
// retries stop well within a day.
const callbackKeyTTL = 48 * time.Hour

// paymentStore is the slice of the record store the orchestration needs.
type paymentStore interface {
	EnsurePeriodSheet(ctx context.Context, period store.Period) error
	ReadAllMembers(ctx context.Context) ([]store.Member, error)
	ReadPeriod(ctx context.Context, period store.Period) ([]store.PaymentRecord, error)
	AppendRecords(ctx context.Context, period store.Period, records []store.PaymentRecord) error
	UpdateOne(ctx context.Context, period store.Period, memberID string, update store.RecordUpdate) error
}

// gateway is the payment provider integration.
type gateway interface {
	BuildCheckout(req ecpay.CheckoutRequest) (*ecpay.CheckoutPayload, error)
	VerifyCallback(params map[string]string) *ecpay.CallbackResult
	QueryTrade(ctx context.Context, orderID string) (*ecpay.TradeInfo, error)
}

// idempotencyGuard marks trade numbers as seen. The redis client
// satisfies it.
type idempotencyGuard interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// eventRecorder appends audit events. Nil-safe via the noopEvents default.
type eventRecorder interface {
	Record(ctx context.Context, event Event) error
}

type noopEvents struct{}

func (noopEvents) Record(ctx context.Context, event Event) error { return nil }

// Service wires the record store, the gateway, and the audit trail
// together.
type Service struct {
	store       paymentStore
	gateway     gateway
	guard       idempotencyGuard
	events      eventRecorder
	dispatcher  *batch.Dispatcher[store.Member]
	amount      int
	itemName    string
	linkBaseURL string
	logger      logger.Logger
	newOrderID  func(period store.Period) string
}

// ServiceParams collects the Service dependencies.
type ServiceParams struct {
	Store      paymentStore
	Gateway    gateway
	Guard      idempotencyGuard
	Events     eventRecorder
	Dispatcher *batch.Dispatcher[store.Member]

	// Amount is the membership fee in the gateway's currency unit.
	Amount int
	// ItemName labels the fee on the checkout page.
	ItemName string
	// LinkBaseURL is the public endpoint that renders the checkout form,
	// e.g. "https://billing.example.com/api/payments".
	LinkBaseURL string

	Logger logger.Logger
}

func NewService(p ServiceParams) *Service {
	events := p.Events
	if events == nil {
		events = noopEvents{}
	}
	return &Service{
		store:       p.Store,
		gateway:     p.Gateway,
		guard:       p.Guard,
		events:      events,
		dispatcher:  p.Dispatcher,
		amount:      p.Amount,
		itemName:    p.ItemName,
		linkBaseURL: strings.TrimRight(p.LinkBaseURL, "/"),
		logger:      p.Logger.WithFields(map[string]interface{}{"component": "billing"}),
		newOrderID:  uniqueOrderID,
	}
}

// orderIDFor derives the deterministic order id of a member's regular
// monthly transaction: period prefix plus the member id, trimmed to the
// gateway limit. Regenerating links for a period reuses the same ids.
func orderIDFor(period store.Period, memberID string) string {
	id := period.String() + sanitizeOrderPart(memberID)
	if len(id) > ecpay.MaxTradeNoLength {
		id = id[:ecpay.MaxTradeNoLength]
	}
	return id
}

// uniqueOrderID builds a one-off order id for a reissued link.
func uniqueOrderID(period store.Period) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return period.String() + suffix[:ecpay.MaxTradeNoLength-6]
}

func sanitizeOrderPart(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, s)
}

func (s *Service) linkFor(orderID string) string {
	return s.linkBaseURL + "/" + orderID + "/checkout"
}

// GenerateLinks creates the period sheet when missing and appends one row
// per member that has none yet, each with its payment link. Safe to rerun:
// existing rows are left alone.
func (s *Service) GenerateLinks(ctx context.Context, period store.Period) (*batch.Result[store.Member], error) {
	if err := s.store.EnsurePeriodSheet(ctx, period); err != nil {
		return nil, err
	}

	members, err := s.store.ReadAllMembers(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ReadPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, rec := range existing {
		seen[rec.MemberID] = true
	}

	missing := make([]store.Member, 0, len(members))
	for _, m := range members {
		if !seen[m.ID] {
			missing = append(missing, m)
		}
	}

	s.logger.Info("generating payment links", map[string]interface{}{
		"period":  period.String(),
		"members": len(members),
		"missing": len(missing),
	})

	start := time.Now()
	result := s.dispatcher.Run(ctx, missing, func(ctx context.Context, m store.Member) (string, error) {
		orderID := orderIDFor(period, m.ID)
		if _, err := s.gateway.BuildCheckout(s.checkoutRequest(orderID, period)); err != nil {
			return "", err
		}

		link := s.linkFor(orderID)
		err := s.store.AppendRecords(ctx, period, []store.PaymentRecord{{
			MemberID:    m.ID,
			MemberEmail: m.Email,
			PaymentLink: link,
		}})
		if err != nil {
			return "", err
		}

		metrics.PaymentsCreated.WithLabelValues(period.String()).Inc()
		_ = s.events.Record(ctx, Event{
			OrderID:  orderID,
			MemberID: m.ID,
			Period:   period.String(),
			Type:     EventLinkCreated,
			Amount:   fmt.Sprintf("%d", s.amount),
		})
		return link, nil
	})
	metrics.BatchDuration.WithLabelValues("generate_links").Observe(time.Since(start).Seconds())

	return result, nil
}

// IssueUniqueLink builds a fresh one-off checkout for a single member and
// stores it in the uniquePaymentLink column, replacing any earlier one.
func (s *Service) IssueUniqueLink(ctx context.Context, period store.Period, memberID string) (string, error) {
	orderID := s.newOrderID(period)
	if _, err := s.gateway.BuildCheckout(s.checkoutRequest(orderID, period)); err != nil {
		return "", err
	}

	link := s.linkFor(orderID)
	err := s.store.UpdateOne(ctx, period, memberID, store.RecordUpdate{
		UniquePaymentLink: store.String(link),
	})
	if err != nil {
		return "", err
	}

	metrics.PaymentsCreated.WithLabelValues(period.String()).Inc()
	_ = s.events.Record(ctx, Event{
		OrderID:  orderID,
		MemberID: memberID,
		Period:   period.String(),
		Type:     EventLinkCreated,
		Amount:   fmt.Sprintf("%d", s.amount),
		Detail:   "unique link",
	})

	s.logger.Info("unique payment link issued", map[string]interface{}{
		"period":   period.String(),
		"memberId": memberID,
		"orderId":  orderID,
	})
	return link, nil
}

// BuildCheckoutForOrder rebuilds the signed redirect payload for an order
// id issued earlier. Used by the HTTP surface when a member opens their
// link.
func (s *Service) BuildCheckoutForOrder(ctx context.Context, orderID string) (*ecpay.CheckoutPayload, error) {
	period, _, err := s.resolveOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.gateway.BuildCheckout(s.checkoutRequest(orderID, period))
}

// QueryTradeStatus proxies a trade query for an order id.
func (s *Service) QueryTradeStatus(ctx context.Context, orderID string) (*ecpay.TradeInfo, error) {
	info, err := s.gateway.QueryTrade(ctx, orderID)
	if err != nil {
		metrics.TradeQueries.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TradeQueries.WithLabelValues("success").Inc()
	return info, nil
}

func (s *Service) checkoutRequest(orderID string, period store.Period) ecpay.CheckoutRequest {
	return ecpay.CheckoutRequest{
		OrderID:   orderID,
		Amount:    s.amount,
		TradeDesc: fmt.Sprintf("membership fee %s", period.String()),
		ItemName:  s.itemName,
	}
}

// ConfirmResult is the outcome of processing one gateway callback.
// Accepted means the gateway should be acknowledged with "1|OK".
type ConfirmResult struct {
	Accepted  bool
	Duplicate bool
	Paid      bool
	OrderID   string
	TradeNo   string
	Reason    string
}

// ConfirmPayment verifies a gateway callback and applies it once. A
// signature mismatch is a rejected result, not an error; replayed trade
// numbers are acknowledged without re-applying state.
func (s *Service) ConfirmPayment(ctx context.Context, params map[string]string) (*ConfirmResult, error) {
	cb := s.gateway.VerifyCallback(params)
	result := &ConfirmResult{OrderID: cb.OrderID, TradeNo: cb.TradeNo}

	if !cb.IsValid {
		metrics.CallbacksVerified.WithLabelValues("rejected").Inc()
		verr := errors.NewSignatureMismatchError(cb.OrderID)
		result.Reason = verr.Message
		_ = s.events.Record(ctx, Event{
			OrderID: cb.OrderID,
			TradeNo: cb.TradeNo,
			Type:    EventRejected,
			Amount:  cb.Amount,
			Detail:  verr.Details,
		})
		return result, nil
	}

	if !cb.IsSuccess {
		// authentic callback for a failed trade: acknowledge, audit, no
		// record change
		metrics.CallbacksVerified.WithLabelValues("failed_trade").Inc()
		result.Accepted = true
		result.Reason = cb.Message
		_ = s.events.Record(ctx, Event{
			OrderID: cb.OrderID,
			TradeNo: cb.TradeNo,
			Type:    EventFailed,
			Amount:  cb.Amount,
			Detail:  cb.Message,
		})
		return result, nil
	}

	guardKey := "billing:callback:" + cb.TradeNo
	first, err := s.guard.SetNX(ctx, guardKey, cb.OrderID, callbackKeyTTL)
	if err != nil {
		return nil, errors.NewIdempotencyCheckFailedError(cb.TradeNo, err)
	}
	if !first {
		metrics.CallbacksVerified.WithLabelValues("duplicate").Inc()
		dup := errors.NewDuplicateCallbackError(cb.TradeNo)
		result.Accepted = true
		result.Duplicate = true
		result.Reason = dup.Message
		_ = s.events.Record(ctx, Event{
			OrderID: cb.OrderID,
			TradeNo: cb.TradeNo,
			Type:    EventDuplicate,
			Amount:  cb.Amount,
			Detail:  dup.Message,
		})
		s.logger.Warn("duplicate callback acknowledged", map[string]interface{}{
			"orderId": cb.OrderID,
			"tradeNo": cb.TradeNo,
		})
		return result, nil
	}

	period, memberID, err := s.resolveOrder(ctx, cb.OrderID)
	if err != nil {
		_ = s.guard.Del(ctx, guardKey)
		return nil, err
	}

	err = s.store.UpdateOne(ctx, period, memberID, store.RecordUpdate{
		Paid:     store.String("Y"),
		PaidDate: store.String(cb.PaymentDate),
	})
	if err != nil {
		// release the guard so the gateway's retry can apply the state
		_ = s.guard.Del(ctx, guardKey)
		return nil, err
	}

	metrics.CallbacksVerified.WithLabelValues("confirmed").Inc()
	result.Accepted = true
	result.Paid = true
	_ = s.events.Record(ctx, Event{
		OrderID:  cb.OrderID,
		TradeNo:  cb.TradeNo,
		MemberID: memberID,
		Period:   period.String(),
		Type:     EventConfirmed,
		Amount:   cb.Amount,
	})

	s.logger.Info("payment confirmed", map[string]interface{}{
		"orderId":  cb.OrderID,
		"memberId": memberID,
		"period":   period.String(),
	})
	return result, nil
}

// resolveOrder maps an order id back to its period and member. Regular
// order ids embed the member id; one-off ids are matched against the
// stored unique links.
func (s *Service) resolveOrder(ctx context.Context, orderID string) (store.Period, string, error) {
	if len(orderID) < 7 {
		return store.Period{}, "", errors.NewArgumentMismatchError(fmt.Sprintf("order id too short: %q", orderID))
	}
	period, err := store.ParsePeriod(orderID[:6])
	if err != nil {
		return store.Period{}, "", err
	}

	records, err := s.store.ReadPeriod(ctx, period)
	if err != nil {
		return store.Period{}, "", err
	}

	uniqueLink := s.linkFor(orderID)
	for _, rec := range records {
		if orderIDFor(period, rec.MemberID) == orderID {
			return period, rec.MemberID, nil
		}
		if rec.UniquePaymentLink != "" && rec.UniquePaymentLink == uniqueLink {
			return period, rec.MemberID, nil
		}
	}
	return store.Period{}, "", errors.NewRecordNotFoundError(period.String(), orderID)
}
