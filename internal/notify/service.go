package notify

import (
	"context"
	"fmt"
	"time"

	"membership-billing/internal/batch"
	"membership-billing/internal/common/logger"
	"membership-billing/internal/common/metrics"
	"membership-billing/internal/store"
)

// recordStore is the slice of the payment record store the delivery run
// needs.
type recordStore interface {
	ReadPeriod(ctx context.Context, period store.Period) ([]store.PaymentRecord, error)
	UpdateBatch(ctx context.Context, period store.Period, memberIDs []string, updates []store.RecordUpdate) (*store.BatchUpdateResult, error)
}

// Service runs the payment-link delivery for a billing period.
type Service struct {
	store      recordStore
	sender     Sender
	alerter    *SNSAlerter // nil disables ops alerts
	dispatcher *batch.Dispatcher[store.PaymentRecord]
	fromEmail  string
	subject    string
	logger     logger.Logger
}

func NewService(
	recordStore recordStore,
	sender Sender,
	alerter *SNSAlerter,
	dispatcher *batch.Dispatcher[store.PaymentRecord],
	fromEmail, subject string,
	log logger.Logger,
) *Service {
	return &Service{
		store:      recordStore,
		sender:     sender,
		alerter:    alerter,
		dispatcher: dispatcher,
		fromEmail:  fromEmail,
		subject:    subject,
		logger:     log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// SendPaymentLinks emails the payment link to every member of the period
// whose link has not been delivered yet, then marks the successful sends.
// One failing recipient never aborts the run; the caller sees the
// per-target outcomes in the result.
func (s *Service) SendPaymentLinks(ctx context.Context, period store.Period) (*batch.Result[store.PaymentRecord], error) {
	records, err := s.store.ReadPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	pending := make([]store.PaymentRecord, 0, len(records))
	for _, rec := range records {
		if rec.PaymentLink == "" || rec.PaymentLinkSent == "Y" {
			continue
		}
		pending = append(pending, rec)
	}

	s.logger.Info("starting payment link delivery", map[string]interface{}{
		"period":  period.String(),
		"pending": len(pending),
		"rows":    len(records),
	})

	start := time.Now()
	result := s.dispatcher.Run(ctx, pending, func(ctx context.Context, rec store.PaymentRecord) (string, error) {
		messageID, err := s.sender.Send(ctx, &Message{
			To:      rec.MemberEmail,
			From:    s.fromEmail,
			Subject: s.subject,
			Body:    paymentLinkBody(rec),
		})
		if err != nil {
			metrics.NotificationsSent.WithLabelValues("failed").Inc()
			return "", err
		}
		metrics.NotificationsSent.WithLabelValues("sent").Inc()
		return messageID, nil
	})
	metrics.BatchDuration.WithLabelValues("send_payment_links").Observe(time.Since(start).Seconds())

	if err := s.markDelivered(ctx, period, result); err != nil {
		return result, err
	}

	if result.Failed > 0 && s.alerter != nil {
		s.alerter.AlertRunDegraded(ctx, period.String(), result.Total, result.Failed)
	}

	s.logger.Info("payment link delivery finished", map[string]interface{}{
		"period":    period.String(),
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
	return result, nil
}

func (s *Service) markDelivered(ctx context.Context, period store.Period, result *batch.Result[store.PaymentRecord]) error {
	memberIDs := make([]string, 0, result.Succeeded)
	updates := make([]store.RecordUpdate, 0, result.Succeeded)
	for _, outcome := range result.Outcomes {
		if !outcome.Success {
			continue
		}
		memberIDs = append(memberIDs, outcome.Target.MemberID)
		updates = append(updates, store.RecordUpdate{PaymentLinkSent: store.String("Y")})
	}
	if len(memberIDs) == 0 {
		return nil
	}

	_, err := s.store.UpdateBatch(ctx, period, memberIDs, updates)
	return err
}

func paymentLinkBody(rec store.PaymentRecord) string {
	link := rec.PaymentLink
	if rec.UniquePaymentLink != "" {
		link = rec.UniquePaymentLink
	}
	return fmt.Sprintf(
		"Hello,\r\n\r\nYour membership payment link is ready:\r\n%s\r\n\r\nPlease complete the payment before the end of the month.\r\n",
		link)
}
