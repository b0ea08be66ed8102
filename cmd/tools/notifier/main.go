// cmd/tools/notifier/main.go
//
// Delivers the payment-link emails for a billing period. Members whose
// link was already sent are skipped, so the tool is safe to rerun after a
// partial failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"membership-billing/internal/batch"
	"membership-billing/internal/common/aws"
	"membership-billing/internal/common/config"
	"membership-billing/internal/common/logger"
	"membership-billing/internal/notify"
	"membership-billing/internal/store"
)

func main() {
	periodFlag := flag.String("period", "", "Billing period as YYYYMM (default: current month)")
	flag.Parse()

	log := logger.NewStructured("info", "console")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: config load failed: %v\n", err)
		os.Exit(1)
	}

	period := store.CurrentPeriod(time.Now)
	if *periodFlag != "" {
		period, err = store.ParsePeriod(*periodFlag)
		if err != nil {
			fmt.Printf("Error: invalid period %q: %v\n", *periodFlag, err)
			os.Exit(1)
		}
	}

	ctx := context.Background()

	recordStore, err := store.NewStore(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.MembersSheet, cfg.Sheets.CredentialsFile, log)
	if err != nil {
		fmt.Printf("Error: sheets client failed: %v\n", err)
		os.Exit(1)
	}

	sender, err := buildSender(ctx, cfg, log)
	if err != nil {
		fmt.Printf("Error: sender setup failed: %v\n", err)
		os.Exit(1)
	}

	var alerter *notify.SNSAlerter
	if cfg.Notifications.AWS.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			fmt.Printf("Error: sns client failed: %v\n", err)
			os.Exit(1)
		}
		alerter = notify.NewSNSAlerter(snsClient, cfg.Notifications.AWS.SNS.TopicARN, log)
	}

	dispatcher, err := batch.NewDispatcher[store.PaymentRecord](cfg.Batch.Size, config.GetDuration(cfg.Batch.DelayMs), log)
	if err != nil {
		fmt.Printf("Error: dispatcher setup failed: %v\n", err)
		os.Exit(1)
	}
	dispatcher = dispatcher.WithChunkObserver(func(completed, total int) {
		fmt.Printf("  %d/%d emails processed\n", completed, total)
	})

	svc := notify.NewService(
		recordStore,
		sender,
		alerter,
		dispatcher,
		cfg.Notifications.Email.FromEmail,
		cfg.Notifications.Email.Subject,
		log,
	)

	fmt.Printf("Sending payment links for period %s via %s...\n", period, cfg.Notifications.Email.Provider)
	result, err := svc.SendPaymentLinks(ctx, period)
	if err != nil {
		fmt.Printf("Error: delivery run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done: %d sent, %d failed, %d pending total\n",
		result.Succeeded, result.Failed, result.Total)
	for _, outcome := range result.Outcomes {
		if !outcome.Success {
			fmt.Printf("  FAILED %s <%s>: %v\n", outcome.Target.MemberID, outcome.Target.MemberEmail, outcome.Err)
		}
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}

// buildSender picks the email transport from the configured provider.
func buildSender(ctx context.Context, cfg *config.Config, log logger.Logger) (notify.Sender, error) {
	switch cfg.Notifications.Email.Provider {
	case "ses":
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			return nil, err
		}
		return notify.NewSESSender(sesClient, log), nil
	case "smtp":
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.Notifications.SMTP.Host,
			Port:     cfg.Notifications.SMTP.Port,
			Username: cfg.Notifications.SMTP.Username,
			Password: cfg.Notifications.SMTP.Password,
			UseTLS:   cfg.Notifications.SMTP.UseTLS,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Notifications.Email.Provider)
	}
}
