// cmd/tools/link-generator/main.go
//
// Generates the monthly payment links: ensures the period sheet exists,
// appends a row per member that has none yet, and records every checkout
// link. Run it once at the start of a billing period; reruns only pick up
// members added since.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"membership-billing/internal/batch"
	"membership-billing/internal/billing"
	"membership-billing/internal/common/config"
	"membership-billing/internal/common/database"
	commonhttp "membership-billing/internal/common/http"
	"membership-billing/internal/common/logger"
	"membership-billing/internal/ecpay"
	"membership-billing/internal/store"
)

func main() {
	periodFlag := flag.String("period", "", "Billing period as YYYYMM (default: current month)")
	dryRun := flag.Bool("dry-run", false, "List the members that would get a link without writing anything")
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

	if *dryRun {
		if err := listPending(ctx, recordStore, period); err != nil {
			fmt.Printf("Error: dry run failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error: postgres connection failed: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	httpClient := commonhttp.NewClient(config.GetDuration(cfg.Server.RequestTimeout))
	gateway := ecpay.NewClient(ecpay.Config{
		MerchantID:        cfg.Gateway.MerchantID,
		HashKey:           cfg.Gateway.HashKey,
		HashIV:            cfg.Gateway.HashIV,
		CheckoutURL:       cfg.Gateway.CheckoutURL,
		QueryURL:          cfg.Gateway.QueryURL,
		ReturnURL:         cfg.Gateway.ReturnURL,
		EncodeTable:       ecpay.EncodeTableByName(cfg.Gateway.EncodeTable),
		TrailingAmpersand: cfg.Gateway.TrailingAmpersand,
	}, httpClient, log)

	dispatcher, err := batch.NewDispatcher[store.Member](cfg.Batch.Size, config.GetDuration(cfg.Batch.DelayMs), log)
	if err != nil {
		fmt.Printf("Error: dispatcher setup failed: %v\n", err)
		os.Exit(1)
	}
	dispatcher = dispatcher.WithChunkObserver(func(completed, total int) {
		fmt.Printf("  %d/%d members processed\n", completed, total)
	})

	svc := billing.NewService(billing.ServiceParams{
		Store:       recordStore,
		Gateway:     gateway,
		Events:      billing.NewEventLog(pg, log),
		Dispatcher:  dispatcher,
		Amount:      cfg.Billing.Amount,
		ItemName:    cfg.Billing.ItemName,
		LinkBaseURL: cfg.Billing.LinkBaseURL,
		Logger:      log,
	})

	fmt.Printf("Generating payment links for period %s...\n", period)
	result, err := svc.GenerateLinks(ctx, period)
	if err != nil {
		fmt.Printf("Error: link generation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done: %d links created, %d failed, %d members total\n",
		result.Succeeded, result.Failed, result.Total)
	for _, outcome := range result.Outcomes {
		if !outcome.Success {
			fmt.Printf("  FAILED %s: %v\n", outcome.Target.ID, outcome.Err)
		}
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}

// listPending prints the members of the roster that have no record in the
// period sheet yet.
func listPending(ctx context.Context, recordStore *store.Store, period store.Period) error {
	members, err := recordStore.ReadAllMembers(ctx)
	if err != nil {
		return err
	}

	existing := map[string]bool{}
	records, err := recordStore.ReadPeriod(ctx, period)
	if err == nil {
		for _, rec := range records {
			existing[rec.MemberID] = true
		}
	}

	pending := 0
	for _, m := range members {
		if existing[m.ID] {
			continue
		}
		fmt.Printf("  %s <%s>\n", m.ID, m.Email)
		pending++
	}
	fmt.Printf("%d of %d members would get a payment link for %s\n", pending, len(members), period)
	return nil
}
