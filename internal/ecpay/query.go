package ecpay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"membership-billing/internal/common/errors"
)

// TradeInfo is the gateway's view of a single trade, parsed from the
// form-encoded query response.
type TradeInfo struct {
	MerchantID           string
	MerchantTradeNo      string
	TradeNo              string
	TradeAmt             string
	PaymentDate          string
	PaymentType          string
	PaymentTypeChargeFee string
	HandlingCharge       string
	TradeStatus          string
	TradeDate            string
	ItemName             string
	CustomField1         string
	CustomField2         string
	CustomField3         string
	CustomField4         string

	// CheckMacValue is the signature the gateway echoed over the
	// response fields; Raw holds every field as received so the caller
	// can re-verify it.
	CheckMacValue string
	Raw           map[string]string
}

// IsPaid reports whether the gateway has settled the trade.
func (t *TradeInfo) IsPaid() bool {
	return t.TradeStatus == TradeStatusPaid
}

// QueryTrade asks the gateway for the current state of a trade by its
// merchant order id. The request carries a fresh timestamp and is signed
// like every other gateway exchange.
func (c *Client) QueryTrade(ctx context.Context, orderID string) (*TradeInfo, error) {
	if orderID == "" {
		return nil, errors.NewArgumentMismatchError("orderId is required")
	}

	params := map[string]string{
		FieldMerchantID:      c.cfg.MerchantID,
		FieldMerchantTradeNo: orderID,
		FieldTimeStamp:       strconv.FormatInt(c.now().Unix(), 10),
	}
	params[FieldCheckMacValue] = c.signer.Sign(params)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.QueryURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewTradeQueryFailedError(orderID, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.NewTradeQueryFailedError(orderID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTradeQueryFailedError(orderID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewTradeQueryFailedError(orderID, fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, errors.NewTradeQueryFailedError(orderID, fmt.Errorf("malformed response body: %w", err))
	}

	raw := make(map[string]string, len(values))
	for k := range values {
		raw[k] = values.Get(k)
	}

	info := &TradeInfo{
		MerchantID:           raw[FieldMerchantID],
		MerchantTradeNo:      raw[FieldMerchantTradeNo],
		TradeNo:              raw[FieldTradeNo],
		TradeAmt:             raw[FieldTradeAmt],
		PaymentDate:          raw[FieldPaymentDate],
		PaymentType:          raw[FieldPaymentType],
		PaymentTypeChargeFee: raw[FieldPaymentTypeChargeFee],
		HandlingCharge:       raw[FieldHandlingCharge],
		TradeStatus:          raw[FieldTradeStatus],
		TradeDate:            raw[FieldTradeDate],
		ItemName:             raw[FieldItemName],
		CustomField1:         raw["CustomField1"],
		CustomField2:         raw["CustomField2"],
		CustomField3:         raw["CustomField3"],
		CustomField4:         raw["CustomField4"],
		CheckMacValue:        raw[FieldCheckMacValue],
		Raw:                  raw,
	}

	c.logger.Info("trade query completed", map[string]interface{}{
		"orderId": orderID,
		"status":  info.TradeStatus,
	})

	return info, nil
}
