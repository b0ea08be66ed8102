package ecpay

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"membership-billing/internal/common/errors"
	commonhttp "membership-billing/internal/common/http"
	"membership-billing/internal/common/logger"
)

// Config holds the merchant credentials and gateway endpoints. A Client is
// built once from it and never mutated afterwards.
type Config struct {
	MerchantID  string
	HashKey     string
	HashIV      string
	CheckoutURL string
	QueryURL    string
	ReturnURL   string

	EncodeTable       EncodeTable
	TrailingAmpersand bool
}

// Client is an immutable handle for the gateway integration.
type Client struct {
	cfg    Config
	signer Signer
	http   *commonhttp.Client
	logger logger.Logger
	now    func() time.Time
}

func NewClient(cfg Config, httpClient *commonhttp.Client, log logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		signer: Signer{
			HashKey:           cfg.HashKey,
			HashIV:            cfg.HashIV,
			Table:             cfg.EncodeTable,
			TrailingAmpersand: cfg.TrailingAmpersand,
		},
		http:   httpClient,
		logger: log.WithFields(map[string]interface{}{"component": "ecpay"}),
		now:    time.Now,
	}
}

// WithClock returns a copy of the client using the given clock. Used by
// tests to pin MerchantTradeDate.
func (c *Client) WithClock(now func() time.Time) *Client {
	clone := *c
	clone.now = now
	return &clone
}

// Signer exposes the client's signer for callers that verify raw
// parameter sets.
func (c *Client) Signer() Signer {
	return c.signer
}

// CheckoutRequest carries the caller-supplied fields of a new transaction.
type CheckoutRequest struct {
	OrderID       string
	Amount        int
	TradeDesc     string
	ItemName      string
	ReturnURL     string // overrides the configured default when set
	ChoosePayment string // defaults to ChoosePaymentAll
}

// CheckoutPayload is the signed redirect payload. The checkout itself
// happens when the HTML form is rendered and submitted by the browser;
// building the payload performs no network I/O.
type CheckoutPayload struct {
	OrderID string
	Action  string
	Fields  map[string]string
	HTML    string
}

// BuildCheckout populates the gateway's required fields, signs them, and
// returns the redirect payload. OrderIDs longer than the gateway limit are
// truncated to the first MaxTradeNoLength bytes.
func (c *Client) BuildCheckout(req CheckoutRequest) (*CheckoutPayload, error) {
	if req.Amount <= 0 {
		return nil, errors.NewArgumentMismatchError(fmt.Sprintf("amount must be positive, got %d", req.Amount))
	}
	if req.OrderID == "" {
		return nil, errors.NewArgumentMismatchError("orderId is required")
	}

	orderID := req.OrderID
	if len(orderID) > MaxTradeNoLength {
		orderID = orderID[:MaxTradeNoLength]
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = c.cfg.ReturnURL
	}
	choose := req.ChoosePayment
	if choose == "" {
		choose = ChoosePaymentAll
	}

	fields := map[string]string{
		FieldMerchantID:        c.cfg.MerchantID,
		FieldMerchantTradeNo:   orderID,
		FieldMerchantTradeDate: FormatTradeDate(c.now()),
		FieldPaymentType:       PaymentTypeAIO,
		FieldTotalAmount:       strconv.Itoa(req.Amount),
		FieldTradeDesc:         req.TradeDesc,
		FieldItemName:          req.ItemName,
		FieldReturnURL:         returnURL,
		FieldChoosePayment:     choose,
		FieldEncryptType:       EncryptTypeSHA256,
	}
	fields[FieldCheckMacValue] = c.signer.Sign(fields)

	payload := &CheckoutPayload{
		OrderID: orderID,
		Action:  c.cfg.CheckoutURL,
		Fields:  fields,
		HTML:    renderAutoSubmitForm(c.cfg.CheckoutURL, fields),
	}

	c.logger.Info("checkout request built", map[string]interface{}{
		"orderId": orderID,
		"amount":  req.Amount,
	})

	return payload, nil
}

// renderAutoSubmitForm embeds every signed field in a form that submits
// itself on load.
func renderAutoSubmitForm(action string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body>`)
	b.WriteString(`<form id="checkout" method="post" action="` + html.EscapeString(action) + `">`)
	for _, k := range keys {
		b.WriteString(`<input type="hidden" name="` + html.EscapeString(k) + `" value="` + html.EscapeString(fields[k]) + `"/>`)
	}
	b.WriteString(`</form>`)
	b.WriteString(`<script>document.getElementById("checkout").submit();</script>`)
	b.WriteString(`</body></html>`)
	return b.String()
}
