package ecpay

// CallbackResult is the outcome of verifying a gateway callback. A
// signature mismatch yields IsValid=false rather than an error: bad
// callbacks are expected traffic, not failures.
type CallbackResult struct {
	IsValid     bool
	IsSuccess   bool
	TradeNo     string
	OrderID     string
	Amount      string
	PaymentDate string
	Message     string
}

// VerifyCallback recomputes the signature over the posted parameters and
// reports whether the callback is authentic and whether the trade
// succeeded. IsSuccess is only set when the signature checks out.
func (c *Client) VerifyCallback(params map[string]string) *CallbackResult {
	result := &CallbackResult{
		TradeNo:     params[FieldTradeNo],
		OrderID:     params[FieldMerchantTradeNo],
		Amount:      params[FieldTradeAmt],
		PaymentDate: params[FieldPaymentDate],
		Message:     params[FieldRtnMsg],
	}

	if !c.signer.Matches(params) {
		c.logger.Warn("callback signature mismatch", map[string]interface{}{
			"orderId": result.OrderID,
			"tradeNo": result.TradeNo,
		})
		return result
	}

	result.IsValid = true
	result.IsSuccess = params[FieldRtnCode] == RtnCodeSuccess

	c.logger.Info("callback verified", map[string]interface{}{
		"orderId": result.OrderID,
		"tradeNo": result.TradeNo,
		"success": result.IsSuccess,
	})

	return result
}
