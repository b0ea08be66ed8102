package ecpay

import "time"

// Field names are fixed by the gateway contract and must be reproduced
// exactly, including case.
const (
	FieldMerchantID        = "MerchantID"
	FieldMerchantTradeNo   = "MerchantTradeNo"
	FieldMerchantTradeDate = "MerchantTradeDate"
	FieldPaymentType       = "PaymentType"
	FieldTotalAmount       = "TotalAmount"
	FieldTradeDesc         = "TradeDesc"
	FieldItemName          = "ItemName"
	FieldReturnURL         = "ReturnURL"
	FieldChoosePayment     = "ChoosePayment"
	FieldEncryptType       = "EncryptType"
	FieldCheckMacValue     = "CheckMacValue"

	FieldRtnCode     = "RtnCode"
	FieldRtnMsg      = "RtnMsg"
	FieldTradeNo     = "TradeNo"
	FieldTradeAmt    = "TradeAmt"
	FieldPaymentDate = "PaymentDate"
	FieldTimeStamp   = "TimeStamp"

	FieldTradeStatus          = "TradeStatus"
	FieldTradeDate            = "TradeDate"
	FieldHandlingCharge       = "HandlingCharge"
	FieldPaymentTypeChargeFee = "PaymentTypeChargeFee"
)

const (
	// PaymentTypeAIO is the fixed payment-type marker for checkout requests.
	PaymentTypeAIO = "aio"

	// ChoosePaymentAll accepts every payment method the merchant enabled.
	ChoosePaymentAll = "ALL"

	// EncryptTypeSHA256 selects the SHA-256 CheckMacValue scheme.
	EncryptTypeSHA256 = "1"

	// RtnCodeSuccess is the return code for a completed transaction.
	RtnCodeSuccess = "1"

	// TradeStatusPaid is the query-response status for a paid trade.
	TradeStatusPaid = "1"

	// MaxTradeNoLength is the gateway's limit on MerchantTradeNo.
	MaxTradeNoLength = 20
)

// TradeDateFormat is the gateway's trade timestamp layout, local time.
const TradeDateFormat = "2006/01/02 15:04:05"

// FormatTradeDate renders t in the gateway's trade timestamp layout.
func FormatTradeDate(t time.Time) string {
	return t.Format(TradeDateFormat)
}
