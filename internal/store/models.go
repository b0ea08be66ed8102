package store

// Member is a row of the reference sheet.
type Member struct {
	ID    string
	Email string
}

// PaymentRecord is a row of a period sheet.
type PaymentRecord struct {
	MemberID          string
	MemberEmail       string
	PaymentLink       string
	PaymentLinkSent   string
	UniquePaymentLink string
	Paid              string
	PaidDate          string
}

// RecordUpdate is a partial update of a payment record. Nil fields are
// left untouched; a pointer to the empty string blanks the cell.
type RecordUpdate struct {
	PaymentLink       *string
	PaymentLinkSent   *string
	UniquePaymentLink *string
	Paid              *string
	PaidDate          *string
}

// String returns a pointer to s, for building RecordUpdate literals.
func String(s string) *string {
	return &s
}

// RowOutcome reports the result of one row in a batch update.
type RowOutcome struct {
	MemberID string
	Err      error
}

// BatchUpdateResult aggregates a batch update. Rows preserves input order.
type BatchUpdateResult struct {
	Total     int
	Succeeded int
	Failed    int
	Rows      []RowOutcome
}

func (r *RecordUpdate) applyTo(rec *PaymentRecord) {
	if r.PaymentLink != nil {
		rec.PaymentLink = *r.PaymentLink
	}
	if r.PaymentLinkSent != nil {
		rec.PaymentLinkSent = *r.PaymentLinkSent
	}
	if r.UniquePaymentLink != nil {
		rec.UniquePaymentLink = *r.UniquePaymentLink
	}
	if r.Paid != nil {
		rec.Paid = *r.Paid
	}
	if r.PaidDate != nil {
		rec.PaidDate = *r.PaidDate
	}
}
