package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"membership-billing/internal/common/errors"
	"membership-billing/internal/store"
)

type createPaymentRequest struct {
	Period   string `json:"period"`
	MemberID string `json:"memberId"`
}

type createPaymentResponse struct {
	Period   string `json:"period"`
	MemberID string `json:"memberId"`
	Link     string `json:"link"`
}

// handleCreatePayment issues a fresh one-off payment link for a member.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeAndValidate(r, createPaymentSchema, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	period, err := store.ParsePeriod(req.Period)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	link, err := s.svc.IssueUniqueLink(r.Context(), period, req.MemberID)
	if err != nil {
		s.writeStandardError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, createPaymentResponse{
		Period:   req.Period,
		MemberID: req.MemberID,
		Link:     link,
	})
}

// handleCheckout renders the auto-submitting redirect form for an order.
// Members land here from the link in their email.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")

	payload, err := s.svc.BuildCheckoutForOrder(r.Context(), orderID)
	if err != nil {
		s.writeStandardError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, payload.HTML)
}

// handleCallback terminates the gateway's server-to-server notification.
// The body the gateway expects is "1|OK" when the callback was processed
// and "0|<message>" otherwise; anything else triggers gateway retries.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeCallbackResponse(w, false, "malformed form body")
		return
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}

	result, err := s.svc.ConfirmPayment(r.Context(), params)
	if err != nil {
		s.logger.Error("callback processing failed", map[string]interface{}{
			"error": err.Error(),
		})
		s.writeCallbackResponse(w, false, errors.AsStandard(err).Message)
		return
	}
	if !result.Accepted {
		s.writeCallbackResponse(w, false, result.Reason)
		return
	}
	s.writeCallbackResponse(w, true, "")
}

type tradeStatusResponse struct {
	OrderID     string `json:"orderId"`
	TradeNo     string `json:"tradeNo"`
	Paid        bool   `json:"paid"`
	TradeAmt    string `json:"tradeAmt,omitempty"`
	PaymentDate string `json:"paymentDate,omitempty"`
	PaymentType string `json:"paymentType,omitempty"`
}

// handleQueryTrade asks the gateway for the live state of a trade.
func (s *Server) handleQueryTrade(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")

	info, err := s.svc.QueryTradeStatus(r.Context(), orderID)
	if err != nil {
		s.writeStandardError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tradeStatusResponse{
		OrderID:     info.MerchantTradeNo,
		TradeNo:     info.TradeNo,
		Paid:        info.IsPaid(),
		TradeAmt:    info.TradeAmt,
		PaymentDate: info.PaymentDate,
		PaymentType: info.PaymentType,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeCallbackResponse(w http.ResponseWriter, ok bool, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if ok {
		fmt.Fprint(w, "1|OK")
		return
	}
	// the gateway only reads the first line
	message = strings.SplitN(message, "\n", 2)[0]
	fmt.Fprintf(w, "0|%s", message)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	se := errors.AsStandard(err)
	s.writeJSON(w, status, errorResponse{
		Code:    string(se.Code),
		Message: se.Message,
		Details: se.Details,
	})
}

// writeStandardError maps error codes to HTTP statuses.
func (s *Server) writeStandardError(w http.ResponseWriter, err error) {
	se := errors.AsStandard(err)
	status := http.StatusInternalServerError
	switch se.Code {
	case errors.ErrCodeRecordNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeArgumentMismatch:
		status = http.StatusBadRequest
	case errors.ErrCodeTradeQueryFailed:
		status = http.StatusBadGateway
	}
	s.writeError(w, status, err)
}
