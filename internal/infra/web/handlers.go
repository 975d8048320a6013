package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/infra/logging"
	"pix-membership-platform/internal/infra/metrics"
	"pix-membership-platform/internal/infra/payment"
	"pix-membership-platform/internal/infra/redis"
	"pix-membership-platform/internal/usecase"
)

const maxWebhookBody = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleWebhook ingests gateway callbacks. The contract with the gateway is
// deliberate: 200 means "stop retrying", so every data inconsistency on our
// side (unknown user, unknown plan, unresolvable transaction) is acknowledged
// with a severe log instead of bounced. Only transport-level trouble earns a
// retryable 5xx.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if !payment.VerifyWebhookSignature(s.webhookSecret, body, r.Header.Get("X-Webhook-Signature")) {
		metrics.IncWebhookEvent("malformed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	ev, err := payment.ParseWebhookPayload(r.Header.Get("Content-Type"), body)
	if err != nil {
		metrics.IncWebhookEvent("malformed")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if !ev.PaymentConfirmed() {
		metrics.IncWebhookEvent("ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	l := logging.With(r.Context(), s.log)
	err = s.settlement.HandleConfirmedTransaction(r.Context(), ev.GatewayTransactionID, optionalStr(ev.EndToEndID))
	switch {
	case err == nil:
		metrics.IncWebhookEvent("processed")
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrAlreadyProcessed):
		metrics.IncWebhookEvent("duplicate")
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrUserNotFound):
		metrics.IncWebhookEvent("user_missing")
		l.Error().Err(err).Str("gateway_tx_id", ev.GatewayTransactionID).
			Msg("webhook acknowledged without a resolvable user")
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidArgument):
		// Inconsistent but acknowledged; retrying cannot fix it.
		l.Error().Err(err).Str("gateway_tx_id", ev.GatewayTransactionID).
			Msg("webhook acknowledged with unresolved data")
		w.WriteHeader(http.StatusOK)
	default:
		metrics.IncWebhookEvent("error")
		l.Error().Err(err).Str("gateway_tx_id", ev.GatewayTransactionID).Msg("webhook settlement failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type checkoutRequest struct {
	UserID       string   `json:"user_id,omitempty"`
	Email        string   `json:"email,omitempty"`
	Name         string   `json:"name,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	PlanIDs      []string `json:"plan_ids"`
	CouponCode   string   `json:"coupon_code,omitempty"`
	AffiliateRef string   `json:"affiliate_ref,omitempty"`
}

type checkoutResponse struct {
	PaymentID         string    `json:"payment_id"`
	TotalCents        int64     `json:"total_cents"`
	DiscountCents     int64     `json:"discount_cents"`
	QRCodeText        string    `json:"qr_code_text"`
	QRCodeImageBase64 string    `json:"qr_code_image_base64"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.Allow(r.Context(), redis.CheckoutKey(clientIP(r)), s.rateLimit, s.rateWindow)
		if err != nil {
			// Redis down must not take checkout with it.
			s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		} else if !allowed {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
			return
		}
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	res, err := s.checkout.CreateCharge(r.Context(), toCheckoutInput(req, s.callbackURL))
	if err != nil {
		s.writeCheckoutError(w, r, err)
		return
	}

	l := logging.With(logging.WithPaymentID(r.Context(), res.PaymentID), s.log)
	evt := l.Info().Int64("total_cents", res.TotalCents)
	if req.Email != "" {
		evt = evt.Str("buyer_email", logging.Redact(req.Email, s.dev))
	}
	evt.Msg("checkout charge created")

	writeJSON(w, http.StatusCreated, checkoutResponse{
		PaymentID:         res.PaymentID,
		TotalCents:        res.TotalCents,
		DiscountCents:     res.DiscountCents,
		QRCodeText:        res.QRCodeText,
		QRCodeImageBase64: res.QRCodeImageBase64,
		ExpiresAt:         res.ExpiresAt,
	})
}

func (s *Server) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrDuplicateProductPlan),
		errors.Is(err, domain.ErrCouponExpired),
		errors.Is(err, domain.ErrCouponExhausted),
		errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "payment gateway unavailable"})
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("checkout failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleCronReconcile(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reconcile.Run(r.Context())
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("reconcile run failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCronCleanup(w http.ResponseWriter, r *http.Request) {
	payments, err := s.cleanup.PurgeStalePayments(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	users, err := s.cleanup.PurgeAnonymousUsers(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"payments_deleted": payments,
		"users_deleted":    users,
	})
}

func (s *Server) handleCommissionCancel(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	r = r.WithContext(logging.WithPaymentID(r.Context(), paymentID))
	res, err := s.commission.Cancel(r.Context(), paymentID)
	if err != nil {
		s.writeCommissionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment_id":       res.PaymentID,
		"user_id":          res.UserID,
		"affiliate_id":     res.AffiliateID,
		"commission_cents": res.CommissionCents,
		"balance_reverted": res.BalanceReverted,
	})
}

func (s *Server) handleCommissionRelease(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	r = r.WithContext(logging.WithPaymentID(r.Context(), paymentID))
	if err := s.commission.Release(r.Context(), paymentID); err != nil {
		s.writeCommissionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *Server) writeCommissionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAffiliateNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrCommissionNotPending),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("commission operation failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

type withdrawalRequest struct {
	AmountCents int64  `json:"amount_cents,omitempty"` // 0 = full balance
	PixKey      string `json:"pix_key"`
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	refCode := chi.URLParam(r, "refCode")
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	res, err := s.commission.RequestWithdrawal(r.Context(), refCode, req.AmountCents, req.PixKey)
	if err != nil {
		s.writeCommissionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"withdrawal_id": res.ID,
		"amount_cents":  res.AmountCents,
		"status":        res.Status,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toCheckoutInput(req checkoutRequest, callbackURL string) usecase.CheckoutInput {
	return usecase.CheckoutInput{
		UserID:       req.UserID,
		GuestEmail:   req.Email,
		GuestName:    req.Name,
		GuestPhone:   req.Phone,
		PlanIDs:      req.PlanIDs,
		CouponCode:   req.CouponCode,
		AffiliateRef: req.AffiliateRef,
		CallbackURL:  callbackURL,
	}
}

func optionalStr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
