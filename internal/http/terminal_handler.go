package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/pos-service/internal/audit"
	"github.com/fjod/go_cart/pos-service/internal/barcode"
	"github.com/fjod/go_cart/pos-service/internal/catalog"
	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/fjod/go_cart/pos-service/internal/pricing"
	"github.com/fjod/go_cart/pos-service/internal/terminal"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxScanQuantity = 999
	auditTimeout    = 2 * time.Second
)

// CustomerResolver turns a customer id into the cart's loyalty context.
type CustomerResolver interface {
	Resolve(ctx context.Context, customerID string, refresh bool) (*pricing.Customer, error)
}

type TerminalHandler struct {
	terminals *terminal.Registry
	catalog   catalog.Repository
	customers CustomerResolver
	audit     audit.Publisher
	log       *zap.Logger
	timeout   time.Duration
}

func NewTerminalHandler(
	terminals *terminal.Registry,
	catalogRepo catalog.Repository,
	customers CustomerResolver,
	publisher audit.Publisher,
	log *zap.Logger,
	timeout time.Duration,
) *TerminalHandler {
	if publisher == nil {
		publisher = audit.NopPublisher{}
	}
	return &TerminalHandler{
		terminals: terminals,
		catalog:   catalogRepo,
		customers: customers,
		audit:     publisher,
		log:       log,
		timeout:   timeout,
	}
}

type CartResponse struct {
	TerminalID string            `json:"terminal_id"`
	Customer   *pricing.Customer `json:"customer,omitempty"`
	Quote      pricing.Breakdown `json:"quote"`
}

type ScanRequestDTO struct {
	Code     string `json:"code"`
	Quantity int64  `json:"quantity,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int64 `json:"quantity"`
}

type ManualDiscountRequestDTO struct {
	Amount int64 `json:"amount"`
}

type CouponRequestDTO struct {
	Code      string              `json:"code"`
	Kind      domain.DiscountKind `json:"kind"`
	Value     float64             `json:"value"`
	ValidFrom *time.Time          `json:"valid_from,omitempty"`
	ValidTo   *time.Time          `json:"valid_to,omitempty"`
}

type CustomerRequestDTO struct {
	CustomerID string `json:"customer_id"`
	Refresh    bool   `json:"refresh,omitempty"`
}

type RedemptionRequestDTO struct {
	Points int64 `json:"points"`
}

type AuthorizeRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthorizationResponse struct {
	Authorized   bool         `json:"authorized"`
	AuthorizedBy *IdentityDTO `json:"authorized_by,omitempty"`
	AuthorizedAt *time.Time   `json:"authorized_at,omitempty"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
}

type IdentityDTO struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

// terminalFrom resolves {terminal_id}; it writes the error response itself.
func (h *TerminalHandler) terminalFrom(w http.ResponseWriter, r *http.Request) (*terminal.Terminal, bool) {
	t, err := h.terminals.Get(chi.URLParam(r, "terminal_id"))
	if err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return nil, false
	}
	return t, true
}

func (h *TerminalHandler) respondCart(w http.ResponseWriter, r *http.Request, t *terminal.Terminal, status int) {
	quote, err := t.Cart.Quote()
	if err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	respondJSON(w, status, CartResponse{TerminalID: t.ID, Customer: t.Cart.Customer(), Quote: quote})
}

func (h *TerminalHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var item domain.LineItem
	if err := decodeJSON(r, &item); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := t.Cart.AddItem(item); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusCreated)
}

// Scan resolves a scanned code through the catalog and adds the product.
// Numeric codes must carry a valid check digit.
func (h *TerminalHandler) Scan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var req ScanRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 || req.Quantity > maxScanQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 999")
		return
	}

	format := barcode.Detect(code)
	if format == barcode.FormatUnknown || !barcode.Validate(code, format) {
		respondError(w, http.StatusBadRequest, "invalid_barcode", "barcode is malformed or has a wrong check digit")
		return
	}

	entry, err := h.catalog.FindByBarcode(ctx, code)
	if err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	if err := t.Cart.AddItem(entry.LineItem(req.Quantity)); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusCreated)
}

func (h *TerminalHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := t.Cart.UpdateQuantity(chi.URLParam(r, "item_key"), req.Quantity); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}
	if err := t.Cart.RemoveItem(chi.URLParam(r, "item_key")); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}
	t.Cart.Clear()
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) SetManualDiscount(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var req ManualDiscountRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	approval, err := t.Cart.SetManualDiscount(req.Amount, t.Auth)
	if err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}

	if req.Amount != 0 {
		h.publish(r, audit.Event{
			Type:       audit.EventManualDiscountSet,
			TerminalID: t.ID,
			Actor:      approval.AuthorizedBy.ID,
			Amount:     req.Amount,
		})
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) SetCoupon(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var req CouponRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	coupon := &pricing.Coupon{
		Code: strings.TrimSpace(req.Code),
		Discount: domain.Discount{
			Kind:      req.Kind,
			Value:     req.Value,
			ValidFrom: req.ValidFrom,
			ValidTo:   req.ValidTo,
		},
	}
	if err := t.Cart.SetCoupon(coupon); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}
	if err := t.Cart.SetCoupon(nil); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var req CustomerRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	customer, err := h.customers.Resolve(ctx, req.CustomerID, req.Refresh)
	if err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	if err := t.Cart.SetCustomer(customer); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) RemoveCustomer(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}
	if err := t.Cart.SetCustomer(nil); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) SetRedemption(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var req RedemptionRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := t.Cart.SetRedemption(req.Points); err != nil {
		handleError(w, requestLogger(r, h.log), err)
		return
	}
	h.respondCart(w, r, t, http.StatusOK)
}

func (h *TerminalHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var req AuthorizeRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	identity, err := t.Auth.Authorize(ctx, req.Email, req.Password)
	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindInvalidCredentials || kind == domain.KindRoleNotAllowed {
			actor := identity.ID
			if actor == "" {
				actor = strings.TrimSpace(req.Email)
			}
			h.publish(r, audit.Event{
				Type:       audit.EventAuthorizationDenied,
				TerminalID: t.ID,
				Actor:      actor,
				Reason:     string(kind),
			})
		}
		handleError(w, requestLogger(r, h.log), err)
		return
	}

	requestLogger(r, h.log).Info("discount authorization granted",
		zap.String("terminal_id", t.ID),
		zap.String("user_id", identity.ID))
	h.publish(r, audit.Event{Type: audit.EventAuthorizationGranted, TerminalID: t.ID, Actor: identity.ID})
	respondJSON(w, http.StatusCreated, authorizationResponse(t))
}

func (h *TerminalHandler) GetAuthorization(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, authorizationResponse(t))
}

func (h *TerminalHandler) ClearAuthorization(w http.ResponseWriter, r *http.Request) {
	t, ok := h.terminalFrom(w, r)
	if !ok {
		return
	}

	var actor string
	if auth, ok := t.Auth.Current(); ok {
		actor = auth.AuthorizedBy.ID
	}
	t.Auth.Clear()
	h.publish(r, audit.Event{Type: audit.EventAuthorizationCleared, TerminalID: t.ID, Actor: actor})
	respondJSON(w, http.StatusOK, authorizationResponse(t))
}

// publish sends an audit event without failing the request; the publisher
// logs its own failures.
func (h *TerminalHandler) publish(r *http.Request, ev audit.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
	defer cancel()
	if err := h.audit.Publish(ctx, ev); err != nil {
		requestLogger(r, h.log).Debug("audit event dropped", zap.String("event_type", string(ev.Type)))
	}
}

func authorizationResponse(t *terminal.Terminal) AuthorizationResponse {
	auth, ok := t.Auth.Current()
	if !ok {
		return AuthorizationResponse{}
	}
	expires := auth.ExpiresAt()
	return AuthorizationResponse{
		Authorized: true,
		AuthorizedBy: &IdentityDTO{
			ID:    auth.AuthorizedBy.ID,
			Email: auth.AuthorizedBy.Email,
			Name:  auth.AuthorizedBy.Name,
			Roles: auth.AuthorizedBy.Roles.Strings(),
		},
		AuthorizedAt: &auth.AuthorizedAt,
		ExpiresAt:    &expires,
	}
}

// ListTerminals returns the ids of terminals opened since startup.
func (h *TerminalHandler) ListTerminals(w http.ResponseWriter, r *http.Request) {
	ids := h.terminals.IDs()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"terminals": ids,
		"count":     len(ids),
	})
}

// CloseTerminal drops the terminal's cart and revokes its authorization.
func (h *TerminalHandler) CloseTerminal(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "terminal_id"))
	if !h.terminals.Close(id) {
		respondError(w, http.StatusNotFound, "not_found", "terminal is not open")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
