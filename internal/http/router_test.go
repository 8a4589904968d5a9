package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/pos-service/internal/audit"
	"github.com/fjod/go_cart/pos-service/internal/authz"
	"github.com/fjod/go_cart/pos-service/internal/catalog"
	"github.com/fjod/go_cart/pos-service/internal/commerce"
	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/fjod/go_cart/pos-service/internal/loyalty"
	"github.com/fjod/go_cart/pos-service/internal/pricing"
	"github.com/fjod/go_cart/pos-service/internal/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockVerifier struct {
	err error
}

func (m mockVerifier) VerifyCredentials(_ context.Context, email, password string) (domain.Identity, error) {
	if m.err != nil {
		return domain.Identity{}, m.err
	}
	switch {
	case email == "manager@store.test" && password == "secret":
		return domain.Identity{ID: "u1", Email: email, Name: "Morgan", Roles: domain.NewRoleSet(domain.RoleManager)}, nil
	case email == "cashier@store.test" && password == "secret":
		return domain.Identity{ID: "u2", Email: email, Roles: domain.NewRoleSet(domain.RoleCashier)}, nil
	}
	return domain.Identity{}, domain.ErrInvalidCredentials
}

type mockResolver struct {
	customers map[string]*pricing.Customer
	err       error
}

func (m mockResolver) Resolve(_ context.Context, customerID string, _ bool) (*pricing.Customer, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.customers[customerID]
	if !ok {
		return nil, &domain.Error{Kind: domain.KindNotFound, Detail: "customer not found"}
	}
	cp := *c
	return &cp, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []audit.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audit.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type testServer struct {
	handler   http.Handler
	publisher *recordingPublisher
	clock     *time.Time
}

func setupServer(t *testing.T, verifier authz.CredentialVerifier, resolver CustomerResolver) *testServer {
	t.Helper()
	engine, err := pricing.NewEngine(pricing.Config{
		Redemption: loyalty.Policy{MinRedeemPoints: 50, CapPercentOfSubtotal: 0.10, PointsPerCurrencyUnit: 10},
		EarnRate:   0.01,
	})
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := domain.ClockFunc(func() time.Time { return now })
	registry := terminal.NewRegistry(engine, verifier, authz.Options{Clock: clock})

	repo := catalog.NewMemoryRepository(catalog.Entry{
		Barcode:              "1234567890128",
		ProductID:            "tee",
		VariantSKU:           "M",
		Name:                 "T-shirt",
		UnitBasePrice:        1000,
		VariantPriceModifier: -200,
	})
	publisher := &recordingPublisher{}

	log := zap.NewNop()
	h := NewRouter(
		RouterConfig{RequestTimeout: 5 * time.Second, MaxRequestBodySize: 1 << 20},
		NewBarcodeHandler(log),
		NewTerminalHandler(registry, repo, resolver, publisher, log, 5*time.Second),
		log,
	)
	return &testServer{handler: h, publisher: publisher, clock: &now}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponse {
	t.Helper()
	var resp CartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))
}

func TestBarcodes_GenerateAndValidate(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/barcodes", GenerateBarcodeRequestDTO{SKU: "123456789012", Format: "ean-13"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var gen BarcodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gen))
	assert.Equal(t, "1234567890128", gen.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/barcodes/"+gen.Code+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var val BarcodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &val))
	require.NotNil(t, val.Valid)
	assert.True(t, *val.Valid)
	assert.Equal(t, "EAN13", string(val.Format))

	rec = s.do(t, http.MethodGet, "/api/v1/barcodes/1234567890127/validate", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &val))
	assert.False(t, *val.Valid)
}

func TestBarcodes_Code128Length(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/barcodes", GenerateBarcodeRequestDTO{
		SKU: "TEE", Attributes: map[string]string{"size": "M"}, Format: "CODE128", Length: 20,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var gen BarcodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gen))
	assert.Len(t, gen.Code, 20)
}

func TestBarcodes_BadRequests(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/barcodes", GenerateBarcodeRequestDTO{SKU: "1", Format: "QR"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/barcodes", GenerateBarcodeRequestDTO{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_sku", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/barcodes", map[string]string{"sku": "1", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestCart_AddItemAndQuote(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{
		ProductID: "tee", VariantSKU: "S", UnitBasePrice: 1000, VariantPriceModifier: -200, Quantity: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	cart := decodeCart(t, rec)
	assert.Equal(t, "till-1", cart.TerminalID)
	assert.Equal(t, int64(2400), cart.Quote.Subtotal)
	assert.Equal(t, int64(2400), cart.Quote.Total)

	rec = s.do(t, http.MethodGet, "/api/v1/terminals/till-1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2400), decodeCart(t, rec).Quote.Total)

	rec = s.do(t, http.MethodGet, "/api/v1/terminals/till-2/cart", nil)
	assert.Equal(t, int64(0), decodeCart(t, rec).Quote.Total)
}

func TestCart_InvalidItem(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{ProductID: "x", UnitBasePrice: 10, Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Code)
}

func TestCart_UpdateRemoveClear(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})
	s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{ProductID: "a", UnitBasePrice: 100, Quantity: 1})
	s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{ProductID: "b", VariantSKU: "L", UnitBasePrice: 50, Quantity: 1})

	rec := s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/items/a", UpdateQuantityRequestDTO{Quantity: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(550), decodeCart(t, rec).Quote.Total)

	rec = s.do(t, http.MethodDelete, "/api/v1/terminals/till-1/cart/items/b:L", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(500), decodeCart(t, rec).Quote.Total)

	rec = s.do(t, http.MethodDelete, "/api/v1/terminals/till-1/cart/items/zzz", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/terminals/till-1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Quote.Lines)
}

func TestCart_Scan(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/scan", ScanRequestDTO{Code: "1234567890128", Quantity: 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cart := decodeCart(t, rec)
	require.Len(t, cart.Quote.Lines, 1)
	assert.Equal(t, "tee:M", cart.Quote.Lines[0].Key)
	assert.Equal(t, int64(2400), cart.Quote.Total)

	rec = s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/scan", ScanRequestDTO{Code: "1234567890127"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_barcode", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/scan", ScanRequestDTO{Code: "036000291452"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "barcode_not_found", decodeError(t, rec).Code)
}

func TestCart_AddItemOverflowIsRejected(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{ProductID: "a", UnitBasePrice: 1 << 62, Quantity: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/terminals/till-1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decodeCart(t, rec).Quote.Total)
}

func TestManualDiscount_RequiresAuthorization(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})
	s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{ProductID: "a", UnitBasePrice: 3000, Quantity: 1})

	rec := s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/manual-discount", ManualDiscountRequestDTO{Amount: 500})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "authorization_required", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/terminals/till-1/cart", nil)
	assert.Equal(t, int64(3000), decodeCart(t, rec).Quote.Total)
	assert.Empty(t, s.publisher.types())
}

func TestAuthorizationFlow(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})
	s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{ProductID: "a", UnitBasePrice: 3000, Quantity: 1})

	rec := s.do(t, http.MethodPost, "/api/v1/terminals/till-1/authorization", AuthorizeRequestDTO{Email: "manager@store.test", Password: "secret"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var auth AuthorizationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.True(t, auth.Authorized)
	assert.Equal(t, "u1", auth.AuthorizedBy.ID)
	assert.Equal(t, []string{"manager"}, auth.AuthorizedBy.Roles)
	assert.Equal(t, auth.AuthorizedAt.Add(30*time.Minute), *auth.ExpiresAt)

	rec = s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/manual-discount", ManualDiscountRequestDTO{Amount: 500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2500), decodeCart(t, rec).Quote.Total)

	// another terminal is not authorized
	rec = s.do(t, http.MethodPut, "/api/v1/terminals/till-2/cart/manual-discount", ManualDiscountRequestDTO{Amount: 500})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/terminals/till-1/authorization", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.False(t, auth.Authorized)

	rec = s.do(t, http.MethodGet, "/api/v1/terminals/till-1/authorization", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.False(t, auth.Authorized)

	assert.Equal(t, []audit.EventType{
		audit.EventAuthorizationGranted,
		audit.EventManualDiscountSet,
		audit.EventAuthorizationCleared,
	}, s.publisher.types())
	s.publisher.mu.Lock()
	assert.Equal(t, "u1", s.publisher.events[1].Actor)
	assert.Equal(t, int64(500), s.publisher.events[1].Amount)
	s.publisher.mu.Unlock()
}

func TestAuthorization_Failures(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/terminals/till-1/authorization", AuthorizeRequestDTO{Email: "manager@store.test", Password: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/terminals/till-1/authorization", AuthorizeRequestDTO{Email: "cashier@store.test", Password: "secret"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "role_not_allowed", decodeError(t, rec).Code)

	assert.Equal(t, []audit.EventType{audit.EventAuthorizationDenied, audit.EventAuthorizationDenied}, s.publisher.types())
}

func TestAuthorization_VerifierDown(t *testing.T) {
	s := setupServer(t, mockVerifier{err: commerce.ErrUnavailable}, mockResolver{})

	rec := s.do(t, http.MethodPost, "/api/v1/terminals/till-1/authorization", AuthorizeRequestDTO{Email: "manager@store.test", Password: "secret"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "verifier_unavailable", decodeError(t, rec).Code)
	assert.Empty(t, s.publisher.types())
}

func TestCustomerAndRedemption(t *testing.T) {
	resolver := mockResolver{customers: map[string]*pricing.Customer{
		"c1": {CustomerID: "c1", Tier: "gold", PointsBalance: 1000, TierDiscount: &domain.Discount{Kind: domain.DiscountPercentage, Value: 5}},
	}}
	s := setupServer(t, mockVerifier{}, resolver)
	s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{ProductID: "a", UnitBasePrice: 10000, Quantity: 1})

	rec := s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/customer", CustomerRequestDTO{CustomerID: "c1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := decodeCart(t, rec)
	require.NotNil(t, cart.Customer)
	assert.Equal(t, int64(500), cart.Quote.TierDiscount)
	assert.Equal(t, int64(1000), cart.Quote.MaxRedeemablePoints)

	rec = s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/redemption", RedemptionRequestDTO{Points: 1000})
	require.Equal(t, http.StatusOK, rec.Code)
	cart = decodeCart(t, rec)
	assert.Equal(t, int64(100), cart.Quote.RedemptionDiscount)
	assert.Equal(t, int64(9400), cart.Quote.Total)

	rec = s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/redemption", RedemptionRequestDTO{Points: 20})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decodeError(t, rec)
	assert.Equal(t, "below_minimum_redemption", errResp.Code)
	require.NotNil(t, errResp.Bound)
	assert.Equal(t, int64(50), *errResp.Bound)

	rec = s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/customer", CustomerRequestDTO{CustomerID: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/terminals/till-1/cart/customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeCart(t, rec).Customer)
}

func TestCustomer_BackendUnavailable(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{err: commerce.ErrUnavailable})

	rec := s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/customer", CustomerRequestDTO{CustomerID: "c1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCoupon(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})
	s.do(t, http.MethodPost, "/api/v1/terminals/till-1/cart/items", domain.LineItem{ProductID: "a", UnitBasePrice: 2000, Quantity: 1})

	rec := s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/coupon", CouponRequestDTO{Code: "SUMMER", Kind: domain.DiscountPercentage, Value: 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1800), decodeCart(t, rec).Quote.Total)

	expired := s.clock.Add(-time.Hour)
	rec = s.do(t, http.MethodPut, "/api/v1/terminals/till-1/cart/coupon", CouponRequestDTO{Code: "OLD", Kind: domain.DiscountFixed, Value: 100, ValidTo: &expired})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/terminals/till-1/cart/coupon", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2000), decodeCart(t, rec).Quote.Total)
}

func TestTerminals_ListAndClose(t *testing.T) {
	s := setupServer(t, mockVerifier{}, mockResolver{})
	s.do(t, http.MethodGet, "/api/v1/terminals/till-b/cart", nil)
	s.do(t, http.MethodGet, "/api/v1/terminals/till-a/cart", nil)

	rec := s.do(t, http.MethodGet, "/api/v1/terminals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Terminals []string `json:"terminals"`
		Count     int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"till-a", "till-b"}, list.Terminals)
	assert.Equal(t, 2, list.Count)

	rec = s.do(t, http.MethodDelete, "/api/v1/terminals/till-a", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/v1/terminals/till-a", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
