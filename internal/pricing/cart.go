package pricing

import (
	"math"
	"slices"
	"sync"

	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/fjod/go_cart/pos-service/internal/loyalty"
)

// Authorizer reports the elevated session that is active right now, if any.
type Authorizer interface {
	Current() (domain.DiscountAuthorization, bool)
}

// Customer is the loyalty context attached to a cart.
type Customer struct {
	CustomerID     string           `json:"customer_id"`
	Tier           string           `json:"tier,omitempty"`
	TierDiscount   *domain.Discount `json:"tier_discount,omitempty"`
	PointsBalance  int64            `json:"points_balance"`
	EarnMultiplier float64          `json:"earn_multiplier,omitempty"`
}

// Cart is the mutable cart of one POS terminal. Every method takes the cart
// mutex, so mutations and quotes never interleave.
type Cart struct {
	mu       sync.Mutex
	engine   *Engine
	clock    domain.Clock
	items    []domain.LineItem
	manual   int64
	coupon   *Coupon
	customer *Customer
	points   int64
}

func NewCart(engine *Engine, clock domain.Clock) *Cart {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Cart{engine: engine, clock: clock}
}

// AddItem appends item, or adds its quantity to the existing line with the
// same key. A merged line keeps the price and discount it was first added
// with; remove the line to pick up a changed catalog price. Additions that
// would overflow the line or cart totals are rejected.
func (c *Cart) AddItem(item domain.LineItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	next := slices.Clone(c.items)
	if i := c.indexOf(item.Key()); i >= 0 {
		if next[i].Quantity > math.MaxInt64-item.Quantity {
			return domain.NewValidationError("quantity of %s is too large", item.Key())
		}
		next[i].Quantity += item.Quantity
	} else {
		next = append(next, item)
	}
	return c.commit(next)
}

func (c *Cart) UpdateQuantity(key string, quantity int64) error {
	if quantity < 1 {
		return domain.NewValidationError("quantity must be at least 1")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(key)
	if i < 0 {
		return &domain.Error{Kind: domain.KindNotFound, Detail: "item " + key + " not in cart"}
	}
	next := slices.Clone(c.items)
	next[i].Quantity = quantity
	if err := c.commit(next); err != nil {
		return err
	}
	c.reconcileRedemption()
	return nil
}

func (c *Cart) RemoveItem(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(key)
	if i < 0 {
		return &domain.Error{Kind: domain.KindNotFound, Detail: "item " + key + " not in cart"}
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.reconcileRedemption()
	return nil
}

// Clear empties the cart and drops every discount and the customer.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.manual = 0
	c.coupon = nil
	c.customer = nil
	c.points = 0
}

// SetManualDiscount accepts a non-zero amount only while auth reports an
// active elevated session, and returns that session so callers can record
// who approved it. On rejection the previous amount is kept.
func (c *Cart) SetManualDiscount(amount int64, auth Authorizer) (domain.DiscountAuthorization, error) {
	if amount < 0 {
		return domain.DiscountAuthorization{}, domain.NewValidationError("manual discount must not be negative")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var approval domain.DiscountAuthorization
	if amount != 0 {
		var ok bool
		if auth != nil {
			approval, ok = auth.Current()
		}
		if !ok {
			return domain.DiscountAuthorization{}, domain.ErrAuthorizationRequired
		}
	}
	c.manual = amount
	return approval, nil
}

// SetCoupon applies coupon, or removes the current one when coupon is nil.
// A coupon must be active when applied.
func (c *Cart) SetCoupon(coupon *Coupon) error {
	if coupon != nil {
		if coupon.Code == "" {
			return domain.NewValidationError("coupon code is required")
		}
		if err := coupon.Discount.Validate(); err != nil {
			return err
		}
		if !coupon.Discount.ActiveAt(c.clock.Now()) {
			return domain.NewValidationError("coupon %s is outside its validity window", coupon.Code)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.coupon = coupon
	return nil
}

// SetCustomer attaches the loyalty context. Points redeemed against a
// previous customer are dropped.
func (c *Cart) SetCustomer(customer *Customer) error {
	if customer != nil {
		if customer.PointsBalance < 0 {
			return domain.NewValidationError("points balance must not be negative")
		}
		if customer.TierDiscount != nil {
			if err := customer.TierDiscount.Validate(); err != nil {
				return err
			}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.customer = customer
	c.points = 0
	return nil
}

// SetRedemption validates points against the current subtotal and the
// customer's balance before accepting them.
func (c *Cart) SetRedemption(points int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if points == 0 {
		c.points = 0
		return nil
	}
	if c.customer == nil {
		return domain.NewValidationError("attach a customer before redeeming points")
	}
	subtotal, err := c.engine.Subtotal(c.items, c.clock.Now())
	if err != nil {
		return err
	}
	req := loyalty.RedemptionRequest{PointsBalance: c.customer.PointsBalance, PointsToRedeem: points}
	if _, err := loyalty.Validate(subtotal, req, c.engine.Config().Redemption); err != nil {
		return err
	}
	c.points = points
	return nil
}

// Quote computes the breakdown for the current contents. Redeemed points
// that a since-expired line discount pushed over the cap are dropped first.
func (c *Cart) Quote() (Breakdown, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconcileRedemption()
	return c.engine.Compute(c.input())
}

// Items returns a copy of the line items.
func (c *Cart) Items() []domain.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Customer() *Customer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.customer == nil {
		return nil
	}
	cp := *c.customer
	return &cp
}

func (c *Cart) input() Input {
	in := Input{
		Items:          c.items,
		ManualDiscount: c.manual,
		Coupon:         c.coupon,
		At:             c.clock.Now(),
	}
	if c.customer != nil {
		in.TierDiscount = c.customer.TierDiscount
		in.EarnMultiplier = c.customer.EarnMultiplier
		in.Redemption = &loyalty.RedemptionRequest{
			PointsBalance:  c.customer.PointsBalance,
			PointsToRedeem: c.points,
		}
	}
	return in
}

// reconcileRedemption drops redeemed points that the shrunken cart no
// longer allows. Must be called with mu held.
func (c *Cart) reconcileRedemption() {
	if c.points == 0 || c.customer == nil {
		return
	}
	subtotal, err := c.engine.Subtotal(c.items, c.clock.Now())
	if err != nil {
		c.points = 0
		return
	}
	req := loyalty.RedemptionRequest{PointsBalance: c.customer.PointsBalance, PointsToRedeem: c.points}
	if _, err := loyalty.Validate(subtotal, req, c.engine.Config().Redemption); err != nil {
		c.points = 0
	}
}

// commit replaces the items once they price without overflowing. Must be
// called with mu held.
func (c *Cart) commit(items []domain.LineItem) error {
	if _, err := c.engine.Subtotal(items, c.clock.Now()); err != nil {
		return err
	}
	c.items = items
	return nil
}

func (c *Cart) indexOf(key string) int {
	for i := range c.items {
		if c.items[i].Key() == key {
			return i
		}
	}
	return -1
}
