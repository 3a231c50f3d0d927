package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"food-order-service/internal/apperr"
	"food-order-service/internal/gateway"
	"food-order-service/internal/models"
	"food-order-service/internal/pricing"

	"github.com/shopspring/decimal"
)

type fakeProducts struct {
	mu       sync.Mutex
	products map[int64]*models.Product
}

func newFakeProducts(products ...*models.Product) *fakeProducts {
	f := &fakeProducts{products: map[int64]*models.Product{}}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProducts) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, apperr.NotFound("product.get", "product", fmt.Sprint(id))
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) DecrementStock(_ context.Context, id int64, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (f *fakeProducts) IncrementStock(_ context.Context, id int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.products[id]; ok {
		p.Stock += qty
	}
	return nil
}

func (f *fakeProducts) stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	nextID int64
	// staleWrites makes the next n UpdateOrder calls fail as stale.
	staleWrites int
	updates     int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[string]*models.Order{}}
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append(models.OrderItems(nil), o.Items...)
	cp.StatusHistory = append(models.StatusHistory(nil), o.StatusHistory...)
	cp.RefundIDs = append([]string(nil), o.RefundIDs...)
	if o.ReturnRequest != nil {
		rr := *o.ReturnRequest
		cp.ReturnRequest = &rr
	}
	if o.PaymentInfo.Metadata != nil {
		cp.PaymentInfo.Metadata = models.Metadata{}
		for k, v := range o.PaymentInfo.Metadata {
			cp.PaymentInfo.Metadata[k] = v
		}
	}
	return &cp
}

func (f *fakeOrders) CreateOrder(_ context.Context, o *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o.ID = f.nextID
	o.Version = 1
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	o.RecomputeFinal()
	f.orders[o.OrderNumber] = cloneOrder(o)
	return nil
}

func (f *fakeOrders) GetOrderByNumber(_ context.Context, number string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[number]
	if !ok {
		return nil, apperr.NotFound("order.get", "order", number)
	}
	return cloneOrder(o), nil
}

func (f *fakeOrders) UpdateOrder(_ context.Context, o *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staleWrites > 0 {
		f.staleWrites--
		f.orders[o.OrderNumber].Version++
	}
	current, ok := f.orders[o.OrderNumber]
	if !ok {
		return apperr.NotFound("order.update", "order", o.OrderNumber)
	}
	if current.Version != o.Version {
		return apperr.Conflict("order.update", apperr.ReasonStaleVersion, "order %s was modified concurrently", o.OrderNumber)
	}
	f.updates++
	o.Version++
	o.UpdatedAt = time.Now()
	o.RecomputeFinal()
	f.orders[o.OrderNumber] = cloneOrder(o)
	return nil
}

func (f *fakeOrders) ListOrdersByUser(_ context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.OwnedBy(userID) {
			out = append(out, *cloneOrder(o))
		}
	}
	return page(out, limit, offset), nil
}

func (f *fakeOrders) ListOrders(_ context.Context, status models.OrderStatus, limit, offset int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if status == "" || o.OrderStatus == status {
			out = append(out, *cloneOrder(o))
		}
	}
	return page(out, limit, offset), nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit < len(in) {
		in = in[:limit]
	}
	return in
}

// put stores an order directly, bypassing creation.
func (f *fakeOrders) put(o *models.Order) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o.ID = f.nextID
	if o.Version == 0 {
		o.Version = 1
	}
	o.RecomputeFinal()
	f.orders[o.OrderNumber] = cloneOrder(o)
	return o
}

func (f *fakeOrders) get(number string) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneOrder(f.orders[number])
}

type fakeRefunds struct {
	mu      sync.Mutex
	refunds map[string]*models.Refund
}

func newFakeRefunds() *fakeRefunds {
	return &fakeRefunds{refunds: map[string]*models.Refund{}}
}

func (f *fakeRefunds) CreateRefund(_ context.Context, r *models.Refund) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.refunds {
		if existing.OrderID == r.OrderID {
			return apperr.Conflict("refund.create", apperr.ReasonRefundExists, "order already has a refund")
		}
	}
	cp := *r
	f.refunds[r.ID] = &cp
	return nil
}

func (f *fakeRefunds) GetRefund(_ context.Context, id string) (*models.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.refunds[id]
	if !ok {
		return nil, apperr.NotFound("refund.get", "refund", id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRefunds) GetRefundByOrder(_ context.Context, orderID int64) (*models.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.refunds {
		if r.OrderID == orderID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRefunds) UpdateRefund(_ context.Context, r *models.Refund, from models.RefundStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.refunds[r.ID]
	if !ok || current.Status != from {
		return apperr.Conflict("refund.update", apperr.ReasonInvalidRefundTransition, "refund changed concurrently")
	}
	cp := *r
	f.refunds[r.ID] = &cp
	return nil
}

func (f *fakeRefunds) ListRefunds(_ context.Context, status models.RefundStatus, limit, offset int) ([]models.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Refund
	for _, r := range f.refunds {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	return page(out, limit, offset), nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) record(name, ref string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, name+":"+ref)
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, o *models.Order) {
	n.record("placed", o.OrderNumber)
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, o *models.Order) {
	n.record("status", string(o.OrderStatus))
}

func (n *recordingNotifier) PaymentVerified(_ context.Context, o *models.Order) {
	n.record("payment_verified", o.OrderNumber)
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, o *models.Order) {
	n.record("payment_failed", o.OrderNumber)
}

func (n *recordingNotifier) ReturnRequested(_ context.Context, o *models.Order) {
	n.record("return_requested", o.OrderNumber)
}

func (n *recordingNotifier) ReturnReviewed(_ context.Context, o *models.Order) {
	n.record("return_reviewed", string(o.ReturnRequest.Status))
}

func (n *recordingNotifier) RefundStatusChanged(_ context.Context, r *models.Refund) {
	n.record("refund", string(r.Status))
}

func (n *recordingNotifier) count(prefix string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, call := range n.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			c++
		}
	}
	return c
}

type recordingEvents struct {
	mu     sync.Mutex
	types  []string
	failed bool
}

func (e *recordingEvents) add(t string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, t)
	if e.failed {
		return fmt.Errorf("kafka unavailable")
	}
	return nil
}

func (e *recordingEvents) PublishOrderCreated(_ context.Context, ev *models.OrderCreatedEvent) error {
	return e.add(ev.EventType)
}

func (e *recordingEvents) PublishOrderStatusChanged(_ context.Context, ev *models.OrderStatusChangedEvent) error {
	return e.add(ev.EventType)
}

func (e *recordingEvents) PublishPayment(_ context.Context, ev *models.PaymentEvent) error {
	return e.add(ev.EventType)
}

func (e *recordingEvents) PublishRefundStatusChanged(_ context.Context, ev *models.RefundEvent) error {
	return e.add(ev.EventType)
}

type memGuard struct {
	mu     sync.Mutex
	claims map[string]string
	err    error
}

func newMemGuard() *memGuard {
	return &memGuard{claims: map[string]string{}}
}

func (g *memGuard) ClaimTransaction(_ context.Context, txID, owner string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if _, ok := g.claims[txID]; ok {
		return false, nil
	}
	g.claims[txID] = owner
	return true, nil
}

func (g *memGuard) ReleaseTransaction(_ context.Context, txID, owner string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claims[txID] == owner {
		delete(g.claims, txID)
	}
	return nil
}

type seqNumbers struct {
	mu sync.Mutex
	n  int
}

func (s *seqNumbers) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("ORD-TEST%04d", s.n), nil
}

// stubProvider answers Validate with a fixed result.
type stubProvider struct {
	mu         sync.Mutex
	validation *gateway.Validation
	err        error
	initiated  *gateway.InitRequest
	validated  int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Initiate(_ context.Context, req *gateway.InitRequest) (*gateway.Session, error) {
	p.initiated = req
	return &gateway.Session{URL: "https://pay.example/" + req.OrderNumber, SessionID: "sess-1"}, nil
}

func (p *stubProvider) ParseCallback(r *http.Request) (*gateway.Callback, error) {
	return &gateway.Callback{OrderNumber: r.FormValue("order")}, nil
}

func (p *stubProvider) Validate(_ context.Context, cb *gateway.Callback) (*gateway.Validation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validated++
	if p.err != nil {
		return nil, p.err
	}
	v := *p.validation
	return &v, nil
}

// harness wires every service over shared fakes.
type harness struct {
	products   *fakeProducts
	orders     *fakeOrders
	refunds    *fakeRefunds
	notifier   *recordingNotifier
	events     *recordingEvents
	guard      *memGuard
	provider   *stubProvider
	inventory  *InventoryLedger
	machine    *StateMachine
	orderSvc   *OrderService
	reconciler *PaymentReconciler
	returns    *ReturnService
}

func newHarness(products ...*models.Product) *harness {
	h := &harness{
		products: newFakeProducts(products...),
		orders:   newFakeOrders(),
		refunds:  newFakeRefunds(),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		guard:    newMemGuard(),
		provider: &stubProvider{},
	}
	calc := pricing.NewCalculator(pricing.Policy{
		BaseDeliveryCharge:    decimal.NewFromInt(60),
		FreeDeliveryThreshold: decimal.NewFromInt(500),
	})
	h.inventory = NewInventoryLedger(h.products)
	h.machine = NewStateMachine(h.orders, h.inventory, h.notifier, h.events)
	h.orderSvc = NewOrderService(h.orders, h.products, h.inventory, calc, &seqNumbers{}, h.notifier, h.events)
	h.reconciler = NewPaymentReconciler(h.orders, h.machine, h.provider, h.guard, h.notifier, h.events, time.Hour, "https://api.example")
	h.returns = NewReturnService(h.orders, h.refunds, h.notifier, h.events, 24*time.Hour)
	return h
}

func product(id int64, name string, price int64, stock int) *models.Product {
	return &models.Product{
		ID:          id,
		Name:        name,
		Price:       decimal.NewFromInt(price),
		Stock:       stock,
		MinQty:      1,
		MaxQty:      20,
		IsAvailable: true,
		IsVisible:   true,
	}
}

func orderInput(method models.PaymentMethodCode, delivery models.DeliveryMethod, items ...ItemInput) *CreateOrderInput {
	in := &CreateOrderInput{
		Customer:       CustomerInput{Name: "Rahim", Phone: "01700000000", Email: "rahim@example.com"},
		DeliveryMethod: delivery,
		Items:          items,
		PaymentMethod:  method,
	}
	if delivery == models.DeliveryMethodDelivery {
		in.DeliveryAddress = "House 4, Road 2, Dhaka"
	}
	if method == models.PaymentBkash {
		in.TransactionID = "BK123"
	}
	return in
}
