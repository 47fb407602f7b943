// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
	"github.com/your-org/storefront-checkout/internal/pkg/auth"
)

// Gateway relays checkout calls to the backend, which talks to the payment provider
type Gateway interface {
	Config(ctx context.Context) (map[string]any, error)
	PaymentMethods(ctx context.Context) (map[string]any, error)
	InitiatePayment(ctx context.Context, payload json.RawMessage) (*PaymentResponse, error)
	SubmitAdditionalDetails(ctx context.Context, payload json.RawMessage) (*PaymentResponse, error)
	RefundPayment(ctx context.Context, c *cart.ShoppingCart) error
}

// Notifier tells shoppers about payment outcomes. Failures never affect checkout.
type Notifier interface {
	PaymentCompleted(ctx context.Context, to string, c *cart.ShoppingCart, status cart.OrderStatus) error
	RefundRequested(ctx context.Context, to string, c *cart.ShoppingCart) error
}

// TokenIssuer mints a backend token for a shopper returning from a provider redirect
type TokenIssuer interface {
	IssueFor(login, email string) (string, error)
}

// RedirectDetails is what the provider sends back on the redirect return URL
type RedirectDetails struct {
	Payload string `json:"payload,omitempty" form:"payload"`
	MD      string `json:"MD,omitempty" form:"MD"`
	PaRes   string `json:"PaRes,omitempty" form:"PaRes"`
}

// Empty reports whether the provider sent nothing usable
func (d RedirectDetails) Empty() bool {
	return d.Payload == "" && (d.MD == "" || d.PaRes == "")
}

// Service is the cart and checkout orchestrator
type Service struct {
	carts    *cart.Service
	gateway  Gateway
	sessions *SessionStore
	guard    *InFlightGuard
	repo     Repository
	notifier Notifier
	tokens   TokenIssuer
	config   *config.Config
	logger   *logrus.Logger
}

// Dependencies groups the collaborators of the orchestrator
type Dependencies struct {
	Carts    *cart.Service
	Gateway  Gateway
	Sessions *SessionStore
	Guard    *InFlightGuard
	Repo     Repository
	Notifier Notifier
	Tokens   TokenIssuer
}

// NewService creates a new checkout orchestrator
func NewService(deps Dependencies, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		carts:    deps.Carts,
		gateway:  deps.Gateway,
		sessions: deps.Sessions,
		guard:    deps.Guard,
		repo:     deps.Repo,
		notifier: deps.Notifier,
		tokens:   deps.Tokens,
		config:   cfg,
		logger:   logger,
	}
}

// session opens the shopper's store. save must be called to persist it.
func (s *Service) session(ctx context.Context, who Customer) (*Store, func(), error) {
	state, err := s.sessions.Load(ctx, who.Login)
	if err != nil {
		return nil, nil, err
	}
	store := NewStore(state)
	store.Subscribe(func(st State) {
		s.logger.WithFields(logrus.Fields{
			"user":  who.Login,
			"phase": st.Phase,
		}).Debug("Checkout state updated")
	})

	save := func() {
		if err := s.sessions.Save(ctx, who.Login, store.State()); err != nil {
			s.logger.WithError(err).WithField("user", who.Login).Error("Failed to persist checkout state")
		}
	}
	return store, save, nil
}

// dispatch applies cmd and logs rejected transitions
func (s *Service) dispatch(store *Store, who Customer, cmd Command) error {
	if _, err := store.Dispatch(cmd); err != nil {
		s.logger.WithFields(logrus.Fields{
			"user":    who.Login,
			"command": fmt.Sprintf("%T", cmd),
			"phase":   store.State().Phase,
		}).Warn("Rejected checkout transition")
		return err
	}
	return nil
}

// GetState returns the shopper's checkout projection
func (s *Service) GetState(ctx context.Context, who Customer) (State, error) {
	return s.sessions.Load(ctx, who.Login)
}

// ResetState drops payment progress, e.g. when the shopper leaves a status page
func (s *Service) ResetState(ctx context.Context, who Customer) (State, error) {
	store, save, err := s.session(ctx, who)
	if err != nil {
		return State{}, err
	}
	defer save()
	if err := s.dispatch(store, who, Reset{}); err != nil {
		return State{}, err
	}
	return store.State(), nil
}

// GetActiveCart returns the shopper's open cart, or an empty default cart
func (s *Service) GetActiveCart(ctx context.Context, who Customer) (*cart.ShoppingCart, error) {
	sc, err := s.carts.GetActiveCart(ctx)
	if err != nil {
		return nil, err
	}
	s.recordCart(ctx, who, sc)
	return sc, nil
}

// AddLineItem adds a product to the active cart, creating the cart if needed
func (s *Service) AddLineItem(ctx context.Context, who Customer, productID int64) (*cart.ShoppingCart, error) {
	sc, err := s.carts.AddLineItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.recordCart(ctx, who, sc)
	return sc, nil
}

// RemoveLineItem removes a line item from the active cart
func (s *Service) RemoveLineItem(ctx context.Context, who Customer, orderID int64) (*cart.ShoppingCart, error) {
	sc, err := s.carts.RemoveLineItem(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.recordCart(ctx, who, sc)
	return sc, nil
}

// CloseCart finalises the active cart with a terminal status
func (s *Service) CloseCart(ctx context.Context, who Customer, paymentType, paymentRef string, status cart.OrderStatus) error {
	if err := s.carts.CloseCart(ctx, paymentType, paymentRef, status); err != nil {
		return err
	}

	store, save, err := s.session(ctx, who)
	if err != nil {
		return nil
	}
	defer save()
	// Outside a payment round-trip the transition is rejected and the projection is left alone.
	_ = s.dispatch(store, who, CartClosed{Status: status, PaymentRef: paymentRef})
	return nil
}

// FindCart returns one of the shopper's carts
func (s *Service) FindCart(ctx context.Context, who Customer, cartID int64) (*cart.ShoppingCart, error) {
	return s.carts.FindInHistory(ctx, cartID)
}

// GetCartHistory returns past carts and settles tracked refunds the backend has finished
func (s *Service) GetCartHistory(ctx context.Context, who Customer) ([]cart.ShoppingCart, error) {
	carts, err := s.carts.GetCartHistory(ctx)
	if err != nil {
		return nil, err
	}

	store, save, err := s.session(ctx, who)
	if err != nil {
		return carts, nil
	}
	state := store.State()
	settled := false
	for _, sc := range carts {
		if state.Refunds[sc.ID] != cart.OrderStatusRefundInitiated {
			continue
		}
		if sc.Status == cart.OrderStatusRefunded || sc.Status == cart.OrderStatusRefundFailed {
			if s.dispatch(store, who, RefundSettled{CartID: sc.ID, Status: sc.Status}) == nil {
				settled = true
			}
		}
	}
	if settled {
		save()
	}
	return carts, nil
}

// recordCart keeps the session's copy of the cart current. Failures are logged only.
func (s *Service) recordCart(ctx context.Context, who Customer, sc *cart.ShoppingCart) {
	store, save, err := s.session(ctx, who)
	if err != nil {
		s.logger.WithError(err).Warn("Checkout session unavailable")
		return
	}
	if err := s.dispatch(store, who, CartLoaded{Cart: sc}); err == nil {
		save()
	}
}

var defaultWidgetConfig = map[string]any{
	"paymentMethodsConfiguration": map[string]any{
		"ideal": map[string]any{
			"showImage": true,
		},
		"card": map[string]any{
			"hasHolderName":      true,
			"holderNameRequired": true,
			"name":               "Credit or debit card",
		},
	},
	"showPayButton": true,
}

// GetConfig returns the payment widget configuration, backend values winning over defaults
func (s *Service) GetConfig(ctx context.Context, who Customer) (map[string]any, error) {
	remote, err := s.gateway.Config(ctx)
	if err != nil {
		return nil, err
	}

	conf := map[string]any{"locale": strings.ReplaceAll(s.config.Checkout.Locale, "_", "-")}
	for k, v := range defaultWidgetConfig {
		conf[k] = v
	}
	for k, v := range remote {
		conf[k] = v
	}

	if store, save, err := s.session(ctx, who); err == nil {
		if s.dispatch(store, who, ConfigLoaded{Config: conf}) == nil {
			save()
		}
	}
	return conf, nil
}

// GetPaymentMethods returns the methods available for the active cart's amount
func (s *Service) GetPaymentMethods(ctx context.Context, who Customer) (map[string]any, error) {
	methods, err := s.gateway.PaymentMethods(ctx)
	if err != nil {
		return nil, err
	}
	methods = stripNulls(methods).(map[string]any)

	if store, save, err := s.session(ctx, who); err == nil {
		if s.dispatch(store, who, PaymentMethodsLoaded{Methods: methods}) == nil {
			save()
		}
	}
	return methods, nil
}

// InitiatePayment forwards the widget's payment payload and decides the next step.
// origin is the storefront host the shopper paid from.
func (s *Service) InitiatePayment(ctx context.Context, who Customer, payload json.RawMessage, origin string) (*PaymentResult, error) {
	release, err := s.guard.Acquire(ctx, who.Login)
	if err != nil {
		return nil, err
	}
	defer release()

	store, save, err := s.session(ctx, who)
	if err != nil {
		return nil, err
	}
	defer save()

	// Holding the lock means no other round-trip is live, so a bare PENDING_RESULT was abandoned.
	if st := store.State(); st.Phase == PhasePendingResult && len(st.PendingAction) == 0 {
		_ = s.dispatch(store, who, RequestFailed{Err: "previous payment attempt was abandoned"})
	}

	active, err := s.carts.GetActiveCart(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.dispatch(store, who, CartLoaded{Cart: active})
	if active.IsEmpty() {
		return nil, ErrEmptyCart
	}

	body, paymentType, err := s.preparePayload(payload, active)
	if err != nil {
		return nil, err
	}
	if err := s.dispatch(store, who, PaymentSubmitted{PaymentType: paymentType}); err != nil {
		return nil, err
	}

	resp, err := s.gateway.InitiatePayment(ctx, body)
	if err != nil {
		return s.fail(ctx, store, who, StageInitiate, err), nil
	}

	result := s.apply(ctx, store, who, StageInitiate, resp)
	if paymentData := resp.ActionPaymentData(); paymentData != "" {
		result.RedirectRef = s.cacheRedirect(ctx, who, origin, paymentType, paymentData)
	}
	return result, nil
}

// SubmitAdditionalDetails forwards the widget's challenge answer
func (s *Service) SubmitAdditionalDetails(ctx context.Context, who Customer, payload json.RawMessage) (*PaymentResult, error) {
	release, err := s.guard.Acquire(ctx, who.Login)
	if err != nil {
		return nil, err
	}
	defer release()

	store, save, err := s.session(ctx, who)
	if err != nil {
		return nil, err
	}
	defer save()

	if err := s.dispatch(store, who, PaymentSubmitted{}); err != nil {
		return nil, err
	}

	resp, err := s.gateway.SubmitAdditionalDetails(ctx, payload)
	if err != nil {
		return s.fail(ctx, store, who, StageDetails, err), nil
	}
	return s.apply(ctx, store, who, StageDetails, resp), nil
}

// HandleRedirect finishes a payment after the provider sends the shopper back.
// It always returns an absolute status page location.
func (s *Service) HandleRedirect(ctx context.Context, orderRef string, details RedirectDetails) (string, error) {
	fallback := s.config.App.PublicURL
	if orderRef == "" || details.Empty() {
		return RedirectLocation(fallback, s.config.Checkout.StatusBasePath, PageError, ErrNoPaymentCache.Error(), ""), ErrNoPaymentCache
	}

	cache, err := s.repo.FindPaymentCache(ctx, orderRef)
	if err != nil {
		return RedirectLocation(fallback, s.config.Checkout.StatusBasePath, PageError, ErrNoPaymentCache.Error(), ""), err
	}
	host := cache.OriginalHost
	if host == "" {
		host = fallback
	}
	who := Customer{Login: cache.UserLogin, Email: cache.UserEmail}

	token, err := s.tokens.IssueFor(cache.UserLogin, cache.UserEmail)
	if err != nil {
		return RedirectLocation(host, s.config.Checkout.StatusBasePath, PageError, "Unauthorized", cache.PaymentType), fmt.Errorf("failed to issue shopper token: %w", err)
	}
	ctx = auth.WithBearer(ctx, token)

	release, err := s.guard.Acquire(ctx, who.Login)
	if err != nil {
		return RedirectLocation(host, s.config.Checkout.StatusBasePath, PageError, err.Error(), cache.PaymentType), err
	}
	defer release()

	store, save, err := s.session(ctx, who)
	if err != nil {
		return RedirectLocation(host, s.config.Checkout.StatusBasePath, PageError, err.Error(), cache.PaymentType), err
	}
	defer save()
	_ = s.dispatch(store, who, PaymentSubmitted{PaymentType: cache.PaymentType})

	body, err := json.Marshal(detailsRequest(cache.PaymentData, details))
	if err != nil {
		return RedirectLocation(host, s.config.Checkout.StatusBasePath, PageError, err.Error(), cache.PaymentType), err
	}

	var result *PaymentResult
	resp, err := s.gateway.SubmitAdditionalDetails(ctx, body)
	if err != nil {
		result = s.fail(ctx, store, who, StageRedirect, err)
	} else {
		// The shopper has left the widget, so another action cannot be replayed.
		if resp.HasAction() {
			resp.Action = nil
		}
		result = s.apply(ctx, store, who, StageRedirect, resp)
	}

	if err := s.repo.DeletePaymentCache(ctx, cache.ID); err != nil {
		s.logger.WithError(err).WithField("order_ref", orderRef).Warn("Failed to delete used payment cache")
	}

	return RedirectLocation(host, s.config.Checkout.StatusBasePath, result.Outcome.Page, result.Outcome.Reason, cache.PaymentType), nil
}

// Refund requests a refund for one of the shopper's paid carts
func (s *Service) Refund(ctx context.Context, who Customer, cartID int64) (*cart.ShoppingCart, error) {
	sc, err := s.carts.FindInHistory(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !sc.CanBeRefunded() {
		return nil, fmt.Errorf("%w: %s", ErrNotRefundable, sc.Status)
	}

	store, save, err := s.session(ctx, who)
	if err != nil {
		return nil, err
	}
	defer save()
	if _, err := Reduce(store.State(), RefundRequested{Cart: sc}); err != nil {
		return nil, err
	}

	if err := s.gateway.RefundPayment(ctx, sc); err != nil {
		s.journal(ctx, &CheckoutAttempt{UserLogin: who.Login, CartID: sc.ID, Stage: StageRefund, Reason: err.Error()})
		return nil, fmt.Errorf("failed to request refund: %w", err)
	}

	if err := s.dispatch(store, who, RefundRequested{Cart: sc}); err != nil {
		return nil, err
	}
	s.journal(ctx, &CheckoutAttempt{
		UserLogin:    who.Login,
		CartID:       sc.ID,
		Stage:        StageRefund,
		PspReference: sc.PaymentReference,
		ResultCode:   string(cart.OrderStatusRefundInitiated),
	})

	refunding := *sc
	refunding.Status = cart.OrderStatusRefundInitiated
	s.notify(func() error { return s.notifier.RefundRequested(ctx, s.recipient(who, &refunding), &refunding) })

	s.logger.WithFields(logrus.Fields{
		"user":    who.Login,
		"cart_id": sc.ID,
	}).Info("Refund requested")

	return &refunding, nil
}

// ListAttempts returns the shopper's most recent provider round-trips
func (s *Service) ListAttempts(ctx context.Context, who Customer, limit int) ([]CheckoutAttempt, error) {
	return s.repo.ListAttempts(ctx, who.Login, limit)
}

// apply decides the outcome of a provider response and closes the cart when required
func (s *Service) apply(ctx context.Context, store *Store, who Customer, stage AttemptStage, resp *PaymentResponse) *PaymentResult {
	outcome := ResolveOutcome(resp)
	if stage == StageRedirect {
		outcome = ResolveRedirectOutcome(resp)
	}
	state := store.State()
	_ = s.dispatch(store, who, ProviderResponded{Response: resp, Outcome: outcome})

	if outcome.ClosesCart() {
		paymentType := state.PaymentType
		if paymentType == "" {
			paymentType = cart.PaymentMethodCreditCard.ProviderType()
		}
		if err := s.carts.CloseCart(ctx, paymentType, resp.PspReference, outcome.CloseStatus); err != nil {
			return s.fail(ctx, store, who, stage, err)
		}
		_ = s.dispatch(store, who, CartClosed{Status: outcome.CloseStatus, PaymentRef: resp.PspReference})

		closed := store.State().Cart
		status := outcome.CloseStatus
		s.notify(func() error { return s.notifier.PaymentCompleted(ctx, s.recipient(who, closed), closed, status) })
	}

	if outcome.Terminal() {
		outcome.Location = StatusPath(s.config.Checkout.StatusBasePath, outcome.Page, outcome.Reason)
	}

	s.journal(ctx, &CheckoutAttempt{
		UserLogin:    who.Login,
		CartID:       cartID(state.Cart),
		Stage:        stage,
		ResultCode:   string(resp.ResultCode),
		PspReference: resp.PspReference,
		Page:         outcome.Page,
		Reason:       outcome.Reason,
	})

	s.logger.WithFields(logrus.Fields{
		"user":        who.Login,
		"stage":       stage,
		"result_code": resp.ResultCode,
		"page":        outcome.Page,
		"action":      !outcome.Terminal(),
	}).Info("Payment round-trip completed")

	return &PaymentResult{
		ResultCode:   resp.ResultCode,
		PspReference: resp.PspReference,
		Action:       outcome.Action,
		Outcome:      outcome,
	}
}

// fail turns a round-trip error into the generic error page
func (s *Service) fail(ctx context.Context, store *Store, who Customer, stage AttemptStage, err error) *PaymentResult {
	_ = s.dispatch(store, who, RequestFailed{Err: err.Error()})

	outcome := FailureOutcome(err)
	outcome.Location = StatusPath(s.config.Checkout.StatusBasePath, outcome.Page, outcome.Reason)

	s.journal(ctx, &CheckoutAttempt{
		UserLogin: who.Login,
		CartID:    cartID(store.State().Cart),
		Stage:     stage,
		Page:      outcome.Page,
		Reason:    outcome.Reason,
	})

	s.logger.WithError(err).WithFields(logrus.Fields{
		"user":  who.Login,
		"stage": stage,
	}).Error("Payment round-trip failed")

	return &PaymentResult{Outcome: outcome}
}

// preparePayload fills the amount, return URL and reference when the widget left them out
func (s *Service) preparePayload(payload json.RawMessage, active *cart.ShoppingCart) (json.RawMessage, string, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if body == nil {
		return nil, "", fmt.Errorf("%w: empty", ErrInvalidPayload)
	}

	paymentType := cart.PaymentMethodCreditCard.ProviderType()
	if method, ok := body["paymentMethod"].(map[string]any); ok {
		if t, ok := method["type"].(string); ok && t != "" {
			paymentType = t
		}
	}
	if _, err := cart.PaymentMethodFromProvider(paymentType); err != nil {
		return nil, "", err
	}

	if _, ok := body["amount"]; !ok {
		body["amount"] = map[string]any{
			"currency": s.config.Checkout.Currency,
			"value":    cart.MinorUnits(active.TotalPrice),
		}
	}
	if _, ok := body["returnUrl"]; !ok {
		body["returnUrl"] = strings.TrimRight(s.config.App.PublicURL, "/") + "/api/v1/checkout/redirect"
	}
	if _, ok := body["reference"]; !ok {
		body["reference"] = uuid.NewString()
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode payment payload: %w", err)
	}
	return out, paymentType, nil
}

// cacheRedirect stores what the redirect endpoint needs and returns its key
func (s *Service) cacheRedirect(ctx context.Context, who Customer, origin, paymentType, paymentData string) string {
	now := time.Now().UTC()
	cache := &PaymentCache{
		OrderRef:     uuid.NewString(),
		OriginalHost: origin,
		PaymentData:  paymentData,
		PaymentType:  paymentType,
		UserLogin:    who.Login,
		UserEmail:    who.Email,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.Checkout.PaymentCacheTTL),
	}
	if err := s.repo.SavePaymentCache(ctx, cache); err != nil {
		s.logger.WithError(err).WithField("user", who.Login).Error("Failed to store payment data for redirect")
		return ""
	}
	return cache.OrderRef
}

func detailsRequest(paymentData string, details RedirectDetails) map[string]any {
	d := map[string]string{}
	if details.Payload != "" {
		d["payload"] = details.Payload
	} else {
		d["MD"] = details.MD
		d["PaRes"] = details.PaRes
	}
	return map[string]any{
		"paymentData": paymentData,
		"details":     d,
	}
}

func (s *Service) journal(ctx context.Context, attempt *CheckoutAttempt) {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.RecordAttempt(ctx, attempt); err != nil {
		s.logger.WithError(err).Warn("Failed to record checkout attempt")
	}
}

func (s *Service) notify(send func() error) {
	if s.notifier == nil {
		return
	}
	if err := send(); err != nil {
		s.logger.WithError(err).Warn("Failed to send checkout notification")
	}
}

// recipient prefers the token email and falls back to the cart owner
func (s *Service) recipient(who Customer, sc *cart.ShoppingCart) string {
	if who.Email != "" {
		return who.Email
	}
	if sc != nil && sc.CustomerDetails != nil && sc.CustomerDetails.User != nil {
		return sc.CustomerDetails.User.Email
	}
	return ""
}

func cartID(sc *cart.ShoppingCart) int64 {
	if sc == nil {
		return 0
	}
	return sc.ID
}

// stripNulls drops null members so the widget sees only populated fields
func stripNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = stripNulls(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if val == nil {
				continue
			}
			out = append(out, stripNulls(val))
		}
		return out
	default:
		return v
	}
}
