// internal/domain/checkout/state.go
package checkout

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/your-org/storefront-checkout/internal/domain/cart"
)

// Phase is the client-observed checkout phase
type Phase string

const (
	PhaseOpen            Phase = "OPEN"
	PhasePendingResult   Phase = "PENDING_RESULT"
	PhasePaid            Phase = "PAID"
	PhasePending         Phase = "PENDING"
	PhaseRefused         Phase = "REFUSED"
	PhaseError           Phase = "ERROR"
	PhaseRefundInitiated Phase = "REFUND_INITIATED"
	PhaseRefunded        Phase = "REFUNDED"
	PhaseRefundFailed    Phase = "REFUND_FAILED"
)

// State is the checkout projection for one shopper
type State struct {
	Phase          Phase              `json:"phase"`
	Cart           *cart.ShoppingCart `json:"cart,omitempty"`
	Config         map[string]any     `json:"config,omitempty"`
	PaymentMethods map[string]any     `json:"payment_methods,omitempty"`
	PaymentType    string             `json:"payment_type,omitempty"`
	LastResponse   *PaymentResponse   `json:"last_response,omitempty"`
	PendingAction  json.RawMessage    `json:"pending_action,omitempty"`
	Outcome        *Outcome           `json:"outcome,omitempty"`
	Loading        bool               `json:"loading"`
	LastError      string             `json:"last_error,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`

	// Refunds tracks refund progress per cart, apart from the active payment.
	Refunds map[int64]cart.OrderStatus `json:"refunds,omitempty"`
}

// NewState returns the state of a shopper who has not started checking out
func NewState() State {
	return State{
		Phase: PhaseOpen,
		Cart:  cart.EmptyCart(),
	}
}

// Command is a state transition request. The set of commands is closed.
type Command interface {
	isCommand()
}

// CartLoaded carries a cart fetched from the backend
type CartLoaded struct{ Cart *cart.ShoppingCart }

// ConfigLoaded carries the merged payment widget configuration
type ConfigLoaded struct{ Config map[string]any }

// PaymentMethodsLoaded carries the provider's payment methods
type PaymentMethodsLoaded struct{ Methods map[string]any }

// PaymentSubmitted marks the start of a payment round-trip
type PaymentSubmitted struct{ PaymentType string }

// ProviderResponded carries a provider response and the outcome decided for it
type ProviderResponded struct {
	Response *PaymentResponse
	Outcome  Outcome
}

// CartClosed records the backend accepting a terminal status
type CartClosed struct {
	Status     cart.OrderStatus
	PaymentRef string
}

// RequestFailed records a round-trip that did not complete
type RequestFailed struct{ Err string }

// RefundRequested records a refund request for a paid cart
type RefundRequested struct{ Cart *cart.ShoppingCart }

// RefundSettled records the final refund status the backend reports for a cart
type RefundSettled struct {
	CartID int64
	Status cart.OrderStatus
}

// Reset drops payment progress but keeps loaded configuration
type Reset struct{}

func (CartLoaded) isCommand()           {}
func (ConfigLoaded) isCommand()         {}
func (PaymentMethodsLoaded) isCommand() {}
func (PaymentSubmitted) isCommand()     {}
func (ProviderResponded) isCommand()    {}
func (CartClosed) isCommand()           {}
func (RequestFailed) isCommand()        {}
func (RefundRequested) isCommand()      {}
func (RefundSettled) isCommand()        {}
func (Reset) isCommand()                {}

var validTransitions = map[Phase][]Phase{
	PhaseOpen:            {PhasePendingResult},
	PhasePendingResult:   {PhasePendingResult, PhasePaid, PhasePending, PhaseRefused, PhaseError},
	PhaseRefused:         {PhasePendingResult, PhaseOpen},
	PhaseError:           {PhasePendingResult, PhaseOpen},
	PhasePending:         {PhasePaid, PhaseOpen},
	PhasePaid:            {PhaseRefundInitiated, PhaseOpen},
	PhaseRefundInitiated: {PhaseRefunded, PhaseRefundFailed},
	PhaseRefundFailed:    {PhaseRefundInitiated, PhaseOpen},
	PhaseRefunded:        {PhaseOpen},
}

func canTransition(from, to Phase) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// phaseForCart projects a backend cart status onto a phase
func phaseForCart(c *cart.ShoppingCart) Phase {
	switch c.Status {
	case cart.OrderStatusPaid:
		return PhasePaid
	case cart.OrderStatusPending:
		return PhasePending
	case cart.OrderStatusRefundInitiated:
		return PhaseRefundInitiated
	case cart.OrderStatusRefunded:
		return PhaseRefunded
	case cart.OrderStatusRefundFailed:
		return PhaseRefundFailed
	default:
		return PhaseOpen
	}
}

// refundPhase is the refund progress of sc, preferring what this session tracked
func (s State) refundPhase(sc *cart.ShoppingCart) Phase {
	if status, ok := s.Refunds[sc.ID]; ok {
		return phaseForCart(&cart.ShoppingCart{Status: status})
	}
	return phaseForCart(sc)
}

// showing reports whether the projection is about the cart with the given id
func (s State) showing(cartID int64) bool {
	return s.Cart != nil && s.Cart.ID == cartID && s.Phase != PhasePendingResult
}

func withRefund(refunds map[int64]cart.OrderStatus, cartID int64, status cart.OrderStatus) map[int64]cart.OrderStatus {
	next := make(map[int64]cart.OrderStatus, len(refunds)+1)
	for id, st := range refunds {
		next[id] = st
	}
	next[cartID] = status
	return next
}

func invalid(from Phase, cmd Command) error {
	return fmt.Errorf("%w: %T not allowed in phase %s", ErrInvalidTransition, cmd, from)
}

// Reduce applies a command to a state. On error the returned state is the input state.
func Reduce(s State, cmd Command) (State, error) {
	next := s

	switch c := cmd.(type) {
	case CartLoaded:
		next.Cart = c.Cart
		// A reload never interrupts a payment in flight.
		if s.Phase == PhasePendingResult {
			break
		}
		from := s.Phase
		if s.Cart != nil && c.Cart.ID != s.Cart.ID {
			// Another cart starts its own checkout.
			from = PhaseOpen
			next.Phase = PhaseOpen
		}
		if target := phaseForCart(c.Cart); target != from && canTransition(from, target) {
			next.Phase = target
		}

	case ConfigLoaded:
		next.Config = c.Config

	case PaymentMethodsLoaded:
		next.PaymentMethods = c.Methods

	case PaymentSubmitted:
		if s.Phase == PhasePendingResult && len(s.PendingAction) == 0 {
			return s, invalid(s.Phase, cmd)
		}
		// Without a payment type this answers a challenge, so one must be outstanding.
		if c.PaymentType == "" && len(s.PendingAction) == 0 {
			return s, invalid(s.Phase, cmd)
		}
		if !canTransition(s.Phase, PhasePendingResult) {
			return s, invalid(s.Phase, cmd)
		}
		next.Phase = PhasePendingResult
		if c.PaymentType != "" {
			next.PaymentType = c.PaymentType
		}
		next.Loading = true
		next.LastError = ""
		next.Outcome = nil

	case ProviderResponded:
		if s.Phase != PhasePendingResult {
			return s, invalid(s.Phase, cmd)
		}
		outcome := c.Outcome
		next.LastResponse = c.Response
		next.Loading = false
		if !outcome.Terminal() {
			next.PendingAction = outcome.Action
			break
		}
		next.PendingAction = nil
		next.Outcome = &outcome
		switch outcome.Page {
		case PageFailed:
			next.Phase = PhaseRefused
		case PageError:
			next.Phase = PhaseError
		case PagePending:
			if !outcome.ClosesCart() {
				next.Phase = PhasePending
			}
		}
		// anything closing the cart waits for CartClosed

	case CartClosed:
		var target Phase
		switch c.Status {
		case cart.OrderStatusPaid:
			target = PhasePaid
		case cart.OrderStatusPending:
			target = PhasePending
		default:
			return s, invalid(s.Phase, cmd)
		}
		if !canTransition(s.Phase, target) {
			return s, invalid(s.Phase, cmd)
		}
		next.Phase = target
		if s.Cart != nil {
			closed := *s.Cart
			closed.Status = c.Status
			closed.PaymentReference = c.PaymentRef
			next.Cart = &closed
		}

	case RequestFailed:
		next.Loading = false
		next.LastError = c.Err
		if s.Phase == PhasePendingResult {
			next.Phase = PhaseError
			next.PendingAction = nil
			outcome := Outcome{Page: PageError, Reason: c.Err}
			next.Outcome = &outcome
		}

	case RefundRequested:
		if c.Cart == nil || !canTransition(s.refundPhase(c.Cart), PhaseRefundInitiated) {
			return s, invalid(s.Phase, cmd)
		}
		next.Refunds = withRefund(s.Refunds, c.Cart.ID, cart.OrderStatusRefundInitiated)
		// Any other cart on screen keeps its own phase.
		if s.showing(c.Cart.ID) && canTransition(s.Phase, PhaseRefundInitiated) {
			refunding := *s.Cart
			refunding.Status = cart.OrderStatusRefundInitiated
			next.Cart = &refunding
			next.Phase = PhaseRefundInitiated
			next.LastError = ""
		}

	case RefundSettled:
		var target Phase
		switch c.Status {
		case cart.OrderStatusRefunded:
			target = PhaseRefunded
		case cart.OrderStatusRefundFailed:
			target = PhaseRefundFailed
		default:
			return s, invalid(s.Phase, cmd)
		}
		if s.Refunds[c.CartID] != cart.OrderStatusRefundInitiated {
			return s, invalid(s.Phase, cmd)
		}
		next.Refunds = withRefund(s.Refunds, c.CartID, c.Status)
		if s.showing(c.CartID) && canTransition(s.Phase, target) {
			next.Phase = target
			settled := *s.Cart
			settled.Status = c.Status
			next.Cart = &settled
		}

	case Reset:
		next = NewState()
		next.Config = s.Config
		next.PaymentMethods = s.PaymentMethods
		next.Refunds = s.Refunds

	default:
		return s, fmt.Errorf("%w: unknown command %T", ErrInvalidTransition, cmd)
	}

	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

// Store owns a State and serialises commands against it
type Store struct {
	mu          sync.Mutex
	state       State
	subscribers map[int]func(State)
	nextID      int
}

// NewStore creates a store holding the given state
func NewStore(initial State) *Store {
	return &Store{
		state:       initial,
		subscribers: make(map[int]func(State)),
	}
}

// State returns a snapshot of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces cmd into the store and notifies subscribers on success
func (s *Store) Dispatch(cmd Command) (State, error) {
	s.mu.Lock()
	next, err := Reduce(s.state, cmd)
	if err != nil {
		s.mu.Unlock()
		return next, err
	}
	s.state = next
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}

// Subscribe registers fn to run after every applied command
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}
