package stripe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEvent is returned for payloads that are not a usable event envelope.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Event types the processor acts on.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
	EventChargeRefunded           = "charge.refunded"
)

// MaxPayloadBytes caps a single webhook delivery.
const MaxPayloadBytes = 1 << 20

// PaymentStatusPaid marks a settled checkout.
const PaymentStatusPaid = "paid"

const checkoutModeSubscription = "subscription"

// Event is the webhook envelope.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Data     EventData `json:"data"`
}

// EventData wraps the object the event is about.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// ParseEvent decodes and validates an envelope.
func ParseEvent(payload []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	if len(evt.Data.Object) == 0 || bytes.Equal(evt.Data.Object, []byte("null")) {
		return nil, fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}
	return &evt, nil
}

// CreatedAt returns the event creation time.
func (e *Event) CreatedAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

func (e *Event) decode(target any) error {
	if err := json.Unmarshal(e.Data.Object, target); err != nil {
		return fmt.Errorf("%w: %s object: %v", ErrMalformedEvent, e.Type, err)
	}
	return nil
}

// CheckoutSession decodes the event object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var s CheckoutSession
	if err := e.decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Subscription decodes the event object as a subscription.
func (e *Event) Subscription() (*Subscription, error) {
	var s Subscription
	if err := e.decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Invoice decodes the event object as an invoice.
func (e *Event) Invoice() (*Invoice, error) {
	var inv Invoice
	if err := e.decode(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Charge decodes the event object as a charge.
func (e *Event) Charge() (*Charge, error) {
	var c Charge
	if err := e.decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ExpandableID accepts either an object id or the expanded object carrying it.
type ExpandableID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ExpandableID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*id = ExpandableID(obj.ID)
	return nil
}

func (id ExpandableID) String() string {
	return string(id)
}

// Metadata is the free-form key/value map attached to processor objects.
type Metadata map[string]string

// Metadata keys written by the checkout flow.
const (
	MetadataUserID = "user_id"
	MetadataType   = "type"
	MetadataPlanID = "plan_id"
)

// CheckoutSession is the subset of a checkout session the processor reads.
type CheckoutSession struct {
	ID                string       `json:"id"`
	Mode              string       `json:"mode"`
	PaymentStatus     string       `json:"payment_status"`
	AmountTotal       int64        `json:"amount_total"`
	Currency          string       `json:"currency"`
	Customer          ExpandableID `json:"customer"`
	CustomerEmail     string       `json:"customer_email"`
	ClientReferenceID string       `json:"client_reference_id"`
	Subscription      ExpandableID `json:"subscription"`
	Metadata          Metadata     `json:"metadata"`
	CustomerDetails   *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Email prefers the collected customer details over the prefilled address.
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

// IsPaid reports a settled checkout.
func (s *CheckoutSession) IsPaid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// IsRecurring reports a checkout that started a subscription.
func (s *CheckoutSession) IsRecurring() bool {
	return s.Mode == checkoutModeSubscription || s.Subscription != ""
}

// UserID returns the user id from metadata, falling back to client_reference_id.
func (s *CheckoutSession) UserID() string {
	if id := s.Metadata[MetadataUserID]; id != "" {
		return id
	}
	return s.ClientReferenceID
}

// Subscription is a recurring subscription snapshot.
type Subscription struct {
	ID                 string       `json:"id"`
	Customer           ExpandableID `json:"customer"`
	Status             string       `json:"status"`
	CurrentPeriodStart int64        `json:"current_period_start"`
	CurrentPeriodEnd   int64        `json:"current_period_end"`
	TrialStart         *int64       `json:"trial_start"`
	TrialEnd           *int64       `json:"trial_end"`
	CancelAtPeriodEnd  bool         `json:"cancel_at_period_end"`
	CanceledAt         *int64       `json:"canceled_at"`
	EndedAt            *int64       `json:"ended_at"`
	Metadata           Metadata     `json:"metadata"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID returns the first item's price id.
func (s *Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// Invoice is the subset of an invoice the processor reads.
type Invoice struct {
	ID            string       `json:"id"`
	Customer      ExpandableID `json:"customer"`
	CustomerEmail string       `json:"customer_email"`
	Subscription  ExpandableID `json:"subscription"`
	AmountPaid    int64        `json:"amount_paid"`
	AmountDue     int64        `json:"amount_due"`
	Currency      string       `json:"currency"`
	Metadata      Metadata     `json:"metadata"`
}

// Charge is the subset of a charge the processor reads.
type Charge struct {
	ID             string       `json:"id"`
	Customer       ExpandableID `json:"customer"`
	Amount         int64        `json:"amount"`
	AmountRefunded int64        `json:"amount_refunded"`
	Currency       string       `json:"currency"`
	ReceiptEmail   string       `json:"receipt_email"`
	Metadata       Metadata     `json:"metadata"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
}

// Email returns the billing email, falling back to the receipt address.
func (c *Charge) Email() string {
	if c.BillingDetails.Email != "" {
		return c.BillingDetails.Email
	}
	return c.ReceiptEmail
}

// UnixTime converts an optional unix timestamp.
func UnixTime(ts *int64) *time.Time {
	if ts == nil || *ts == 0 {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}
