package domain

import (
	"encoding/json"
	"fmt"
)

// Strategy names the way an entitlement's owner was determined.
type Strategy string

const (
	StrategyExplicit          Strategy = "explicit"
	StrategyEmailFallback     Strategy = "email_fallback"
	StrategyAmountFallback    Strategy = "amount_fallback"
	StrategyCustomerReference Strategy = "customer_reference"
	StrategyManual            Strategy = "manual"
)

// Provenance records why an entitlement exists. The set of shapes is closed:
// ExplicitGrant, EmailFallbackGrant, AmountFallbackGrant,
// CustomerReferenceGrant and ManualGrant.
type Provenance interface {
	Strategy() Strategy
	SourceEventID() string
	isProvenance()
}

// ExplicitGrant: the event named the user id directly.
type ExplicitGrant struct {
	EventID string
	Paid    Money
}

// EmailFallbackGrant: the customer email matched exactly one user.
type EmailFallbackGrant struct {
	EventID string
	Paid    Money
	Email   string
}

// AmountFallbackGrant: an untyped checkout matched a known price point.
type AmountFallbackGrant struct {
	EventID           string
	Paid              Money
	Email             string
	PricePointID      string
	PriceTableVersion string
}

// CustomerReferenceGrant: the processor customer id matched a stored subscription.
type CustomerReferenceGrant struct {
	EventID    string
	Paid       Money
	CustomerID string
}

// ManualGrant: an operator granted the feature by hand.
type ManualGrant struct {
	Operator string
	Note     string
}

func (ExplicitGrant) Strategy() Strategy          { return StrategyExplicit }
func (EmailFallbackGrant) Strategy() Strategy     { return StrategyEmailFallback }
func (AmountFallbackGrant) Strategy() Strategy    { return StrategyAmountFallback }
func (CustomerReferenceGrant) Strategy() Strategy { return StrategyCustomerReference }
func (ManualGrant) Strategy() Strategy            { return StrategyManual }

func (g ExplicitGrant) SourceEventID() string          { return g.EventID }
func (g EmailFallbackGrant) SourceEventID() string     { return g.EventID }
func (g AmountFallbackGrant) SourceEventID() string    { return g.EventID }
func (g CustomerReferenceGrant) SourceEventID() string { return g.EventID }
func (ManualGrant) SourceEventID() string              { return "" }

func (ExplicitGrant) isProvenance()          {}
func (EmailFallbackGrant) isProvenance()     {}
func (AmountFallbackGrant) isProvenance()    {}
func (CustomerReferenceGrant) isProvenance() {}
func (ManualGrant) isProvenance()            {}

// provenanceRecord is the stored JSON form, discriminated by "strategy".
type provenanceRecord struct {
	Strategy          Strategy `json:"strategy"`
	EventID           string   `json:"event_id,omitempty"`
	Paid              *Money   `json:"paid,omitempty"`
	Email             string   `json:"email,omitempty"`
	PricePointID      string   `json:"price_point_id,omitempty"`
	PriceTableVersion string   `json:"price_table_version,omitempty"`
	CustomerID        string   `json:"customer_id,omitempty"`
	Operator          string   `json:"operator,omitempty"`
	Note              string   `json:"note,omitempty"`
}

// EncodeProvenance serialises p for storage.
func EncodeProvenance(p Provenance) ([]byte, error) {
	var rec provenanceRecord
	switch v := p.(type) {
	case ExplicitGrant:
		rec = provenanceRecord{EventID: v.EventID, Paid: paidPtr(v.Paid)}
	case EmailFallbackGrant:
		rec = provenanceRecord{EventID: v.EventID, Paid: paidPtr(v.Paid), Email: v.Email}
	case AmountFallbackGrant:
		rec = provenanceRecord{
			EventID:           v.EventID,
			Paid:              paidPtr(v.Paid),
			Email:             v.Email,
			PricePointID:      v.PricePointID,
			PriceTableVersion: v.PriceTableVersion,
		}
	case CustomerReferenceGrant:
		rec = provenanceRecord{EventID: v.EventID, Paid: paidPtr(v.Paid), CustomerID: v.CustomerID}
	case ManualGrant:
		rec = provenanceRecord{Operator: v.Operator, Note: v.Note}
	default:
		return nil, fmt.Errorf("unsupported provenance %T", p)
	}
	rec.Strategy = p.Strategy()
	return json.Marshal(rec)
}

// DecodeProvenance parses the stored JSON form.
func DecodeProvenance(data []byte) (Provenance, error) {
	var rec provenanceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode provenance: %w", err)
	}

	var paid Money
	if rec.Paid != nil {
		paid = *rec.Paid
	}

	switch rec.Strategy {
	case StrategyExplicit:
		return ExplicitGrant{EventID: rec.EventID, Paid: paid}, nil
	case StrategyEmailFallback:
		return EmailFallbackGrant{EventID: rec.EventID, Paid: paid, Email: rec.Email}, nil
	case StrategyAmountFallback:
		return AmountFallbackGrant{
			EventID:           rec.EventID,
			Paid:              paid,
			Email:             rec.Email,
			PricePointID:      rec.PricePointID,
			PriceTableVersion: rec.PriceTableVersion,
		}, nil
	case StrategyCustomerReference:
		return CustomerReferenceGrant{EventID: rec.EventID, Paid: paid, CustomerID: rec.CustomerID}, nil
	case StrategyManual:
		return ManualGrant{Operator: rec.Operator, Note: rec.Note}, nil
	default:
		return nil, fmt.Errorf("decode provenance: unknown strategy %q", rec.Strategy)
	}
}

func paidPtr(m Money) *Money {
	if m.IsZero() {
		return nil
	}
	return &m
}
