package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

func TestProvenance_EncodeDecode(t *testing.T) {
	paid := domain.NewMoney(499, "USD")
	cases := []domain.Provenance{
		domain.ExplicitGrant{EventID: "evt_1", Paid: paid},
		domain.EmailFallbackGrant{EventID: "evt_2", Paid: paid, Email: "cook@example.com"},
		domain.AmountFallbackGrant{EventID: "evt_3", Paid: paid, Email: "cook@example.com", PricePointID: "recipe_access_499", PriceTableVersion: "2024-01"},
		domain.CustomerReferenceGrant{EventID: "evt_4", Paid: paid, CustomerID: "cus_9"},
		domain.ManualGrant{Operator: "support", Note: "goodwill"},
	}

	for _, p := range cases {
		t.Run(string(p.Strategy()), func(t *testing.T) {
			data, err := domain.EncodeProvenance(p)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"strategy":"`+string(p.Strategy())+`"`)

			decoded, err := domain.DecodeProvenance(data)
			require.NoError(t, err)
			assert.Equal(t, p, decoded)
		})
	}
}

func TestProvenance_StoredShape(t *testing.T) {
	data, err := domain.EncodeProvenance(domain.EmailFallbackGrant{
		EventID: "evt_2",
		Paid:    domain.NewMoney(299, "usd"),
		Email:   "cook@example.com",
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"strategy": "email_fallback",
		"event_id": "evt_2",
		"paid": {"amount": 299, "currency": "usd"},
		"email": "cook@example.com"
	}`, string(data))
}

func TestDecodeProvenance_Rejects(t *testing.T) {
	_, err := domain.DecodeProvenance([]byte(`{"strategy":"guesswork"}`))
	assert.Error(t, err)

	_, err = domain.DecodeProvenance([]byte(`not json`))
	assert.Error(t, err)
}

func TestManualGrant_HasNoSourceEvent(t *testing.T) {
	assert.Empty(t, domain.ManualGrant{Operator: "ops"}.SourceEventID())
	assert.Equal(t, "evt_1", domain.ExplicitGrant{EventID: "evt_1"}.SourceEventID())
}

func TestMoney(t *testing.T) {
	usd := domain.NewMoney(499, " USD ")
	assert.Equal(t, "usd", usd.Currency)
	assert.Equal(t, "4.99", usd.Decimal().String())
	assert.Equal(t, "4.99 USD", usd.String())
	assert.True(t, usd.Equal(domain.Money{Amount: 499, Currency: "USD"}))

	jpy := domain.NewMoney(500, "jpy")
	assert.Equal(t, "500", jpy.Decimal().String())
	assert.True(t, domain.Money{}.IsZero())
}
