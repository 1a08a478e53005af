package resolution

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/saffron/internal/billing/domain"
	identity "github.com/felixgeelhaar/saffron/internal/identity/domain"
)

type fakeDirectory struct {
	users []*identity.User
	err   error
}

func (d *fakeDirectory) add(t *testing.T, address string) *identity.User {
	t.Helper()
	email, err := identity.NewEmail(address)
	require.NoError(t, err)
	user := identity.NewUser(email, identity.Name{})
	d.users = append(d.users, user)
	return user
}

func (d *fakeDirectory) FindByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	for _, u := range d.users {
		if u.ID() == id {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email identity.Email) ([]*identity.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []*identity.User
	for _, u := range d.users {
		if u.Email().Equals(email) {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeSubscriptions struct {
	rows []*domain.Subscription
}

func (f *fakeSubscriptions) FindByExternalID(_ context.Context, id string) (*domain.Subscription, error) {
	for _, s := range f.rows {
		if s.ExternalSubscriptionID == id {
			return s, nil
		}
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (f *fakeSubscriptions) FindByCustomerID(_ context.Context, id string) (*domain.Subscription, error) {
	for _, s := range f.rows {
		if s.ExternalCustomerID == id {
			return s, nil
		}
	}
	return nil, domain.ErrSubscriptionNotFound
}

var testPrices = domain.PriceTable{
	Version: "test-1",
	Points: []domain.PricePoint{
		{ID: "recipe_access_usd", Amount: 499, Currency: "usd", PurchaseType: domain.PurchaseRecipeAccess},
		{ID: "pdf_downloads_usd", Amount: 299, Currency: "usd", PurchaseType: domain.PurchasePDFDownloads},
	},
}

func newTestResolver(users *fakeDirectory, subs *fakeSubscriptions) *Resolver {
	return NewDefaultResolver(users, subs, testPrices, nil)
}

func TestResolver_ExplicitBeatsEmail(t *testing.T) {
	users := &fakeDirectory{}
	explicit := users.add(t, "explicit@example.com")
	users.add(t, "buyer@example.com")

	res, err := newTestResolver(users, &fakeSubscriptions{}).Resolve(context.Background(), Subject{
		UserID:          explicit.ID().String(),
		Email:           "buyer@example.com",
		Checkout:        true,
		HasTypeMetadata: true,
	})
	require.NoError(t, err)
	assert.Equal(t, explicit.ID(), res.UserID)
	assert.Equal(t, domain.StrategyExplicit, res.Strategy)
}

func TestResolver_PlaceholderFallsToEmail(t *testing.T) {
	users := &fakeDirectory{}
	buyer := users.add(t, "buyer@example.com")
	resolver := newTestResolver(users, &fakeSubscriptions{})

	for _, placeholder := range []string{"guest", "Anonymous", "null", "undefined", "", "  "} {
		res, err := resolver.Resolve(context.Background(), Subject{
			UserID:          placeholder,
			Email:           "Buyer@Example.com",
			Checkout:        true,
			HasTypeMetadata: true,
		})
		require.NoError(t, err, placeholder)
		assert.Equal(t, buyer.ID(), res.UserID)
		assert.Equal(t, domain.StrategyEmailFallback, res.Strategy)
	}
}

func TestResolver_UnknownExplicitIDFallsThrough(t *testing.T) {
	users := &fakeDirectory{}
	buyer := users.add(t, "buyer@example.com")

	res, err := newTestResolver(users, &fakeSubscriptions{}).Resolve(context.Background(), Subject{
		UserID:          uuid.NewString(),
		Email:           "buyer@example.com",
		Checkout:        true,
		HasTypeMetadata: true,
	})
	require.NoError(t, err)
	assert.Equal(t, buyer.ID(), res.UserID)
}

func TestResolver_AmbiguousEmailIsUnresolved(t *testing.T) {
	users := &fakeDirectory{}
	users.add(t, "shared@example.com")
	users.add(t, "shared@example.com")

	_, err := newTestResolver(users, &fakeSubscriptions{}).Resolve(context.Background(), Subject{
		Email:           "shared@example.com",
		Checkout:        true,
		HasTypeMetadata: true,
	})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestResolver_UntypedCheckoutUsesAmount(t *testing.T) {
	users := &fakeDirectory{}
	buyer := users.add(t, "buyer@example.com")
	resolver := newTestResolver(users, &fakeSubscriptions{})

	res, err := resolver.Resolve(context.Background(), Subject{
		EventID:  "evt_1",
		Email:    "buyer@example.com",
		Paid:     domain.NewMoney(299, "usd"),
		Checkout: true,
	})
	require.NoError(t, err)
	assert.Equal(t, buyer.ID(), res.UserID)
	assert.Equal(t, domain.StrategyAmountFallback, res.Strategy)
	require.NotNil(t, res.PricePoint)
	assert.Equal(t, domain.PurchasePDFDownloads, res.PricePoint.PurchaseType)

	grant, ok := res.Provenance("evt_1", domain.NewMoney(299, "usd")).(domain.AmountFallbackGrant)
	require.True(t, ok)
	assert.Equal(t, "pdf_downloads_usd", grant.PricePointID)
	assert.Equal(t, "test-1", grant.PriceTableVersion)
	assert.Equal(t, "buyer@example.com", grant.Email)

	// Email alone does not resolve an untyped checkout at an unknown price.
	_, err = resolver.Resolve(context.Background(), Subject{
		Email:    "buyer@example.com",
		Paid:     domain.NewMoney(1234, "usd"),
		Checkout: true,
	})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestResolver_NothingToGoOn(t *testing.T) {
	_, err := newTestResolver(&fakeDirectory{}, &fakeSubscriptions{}).Resolve(context.Background(), Subject{
		Paid:     domain.NewMoney(1, "usd"),
		Checkout: true,
	})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestResolver_CustomerReference(t *testing.T) {
	userID := uuid.New()
	subs := &fakeSubscriptions{rows: []*domain.Subscription{{
		UserID:                 userID,
		ExternalSubscriptionID: "sub_1",
		ExternalCustomerID:     "cus_1",
	}}}
	resolver := newTestResolver(&fakeDirectory{}, subs)

	res, err := resolver.Resolve(context.Background(), Subject{ExternalSubscriptionID: "sub_1"})
	require.NoError(t, err)
	assert.Equal(t, userID, res.UserID)
	assert.Equal(t, domain.StrategyCustomerReference, res.Strategy)

	res, err = resolver.Resolve(context.Background(), Subject{ExternalSubscriptionID: "sub_new", CustomerID: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, userID, res.UserID)

	_, err = resolver.Resolve(context.Background(), Subject{CustomerID: "cus_1", Checkout: true, HasTypeMetadata: true})
	assert.ErrorIs(t, err, ErrUnresolved, "checkouts never resolve by customer id")
}

func TestResolver_StoreErrorAborts(t *testing.T) {
	users := &fakeDirectory{err: errors.New("connection refused")}

	_, err := newTestResolver(users, &fakeSubscriptions{}).Resolve(context.Background(), Subject{
		UserID: uuid.NewString(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnresolved)
}
