package basket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
)

var (
	helles = domain.Product{ID: "p-helles", Name: "Helles 0,5", UnitPriceCents: 350, Active: true}
	spezi  = domain.Product{ID: "p-spezi", Name: "Spezi", UnitPriceCents: 200, Active: true}
)

func mustAdd(t *testing.T, b Basket, p domain.Product, times int) Basket {
	t.Helper()
	for i := 0; i < times; i++ {
		var err error
		b, err = b.Add(p)
		require.NoError(t, err)
	}
	return b
}

func TestAddRemoveKeepsPositiveQuantities(t *testing.T) {
	b := mustAdd(t, New(), helles, 2)
	assert.Equal(t, int64(2), b.Quantity(helles.ID))

	b = b.Remove(helles.ID)
	assert.Equal(t, int64(1), b.Quantity(helles.ID))

	b = b.Remove(helles.ID)
	assert.True(t, b.IsEmpty())
	assert.Empty(t, b.Lines())

	b = b.Remove(helles.ID)
	assert.True(t, b.IsEmpty(), "removing a missing product is a no-op")
}

func TestBasketIsImmutable(t *testing.T) {
	original := mustAdd(t, New(), helles, 1)
	grown := mustAdd(t, original, helles, 1)

	assert.Equal(t, int64(1), original.Quantity(helles.ID))
	assert.Equal(t, int64(2), grown.Quantity(helles.ID))

	shrunk := grown.Remove(helles.ID)
	assert.Equal(t, int64(2), grown.Quantity(helles.ID))
	assert.Equal(t, int64(1), shrunk.Quantity(helles.ID))
}

func TestAddSnapshotsPriceAtFirstAdd(t *testing.T) {
	b := mustAdd(t, New(), helles, 1)

	repriced := helles
	repriced.UnitPriceCents = 400
	b = mustAdd(t, b, repriced, 1)

	lines := b.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, money.Cents(350), lines[0].UnitPriceCents)
	assert.Equal(t, money.Cents(700), b.Total())
}

func TestAddRejectsInactiveAndUnknownProducts(t *testing.T) {
	inactive := spezi
	inactive.Active = false

	b, err := New().Add(inactive)
	assert.ErrorIs(t, err, ErrInactiveProduct)
	assert.True(t, b.IsEmpty())

	_, err = New().Add(domain.Product{Active: true})
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestTotalSumsAllLines(t *testing.T) {
	b := mustAdd(t, New(), helles, 2)
	b = mustAdd(t, b, spezi, 1)

	assert.Equal(t, money.Cents(900), b.Total())
	assert.Equal(t, 2, b.Len())

	lines := b.Lines()
	assert.Equal(t, "Helles 0,5", lines[0].Name)
	assert.Equal(t, money.Cents(700), lines[0].RevenueCents())
}
