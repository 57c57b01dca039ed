package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/logger"
	"comunitarr/internal/models"
)

func newStorefront(f *fixture) *StorefrontService {
	svc := NewStorefrontService(f.store, f.store, logger.Discard())
	svc.now = f.now
	return svc
}

func TestCreateProductRequiresCatalogPermission(t *testing.T) {
	f := newFixture()
	svc := newStorefront(f)
	in := CreateProductInput{SKU: "mamajuana-750", Name: "Mamajuana", Category: "bebidas", PriceCents: 2450, Stock: 5}

	_, err := svc.CreateProduct(context.Background(), f.user("Mod", models.RoleModerator), in)
	assert.ErrorIs(t, err, ErrForbidden)

	admin := f.user("Admin", models.RoleAdmin)
	p, err := svc.CreateProduct(context.Background(), admin, in)
	require.NoError(t, err)
	assert.Equal(t, "MAMAJUANA-750", p.SKU)
	assert.Equal(t, models.DefaultCurrency, p.Currency)
	assert.True(t, p.IsActive)

	_, err = svc.CreateProduct(context.Background(), admin, in)
	assert.ErrorIs(t, err, ErrConflict)

	in.SKU, in.PriceCents = "free", 0
	_, err = svc.CreateProduct(context.Background(), admin, in)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCatalogHidesInactiveProducts(t *testing.T) {
	f := newFixture()
	svc := newStorefront(f)
	admin := f.user("Admin", models.RoleAdmin)

	off := false
	hidden, err := svc.CreateProduct(context.Background(), admin, CreateProductInput{SKU: "A", Name: "Café Santo Domingo", Category: "despensa", PriceCents: 900, IsActive: &off})
	require.NoError(t, err)
	_, err = svc.CreateProduct(context.Background(), admin, CreateProductInput{SKU: "B", Name: "Habichuelas con dulce", Category: "despensa", PriceCents: 650, Stock: 3})
	require.NoError(t, err)

	items, total, err := svc.ListProducts(context.Background(), models.ProductFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "B", items[0].SKU)

	_, err = svc.GetProduct(context.Background(), hidden.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetProduct(context.Background(), hidden.ID, true)
	assert.NoError(t, err)

	on := true
	updated, err := svc.UpdateProduct(context.Background(), admin, hidden.ID, UpdateProductInput{IsActive: &on})
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
}

func TestCheckout(t *testing.T) {
	f := newFixture()
	svc := newStorefront(f)
	admin := f.user("Admin", models.RoleAdmin)
	buyer := f.user("Marta", models.RoleUser)

	rum, err := svc.CreateProduct(context.Background(), admin, CreateProductInput{SKU: "RON", Name: "Ron", Category: "bebidas", PriceCents: 1800, Stock: 4})
	require.NoError(t, err)
	cigar, err := svc.CreateProduct(context.Background(), admin, CreateProductInput{SKU: "PURO", Name: "Puro", Category: "tabaco", PriceCents: 700, Stock: 1})
	require.NoError(t, err)

	order, err := svc.Checkout(context.Background(), buyer, CheckoutInput{
		Items: []CheckoutItem{
			{ProductID: rum.ID.Hex(), Quantity: 2},
			{ProductID: cigar.ID.Hex(), Quantity: 1},
		},
		ShippingAddress: "Carrer Major 12, Tarragona",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.EqualValues(t, 2*1800+700, order.TotalCents)
	assert.Equal(t, "EUR", order.Currency)

	stock := func(id primitive.ObjectID) int {
		p, err := svc.GetProduct(context.Background(), id, true)
		require.NoError(t, err)
		return p.Stock
	}
	assert.Equal(t, 2, stock(rum.ID))
	assert.Equal(t, 0, stock(cigar.ID))

	// second line fails, first reservation is released
	_, err = svc.Checkout(context.Background(), buyer, CheckoutInput{
		Items: []CheckoutItem{
			{ProductID: rum.ID.Hex(), Quantity: 1},
			{ProductID: cigar.ID.Hex(), Quantity: 1},
		},
		ShippingAddress: "Carrer Major 12, Tarragona",
	})
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 2, stock(rum.ID))

	cancelled, err := svc.CancelOrder(context.Background(), buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 4, stock(rum.ID))
	assert.Equal(t, 1, stock(cigar.ID))

	_, err = svc.CancelOrder(context.Background(), buyer, order.ID)
	assert.ErrorIs(t, err, ErrConflict)

	orders, err := svc.ListOrders(context.Background(), buyer, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture()
	svc := newStorefront(f)
	buyer := f.user("Marta", models.RoleUser)

	tooMany := make([]CheckoutItem, models.MaxOrderLines+1)
	for i := range tooMany {
		tooMany[i] = CheckoutItem{ProductID: primitive.NewObjectID().Hex(), Quantity: 1}
	}

	tests := []struct {
		name string
		in   CheckoutInput
	}{
		{"no items", CheckoutInput{ShippingAddress: "Carrer Major 12"}},
		{"zero quantity", CheckoutInput{Items: []CheckoutItem{{ProductID: primitive.NewObjectID().Hex()}}, ShippingAddress: "Carrer Major 12"}},
		{"bad id", CheckoutInput{Items: []CheckoutItem{{ProductID: "x", Quantity: 1}}, ShippingAddress: "Carrer Major 12"}},
		{"too many lines", CheckoutInput{Items: tooMany, ShippingAddress: "Carrer Major 12"}},
		{"unknown product", CheckoutInput{Items: []CheckoutItem{{ProductID: primitive.NewObjectID().Hex(), Quantity: 1}}, ShippingAddress: "Carrer Major 12"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Checkout(context.Background(), buyer, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestOrdersArePrivate(t *testing.T) {
	f := newFixture()
	svc := newStorefront(f)
	admin := f.user("Admin", models.RoleAdmin)
	buyer := f.user("Marta", models.RoleUser)
	other := f.user("Joan", models.RoleUser)

	p, err := svc.CreateProduct(context.Background(), admin, CreateProductInput{SKU: "RON", Name: "Ron", Category: "bebidas", PriceCents: 1800, Stock: 4})
	require.NoError(t, err)
	order, err := svc.Checkout(context.Background(), buyer, CheckoutInput{
		Items:           []CheckoutItem{{ProductID: p.ID.Hex(), Quantity: 1}},
		ShippingAddress: "Carrer Major 12",
	})
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), other, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.CancelOrder(context.Background(), other, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
