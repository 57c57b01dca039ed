package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"comunitarr/internal/models"
	"comunitarr/pkg/auth"
	"comunitarr/pkg/validator"
)

type CreateProductInput struct {
	SKU         string   `json:"sku" binding:"required,max=64"`
	Name        string   `json:"name" binding:"required,min=2,max=200"`
	Description string   `json:"description" binding:"max=4000"`
	Category    string   `json:"category" binding:"required,max=60"`
	PriceCents  int64    `json:"price_cents" binding:"gt=0"`
	Currency    string   `json:"currency" binding:"omitempty,len=3"`
	Stock       int      `json:"stock" binding:"min=0"`
	Images      []string `json:"images" binding:"max=10,dive,url"`
	IsActive    *bool    `json:"is_active"`
}

type UpdateProductInput struct {
	Name        *string  `json:"name" binding:"omitempty,min=2,max=200"`
	Description *string  `json:"description" binding:"omitempty,max=4000"`
	Category    *string  `json:"category" binding:"omitempty,max=60"`
	PriceCents  *int64   `json:"price_cents" binding:"omitempty,gt=0"`
	Stock       *int     `json:"stock" binding:"omitempty,min=0"`
	Images      []string `json:"images" binding:"omitempty,max=10,dive,url"`
	IsActive    *bool    `json:"is_active"`
}

type CheckoutItem struct {
	ProductID string `json:"product_id" binding:"required,objectid"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=99"`
}

type CheckoutInput struct {
	Items           []CheckoutItem `json:"items" binding:"required,min=1,max=20,dive"`
	ShippingAddress string         `json:"shipping_address" binding:"required,min=5,max=500"`
}

// StorefrontService runs the Quisqueya Alma catalog and orders.
type StorefrontService struct {
	catalog CatalogStore
	orders  OrderStore
	log     *logrus.Entry
	now     func() time.Time
}

func NewStorefrontService(catalog CatalogStore, orders OrderStore, log *logrus.Entry) *StorefrontService {
	return &StorefrontService{catalog: catalog, orders: orders, log: log, now: time.Now}
}

func (s *StorefrontService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, int64, error) {
	filter.Page, filter.Limit = NormalizePage(filter.Page, filter.Limit)
	items, total, err := s.catalog.ListProducts(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return items, total, nil
}

// GetProduct hides inactive products unless includeInactive is set.
func (s *StorefrontService) GetProduct(ctx context.Context, id primitive.ObjectID, includeInactive bool) (*models.Product, error) {
	p, err := s.catalog.FindProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive && !includeInactive {
		return nil, ErrNotFound
	}
	return p, nil
}

func canManageCatalog(who auth.Identity) bool {
	role, _ := models.ParseRole(who.Role)
	return role.HasPermission(models.PermManageCatalog)
}

func (s *StorefrontService) CreateProduct(ctx context.Context, who auth.Identity, in CreateProductInput) (*models.Product, error) {
	if !canManageCatalog(who) {
		return nil, ErrForbidden
	}
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	if err := validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Currency == "" {
		in.Currency = models.DefaultCurrency
	}
	if in.Images == nil {
		in.Images = []string{}
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	p := &models.Product{
		ID:          primitive.NewObjectID(),
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		PriceCents:  in.PriceCents,
		Currency:    strings.ToUpper(in.Currency),
		Stock:       in.Stock,
		Images:      in.Images,
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.catalog.InsertProduct(ctx, p); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("%w: sku %s already exists", ErrConflict, p.SKU)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return p, nil
}

func (s *StorefrontService) UpdateProduct(ctx context.Context, who auth.Identity, id primitive.ObjectID, in UpdateProductInput) (*models.Product, error) {
	if !canManageCatalog(who) {
		return nil, ErrForbidden
	}
	if err := validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	p, err := s.catalog.FindProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	update := models.ProductUpdate{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Images:      in.Images,
		IsActive:    in.IsActive,
		UpdatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.catalog.UpdateProduct(ctx, id, update); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	update.Apply(p)
	return p, nil
}

type reservation struct {
	id  primitive.ObjectID
	qty int
}

// Checkout reserves stock line by line and stores the order. When a line
// cannot be reserved every earlier reservation is released.
func (s *StorefrontService) Checkout(ctx context.Context, who auth.Identity, in CheckoutInput) (*models.Order, error) {
	if err := validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(in.Items) > models.MaxOrderLines {
		return nil, fmt.Errorf("%w: at most %d lines per order", ErrInvalidInput, models.MaxOrderLines)
	}

	var (
		reserved []reservation
		items    = make([]models.OrderItem, 0, len(in.Items))
		total    int64
		currency string
	)

	fail := func(err error) (*models.Order, error) {
		s.release(reserved)
		return nil, err
	}

	for _, line := range in.Items {
		id, err := primitive.ObjectIDFromHex(line.ProductID)
		if err != nil {
			return fail(fmt.Errorf("%w: invalid product id", ErrInvalidInput))
		}

		p, err := s.GetProduct(ctx, id, false)
		if errors.Is(err, ErrNotFound) {
			return fail(fmt.Errorf("%w: product %s is not available", ErrInvalidInput, line.ProductID))
		}
		if err != nil {
			return fail(fmt.Errorf("failed to load product: %w", err))
		}
		if currency == "" {
			currency = p.Currency
		} else if p.Currency != currency {
			return fail(fmt.Errorf("%w: mixed currencies in one order", ErrInvalidInput))
		}

		ok, err := s.catalog.ReserveStock(ctx, id, line.Quantity)
		if err != nil {
			return fail(fmt.Errorf("failed to reserve stock: %w", err))
		}
		if !ok {
			return fail(fmt.Errorf("%w: %s", ErrOutOfStock, p.Name))
		}
		reserved = append(reserved, reservation{id: id, qty: line.Quantity})

		item := models.OrderItem{
			ProductID:      p.ID,
			SKU:            p.SKU,
			Name:           p.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: p.PriceCents,
		}
		items = append(items, item)
		total += item.SubtotalCents()
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	order := &models.Order{
		ID:              primitive.NewObjectID(),
		UserID:          who.UserID,
		Items:           items,
		TotalCents:      total,
		Currency:        currency,
		Status:          models.OrderStatusPending,
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.InsertOrder(ctx, order); err != nil {
		return fail(fmt.Errorf("failed to store order: %w", err))
	}

	s.log.WithFields(logrus.Fields{
		"order_id":    order.ID.Hex(),
		"user_id":     who.UserID.Hex(),
		"lines":       len(items),
		"total_cents": total,
	}).Info("order placed")
	return order, nil
}

func (s *StorefrontService) release(reserved []reservation) {
	if len(reserved) == 0 {
		return
	}
	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, r := range reserved {
		if err := s.catalog.ReleaseStock(ctx, r.id, r.qty); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"product_id": r.id.Hex(), "quantity": r.qty}).Error("failed to release reserved stock")
		}
	}
}

func (s *StorefrontService) ListOrders(ctx context.Context, who auth.Identity, limit int) ([]*models.Order, error) {
	_, limit = NormalizePage(1, limit)
	orders, err := s.orders.ListOrdersByUser(ctx, who.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *StorefrontService) GetOrder(ctx context.Context, who auth.Identity, id primitive.ObjectID) (*models.Order, error) {
	order, err := s.orders.FindOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != who.UserID {
		return nil, ErrNotFound
	}
	return order, nil
}

// CancelOrder cancels a pending order of the caller and puts its stock back.
func (s *StorefrontService) CancelOrder(ctx context.Context, who auth.Identity, id primitive.ObjectID) (*models.Order, error) {
	order, err := s.GetOrder(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("%w: only pending orders can be cancelled", ErrConflict)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	ok, err := s.orders.TransitionOrder(ctx, id, models.OrderStatusPending, models.OrderStatusCancelled, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: order status changed concurrently", ErrConflict)
	}

	reserved := make([]reservation, 0, len(order.Items))
	for _, item := range order.Items {
		reserved = append(reserved, reservation{id: item.ProductID, qty: item.Quantity})
	}
	s.release(reserved)

	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = now
	return order, nil
}
