package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderItem struct {
	ProductID      primitive.ObjectID `bson:"product_id" json:"product_id"`
	SKU            string             `bson:"sku" json:"sku"`
	Name           string             `bson:"name" json:"name"`
	Quantity       int                `bson:"quantity" json:"quantity"`
	UnitPriceCents int64              `bson:"unit_price_cents" json:"unit_price_cents"`
}

func (i OrderItem) SubtotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	Items           []OrderItem        `bson:"items" json:"items"`
	TotalCents      int64              `bson:"total_cents" json:"total_cents"`
	Currency        string             `bson:"currency" json:"currency"`
	Status          string             `bson:"status" json:"status"`
	ShippingAddress string             `bson:"shipping_address" json:"shipping_address"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

const MaxOrderLines = 20
