package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product belongs to the Quisqueya Alma storefront.
type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	SKU         string             `bson:"sku" json:"sku"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Category    string             `bson:"category" json:"category"`
	PriceCents  int64              `bson:"price_cents" json:"price_cents"`
	Currency    string             `bson:"currency" json:"currency"`
	Stock       int                `bson:"stock" json:"stock"`
	Images      []string           `bson:"images" json:"images"`
	IsActive    bool               `bson:"is_active" json:"is_active"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

const DefaultCurrency = "EUR"

type ProductFilter struct {
	Category   string
	ActiveOnly bool
	Page       int
	Limit      int
}

type ProductUpdate struct {
	Name        *string
	Description *string
	Category    *string
	PriceCents  *int64
	Stock       *int
	Images      []string
	IsActive    *bool
	UpdatedAt   time.Time
}

func (u ProductUpdate) Apply(p *Product) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.PriceCents != nil {
		p.PriceCents = *u.PriceCents
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	if u.Images != nil {
		p.Images = u.Images
	}
	if u.IsActive != nil {
		p.IsActive = *u.IsActive
	}
	p.UpdatedAt = u.UpdatedAt
}
