package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/models"
	"comunitarr/internal/services"
)

type ShopHandler struct {
	shop *services.StorefrontService
}

func NewShopHandler(shop *services.StorefrontService) *ShopHandler {
	return &ShopHandler{shop: shop}
}

func (h *ShopHandler) GetProducts(c *gin.Context) {
	page, limit := services.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))

	items, total, err := h.shop.ListProducts(c.Request.Context(), models.ProductFilter{
		Category:   c.Query("category"),
		ActiveOnly: true,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products":   items,
		"pagination": pagination(page, limit, total),
	})
}

func (h *ShopHandler) GetProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	p, err := h.shop.GetProduct(c.Request.Context(), id, false)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *ShopHandler) Checkout(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req services.CheckoutInput
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.shop.Checkout(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *ShopHandler) GetOrders(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	orders, err := h.shop.ListOrders(c.Request.Context(), who, queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *ShopHandler) GetOrder(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	order, err := h.shop.GetOrder(c.Request.Context(), who, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *ShopHandler) CancelOrder(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	order, err := h.shop.CancelOrder(c.Request.Context(), who, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *ShopHandler) CreateProduct(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req services.CreateProductInput
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.shop.CreateProduct(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *ShopHandler) UpdateProduct(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateProductInput
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.shop.UpdateProduct(c.Request.Context(), who, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}
