package admin

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"elmstone_back_end/internal/services"
	"elmstone_back_end/internal/store"
)

// Handler expose la gestion des commandes au back-office staff.
type Handler struct {
	Orders *store.Orders
	Search *services.OrderIndex
}

// ListOrders retourne les commandes récentes.
func (h *Handler) ListOrders(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, _ := strconv.Atoi(limitStr)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	orders, err := h.Orders.ListOrders(c.Request.Context(), limit)
	if err != nil {
		log.Printf("❌ Erreur lecture commandes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  len(orders),
	})
}

// GetOrder retourne une commande et ses lignes.
func (h *Handler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}

	products, err := h.Orders.GetOrderProducts(c.Request.Context(), orderID)
	if err != nil {
		log.Printf("❌ Erreur lecture lignes commande %s: %v", orderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":    order,
		"products": products,
	})
}

// SetFulfilled pose ou retire le drapeau "préparée", le seul champ qu'un
// membre du staff peut modifier après création.
func (h *Handler) SetFulfilled(c *gin.Context) {
	orderID := c.Param("id")

	var req struct {
		Fulfilled *bool `json:"fulfilled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	if _, err := h.Orders.GetOrder(c.Request.Context(), orderID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}

	if err := h.Orders.SetFulfilled(c.Request.Context(), orderID, *req.Fulfilled); err != nil {
		log.Printf("❌ Erreur mise à jour commande %s: %v", orderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour"})
		return
	}

	log.Printf("✅ Commande %s marquée fulfilled=%v par %s", orderID, *req.Fulfilled, c.GetString("user_id"))
	c.JSON(http.StatusOK, gin.H{"message": "Commande mise à jour", "fulfilled": *req.Fulfilled})
}

// SearchOrders interroge l'index Elasticsearch des commandes.
func (h *Handler) SearchOrders(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Paramètre q requis"})
		return
	}

	limitStr := c.DefaultQuery("limit", "20")
	limit, _ := strconv.Atoi(limitStr)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	orders, err := h.Search.SearchOrders(c.Request.Context(), query, limit)
	if err != nil {
		log.Printf("❌ Erreur recherche commandes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur recherche"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  len(orders),
	})
}
