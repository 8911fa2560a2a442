package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/intake-bot/internal/errs"
	"github.com/psds-microservice/intake-bot/internal/store"
)

// TicketHandler — служебный read-only HTTP API для операторов:
// список заявок пользователя и карточка заявки. Бот этим API не пользуется.
type TicketHandler struct {
	tickets store.TicketStore
}

func NewTicketHandler(tickets store.TicketStore) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

// List — GET /api/v1/tickets?user_id=N
func (h *TicketHandler) List(c *gin.Context) {
	raw := c.Query("user_id")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}
	items, err := h.tickets.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   len(items),
	})
}

// Get — GET /api/v1/tickets/:id
func (h *TicketHandler) Get(c *gin.Context) {
	t, err := h.tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get ticket"})
		return
	}
	c.JSON(http.StatusOK, t)
}
