package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/intake-bot/internal/handler"
	"github.com/psds-microservice/intake-bot/internal/vk"
)

// New собирает HTTP-поверхность сервиса: health-проверки, callback VK
// и служебный API заявок.
func New(callback *vk.CallbackHandler, ticketHandler *handler.TicketHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)

	r.POST("/vk/callback", callback.Handle)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tickets", ticketHandler.List)
		v1.GET("/tickets/:id", ticketHandler.Get)
	}

	return r
}
