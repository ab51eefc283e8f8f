package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AgusMolinaCode/bitlab/internal/middleware"
)

func RegisterRoutes(router *gin.Engine, h *middleware.Handler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.POST("/signup", h.Signup)
	router.POST("/login", h.Login)
	router.POST("/logout", h.AuthMiddleware(), h.Logout)
	router.POST("/request-reset-password", h.RequestResetPassword)
	router.POST("/reset-password", h.ResetPassword)
	router.POST("/webhooks/clerk", h.ClerkWebhookHandler)

	protected := router.Group("/")
	protected.Use(h.AuthMiddleware())
	{
		protected.GET("/users/me", h.GetCurrentUser)
		protected.PUT("/users", h.UpdateUser)
		protected.DELETE("/users", h.DeleteUser)

		protected.GET("/coins", h.ListCoins)
		protected.POST("/coins", h.CreateCoin)
		protected.DELETE("/coins/:id", h.DeleteCoin)

		protected.POST("/transactions", h.CreateTransaction)
		protected.GET("/transactions", h.ListTransactions)
		protected.GET("/transactions/:id", h.GetTransactionDetails)
		protected.DELETE("/transactions/:id", h.DeleteTransaction)
		protected.POST("/transactions/rebuild/:coinId", h.RebuildStats)

		protected.GET("/dashboard", h.GetDashboard)
		protected.GET("/realized", h.GetRealized)
		protected.GET("/stats", h.GetStats)
		protected.GET("/rebalance", h.GetRebalance)
		protected.PUT("/rebalance/:coinId", h.SetTarget)

		protected.POST("/prices/sync", h.SyncPrices)
		protected.GET("/prices/status", h.PriceStatus)

		protected.GET("/history", h.GetHistory)
		protected.POST("/history/snapshot", h.TakeSnapshot)
	}

	router.GET("/realtime", h.SocketAuthMiddleware(), h.Realtime)

	admin := router.Group("/admin")
	admin.Use(h.AdminAuth())
	{
		admin.GET("/users", h.GetUsers)
		admin.GET("/users/:id", h.GetUser)
		admin.DELETE("/users/:id", h.DeleteUserByAdmin)
		admin.GET("/users/email/:email", h.GetUserByEmail)
	}
}
