package httpapi

import "github.com/gin-gonic/gin"

// Mount registers the authenticated REST surface on g. g must already carry
// the access token middleware.
func (h Handlers) Mount(g *gin.RouterGroup) {
	callsGroup := g.Group("/calls")
	{
		callsGroup.GET("/active", h.ActiveCall)
		callsGroup.GET("/history", h.CallHistory)
		callsGroup.GET("/stats", h.CallStats)
		callsGroup.GET("/:callId", h.GetCall)
		callsGroup.PATCH("/:callId/quality", h.RateQuality)
	}
	g.GET("/presence/:userId", h.PresenceStatus)
}
