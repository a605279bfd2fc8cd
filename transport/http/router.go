package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clearmesh/agentgate/ports"
	"github.com/clearmesh/agentgate/service"
)

// AgentCard is the capability document served on the discovery endpoint.
type AgentCard struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Deps bundles everything the router wires together.
type Deps struct {
	Card       AgentCard
	Resolver   *service.AccessResolver
	Challenges *service.ChallengeService
	Sessions   *service.SessionService
	Tasks      *service.TaskService
	Executor   ports.SkillExecutor
	Registry   ports.ChainRegistry
}

// SetupRouter builds the gin router with the auth surface, the RPC endpoint,
// and the discovery document.
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.Default()
	router.Use(AccessMiddleware(deps.Resolver))

	authHandlers := NewAuthHandlers(deps.Challenges, deps.Sessions, deps.Registry, nil)
	rpcHandlers := NewRPCHandlers(deps.Tasks, deps.Executor, nil)

	auth := router.Group("/auth")
	{
		auth.POST("/challenge", authHandlers.Challenge)
		auth.POST("/login", authHandlers.Login)
		auth.POST("/logout", authHandlers.Logout)
		auth.POST("/refresh-registration", authHandlers.RefreshRegistration)
	}

	router.POST("/rpc", rpcHandlers.Dispatch)

	router.GET("/.well-known/agent.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    deps.Card.Name,
			"version": deps.Card.Version,
			"skills":  deps.Executor.Skills(),
		})
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
