package main

import (
	"edutalks/internal/httpapi"
	"edutalks/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Health)
	r.POST("/auth/refresh", h.RefreshToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireUser())
	{
		v1.GET("/me", h.Me)

		// Candidate list and the call session belong to the learner using the agent.
		learner := v1.Group("")
		learner.Use(rbac.RequireAnyRole(rbac.RoleLearner))
		{
			learner.GET("/candidates", h.ListCandidates)
			learner.POST("/candidates/refresh", h.RefreshCandidates)

			learner.GET("/call", h.GetCall)
			learner.POST("/call/start", h.StartCall)
			learner.POST("/call/end", h.EndCall)
			learner.POST("/call/connected", h.MarkConnected)
			learner.POST("/call/rating", h.SubmitRating)
			learner.POST("/call/block", h.BlockCallee)
			learner.POST("/call/reset", h.ResetCall)
		}

		// Instructors may review the learner's history.
		history := v1.Group("/calls")
		history.Use(rbac.RequireAnyRole(rbac.RoleLearner, rbac.RoleInstructor))
		{
			history.GET("/history", h.CallHistory)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/reports/calls", h.CallsReport)
		}
	}
}
