package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/labkha-cpu/ai-Apply/internal/api/handlers"
)

type Deps struct {
	Candidate *handlers.CandidateHandler
	WS        *handlers.WSHandler

	// AllowOrigins for the dashboard; empty allows any origin.
	AllowOrigins []string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := cors.DefaultConfig()
	if len(d.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = d.AllowOrigins
	}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Request-Id"}
	cfg.ExposeHeaders = []string{"X-Request-Id"}
	cfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(cfg))

	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	cand := r.Group("/api/v1/candidates/:candidate_id")

	cand.GET("/status", d.Candidate.Status)
	cand.GET("/audit", d.Candidate.Audit)
	cand.GET("/diff", d.Candidate.Diff)
	cand.GET("/events", d.Candidate.Events)
	cand.GET("/artifacts/:type", d.Candidate.Artifact)

	cand.POST("/stage1/watch", d.Candidate.WatchStage1)
	cand.POST("/stage2", d.Candidate.RequestStage2)
	cand.DELETE("/stage2/poll", d.Candidate.StopStage2)

	// WebSocket
	if d.WS != nil {
		cand.GET("/ws", d.WS.CandidateWS)
	}
}
