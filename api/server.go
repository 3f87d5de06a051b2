// Package api exposes the transfer engine over HTTP.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"s3transfer/pkg/models"
	"s3transfer/pkg/orchestrator"
	"s3transfer/pkg/scheduler"
	"s3transfer/pkg/strategy"
)

// Server holds the handlers' collaborators.
type Server struct {
	orch   *orchestrator.Orchestrator
	sched  *scheduler.Scheduler
	stores strategy.StoreProvider
}

func NewServer(orch *orchestrator.Orchestrator, sched *scheduler.Scheduler, stores strategy.StoreProvider) *Server {
	return &Server{orch: orch, sched: sched, stores: stores}
}

// SetupRouter builds the gin engine with CORS and all routes attached.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	router.GET("/health", s.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/transfers", s.SubmitTransfer)
		api.GET("/transfers", s.ListTransfers)
		api.GET("/transfers/:id", s.GetTransfer)
		api.DELETE("/transfers/:id", s.CancelTransfer)
		api.POST("/source/list", s.ListSourceObjects)

		api.POST("/schedules", s.CreateSchedule)
		api.GET("/schedules", s.ListSchedules)
		api.GET("/schedules/stats", s.GetSchedulerStats)
		api.GET("/schedules/:id", s.GetSchedule)
		api.PUT("/schedules/:id", s.UpdateSchedule)
		api.DELETE("/schedules/:id", s.DeleteSchedule)
		api.POST("/schedules/:id/enable", s.EnableSchedule)
		api.POST("/schedules/:id/disable", s.DisableSchedule)
		api.POST("/schedules/:id/run", s.RunScheduleNow)
	}

	return router
}

// HealthCheck reports liveness.
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// SubmitTransfer accepts a TransferRequest and returns the accepted operation.
func (s *Server) SubmitTransfer(c *gin.Context) {
	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := s.orch.Submit(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, op)
}

// GetTransfer returns the current snapshot of one operation.
func (s *Server) GetTransfer(c *gin.Context) {
	op, err := s.orch.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, op)
}

// ListTransfers returns snapshots of every known operation.
func (s *Server) ListTransfers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"transfers": s.orch.List()})
}

// CancelTransfer requests cancellation of a running operation.
func (s *Server) CancelTransfer(c *gin.Context) {
	id := c.Param("id")
	if err := s.orch.Cancel(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested", "operation_id": id})
}

// ListSourceObjects lists the object keys under a location, for building
// transfer requests against a live bucket.
func (s *Server) ListSourceObjects(c *gin.Context) {
	var loc models.S3Location
	if err := c.ShouldBindJSON(&loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := loc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	store, err := s.stores.StoreFor(c.Request.Context(), loc)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	keys, err := store.ListKeys(c.Request.Context(), loc.Bucket, loc.KeyPrefix)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

// CreateSchedule registers a recurring transfer.
func (s *Server) CreateSchedule(c *gin.Context) {
	var schedule scheduler.Schedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sched.Add(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

// ListSchedules returns all schedules.
func (s *Server) ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedules": s.sched.List()})
}

// GetSchedule returns one schedule.
func (s *Server) GetSchedule(c *gin.Context) {
	schedule, err := s.sched.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// UpdateSchedule replaces a schedule definition.
func (s *Server) UpdateSchedule(c *gin.Context) {
	var schedule scheduler.Schedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	schedule.ID = c.Param("id")
	if err := s.sched.Update(&schedule); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// DeleteSchedule removes a schedule.
func (s *Server) DeleteSchedule(c *gin.Context) {
	if err := s.sched.Remove(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted"})
}

// EnableSchedule turns a schedule on.
func (s *Server) EnableSchedule(c *gin.Context) {
	if err := s.sched.Enable(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule enabled"})
}

// DisableSchedule turns a schedule off.
func (s *Server) DisableSchedule(c *gin.Context) {
	if err := s.sched.Disable(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule disabled"})
}

// RunScheduleNow fires a schedule immediately.
func (s *Server) RunScheduleNow(c *gin.Context) {
	if err := s.sched.RunNow(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "schedule triggered"})
}

// GetSchedulerStats reports scheduler counters.
func (s *Server) GetSchedulerStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.GetStats())
}
