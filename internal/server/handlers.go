package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-agent/internal/logger"
	"trading-agent/internal/types"
)

// statusFor maps an engine error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidAlert):
		return http.StatusBadRequest
	case errors.Is(err, errPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, errPlanExpired):
		return http.StatusGone
	case errors.Is(err, types.ErrPlanNotPending):
		return http.StatusConflict
	case errors.Is(err, types.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrDataUnavailable), errors.Is(err, types.ErrExecutionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error, extra gin.H) {
	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(statusFor(err), body)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) tradingViewWebhook(c *gin.Context) {
	var alert types.TradingViewAlert
	if err := c.ShouldBindJSON(&alert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert payload", "message": err.Error()})
		return
	}
	plan, err := s.engine.AnalyzeAlert(c.Request.Context(), alert)
	if err != nil {
		fail(c, err, nil)
		return
	}

	s.plans.put(plan)
	logger.Info(c.Request.Context(), "Alert plan awaiting confirmation", "plan_id", plan.ID, "asset", plan.Asset)
	c.JSON(http.StatusCreated, plan)
}

func (s *Server) getPlan(c *gin.Context) {
	plan, err := s.plans.get(c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// confirmPlan claims the plan, so reads and other confirms are not held up
// while the trade is sent.
func (s *Server) confirmPlan(c *gin.Context) {
	plan, err := s.plans.claim(c.Param("id"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	res, err := s.engine.ExecutePlan(c.Request.Context(), plan)
	settled := s.plans.settle(plan)
	if err != nil {
		fail(c, err, gin.H{"plan": settled, "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": settled, "result": res})
}

func (s *Server) rejectPlan(c *gin.Context) {
	plan, err := s.plans.reject(c.Param("id"))
	if errors.Is(err, types.ErrPlanNotPending) {
		fail(c, err, gin.H{"plan": plan})
		return
	}
	if err != nil {
		fail(c, err, nil)
		return
	}
	logger.Info(c.Request.Context(), "Alert plan rejected", "plan_id", plan.ID)
	c.JSON(http.StatusOK, plan)
}

func (s *Server) runCycle(c *gin.Context) {
	res, err := s.engine.Step(c.Request.Context())
	if err != nil {
		fail(c, err, gin.H{"result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) runRebalance(c *gin.Context) {
	res, err := s.engine.Rebalance(c.Request.Context())
	if err != nil {
		fail(c, err, gin.H{"result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}
