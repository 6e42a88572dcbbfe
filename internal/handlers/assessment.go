package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/requestdata"
	"github.com/SuperscriptSystems/Quillio/internal/services"
	"github.com/SuperscriptSystems/Quillio/internal/sse"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

type AssessmentHandler struct {
	log        *logger.Logger
	assessment services.AssessmentService
	courses    services.CourseService
	sessions   services.TestSessionStore
	hub        *sse.Hub
}

func NewAssessmentHandler(
	baseLog *logger.Logger,
	assessment services.AssessmentService,
	courses services.CourseService,
	sessions services.TestSessionStore,
	hub *sse.Hub,
) *AssessmentHandler {
	return &AssessmentHandler{
		log:        baseLog.With("handler", "AssessmentHandler"),
		assessment: assessment,
		courses:    courses,
		sessions:   sessions,
		hub:        hub,
	}
}

type startAssessmentRequest struct {
	Topic     string `json:"topic" binding:"required"`
	Knowledge string `json:"knowledge"`
}

func (h *AssessmentHandler) Start(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	var req startAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.assessment.StartAssessment(c.Request.Context(), user, req.Topic, req.Knowledge)
	if err != nil {
		respondFailure(c, h.log, http.StatusBadGateway, "start assessment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"test_title": snap.Test.TestTitle,
		"total":      len(snap.Test.Questions),
	})
}

func (h *AssessmentHandler) Question(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	kind := c.DefaultQuery("kind", types.TestKindAssessment)

	q, index, total, err := h.assessment.CurrentQuestion(c.Request.Context(), user.ID, kind)
	if err != nil {
		status := http.StatusNotFound
		if !errors.Is(err, services.ErrNoActiveTest) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"question": gin.H{"question": q.Question, "options": q.Options},
		"index":    index,
		"total":    total,
	})
}

type answerRequest struct {
	Kind   string `json:"kind"`
	Answer string `json:"answer" binding:"required"`
}

func (h *AssessmentHandler) Answer(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind == "" {
		req.Kind = types.TestKindAssessment
	}
	snap, err := h.assessment.SubmitAnswer(c.Request.Context(), user.ID, req.Kind, req.Answer)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state": snap.State,
		"index": snap.Index,
		"total": len(snap.Test.Questions),
	})
}

// Complete finishes the assessment flow: evaluation, qualitative assessment,
// score, and course synthesis.
func (h *AssessmentHandler) Complete(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())

	snap, err := h.assessment.CompleteAssessment(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	course, err := h.courses.CreateCourse(c.Request.Context(), user, snap.Topic, snap.Assessment)
	if err != nil {
		respondFailure(c, h.log, http.StatusBadGateway, "create course", err)
		return
	}
	if err := h.sessions.Clear(c.Request.Context(), user.ID, types.TestKindAssessment); err != nil {
		h.log.Warn("clear assessment session", "user_id", user.ID, "error", err)
	}
	h.hub.Broadcast(user.ID.String(), sse.Event{Type: "course_created", Data: gin.H{"course_id": course.ID}})

	c.JSON(http.StatusOK, gin.H{
		"assessment": snap.Assessment,
		"score":      snap.Score,
		"verdicts":   snap.Verdicts,
		"course":     course,
	})
}

type startUnitTestRequest struct {
	UnitTitle string `json:"unit_title" binding:"required"`
}

func (h *AssessmentHandler) StartUnitTest(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	var req startUnitTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.assessment.StartUnitTest(c.Request.Context(), user, courseID, req.UnitTitle)
	if err != nil {
		if errors.Is(err, services.ErrUnitNotCompleted) {
			c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
			return
		}
		respondFailure(c, h.log, http.StatusBadGateway, "start unit test", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"test_title": snap.Test.TestTitle,
		"total":      len(snap.Test.Questions),
	})
}

func (h *AssessmentHandler) FinishUnitTest(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	result, verdicts, err := h.assessment.FinishUnitTest(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "verdicts": verdicts})
}
