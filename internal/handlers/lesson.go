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
)

type LessonHandler struct {
	log     *logger.Logger
	lessons services.LessonService
	tutor   services.TutorService
	hub     *sse.Hub
}

func NewLessonHandler(baseLog *logger.Logger, lessons services.LessonService, tutor services.TutorService, hub *sse.Hub) *LessonHandler {
	return &LessonHandler{
		log:     baseLog.With("handler", "LessonHandler"),
		lessons: lessons,
		tutor:   tutor,
		hub:     hub,
	}
}

// Stream materializes the lesson, streaming content chunks as they arrive.
// An already-materialized lesson arrives as a single chunk.
func (h *LessonHandler) Stream(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lesson id"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	lesson, err := h.lessons.Materialize(c.Request.Context(), user, id, func(delta string) {
		_, _ = c.Writer.WriteString(delta)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		if errors.Is(err, services.ErrStreamInFlight) {
			// Headers are already out; the body carries the error marker.
			_, _ = c.Writer.WriteString("\n[stream-busy]")
		} else {
			h.log.Error("lesson stream failed", "lesson_id", id, "error", err)
			_, _ = c.Writer.WriteString("\n[stream-error]")
		}
		return
	}
	h.hub.Broadcast(user.ID.String(), sse.Event{Type: "lesson_completed", Data: gin.H{
		"lesson_id": lesson.ID,
		"course_id": lesson.CourseID,
	}})
}

type tutorRequest struct {
	CourseID uuid.UUID  `json:"course_id" binding:"required"`
	LessonID *uuid.UUID `json:"lesson_id"`
	Question string     `json:"question" binding:"required"`
}

// Tutor streams a course-aware answer to a free-form question.
func (h *LessonHandler) Tutor(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	var req tutorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	if _, err := h.tutor.Ask(c.Request.Context(), user, req.CourseID, req.LessonID, req.Question, func(delta string) {
		_, _ = c.Writer.WriteString(delta)
		if flusher != nil {
			flusher.Flush()
		}
	}); err != nil {
		h.log.Error("tutor stream failed", "course_id", req.CourseID, "error", err)
		_, _ = c.Writer.WriteString("\n[stream-error]")
	}
}
