package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/requestdata"
	"github.com/SuperscriptSystems/Quillio/internal/services"
	"github.com/SuperscriptSystems/Quillio/internal/sse"
)

type CourseHandler struct {
	log     *logger.Logger
	courses services.CourseService
	editor  services.EditorService
	hub     *sse.Hub
}

func NewCourseHandler(baseLog *logger.Logger, courses services.CourseService, editor services.EditorService, hub *sse.Hub) *CourseHandler {
	return &CourseHandler{
		log:     baseLog.With("handler", "CourseHandler"),
		courses: courses,
		editor:  editor,
		hub:     hub,
	}
}

func (h *CourseHandler) List(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	courses, err := h.courses.ListCourses(c.Request.Context(), user)
	if err != nil {
		respondFailure(c, h.log, http.StatusInternalServerError, "list courses", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *CourseHandler) Get(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	course, lessons, err := h.courses.GetCourse(c.Request.Context(), user, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course, "lessons": lessons})
}

type archiveRequest struct {
	Archived *bool `json:"archived" binding:"required"`
}

func (h *CourseHandler) Archive(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.courses.SetArchived(c.Request.Context(), user, id, *req.Archived); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CourseHandler) Delete(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	if err := h.courses.DeleteCourse(c.Request.Context(), user, id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.hub.Broadcast(user.ID.String(), sse.Event{Type: "course_deleted", Data: gin.H{"course_id": id}})
	c.Status(http.StatusNoContent)
}

type editRequest struct {
	Instruction string `json:"instruction" binding:"required"`
}

func (h *CourseHandler) Edit(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	course, err := h.editor.Edit(c.Request.Context(), user, id, req.Instruction)
	if err != nil {
		respondFailure(c, h.log, http.StatusBadGateway, "edit course", err)
		return
	}
	h.hub.Broadcast(user.ID.String(), sse.Event{Type: "course_edited", Data: gin.H{"course_id": course.ID}})
	c.JSON(http.StatusOK, gin.H{"course": course})
}

func (h *CourseHandler) Duplicate(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	course, err := h.courses.Duplicate(c.Request.Context(), user, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"course": course})
}

func (h *CourseHandler) Share(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	token, err := h.courses.Share(c.Request.Context(), user, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *CourseHandler) ResolveShare(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	course, err := h.courses.ResolveShare(c.Request.Context(), user, c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"course": course})
}
