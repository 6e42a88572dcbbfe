package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/requestdata"
	"github.com/SuperscriptSystems/Quillio/internal/sse"
)

type UserHandler struct {
	log      *logger.Logger
	userRepo repos.UserRepo
	hub      *sse.Hub
}

func NewUserHandler(baseLog *logger.Logger, userRepo repos.UserRepo, hub *sse.Hub) *UserHandler {
	return &UserHandler{log: baseLog.With("handler", "UserHandler"), userRepo: userRepo, hub: hub}
}

func (h *UserHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": requestdata.UserFrom(c.Request.Context())})
}

type updateSettingsRequest struct {
	Name                  *string `json:"name"`
	Language              *string `json:"language"`
	Age                   *int    `json:"age"`
	Bio                   *string `json:"bio"`
	PreferredLessonLength *string `json:"preferred_lesson_length"`
}

func (h *UserHandler) UpdateSettings(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Language != nil {
		fields["language"] = *req.Language
	}
	if req.Age != nil {
		fields["age"] = *req.Age
	}
	if req.Bio != nil {
		fields["bio"] = *req.Bio
	}
	if req.PreferredLessonLength != nil {
		fields["preferred_lesson_length"] = *req.PreferredLessonLength
	}
	if err := h.userRepo.UpdateFields(c.Request.Context(), nil, user.ID, fields); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Events serves the SSE notification stream for the authenticated user.
func (h *UserHandler) Events(c *gin.Context) {
	user := requestdata.UserFrom(c.Request.Context())
	h.hub.Serve(c.Writer, c.Request, user.ID.String())
}
