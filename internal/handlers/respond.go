package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
)

// genericFailureMessage is the client-facing text for upstream and internal
// failures. Those errors can embed upstream API response bodies, which never
// belong in an API response; the detail goes to the log.
const genericFailureMessage = "Something went wrong. Please try again."

func respondFailure(c *gin.Context, log *logger.Logger, status int, op string, err error) {
	log.Error(op+" failed", "error", err)
	c.JSON(status, gin.H{"error": genericFailureMessage})
}
