package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/elite-zone/elitezone-backend/internal/logger"
	"github.com/elite-zone/elitezone-backend/internal/repos"
	"github.com/elite-zone/elitezone-backend/internal/requestdata"
)

type MeHandler struct {
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewMeHandler(log *logger.Logger, userRepo repos.UserRepo) *MeHandler {
	handlerLogger := log.With("Handler", "MeHandler")
	return &MeHandler{log: handlerLogger, userRepo: userRepo}
}

func (mh *MeHandler) GetMe(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	users, err := mh.userRepo.GetByIDs(c.Request.Context(), nil, []uuid.UUID{rd.UserID})
	if err != nil {
		mh.log.Error("Failed to load account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}
	if len(users) == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	user := users[0]
	c.JSON(http.StatusOK, gin.H{
		"userId":    user.ID,
		"email":     user.Email,
		"createdAt": user.CreatedAt,
	})
}
