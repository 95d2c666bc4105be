package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitsphere/chat-service/internal/auth"
	"github.com/fitsphere/chat-service/internal/database"
	"github.com/fitsphere/chat-service/internal/models"
)

// AuthHandler handles authentication routes
type AuthHandler struct {
	DB     database.DBInterface
	Tokens *auth.TokenManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db database.DBInterface, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{DB: db, Tokens: tokens}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.UserRegistration
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashedPassword, err := auth.HashPassword(input.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to process password"})
		return
	}

	user, err := h.DB.CreateUser(c.Request.Context(), input.Username, input.Email, hashedPassword)
	if errors.Is(err, database.ErrUserAlreadyExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	log.WithField("user_id", user.ID).Info("user registered")
	c.JSON(http.StatusCreated, user)
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.UserLogin
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.DB.GetUserByEmail(c.Request.Context(), input.Email)
	if errors.Is(err, database.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to retrieve user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		return
	}

	if !auth.CheckPasswordHash(input.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := h.DB.UpdateLastSeen(c.Request.Context(), user.ID); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("failed to update last seen")
	}

	token, expiry, err := h.Tokens.GenerateToken(user)
	if err != nil {
		log.WithError(err).Error("failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"expiry": expiry,
		"user":   user,
	})
}

// GetMe returns the caller's profile
func (h *AuthHandler) GetMe(c *gin.Context, p auth.Principal) {
	user, err := h.DB.GetUserByID(c.Request.Context(), p.UserID)
	if errors.Is(err, database.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to retrieve user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		return
	}
	c.JSON(http.StatusOK, user)
}
