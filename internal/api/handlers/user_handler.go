// server/internal/api/handlers/user_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"blood-bank-api-server/internal/auth"
	"blood-bank-api-server/internal/database"
	"blood-bank-api-server/internal/logger"
	"blood-bank-api-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type UserHandler struct {
	DB     *mongo.Database
	Tokens *auth.Manager
	Log    *logger.Logger
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type CreateUserRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Name       string `json:"name" binding:"required"`
	Password   string `json:"password" binding:"required,min=8"`
	Role       string `json:"role" binding:"required,oneof=admin staff"`
	HospitalID string `json:"hospital_id" binding:"required"`
}

// findUser loads a user by email. On failure it writes the response: 401
// for an unknown email so that it reads the same as a wrong password.
func (h *UserHandler) findUser(c *gin.Context, email string) (*models.User, bool) {
	var user models.User
	err := h.DB.Collection(database.UsersCollection).
		FindOne(c.Request.Context(), bson.M{"email": strings.ToLower(email)}).
		Decode(&user)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			h.Log.Error("find user", "email", email, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return nil, false
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return nil, false
	}
	return &user, true
}

func rejectDisabled(c *gin.Context, user *models.User) bool {
	if user.Status != "active" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return true
	}
	return false
}

func (h *UserHandler) respondTokens(c *gin.Context, user *models.User) {
	pair, err := h.Tokens.IssuePair(*user)
	if err != nil {
		h.Log.Error("issue tokens", "email", user.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
		"user":          user,
	})
}

// Login exchanges email and password for a credential pair.
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	user, ok := h.findUser(c, req.Email)
	if !ok {
		return
	}
	// The account state is only revealed to callers holding the password.
	if !auth.CheckPasswordHash(req.Password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if rejectDisabled(c, user) {
		return
	}

	h.respondTokens(c, user)
}

// Refresh issues a new pair from a valid refresh token. The user is reloaded
// so disabled accounts and role changes take effect.
func (h *UserHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	claims, err := h.Tokens.Parse(req.RefreshToken, auth.TokenTypeRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token"})
		return
	}

	user, ok := h.findUser(c, claims.Email)
	if !ok || rejectDisabled(c, user) {
		return
	}
	h.respondTokens(c, user)
}

// CreateUser adds a staff account bound to an existing hospital.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	ctx := c.Request.Context()
	count, err := h.DB.Collection(database.HospitalsCollection).CountDocuments(ctx, bson.M{"hospital_id": req.HospitalID, "status": "ACTIVE"})
	if err != nil {
		h.Log.Error("check hospital", "hospital_id", req.HospitalID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error checking for hospital"})
		return
	}
	if count == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Hospital does not exist or is inactive"})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Log.Error("hash password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	user := models.User{
		Email:      strings.ToLower(req.Email),
		Name:       req.Name,
		Password:   hashed,
		Role:       req.Role,
		HospitalID: req.HospitalID,
		Status:     "active",
	}
	if _, err := h.DB.Collection(database.UsersCollection).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
			return
		}
		h.Log.Error("insert user", "email", user.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "User created successfully",
		"user":    user,
	})
}
