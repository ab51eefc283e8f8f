package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
)

const (
	purposeAccess = "access"
	purposeReset  = "reset"

	resetTokenTTL = time.Hour
)

var errInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	UserID  string `json:"userId,omitempty"`
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (h *Handler) sign(claims tokenClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
}

// GenerateToken issues an access token for userID.
func (h *Handler) GenerateToken(userID string) (string, error) {
	return h.sign(tokenClaims{UserID: userID, Purpose: purposeAccess}, h.tokenExpiry)
}

// GenerateResetToken issues a short lived token that can only reset the
// password of email.
func (h *Handler) GenerateResetToken(email string) (string, error) {
	return h.sign(tokenClaims{Email: email, Purpose: purposeReset}, resetTokenTTL)
}

func (h *Handler) parseToken(tokenString, purpose string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Purpose != purpose {
		return nil, errInvalidToken
	}
	if _, revoked := h.revoked.Get(claims.ID); revoked {
		return nil, errInvalidToken
	}
	return claims, nil
}

// bearerToken reads the Authorization header. With allowQuery a websocket
// handshake may pass the token as ?token= instead, since browsers cannot set
// headers on it.
func bearerToken(c *gin.Context, allowQuery bool) string {
	authHeader := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if allowQuery && websocket.IsWebSocketUpgrade(c.Request) {
		return c.Query("token")
	}
	return ""
}

// AuthMiddleware accepts a local access token or, when configured, a Clerk
// session token, from the Authorization header only.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return h.authenticate(false)
}

// SocketAuthMiddleware is AuthMiddleware for the realtime socket, which also
// takes the token from the handshake query.
func (h *Handler) SocketAuthMiddleware() gin.HandlerFunc {
	return h.authenticate(true)
}

func (h *Handler) authenticate(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c, allowQuery)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		if claims, err := h.parseToken(tokenString, purposeAccess); err == nil {
			c.Set("tokenClaims", claims)
			withUser(c, claims.UserID)
			c.Next()
			return
		}

		if h.clerkEnabled {
			userID, err := h.clerkUserID(c.Request.Context(), tokenString)
			if err == nil {
				withUser(c, userID)
				c.Next()
				return
			}
			logger.FromContext(c.Request.Context()).Debug("clerk token rejected", "error", err)
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

func userResponse(u *models.User) gin.H {
	return gin.H{"id": u.ID, "email": u.Email, "name": u.Name}
}

func (h *Handler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{Email: req.Email, Password: req.Password, Name: req.Name}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		respondError(c, err, "failed to create user")
		return
	}

	token, err := h.GenerateToken(user.ID)
	if err != nil {
		respondError(c, err, "failed to generate token")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "signup successful",
		"token":   token,
		"user":    userResponse(user),
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.CheckPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrForbidden) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		respondError(c, err, "failed to log in")
		return
	}

	token, err := h.GenerateToken(user.ID)
	if err != nil {
		respondError(c, err, "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "login successful",
		"token":   token,
		"user":    userResponse(user),
	})
}

// Logout revokes the presented access token. Clerk sessions are ended on
// Clerk's side.
func (h *Handler) Logout(c *gin.Context) {
	if v, ok := c.Get("tokenClaims"); ok {
		claims := v.(*tokenClaims)
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl > 0 {
			h.revoked.Set(claims.ID, struct{}{}, ttl)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
