package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
)

func (h *Handler) GetCurrentUser(c *gin.Context) {
	user, err := h.users.GetUserById(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		respondError(c, err, "failed to get user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetUserById(ctx, c.GetString("userId"))
	if err != nil {
		respondError(c, err, "failed to get user")
		return
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Name != "" {
		user.Name = req.Name
	}

	if err := h.users.UpdateUser(ctx, user); err != nil {
		respondError(c, err, "failed to update user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user updated", "user": user})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.users.DeleteUser(c.Request.Context(), c.GetString("userId")); err != nil {
		respondError(c, err, "failed to delete user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// RequestResetPassword mails a reset token. It answers the same whether or
// not the email is registered.
func (h *Handler) RequestResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok := gin.H{"message": "if the email is registered, a reset link has been sent"}
	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusOK, ok)
		return
	}
	if err != nil {
		respondError(c, err, "failed to look up user")
		return
	}

	token, err := h.GenerateResetToken(user.Email)
	if err != nil {
		respondError(c, err, "failed to generate token")
		return
	}
	if err := h.mailer.SendPasswordReset(user.Email, token); err != nil {
		logger.FromContext(c.Request.Context()).Error("failed to send reset email", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send email"})
		return
	}
	c.JSON(http.StatusOK, ok)
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req models.NewPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := h.parseToken(req.Token, purposeReset)
	if err != nil || claims.Email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := h.users.UpdatePassword(c.Request.Context(), claims.Email, req.NewPassword); err != nil {
		respondError(c, err, "failed to update password")
		return
	}
	// a reset token works once
	h.revoked.Set(claims.ID, struct{}{}, resetTokenTTL)
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
