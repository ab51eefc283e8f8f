package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkjwt "github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/gin-gonic/gin"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
)

// clerkVerify and clerkFetchUser are swapped out in tests.
var (
	clerkVerify = func(ctx context.Context, token string) (string, error) {
		claims, err := clerkjwt.Verify(ctx, &clerkjwt.VerifyParams{Token: token})
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
	clerkFetchUser = func(ctx context.Context, id string) (email, name string, err error) {
		u, err := user.Get(ctx, id)
		if err != nil {
			return "", "", err
		}
		return primaryEmail(u), fullName(deref(u.FirstName), deref(u.LastName), primaryEmail(u)), nil
	}
)

// clerkUserID verifies a Clerk session token and returns the local user id
// of its subject. Users the webhook has not synced yet are fetched from
// Clerk and created on the fly.
func (h *Handler) clerkUserID(ctx context.Context, token string) (string, error) {
	subject, err := clerkVerify(ctx, token)
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", errInvalidToken
	}

	u, err := h.users.GetUserByClerkID(ctx, subject)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	email, name, err := clerkFetchUser(ctx, subject)
	if err != nil {
		return "", fmt.Errorf("fetch clerk user %s: %w", subject, err)
	}
	if email == "" {
		return "", fmt.Errorf("clerk user %s has no email", subject)
	}
	created, err := h.users.UpsertClerkUser(ctx, subject, email, name)
	if err != nil {
		return "", err
	}
	logger.FromContext(ctx).Info("provisioned clerk user", "userID", created.ID)
	return created.ID, nil
}

func primaryEmail(u *clerk.User) string {
	for _, e := range u.EmailAddresses {
		if u.PrimaryEmailAddressID != nil && e.ID == *u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fullName joins first and last name, falling back to the local part of email.
func fullName(first, last, email string) string {
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return name
}

type clerkEvent struct {
	Type string `json:"type"`
	Data struct {
		ID                    string `json:"id"`
		FirstName             string `json:"first_name"`
		LastName              string `json:"last_name"`
		PrimaryEmailAddressID string `json:"primary_email_address_id"`
		EmailAddresses        []struct {
			ID           string `json:"id"`
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

func (e clerkEvent) email() string {
	for _, a := range e.Data.EmailAddresses {
		if a.ID == e.Data.PrimaryEmailAddressID {
			return a.EmailAddress
		}
	}
	if len(e.Data.EmailAddresses) > 0 {
		return e.Data.EmailAddresses[0].EmailAddress
	}
	return ""
}

// ClerkWebhookHandler keeps local users in sync with Clerk. Payloads are
// authenticated with the Svix signature headers.
func (h *Handler) ClerkWebhookHandler(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())
	if h.webhookSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook secret not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}

	wh, err := svix.NewWebhook(h.webhookSecret)
	if err != nil {
		log.Error("invalid webhook secret", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize webhook verification"})
		return
	}
	if err := wh.Verify(body, c.Request.Header); err != nil {
		log.Warn("webhook signature rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	var event clerkEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if event.Data.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "user.created", "user.updated":
		email := event.email()
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no valid email found"})
			return
		}
		u, err := h.users.UpsertClerkUser(ctx, event.Data.ID, email, fullName(event.Data.FirstName, event.Data.LastName, email))
		if err != nil {
			respondError(c, err, "failed to sync user")
			return
		}
		log.Info("clerk user synced", "event", event.Type, "userID", u.ID)
		c.JSON(http.StatusOK, gin.H{"message": "user synced", "user_id": u.ID})
	case "user.deleted":
		err := h.users.DeleteClerkUser(ctx, event.Data.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			respondError(c, err, "failed to delete user")
			return
		}
		log.Info("clerk user deleted", "clerkID", event.Data.ID)
		c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "event received but not handled"})
	}
}
