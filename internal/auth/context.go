package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
)

const ginUserIDKey = "user_id"

var ErrNoIdentity = errors.New("auth: user_id not in context")

func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoIdentity
}

// UserIDFromGin reads the identity set by RequireAccessToken.
func UserIDFromGin(c *gin.Context) (string, error) {
	if s := c.GetString(ginUserIDKey); s != "" {
		return s, nil
	}
	return UserID(c.Request.Context())
}
