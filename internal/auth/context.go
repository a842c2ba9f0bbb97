package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxPropertyID
	ctxRole
)

func WithIdentity(ctx context.Context, userID, propertyID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxPropertyID, propertyID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxUserID, "user_id")
}

func PropertyID(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxPropertyID, "property_id")
}

func Role(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxRole, "role")
}

func stringValue(ctx context.Context, key ctxKey, name string) (string, error) {
	if s, ok := ctx.Value(key).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New(name + " not in context")
}
