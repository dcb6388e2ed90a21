// Package audit carries request metadata to the activity log.
package audit

import (
	"context"

	"qlink/internal/models"
)

type Meta struct {
	IP        string
	UserAgent string
}

type metaKey struct{}

func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func FromContext(ctx context.Context) Meta {
	m, _ := ctx.Value(metaKey{}).(Meta)
	return m
}

// Entry builds an activity row stamped with the request metadata in ctx.
// userID 0 records an anonymous action.
func Entry(ctx context.Context, userID int64, action, description string) models.Activity {
	m := FromContext(ctx)
	a := models.Activity{
		Action:      action,
		Description: description,
		IPAddress:   m.IP,
		UserAgent:   m.UserAgent,
	}
	if userID > 0 {
		a.UserID = &userID
	}
	return a
}
