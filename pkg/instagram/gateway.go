package instagram

import (
	"context"
	"fmt"

	"igdmbot/pkg/auth"
	"igdmbot/pkg/config"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/models"
)

// Gateway is the set of remote operations the bot needs.
type Gateway interface {
	FetchRecentPosts(ctx context.Context, limit int) ([]models.Post, error)
	FetchComments(ctx context.Context, postID string) ([]models.Comment, error)
	SendDirectMessage(ctx context.Context, recipientID, text string) error
	PostPublicReply(ctx context.Context, postID, commentID, text string) error
}

var (
	_ Gateway              = (*WebGateway)(nil)
	_ auth.SessionVerifier = (*WebGateway)(nil)
	_ auth.SessionIDLogin  = (*WebGateway)(nil)
	_ auth.PasswordLogin   = (*WebGateway)(nil)

	_ Gateway              = (*GraphGateway)(nil)
	_ auth.SessionVerifier = (*GraphGateway)(nil)
	_ auth.TokenValidator  = (*GraphGateway)(nil)
)

// ModeFor picks the binding. An explicit mode wins; otherwise the
// credential kind decides.
func ModeFor(mode string, kind auth.Kind) string {
	switch mode {
	case config.ModeWeb, config.ModeGraph:
		return mode
	}
	if kind == auth.KindAccessToken {
		return config.ModeGraph
	}
	return config.ModeWeb
}

// NewGateway builds the binding for mode. The returned value also
// implements the auth back-end interfaces of that binding.
func NewGateway(cfg config.InstagramConfig, mode string, log logger.Logger) (Gateway, error) {
	switch mode {
	case config.ModeWeb:
		return NewWebGateway(cfg, log), nil
	case config.ModeGraph:
		return NewGraphGateway(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", mode)
	}
}
