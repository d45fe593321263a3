package relay

import (
	"context"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/dify"
)

// DifyUpstream opens chat streams against each bot's own Dify app.
type DifyUpstream struct {
	factory *dify.Factory
}

func NewDifyUpstream(factory *dify.Factory) *DifyUpstream {
	return &DifyUpstream{factory: factory}
}

func (u *DifyUpstream) Chat(ctx context.Context, bot bots.Bot, req dify.ChatRequest) EventStream {
	return u.factory.Client(bot.DifyEndpoint, bot.DifyAPIKey).ChatMessages(ctx, req)
}

// Upload stores an attachment in the bot's Dify app for the next chat request.
func (u *DifyUpstream) Upload(ctx context.Context, bot bots.Bot, user, filename, mimeType string, data []byte) (dify.UploadedFile, error) {
	return u.factory.Client(bot.DifyEndpoint, bot.DifyAPIKey).UploadFile(ctx, user, filename, mimeType, data)
}

// Health probes the bot's Dify app.
func (u *DifyUpstream) Health(ctx context.Context, bot bots.Bot) error {
	return u.factory.Client(bot.DifyEndpoint, bot.DifyAPIKey).Health(ctx)
}
