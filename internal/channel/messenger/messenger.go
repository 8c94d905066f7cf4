// Package messenger wires the Facebook Messenger channel.
package messenger

import (
	"salesbot_backend/internal/channel/meta"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

// Name is the channel identifier used in routes and conversation keys.
const Name = "messenger"

const defaultBaseURL = "https://graph.facebook.com/v21.0"

// New creates the Messenger adapter. Page webhooks carry object "page".
func New(settings config.ChannelSettings, verifySignatures bool, log *logger.Logger) *meta.Adapter {
	return meta.New(meta.Options{
		Channel:          Name,
		Object:           "page",
		DefaultBaseURL:   defaultBaseURL,
		Settings:         settings,
		VerifySignatures: verifySignatures,
	}, log)
}
