// Package instagram wires the Instagram messaging channel.
package instagram

import (
	"salesbot_backend/internal/channel/meta"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

// Name is the channel identifier used in routes and conversation keys.
const Name = "instagram"

const defaultBaseURL = "https://graph.instagram.com/v21.0"

// New creates the Instagram adapter.
func New(settings config.ChannelSettings, verifySignatures bool, log *logger.Logger) *meta.Adapter {
	return meta.New(meta.Options{
		Channel:          Name,
		Object:           "instagram",
		DefaultBaseURL:   defaultBaseURL,
		Settings:         settings,
		VerifySignatures: verifySignatures,
	}, log)
}
