package adapters

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"salesbot_backend/internal/channel"
	"salesbot_backend/internal/channel/instagram"
	"salesbot_backend/internal/channel/messenger"
	"salesbot_backend/internal/channel/telegram"
	"salesbot_backend/internal/conversation"
	"salesbot_backend/internal/leads/repository"
	"salesbot_backend/internal/scheduler"
	"salesbot_backend/platform/config"
	"salesbot_backend/platform/logger"
)

// NewRedisClient returns nil when no Redis URL is configured.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}
	opts, err := scheduler.RedisOptions(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// NewChannelRegistry registers every enabled channel.
func NewChannelRegistry(cfg config.ChannelConfig, log *logger.Logger) *channel.Registry {
	registry := channel.NewRegistry()
	verify := cfg.GetVerifySignatures()

	if s := cfg.GetInstagram(); s.Enabled {
		registry.Register(instagram.New(s, verify, log))
	}
	if s := cfg.GetMessenger(); s.Enabled {
		registry.Register(messenger.New(s, verify, log))
	}
	if s := cfg.GetTelegram(); s.Enabled {
		registry.Register(telegram.New(s, verify, log))
	}
	return registry
}

// NewConversationBackend picks the conversation persistence. pool may be nil
// for the file backend.
func NewConversationBackend(cfg config.StoreConfig, pool *pgxpool.Pool) (conversation.Backend, error) {
	switch cfg.GetStoreBackend() {
	case config.StoreBackendFile:
		backend, err := conversation.OpenFileBackend(cfg.GetStoreDir())
		if err != nil {
			return nil, err
		}
		return backend, nil
	case config.StoreBackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres store backend requires a database pool")
		}
		return conversation.NewPostgresBackend(pool), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.GetStoreBackend())
	}
}

// NewLeadRepository mirrors NewConversationBackend for leads.
func NewLeadRepository(cfg config.StoreConfig, pool *pgxpool.Pool) (repository.LeadRepository, error) {
	switch cfg.GetStoreBackend() {
	case config.StoreBackendFile:
		repo, err := repository.OpenFile(cfg.GetStoreDir())
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreBackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres store backend requires a database pool")
		}
		return repository.NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.GetStoreBackend())
	}
}

// OwnerKey addresses the owner's chat on the configured owner channel. The
// zero key is returned when the channel or recipient is missing.
func OwnerKey(cfg config.ChannelConfig) conversation.Key {
	var settings config.ChannelSettings
	switch cfg.GetOwnerChannel() {
	case instagram.Name:
		settings = cfg.GetInstagram()
	case messenger.Name:
		settings = cfg.GetMessenger()
	case telegram.Name:
		settings = cfg.GetTelegram()
		settings.ScopeID = telegram.BotID(settings)
	default:
		return conversation.Key{}
	}
	if !settings.Enabled || settings.OwnerRecipient == "" {
		return conversation.Key{}
	}
	return conversation.NewKey(cfg.GetOwnerChannel(), settings.ScopeID, settings.OwnerRecipient)
}
