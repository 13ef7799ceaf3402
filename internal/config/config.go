package config

import "time"

type Config struct {
	BaseURL  string
	HttpPort int
	Db       struct {
		Dsn         string
		Automigrate bool
	}
	Jwt struct {
		SecretKey string
	}
	Notifications struct {
		Email string
	}
	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Mpesa struct {
		BaseURL        string
		ConsumerKey    string
		ConsumerSecret string
		PassKey        string
		ShortCode      string
		CallbackURL    string
	}
	Payments struct {
		// client-facing watch policy
		PollInterval       time.Duration
		MaxTransportErrors int
		DelayedAfter       time.Duration

		// server-side reconciliation job
		ExpireAfter    time.Duration
		ReconcileEvery time.Duration
		ReconcileBatch int
	}
	Bulk struct {
		Concurrency int
	}
	KafkaServers string
	RedisServer  string
}
