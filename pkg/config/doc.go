// Package config loads typed configuration structs from environment
// variables, with a .env file picked up once for local development.
//
// Each struct type is parsed once per process and cached; concurrent loads
// of the same type see the same value.
//
//	type QueueConfig struct {
//		RedisURL   string `env:"REDIS_URL,required"`
//		MaxRetries int    `env:"QUEUE_MAX_RETRIES" envDefault:"5"`
//	}
//
//	var cfg QueueConfig
//	config.MustLoad(&cfg)
package config
