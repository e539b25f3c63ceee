package ratelimit

import "strings"

// DefaultRedisPrefix namespaces limiter keys in a shared Redis.
const DefaultRedisPrefix = "qrbilling:rl"

// Settings captures the limiter backend configuration.
type Settings struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Normalize trims fields and applies defaults.
func (s Settings) Normalize() Settings {
	s.RedisAddr = strings.TrimSpace(s.RedisAddr)
	s.RedisPassword = strings.TrimSpace(s.RedisPassword)
	s.RedisPrefix = strings.TrimSpace(s.RedisPrefix)
	if s.RedisPrefix == "" {
		s.RedisPrefix = DefaultRedisPrefix
	}
	if s.RedisDB < 0 {
		s.RedisDB = 0
	}
	if s.Limit < 0 {
		s.Limit = 0
	}
	return s
}

// StaticSettings returns a provider that always yields s.
func StaticSettings(s Settings) SettingsProvider {
	normalized := s.Normalize()
	return func() Settings { return normalized }
}
