package config

import "time"

const defaultPort = 8081

var defaultAPI = API{
	BaseURL: "http://localhost:3000/api",
	Timeout: 10 * time.Second,
}

var defaultGateway = Gateway{
	MaxAttempts: 4,
	BaseDelay:   150 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

var defaultBroadcast = Broadcast{
	DefaultDuration:  60 * time.Second,
	MinFetchInterval: 30 * time.Second,
	PollInterval:     45 * time.Second,
	SweepInterval:    time.Second,
}

var defaultRealtime = Realtime{
	ReconnectDelay: 2 * time.Second,
}

var defaultSession = Session{
	Path: ".driver-session.json",
}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       20,
	Burst:      40,
	TTL:        5 * time.Minute,
	MaxBuckets: 1024,
}

// DefaultPort returns the default local dashboard port.
func DefaultPort() int {
	return defaultPort
}

// DefaultAPI returns the default delivery backend client settings.
func DefaultAPI() API {
	return defaultAPI
}

// DefaultGateway returns the default gateway retry settings.
func DefaultGateway() Gateway {
	return defaultGateway
}

// DefaultBroadcast returns the default broadcast coordination settings.
func DefaultBroadcast() Broadcast {
	return defaultBroadcast
}

// DefaultRealtime returns the default realtime transport settings.
func DefaultRealtime() Realtime {
	return defaultRealtime
}

// DefaultSession returns the default session store settings.
func DefaultSession() Session {
	return defaultSession
}

// DefaultRateLimit returns the default local rate limiter settings.
func DefaultRateLimit() RateLimit {
	return defaultRateLimit
}
