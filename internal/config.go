package internal

import "time"

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8000"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`

	// BufferSize bounds the outbound command queue feeding the gateway.
	BufferSize int `env:"BUFFER_SIZE,default=1024"`
	// SendBufferSize bounds each connection's private write queue.
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	RetentionWindow time.Duration `env:"RETENTION_WINDOW,default=48h"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL,default=1h"`
	DedupWindow     time.Duration `env:"DEDUP_WINDOW,default=1500ms"`

	KeepAliveURL      string        `env:"KEEPALIVE_URL"`
	KeepAliveInterval time.Duration `env:"KEEPALIVE_INTERVAL,default=5m"`

	VapidPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VapidPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VapidSubscriber string `env:"VAPID_SUBSCRIBER,default=mailto:example@domain.com"`
	PushBufferSize  int    `env:"PUSH_BUFFER_SIZE,default=64"`

	// DebugPort serves the badger inspector when non-zero.
	DebugPort int `env:"DEBUG_PORT"`
}
