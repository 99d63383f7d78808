package main

import "time"

type Config struct {
	AccountID                 string        `env:"ACCOUNT_ID,required=true"`
	DisplayName               string        `env:"DISPLAY_NAME,required=true"`
	AuthToken                 string        `env:"AUTH_TOKEN,required=true"`
	AppID                     string        `env:"APP_ID,required=true"`
	StreamHost                string        `env:"STREAM_HOST,required=true"`
	PartyServiceURL           string        `env:"PARTY_SERVICE_URL,required=true"`
	PartyBuildID              string        `env:"PARTY_BUILD_ID"`
	AutoConfirm               bool          `env:"AUTO_CONFIRM,default=true"`
	KeepAlive                 time.Duration `env:"KEEP_ALIVE_INTERVAL,default=60s"`
	TelemetryInterval         time.Duration `env:"TELEMETRY_INTERVAL"`
	ModerationEnabled         bool          `env:"MODERATION_ENABLED,default=false"`
	ModerationCharReplacement rune          `env:"MODERATION_CHARACTER_REPLACEMENT,default=42"`
	LimitMessages             *int          `env:"LIMIT_MESSAGES"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
}
