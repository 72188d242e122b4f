// Package config loads the bot configuration from the environment and an
// optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration is wrapped by every error returned from Load.
var ErrConfiguration = errors.New("configuration error")

const (
	AdapterDiscord = "discord"
	AdapterCLI     = "cli"

	DefaultQuotesURL      = "https://raw.githubusercontent.com/KushagraSingh78/HollowQuotes/refs/heads/main/quotes.json"
	DefaultQuotesTimeout  = 10 * time.Second
	DefaultHandlerTimeout = time.Minute
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultBotName        = "quotebot"
)

// Config contains all settings of the bot. Keys map one to one onto
// environment variables, e.g. QuotesURL is read from QUOTES_URL.
type Config struct {
	DiscordToken   string        `mapstructure:"discord_token"   validate:"required_if=Adapter discord"`
	Adapter        string        `mapstructure:"bot_adapter"     validate:"required,oneof=discord cli"`
	BotName        string        `mapstructure:"bot_name"        validate:"required"`
	QuotesURL      string        `mapstructure:"quotes_url"      validate:"required,url"`
	QuotesTimeout  time.Duration `mapstructure:"quotes_timeout"  validate:"min=1ms"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" validate:"min=0"`
	LogLevel       string        `mapstructure:"log_level"       validate:"oneof=debug info warn error"`
	LogFormat      string        `mapstructure:"log_format"      validate:"oneof=json console"`
}

// Load reads the configuration. Values from the environment take precedence
// over the ones in envFile, which may not exist. An empty envFile skips the
// file entirely.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrConfiguration, envFile, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	cfg.Adapter = strings.ToLower(strings.TrimSpace(cfg.Adapter))
	cfg.DiscordToken = strings.TrimSpace(cfg.DiscordToken)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

// Validate checks the struct tags of the configuration and turns the
// validator output into messages which tell the operator what to change.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	if fe.StructField() == "DiscordToken" {
		return "DISCORD_TOKEN environment variable not found, " +
			"make sure you have created a .env file with DISCORD_TOKEN=YOUR_BOT_TOKEN_HERE"
	}

	env := strings.ToUpper(envKey(fe.StructField()))
	return fmt.Sprintf("%s: invalid value %v (%s %s)", env, fe.Value(), fe.Tag(), fe.Param())
}

func envKey(field string) string {
	switch field {
	case "Adapter":
		return "bot_adapter"
	case "BotName":
		return "bot_name"
	case "QuotesURL":
		return "quotes_url"
	case "QuotesTimeout":
		return "quotes_timeout"
	case "HandlerTimeout":
		return "handler_timeout"
	case "LogLevel":
		return "log_level"
	case "LogFormat":
		return "log_format"
	}
	return field
}

// Every key needs a default so viper.AutomaticEnv picks it up on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("discord_token", "")
	v.SetDefault("bot_adapter", AdapterDiscord)
	v.SetDefault("bot_name", DefaultBotName)
	v.SetDefault("quotes_url", DefaultQuotesURL)
	v.SetDefault("quotes_timeout", DefaultQuotesTimeout)
	v.SetDefault("handler_timeout", DefaultHandlerTimeout)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
}
