package adapter

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
)

// Gateway close codes, see
// https://discord.com/developers/docs/topics/opcodes-and-status-codes#gateway-gateway-close-event-codes
const (
	closeAuthenticationFailed = 4004
	closeDisallowedIntents    = 4014
)

// AuthReason tells why the chat refused the bot.
type AuthReason int

const (
	AuthInvalidToken AuthReason = iota + 1
	AuthMissingIntents
)

// AuthError is returned by Open when the bot cannot log in. It is fatal,
// retrying with the same settings will fail again.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	switch e.Reason {
	case AuthInvalidToken:
		return "improper token passed: " + e.Err.Error()
	case AuthMissingIntents:
		return "privileged intents are required but not enabled: " + e.Err.Error()
	default:
		return "authentication failed: " + e.Err.Error()
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Remediation describes what the operator has to change to fix the error.
func (e *AuthError) Remediation() string {
	switch e.Reason {
	case AuthInvalidToken:
		return "Make sure you have the correct bot token in your .env file and that it's spelled DISCORD_TOKEN."
	case AuthMissingIntents:
		return "Go to your bot's settings on the Discord Developer Portal and enable the 'Message Content Intent'."
	default:
		return "Check the bot settings on the Discord Developer Portal."
	}
}

// ClassifyAuthError turns errors of discordgo which mean that the token or
// the intents of the bot were rejected into an *AuthError. All other errors
// are returned unchanged.
func ClassifyAuthError(err error) error {
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusUnauthorized {
		return &AuthError{Reason: AuthInvalidToken, Err: err}
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case closeAuthenticationFailed:
			return &AuthError{Reason: AuthInvalidToken, Err: err}
		case closeDisallowedIntents:
			return &AuthError{Reason: AuthMissingIntents, Err: err}
		}
	}

	return err
}
