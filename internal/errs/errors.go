package errs

import (
	"errors"
	"fmt"

	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

// Kind classifies failures by who has to act on them
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindState        Kind = "STATE"
	KindResolution   Kind = "RESOLUTION"
	KindTransport    Kind = "TRANSPORT"
	KindConnection   Kind = "CONNECTION"
	KindPresentation Kind = "PRESENTATION"
	KindInternal     Kind = "INTERNAL"
)

// BotError is a failure with a message safe to show in the channel
type BotError struct {
	Kind        Kind
	Message     string
	UserMessage string
	Cause       error
	Context     map[string]interface{}
}

func (e *BotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *BotError) Unwrap() error {
	return e.Cause
}

// New creates a BotError
func New(kind Kind, message, userMessage string, cause error) *BotError {
	return &BotError{
		Kind:        kind,
		Message:     message,
		UserMessage: userMessage,
		Cause:       cause,
		Context:     make(map[string]interface{}),
	}
}

// WithContext attaches a structured field logged alongside the error
func (e *BotError) WithContext(key string, value interface{}) *BotError {
	e.Context[key] = value
	return e
}

// Validation errors echo their message back to the user.
func Validation(userMessage string) *BotError {
	return New(KindValidation, userMessage, userMessage, nil)
}

func State(userMessage string, cause error) *BotError {
	return New(KindState, userMessage, userMessage, cause)
}

func Resolution(message string, cause error) *BotError {
	return New(KindResolution, message, "", cause)
}

func Transport(message string, cause error) *BotError {
	return New(KindTransport, message, "", cause)
}

func Connection(message string, cause error) *BotError {
	return New(KindConnection, message, "", cause)
}

func Presentation(message string, cause error) *BotError {
	return New(KindPresentation, message, "", cause)
}

func Internal(message string, cause error) *BotError {
	return New(KindInternal, message, "", cause)
}

// KindOf returns the kind of the first BotError in err's chain, or KindInternal
func KindOf(err error) Kind {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr.Kind
	}
	return KindInternal
}

// Handler logs errors and turns them into channel replies
type Handler struct {
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewHandler(log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{log: log, metrics: m}
}

// Handle logs err and returns the message to show the user.
// Presentation failures return an empty string since replying would likely fail too.
func (h *Handler) Handle(err error, fields logger.Fields) string {
	if err == nil {
		return ""
	}

	var botErr *BotError
	if !errors.As(err, &botErr) {
		botErr = Internal(err.Error(), err)
	}

	if fields == nil {
		fields = logger.Fields{}
	}
	for k, v := range botErr.Context {
		fields[k] = v
	}
	fields["kind"] = string(botErr.Kind)

	switch botErr.Kind {
	case KindValidation, KindState:
		h.log.Debug(botErr.Error(), fields)
	case KindResolution, KindTransport, KindPresentation:
		h.log.Warn(botErr.Error(), fields)
	default:
		h.log.Error(botErr.Message, botErr.Cause, fields)
	}
	if h.metrics != nil {
		h.metrics.RecordError(string(botErr.Kind))
	}

	if botErr.Kind == KindPresentation {
		return ""
	}
	return UserMessage(botErr)
}

// UserMessage picks the reply text for a BotError
func UserMessage(err *BotError) string {
	if err.UserMessage != "" {
		return err.UserMessage
	}

	switch err.Kind {
	case KindValidation:
		return "❌ Invalid input."
	case KindState:
		return "❌ Nothing is playing right now."
	case KindResolution:
		return "❌ Couldn't get an audio stream for that track."
	case KindTransport:
		return "❌ The audio stream could not be opened."
	case KindConnection:
		return "❌ I couldn't connect to your voice channel. Check that I can join and speak there."
	default:
		return "❌ Something went wrong. Please try again."
	}
}

// Recover converts a panic into an internal error passed to report
func Recover(report func(error)) {
	if r := recover(); r != nil {
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("panic recovered: %v", r)
		}
		report(Internal("panic recovered", err))
	}
}
