package domain

import (
	"context"
	"errors"
	"fmt"
)

// Классы ошибок ядра. Проверяются через errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrProvider            = errors.New("provider error")
	ErrPlatform            = errors.New("platform error")
	ErrTimeout             = errors.New("timeout")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Error несёт класс ошибки, операцию и исходную причину.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap раскрывает и класс, и причину.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Validation создаёт ошибку валидации.
func Validation(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: msg}
}

// NotFound создаёт ошибку отсутствующей записи.
func NotFound(op, msg string) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: msg}
}

// InvalidState создаёт ошибку недопустимого состояния.
func InvalidState(op, msg string) error {
	return &Error{Kind: ErrInvalidState, Op: op, Msg: msg}
}

// Unsupported создаёт ошибку неизвестной платформы.
func Unsupported(op string, platform Platform) error {
	return &Error{Kind: ErrUnsupportedPlatform, Op: op, Msg: fmt.Sprintf("unsupported platform %q", platform)}
}

// ProviderFailure оборачивает сбой AI-провайдера; истечение дедлайна
// дополнительно помечается как ErrTimeout.
func ProviderFailure(op string, err error) error {
	return failure(ErrProvider, op, err)
}

// PlatformFailure оборачивает сбой публикации в платформу.
func PlatformFailure(op string, err error) error {
	return failure(ErrPlatform, op, err)
}

func failure(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) && (errors.Is(err, ErrValidation) || errors.Is(err, ErrUnsupportedPlatform)) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Code возвращает машиночитаемый код класса ошибки.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUnsupportedPlatform):
		return "unsupported_platform"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrProvider):
		return "provider_error"
	case errors.Is(err, ErrPlatform):
		return "platform_error"
	default:
		return "internal_error"
	}
}
