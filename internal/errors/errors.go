// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrReauthRequired       = errors.New("refresh token expired, interactive re-authentication required")
	ErrRefreshLimitExceeded = errors.New("token renewal attempt limit exceeded")
	ErrPositionNotFound     = errors.New("position not found")
	ErrInstrumentNotFound   = errors.New("instrument not found")
	ErrQuoteUnavailable     = errors.New("quote unavailable")
	ErrPositionUnconfirmed  = errors.New("order sent but position could not be confirmed")
	ErrOrderNotWorking      = errors.New("order is not in working state")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrScheduleEmpty        = errors.New("no trade intents for today")
)

// BrokerError represents an error returned by the broker API.
type BrokerError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *BrokerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("broker error [%s] (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("broker error (http %d): %s", e.StatusCode, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(statusCode int, code, message string) *BrokerError {
	return &BrokerError{StatusCode: statusCode, Code: code, Message: message}
}

// RejectionError is a broker-side rejection of an order (insufficient
// margin, market closed, instrument not allowed). Reported and aborted,
// never retried.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected [%s]: %s", e.Code, e.Message)
}

// NewRejectionError creates a new RejectionError.
func NewRejectionError(code, message string) *RejectionError {
	return &RejectionError{Code: code, Message: message}
}

// OrderError represents an error related to an order operation.
type OrderError struct {
	OrderID string
	Ticker  string
	Action  string
	Err     error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order error [%s] %s %s: %v", e.OrderID, e.Action, e.Ticker, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, ticker, action string, err error) *OrderError {
	return &OrderError{OrderID: orderID, Ticker: ticker, Action: action, Err: err}
}

// authIndicators are the message fragments the broker uses for
// credential failures.
var authIndicators = []string{
	"401",
	"unauthorized",
	"invalid token",
	"token expired",
}

// IsAuthError reports whether err is an authentication failure that a
// token renewal can recover from.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var be *BrokerError
	if errors.As(err, &be) && be.StatusCode == 401 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range authIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a transient network failure
// (timeout, connection reset, server-side 5xx). Transient failures are
// never auth failures and are retried only by caller-level loops.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var be *BrokerError
	if errors.As(err, &be) {
		return be.StatusCode >= 500
	}
	return false
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
