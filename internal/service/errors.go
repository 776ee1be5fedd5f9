package service

import (
	"errors"
	"fmt"

	"torch/internal/domain"
)

// Validation failures. All of them are recoverable and shown to the member as-is.
var (
	ErrNoDateSelected       = errors.New("no date selected")
	ErrInvalidDate          = errors.New("invalid date")
	ErrMissingTimeRange     = errors.New("start and end time are required")
	ErrInvalidTimeRange     = errors.New("invalid time range")
	ErrGuestLimitExceeded   = errors.New("guest limit exceeded")
	ErrInsufficientHours    = errors.New("insufficient hours")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailNotFound        = errors.New("email not found")
	ErrInvalidAccessCode    = errors.New("invalid access code")
	ErrMissingGuestDetails  = errors.New("session and guest name are required")
	ErrUnknownSession       = errors.New("unknown session")
	ErrMissingInquiryFields = errors.New("name, email and role are required")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrNotLoggedIn          = errors.New("no member signed in")
	ErrMissingCardToken     = errors.New("card token is required")
	ErrMemberNotFound       = domain.ErrMemberNotFound
)

// GuestLimitError carries the tier limit that was hit.
// Registration is set when the limit was hit while adding a guest to an existing session.
type GuestLimitError struct {
	Limit        int
	Registration bool
}

func (e *GuestLimitError) Error() string {
	return fmt.Sprintf("guest limit exceeded: tier allows %d", e.Limit)
}

func (e *GuestLimitError) Is(target error) bool {
	return target == ErrGuestLimitExceeded
}

// InsufficientHoursError carries the hours still available this cycle.
type InsufficientHoursError struct {
	Remaining int
}

func (e *InsufficientHoursError) Error() string {
	return fmt.Sprintf("insufficient hours: %d remaining", e.Remaining)
}

func (e *InsufficientHoursError) Is(target error) bool {
	return target == ErrInsufficientHours
}

// ProviderError wraps a payment provider failure with the text shown to the member.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment provider: %s: %v", e.Message, e.Err)
	}
	return "payment provider: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// UserMessage maps a service error to the text the portal shows next to the form.
func UserMessage(err error) string {
	var (
		guestErr    *GuestLimitError
		hoursErr    *InsufficientHoursError
		providerErr *ProviderError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &guestErr):
		if guestErr.Registration {
			return fmt.Sprintf("Maximum %d guests allowed for your tier.", guestErr.Limit)
		}
		return fmt.Sprintf("Your tier allows maximum %d guests.", guestErr.Limit)
	case errors.As(err, &hoursErr):
		return fmt.Sprintf("You only have %d hours available.", hoursErr.Remaining)
	case errors.As(err, &providerErr):
		return providerErr.Message
	case errors.Is(err, ErrNoDateSelected):
		return "Please select a date first."
	case errors.Is(err, ErrInvalidDate):
		return "Please select a valid date."
	case errors.Is(err, ErrMissingTimeRange):
		return "Please select start and end times."
	case errors.Is(err, ErrInvalidTimeRange):
		return "Please select a valid time range."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials. Please try again."
	case errors.Is(err, ErrEmailNotFound):
		return "Email not found. Please check your email or request membership."
	case errors.Is(err, ErrInvalidAccessCode):
		return "Invalid access code. Please try again."
	case errors.Is(err, ErrMissingGuestDetails):
		return "Please select a session and enter guest name."
	case errors.Is(err, ErrUnknownSession):
		return "That session could not be found."
	case errors.Is(err, ErrMissingInquiryFields):
		return "Please fill in all required fields."
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrNotLoggedIn):
		return "Not logged in."
	case errors.Is(err, ErrMissingCardToken):
		return "Please fill in all card details."
	default:
		return "An error occurred. Please try again."
	}
}
