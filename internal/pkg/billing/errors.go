package billing

import "errors"

var (
	ErrUnauthenticated         = errors.New("user must be authenticated")
	ErrInvalidCheckoutRequest  = errors.New("invalid checkout request")
	ErrCourseNotFound          = errors.New("course not found")
	ErrPurchaseSessionNotFound = errors.New("purchase session not found")
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrUnknownPurchaseSession  = errors.New("unknown purchase session")
	ErrUnknownCustomer         = errors.New("unknown stripe customer")
	ErrPurchaseSessionExpired  = errors.New("purchase session already expired")
)
