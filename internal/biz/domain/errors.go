package domain

import "errors"

var (
	// ErrRateLimited is returned by model clients when the provider throttles the caller
	ErrRateLimited = errors.New("rate limited")
	// ErrAPI is returned for any other provider-side failure
	ErrAPI = errors.New("api error")
	// ErrNotFound is returned by repositories for missing keys
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for rejected caller input
	ErrInvalidArgument = errors.New("invalid argument")
)
