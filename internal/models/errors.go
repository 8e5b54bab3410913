package models

import "errors"

var (
	// ErrNotFound means the show or watch entry does not exist, upstream or locally.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable is a transient schedule source failure; retry next pass.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrConflict is returned when a watch entry for the same user and show exists.
	ErrConflict = errors.New("watch entry already exists")
	// ErrDeliveryFailed means both the primary and the direct delivery failed.
	ErrDeliveryFailed = errors.New("delivery failed")
)
