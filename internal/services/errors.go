// Package services defines the business logic for extraction jobs, the
// duplicate video index and the referral program. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"

	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
)

// Extraction job errors.
var (
	// ErrInvalidSourceKind is returned when a job names an unknown source kind.
	ErrInvalidSourceKind = errors.New("invalid source kind")

	// ErrInvalidLocators is returned when a job has no usable locator or
	// more than MaxLocators.
	ErrInvalidLocators = errors.New("between 1 and 5 non-empty locators are required")

	// ErrJobNotFound indicates that the requested job does not exist or is
	// not owned by the current user.
	ErrJobNotFound = errors.New("extraction job not found")

	// ErrJobNotCancellable is returned when cancelling a job that already
	// reached a terminal status.
	ErrJobNotCancellable = errors.New("extraction job can no longer be cancelled")

	// ErrJobNotResumable is returned when uploading a video for a job that is
	// not waiting for one.
	ErrJobNotResumable = errors.New("extraction job is not waiting for a video upload")

	// ErrEmptyUpload is returned when a resume upload carries no bytes.
	ErrEmptyUpload = errors.New("uploaded video is empty")

	// ErrInvalidOutcome is returned when an engine result cannot be applied.
	ErrInvalidOutcome = errors.New("invalid extraction outcome")

	// ErrInsufficientCredits is returned when the user cannot pay for a job.
	// No job row is created in that case.
	ErrInsufficientCredits = ledger.ErrInsufficientCredits
)

// Recipe errors.
var (
	// ErrRecipeNotFound indicates that the recipe does not exist, or is
	// neither owned by the caller nor public.
	ErrRecipeNotFound = errors.New("recipe not found")
)

// Duplicate index errors.
var (
	// ErrNotIndexed means no recipe is registered for the video.
	ErrNotIndexed = errors.New("video not indexed")

	// ErrAlreadyRegistered means another recipe already owns the video.
	ErrAlreadyRegistered = errors.New("video already registered")
)

// Referral errors.
var (
	// ErrInvalidCode is returned for an unknown or malformed referral code.
	ErrInvalidCode = errors.New("invalid referral code")

	// ErrSelfReferral is returned when a user redeems their own code.
	ErrSelfReferral = errors.New("cannot redeem your own referral code")

	// ErrAlreadyRedeemed is returned when the referee already used a code.
	ErrAlreadyRedeemed = errors.New("referral code already redeemed")
)
