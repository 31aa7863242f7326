package domain

// JobStatus is the lifecycle position of an ExtractionJob.
type JobStatus string

const (
	StatusPending             JobStatus = "pending"
	StatusProcessing          JobStatus = "processing"
	StatusCompleted           JobStatus = "completed"
	StatusDuplicate           JobStatus = "duplicate"
	StatusNotARecipe          JobStatus = "not_a_recipe"
	StatusWebsiteBlocked      JobStatus = "website_blocked"
	StatusNeedsClientDownload JobStatus = "needs_client_download"
	StatusFailed              JobStatus = "failed"
	StatusCancelled           JobStatus = "cancelled"
)

// allowedTransitions is the whole job state machine. A status missing
// from the map, or mapping to nothing, is terminal.
var allowedTransitions = map[JobStatus][]JobStatus{
	StatusPending: {StatusProcessing, StatusCancelled},
	StatusProcessing: {
		StatusCompleted,
		StatusDuplicate,
		StatusNotARecipe,
		StatusWebsiteBlocked,
		StatusNeedsClientDownload,
		StatusFailed,
		StatusCancelled,
	},
	// needs_client_download is terminal until the client uploads the video.
	StatusNeedsClientDownload: {StatusProcessing},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusDuplicate,
		StatusNotARecipe, StatusWebsiteBlocked, StatusNeedsClientDownload,
		StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves s.
// needs_client_download counts as terminal; only Resume reopens it.
func (s JobStatus) IsTerminal() bool {
	return s != StatusPending && s != StatusProcessing
}

// Cancellable reports whether a user may cancel a job in status s.
func (s JobStatus) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// Processing steps recorded in ExtractionJob.CurrentStep before the engine
// starts reporting its own progress.
const (
	StepQueued     = "queued"
	StepExtracting = "extracting"
)

// SourceKind is the kind of input an extraction starts from.
type SourceKind string

const (
	SourceVideo SourceKind = "video"
	SourcePhoto SourceKind = "photo"
	SourceVoice SourceKind = "voice"
	SourceURL   SourceKind = "url"
	SourcePaste SourceKind = "paste"
	SourceLink  SourceKind = "link"
)

// Valid reports whether k is a supported source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceVideo, SourcePhoto, SourceVoice, SourceURL, SourcePaste, SourceLink:
		return true
	}
	return false
}

// MayReferenceVideo reports whether locators of kind k can point at a
// hosted video and so take part in duplicate detection.
func (k SourceKind) MayReferenceVideo() bool {
	return k == SourceVideo || k == SourceURL || k == SourceLink
}

// CreditType names a ledger pool.
type CreditType string

const (
	CreditStandard CreditType = "standard"
	CreditReferral CreditType = "referral"
)

// TxReason is the cause recorded on a CreditTransaction.
type TxReason string

const (
	ReasonWeeklyReset   TxReason = "weekly_reset"
	ReasonExtraction    TxReason = "extraction"
	ReasonRefund        TxReason = "refund"
	ReasonReferralBonus TxReason = "referral_bonus"
	ReasonExpired       TxReason = "expired"
)

// GrantSource says which side of a referral a grant was minted for.
type GrantSource string

const (
	GrantReferrer GrantSource = "referrer"
	GrantReferee  GrantSource = "referee"
)

// ReservationStatus tracks settlement of a CreditReservation.
type ReservationStatus string

const (
	ReservationHeld     ReservationStatus = "held"
	ReservationConsumed ReservationStatus = "consumed"
	ReservationRefunded ReservationStatus = "refunded"
)
