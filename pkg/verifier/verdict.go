package verifier

// Source identifies which check produced the final verdict. Attribution
// follows a fixed preference order:
// billing_api > paid_emails > users_collection > auth_claims >
// billing_api_negative > none.
type Source string

const (
	// SourceBillingAPI means the payment provider's live state confirmed
	// an active subscription.
	SourceBillingAPI Source = "billing_api"

	// SourcePaidEmails means the paid-emails document granted
	// eligibility without provider confirmation.
	SourcePaidEmails Source = "paid_emails"

	// SourceUsersCollection means the user document granted eligibility
	// without provider confirmation.
	SourceUsersCollection Source = "users_collection"

	// SourceAuthClaims means identity custom claims granted eligibility
	// without provider confirmation.
	SourceAuthClaims Source = "auth_claims"

	// SourceBillingAPINegative means the payment provider contradicted
	// the cached sources or reported the subscription missing.
	SourceBillingAPINegative Source = "billing_api_negative"

	// SourceNone means no source produced a positive signal.
	SourceNone Source = "none"
)

// SourceResult records what a single check observed, for diagnostics.
type SourceResult struct {
	Checked            bool   `json:"checked"`
	Found              bool   `json:"found"`
	Eligible           bool   `json:"eligible"`
	IsPremium          bool   `json:"isPremium"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
	CancelAtPeriodEnd  bool   `json:"cancelAtPeriodEnd"`
	Error              string `json:"error,omitempty"`
}

// Correction describes the best-effort write-back issued when the payment
// provider contradicted the cached sources. It is attempted synchronously
// within Verify; a non-nil Err never fails the verdict itself.
type Correction struct {
	Attempted bool  `json:"attempted"`
	Err       error `json:"-"`
}

// Verdict is the outcome of a Verify call.
type Verdict struct {
	Eligible           bool                    `json:"eligible"`
	Source             Source                  `json:"source"`
	CancelAtPeriodEnd  bool                    `json:"cancelAtPeriodEnd"`
	SubscriptionStatus string                  `json:"subscriptionStatus,omitempty"`
	Diagnostics        map[Source]SourceResult `json:"diagnostics,omitempty"`
	Correction         *Correction             `json:"correction,omitempty"`
}
