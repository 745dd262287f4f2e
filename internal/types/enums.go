package types

// UserStatus tracks the account lifecycle.
type UserStatus string

const (
	// UserStatusPending means the account exists but the email address has
	// not been confirmed yet. Pending users cannot log in.
	UserStatusPending UserStatus = "pending"
	UserStatusActive  UserStatus = "active"
)

// PredictionModel selects the model exercised by the compute endpoint.
// Only the random forest model is exposed.
type PredictionModel string

const (
	ModelRandomForest PredictionModel = "random_forest"
)

// ConfirmFlow identifies the auth flow a redirect token belongs to. It arrives
// as the "type" query parameter on the confirmation endpoint.
type ConfirmFlow string

const (
	// ConfirmFlowSignup confirms a new account's email address.
	ConfirmFlowSignup ConfirmFlow = "signup"
	// ConfirmFlowRecovery validates a password-reset token.
	ConfirmFlowRecovery ConfirmFlow = "recovery"
)

// PredictionMode selects between the live compute endpoint and the local
// simulation fallback.
type PredictionMode string

const (
	ModeLive      PredictionMode = "live"
	ModeSimulated PredictionMode = "simulated"
)
