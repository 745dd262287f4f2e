package types

import (
	"time"
)

// User represents a registered account. Email is immutable after signup;
// only the display name may change via profile update.
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name,omitempty" db:"name"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Status       UserStatus `json:"status" db:"status"`

	// Email confirmation (set while status is 'pending')
	ConfirmTokenHash string     `json:"-" db:"confirm_token_hash"`
	ConfirmExpiresAt *time.Time `json:"-" db:"confirm_expires_at"`

	// Password reset
	ResetTokenHash string     `json:"-" db:"reset_token_hash"`
	ResetExpiresAt *time.Time `json:"-" db:"reset_expires_at"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// Session represents an authenticated user session.
type Session struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	CSRFToken      string    `json:"-" db:"csrf_token"`
	UserAgent      string    `json:"user_agent" db:"user_agent"`
	IPAddress      string    `json:"ip_address" db:"ip_address"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// SecurityEvent records an authentication attempt for abuse tracking.
type SecurityEvent struct {
	ID            int64     `db:"id"`
	EventType     string    `db:"event_type"`
	Identifier    string    `db:"identifier"`
	IPAddress     string    `db:"ip_address"`
	AttemptedAt   time.Time `db:"attempted_at"`
	Success       bool      `db:"success"`
	FailureReason string    `db:"failure_reason"`
}

// PredictionRecord is the core domain entity: a computed wildfire-risk result
// for a location together with the environmental readings that informed it.
// Records are immutable once returned by a prediction source and are persisted
// keyed by user and creation time.
type PredictionRecord struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id,omitempty" db:"user_id"`
	Location string `json:"location" db:"location"`

	// Probability is the wildfire-risk probability in percent, always in [0,100].
	Probability float64 `json:"probability" db:"probability"`

	// Environmental readings
	CO2Level     float64 `json:"co2_level" db:"co2_level"`
	Temperature  float64 `json:"temperature" db:"temperature"`
	Humidity     float64 `json:"humidity" db:"humidity"`
	DroughtIndex float64 `json:"drought_index" db:"drought_index"`

	// Optional air-quality readings
	AirQualityIndex *float64 `json:"air_quality_index,omitempty" db:"air_quality_index"`
	PM25            *float64 `json:"pm2_5,omitempty" db:"pm2_5"`

	// Optional enrichment
	Historic   *HistoricSummary   `json:"historic_data,omitempty" db:"historic_data"`
	Vegetation *VegetationIndices `json:"vegetation,omitempty" db:"vegetation"`
	LandCover  *LandCover         `json:"land_cover,omitempty" db:"land_cover"`

	// Model provenance
	ModelType         string             `json:"model_type" db:"model_type"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty" db:"feature_importance"`

	// Simulated marks records produced by the local fallback rather than the
	// live compute endpoint.
	Simulated bool `json:"simulated" db:"simulated"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LandCover is the percentage breakdown of a location's surface.
// Percentages are non-negative and informally sum to 100.
type LandCover struct {
	Forest    float64 `json:"forest"`
	Grassland float64 `json:"grassland"`
	Urban     float64 `json:"urban"`
	Water     float64 `json:"water"`
	Barren    float64 `json:"barren"`
}

// VegetationIndices holds remote-sensing vegetation health indicators.
type VegetationIndices struct {
	NDVI float64 `json:"ndvi"`
	EVI  float64 `json:"evi"`
}

// HistoricSummary aggregates past wildfire incidents around a location.
// Produced by the historic-data endpoint from a third-party incident feed;
// read-only from this service's perspective.
type HistoricSummary struct {
	Location       string             `json:"location,omitempty"`
	TotalIncidents int                `json:"total_incidents"`
	LargestFireKm2 float64            `json:"largest_fire_km2"`
	AverageFireKm2 float64            `json:"average_fire_km2"`
	YearlyIncidents []YearlyCount     `json:"yearly_incidents,omitempty"`
	SeverityDist   map[string]int     `json:"severity_distribution,omitempty"`
	CauseDist      map[string]int     `json:"cause_distribution,omitempty"`
}

// YearlyCount is one point in a per-year incident series.
type YearlyCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}
