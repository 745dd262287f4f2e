package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"emberwatch/internal/types"
)

// PredictionRepository provides data access for the predictions table.
// Structured sub-objects (historic summary, vegetation, land cover, feature
// importance) are stored as JSONB and marshalled explicitly at the boundary.
type PredictionRepository struct {
	db DBTX
}

func NewPredictionRepository(db DBTX) *PredictionRepository {
	return &PredictionRepository{db: db}
}

const predictionColumns = `p.id, p.user_id, p.location, p.probability,
	p.co2_level, p.temperature, p.humidity, p.drought_index,
	p.air_quality_index, p.pm2_5,
	p.historic_data, p.vegetation, p.land_cover,
	p.model_type, p.feature_importance, p.simulated, p.created_at`

// Create persists a prediction record owned by a user.
func (r *PredictionRepository) Create(ctx context.Context, p *types.PredictionRecord) error {
	historic, err := marshalNullable(p.Historic)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode historic data", err)
	}
	vegetation, err := marshalNullable(p.Vegetation)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode vegetation data", err)
	}
	landCover, err := marshalNullable(p.LandCover)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode land cover data", err)
	}
	importance, err := marshalNullableMap(p.FeatureImportance)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode feature importance", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO predictions (
			id, user_id, location, probability,
			co2_level, temperature, humidity, drought_index,
			air_quality_index, pm2_5,
			historic_data, vegetation, land_cover,
			model_type, feature_importance, simulated, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.ID, p.UserID, p.Location, p.Probability,
		p.CO2Level, p.Temperature, p.Humidity, p.DroughtIndex,
		p.AirQualityIndex, p.PM25,
		historic, vegetation, landCover,
		p.ModelType, importance, p.Simulated, p.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create prediction", err)
	}
	return nil
}

// GetByID retrieves a single prediction owned by userID.
func (r *PredictionRepository) GetByID(ctx context.Context, id, userID string) (*types.PredictionRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+predictionColumns+`
		 FROM predictions p
		 WHERE p.id = $1 AND p.user_id = $2`,
		id, userID,
	)

	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPrediction, "prediction not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve prediction", err)
	}
	return p, nil
}

// ListByUser returns the user's predictions newest-first. A non-positive
// limit falls back to 50.
func (r *PredictionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*types.PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+predictionColumns+`
		 FROM predictions p
		 WHERE p.user_id = $1
		 ORDER BY p.created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictions", err)
	}
	defer rows.Close()

	var records []*types.PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan prediction", err)
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictions", err)
	}
	return records, nil
}

// Delete removes a prediction owned by userID.
func (r *PredictionRepository) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM predictions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete prediction", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPrediction, "prediction not found", nil)
	}
	return nil
}

// scanPrediction scans a row in predictionColumns order, decoding the JSONB
// sub-objects.
func scanPrediction(row pgx.Row) (*types.PredictionRecord, error) {
	var p types.PredictionRecord
	var (
		historic   []byte
		vegetation []byte
		landCover  []byte
		importance []byte
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Location,
		&p.Probability,
		&p.CO2Level,
		&p.Temperature,
		&p.Humidity,
		&p.DroughtIndex,
		&p.AirQualityIndex,
		&p.PM25,
		&historic,
		&vegetation,
		&landCover,
		&p.ModelType,
		&importance,
		&p.Simulated,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(historic) > 0 {
		var h types.HistoricSummary
		if err := json.Unmarshal(historic, &h); err != nil {
			return nil, err
		}
		p.Historic = &h
	}
	if len(vegetation) > 0 {
		var v types.VegetationIndices
		if err := json.Unmarshal(vegetation, &v); err != nil {
			return nil, err
		}
		p.Vegetation = &v
	}
	if len(landCover) > 0 {
		var lc types.LandCover
		if err := json.Unmarshal(landCover, &lc); err != nil {
			return nil, err
		}
		p.LandCover = &lc
	}
	if len(importance) > 0 {
		if err := json.Unmarshal(importance, &p.FeatureImportance); err != nil {
			return nil, err
		}
	}

	return &p, nil
}

// marshalNullable encodes v as JSON, mapping nil pointers to SQL NULL.
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *types.HistoricSummary:
		if t == nil {
			return nil, nil
		}
	case *types.VegetationIndices:
		if t == nil {
			return nil, nil
		}
	case *types.LandCover:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func marshalNullableMap(m map[string]float64) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
