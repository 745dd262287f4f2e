package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"emberwatch/internal/types"
)

// predRow is one fixture row in predictionColumns order.
type predRow struct {
	id          string
	userID      string
	location    string
	probability float64
	historic    []byte
	importance  []byte
	simulated   bool
	createdAt   time.Time
}

// predMockRows implements pgx.Rows over a slice of fixtures.
type predMockRows struct {
	data   []predRow
	idx    int
	closed bool
	errVal error
}

func newPredMockRows(data []predRow) *predMockRows {
	return &predMockRows{data: data, idx: -1}
}

func (r *predMockRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *predMockRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	*dest[0].(*string) = row.id
	*dest[1].(*string) = row.userID
	*dest[2].(*string) = row.location
	*dest[3].(*float64) = row.probability
	*dest[4].(*float64) = 410.0 // co2_level
	*dest[5].(*float64) = 30.0  // temperature
	*dest[6].(*float64) = 20.0  // humidity
	*dest[7].(*float64) = 0.7   // drought_index
	*dest[8].(**float64) = nil  // air_quality_index
	*dest[9].(**float64) = nil  // pm2_5
	*dest[10].(*[]byte) = row.historic
	*dest[11].(*[]byte) = nil // vegetation
	*dest[12].(*[]byte) = nil // land_cover
	*dest[13].(*string) = "random_forest"
	*dest[14].(*[]byte) = row.importance
	*dest[15].(*bool) = row.simulated
	*dest[16].(*time.Time) = row.createdAt
	return nil
}

func (r *predMockRows) Close()                                        { r.closed = true }
func (r *predMockRows) Err() error                                    { return r.errVal }
func (r *predMockRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *predMockRows) FieldDescriptions() []pgconn.FieldDescription  { return nil }
func (r *predMockRows) RawValues() [][]byte                           { return nil }
func (r *predMockRows) Values() ([]any, error)                        { return nil, nil }
func (r *predMockRows) Conn() *pgx.Conn                               { return nil }

// ============================================================
// Create Tests
// ============================================================

func TestPredictionRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	var gotArgs []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { gotArgs = args.Get(2).([]any) }).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	rec := &types.PredictionRecord{
		ID:          "pred_1",
		UserID:      "user_1",
		Location:    "Yosemite Valley",
		Probability: 71.2,
		Historic:    &types.HistoricSummary{TotalIncidents: 42},
		FeatureImportance: map[string]float64{
			"drought_index": 0.4,
		},
		ModelType: "random_forest",
		CreatedAt: time.Now(),
	}

	err := repo.Create(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, gotArgs, 17)

	// JSONB columns are marshalled at the boundary.
	historicJSON, ok := gotArgs[10].([]byte)
	require.True(t, ok, "historic_data must be encoded as JSON bytes")
	var decoded types.HistoricSummary
	require.NoError(t, json.Unmarshal(historicJSON, &decoded))
	assert.Equal(t, 42, decoded.TotalIncidents)
}

func TestPredictionRepository_Create_NilOptionalsBecomeNull(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	var gotArgs []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { gotArgs = args.Get(2).([]any) }).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	rec := &types.PredictionRecord{
		ID:          "pred_1",
		UserID:      "user_1",
		Location:    "Yosemite",
		Probability: 50,
		ModelType:   "random_forest",
		CreatedAt:   time.Now(),
	}

	err := repo.Create(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, gotArgs, 17)

	assert.Nil(t, gotArgs[10], "historic_data should be NULL")
	assert.Nil(t, gotArgs[11], "vegetation should be NULL")
	assert.Nil(t, gotArgs[12], "land_cover should be NULL")
	assert.Nil(t, gotArgs[14], "feature_importance should be NULL")
}

// ============================================================
// GetByID Tests
// ============================================================

func TestPredictionRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	created := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	historic, _ := json.Marshal(types.HistoricSummary{TotalIncidents: 9})
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "pred_1"
			*dest[1].(*string) = "user_1"
			*dest[2].(*string) = "Yosemite Valley"
			*dest[3].(*float64) = 71.2
			*dest[4].(*float64) = 410.0
			*dest[5].(*float64) = 30.0
			*dest[6].(*float64) = 20.0
			*dest[7].(*float64) = 0.7
			*dest[8].(**float64) = nil
			*dest[9].(**float64) = nil
			*dest[10].(*[]byte) = historic
			*dest[11].(*[]byte) = nil
			*dest[12].(*[]byte) = nil
			*dest[13].(*string) = "random_forest"
			*dest[14].(*[]byte) = nil
			*dest[15].(*bool) = false
			*dest[16].(*time.Time) = created
			return nil
		},
	}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"pred_1", "user_1"}).Return(row)

	rec, err := repo.GetByID(context.Background(), "pred_1", "user_1")
	require.NoError(t, err)
	assert.Equal(t, "Yosemite Valley", rec.Location)
	assert.Equal(t, 71.2, rec.Probability)
	require.NotNil(t, rec.Historic)
	assert.Equal(t, 9, rec.Historic.TotalIncidents)
	assert.Nil(t, rec.Vegetation)
}

func TestPredictionRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "missing", "user_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundPrediction, appErr.Code)
}

// ============================================================
// ListByUser Tests
// ============================================================

func TestPredictionRepository_ListByUser_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	now := time.Now()
	rows := newPredMockRows([]predRow{
		{id: "pred_2", userID: "user_1", location: "Yosemite", probability: 80, simulated: true, createdAt: now},
		{id: "pred_1", userID: "user_1", location: "Sequoia", probability: 40, createdAt: now.Add(-time.Hour)},
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"user_1", 10}).Return(rows, nil)

	records, err := repo.ListByUser(context.Background(), "user_1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "pred_2", records[0].ID)
	assert.True(t, records[0].Simulated)
	assert.Equal(t, "pred_1", records[1].ID)
	assert.True(t, rows.closed, "rows must be closed")
}

func TestPredictionRepository_ListByUser_DefaultLimit(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"user_1", 50}).
		Return(newPredMockRows(nil), nil)

	_, err := repo.ListByUser(context.Background(), "user_1", 0)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

// ============================================================
// Delete Tests
// ============================================================

func TestPredictionRepository_Delete_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"pred_1", "user_1"}).
		Return(pgconn.NewCommandTag("DELETE 1"), nil)

	err := repo.Delete(context.Background(), "pred_1", "user_1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestPredictionRepository_Delete_WrongOwnerNotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"pred_1", "user_2"}).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	err := repo.Delete(context.Background(), "pred_1", "user_2")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundPrediction, appErr.Code)
}
