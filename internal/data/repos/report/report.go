package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/wrapped-backend/internal/domain"
	cl "github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/pkg/dbctx"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type ReportRepo interface {
	Save(dbc dbctx.Context, userID, kind string, year int, payload any, generatedAt time.Time) (*types.Report, error)
	Get(dbc dbctx.Context, userID, kind string, year int) (*types.Report, error)
	ListByUser(dbc dbctx.Context, userID string) ([]*types.Report, error)
}

type reportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	return &reportRepo{db: db, log: baseLog.With("repo", "ReportRepo")}
}

func (r *reportRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return t.WithContext(ctx)
}

// Save replaces the (user, kind, year) report with payload.
func (r *reportRepo) Save(dbc dbctx.Context, userID, kind string, year int, payload any, generatedAt time.Time) (*types.Report, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(kind) == "" {
		return nil, cl.NewError(cl.KindValidation, "reports.save", "user_id and kind required", nil)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, cl.NewError(cl.KindValidation, "reports.save", "encode payload", err)
	}
	now := time.Now().UTC()
	row := &types.Report{
		ID:          cl.ReportID(userID, kind, year),
		UserID:      userID,
		Kind:        kind,
		Year:        year,
		Payload:     datatypes.JSON(raw),
		GeneratedAt: generatedAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.tx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "generated_at", "updated_at"}),
	}).Create(row).Error; err != nil {
		return nil, cl.Wrap(cl.KindPersistence, "reports.save", err)
	}
	return row, nil
}

// Get returns nil, nil when no report exists.
func (r *reportRepo) Get(dbc dbctx.Context, userID, kind string, year int) (*types.Report, error) {
	var row types.Report
	err := r.tx(dbc).
		Where("user_id = ? AND kind = ? AND year = ?", userID, kind, year).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cl.Wrap(cl.KindPersistence, "reports.get", err)
	}
	return &row, nil
}

func (r *reportRepo) ListByUser(dbc dbctx.Context, userID string) ([]*types.Report, error) {
	var out []*types.Report
	if err := r.tx(dbc).
		Where("user_id = ?", userID).
		Order("year DESC").
		Order("kind ASC").
		Find(&out).Error; err != nil {
		return nil, cl.Wrap(cl.KindPersistence, "reports.list", err)
	}
	return out, nil
}

// Decode unmarshals a stored payload into out.
func Decode(row *types.Report, out any) error {
	if row == nil {
		return fmt.Errorf("nil report")
	}
	return json.Unmarshal(row.Payload, out)
}
