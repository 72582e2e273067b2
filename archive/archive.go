// Package archive keeps recommendation payloads in Postgres, one row per
// run, so past runs can be listed and replayed without the run
// directories.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/pkg/logging"
	"github.com/rustyeddy/ashare/recommend"
)

// Run is one archived recommendation.
type Run struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AsOf      string    `gorm:"size:10;index;not null" json:"as_of"`
	RunID     string    `gorm:"size:64;uniqueIndex;not null" json:"run_id"`
	Tradeable bool      `gorm:"not null" json:"tradeable"`
	Message   string    `json:"message"`
	Picks     int       `json:"picks"`
	Payload   string    `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Run) TableName() string { return "recommend_runs" }

type Archive struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open connects to dsn and migrates the table.
func Open(dsn string, log *slog.Logger) (*Archive, error) {
	if dsn == "" {
		return nil, errs.Config("archive", "empty dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errs.Provider("archive connect", err)
	}
	a := New(db, log)
	if err := a.Migrate(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// New wraps an existing connection.
func New(db *gorm.DB, log *slog.Logger) *Archive {
	return &Archive{db: db, log: logging.OrDefault(log)}
}

func (a *Archive) Migrate() error {
	if err := a.db.AutoMigrate(&Run{}); err != nil {
		return fmt.Errorf("migrate recommend_runs: %w", err)
	}
	return nil
}

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewRun builds the row for p.
func NewRun(runID string, p *recommend.Payload) (Run, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return Run{}, fmt.Errorf("encode payload %s: %w", runID, err)
	}
	return Run{
		AsOf:      p.AsOf,
		RunID:     runID,
		Tradeable: p.Tradeable,
		Message:   p.Message,
		Picks:     len(p.Picks),
		Payload:   string(b),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Archive stores p, replacing an earlier row of the same run.
func (a *Archive) Archive(ctx context.Context, runID string, p *recommend.Payload) error {
	row, err := NewRun(runID, p)
	if err != nil {
		return err
	}
	if err := a.upsert(ctx, &row).Error; err != nil {
		return errs.Provider("archive run "+runID, err)
	}
	a.log.Debug("archived recommendation", "run_id", runID, "as_of", row.AsOf)
	return nil
}

func (a *Archive) upsert(ctx context.Context, row *Run) *gorm.DB {
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"as_of", "tradeable", "message", "picks", "payload", "created_at"}),
	}).Create(row)
}

// List returns the newest runs first, optionally for one as-of date.
func (a *Archive) List(ctx context.Context, asOf string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []Run
	if err := a.listQuery(ctx, asOf, limit).Find(&rows).Error; err != nil {
		return nil, errs.Provider("archive list", err)
	}
	return rows, nil
}

func (a *Archive) listQuery(ctx context.Context, asOf string, limit int) *gorm.DB {
	q := a.db.WithContext(ctx).Model(&Run{}).Omit("payload").Order("created_at DESC").Limit(limit)
	if asOf != "" {
		q = q.Where("as_of = ?", asOf)
	}
	return q
}

// Payload decodes the archived payload of runID.
func (a *Archive) Payload(ctx context.Context, runID string) (*recommend.Payload, error) {
	var row Run
	if err := a.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error; err != nil {
		return nil, errs.Provider("archive get "+runID, err)
	}
	var p recommend.Payload
	if err := json.Unmarshal([]byte(row.Payload), &p); err != nil {
		return nil, errs.BadData("archive get", "decode %s: %v", runID, err)
	}
	return &p, nil
}
