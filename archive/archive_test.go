package archive

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/recommend"
)

// dryRun builds statements without a server.
func dryRun(t *testing.T) *Archive {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=ashare dbname=ashare sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return New(db, nil)
}

func payload() *recommend.Payload {
	return &recommend.Payload{
		AsOf:       "2025-06-30",
		RunID:      "20250630_abc",
		Picks:      []recommend.Pick{{Symbol: "600001"}, {Symbol: "000004"}},
		Disclaimer: recommend.Disclaimer,
		Tradeable:  false,
		Message:    "NOT_TRADEABLE: SNAPSHOT_MISSING",
	}
}

func TestNewRun(t *testing.T) {
	t.Parallel()

	row, err := NewRun("20250630_abc", payload())
	require.NoError(t, err)
	assert.Equal(t, "2025-06-30", row.AsOf)
	assert.Equal(t, "20250630_abc", row.RunID)
	assert.False(t, row.Tradeable)
	assert.Equal(t, 2, row.Picks)
	assert.False(t, row.CreatedAt.IsZero())

	var back recommend.Payload
	require.NoError(t, json.Unmarshal([]byte(row.Payload), &back))
	assert.Equal(t, recommend.Disclaimer, back.Disclaimer)
	assert.Len(t, back.Picks, 2)
}

func TestUpsertStatement(t *testing.T) {
	t.Parallel()

	a := dryRun(t)
	row, err := NewRun("20250630_abc", payload())
	require.NoError(t, err)

	sql := a.upsert(context.Background(), &row).Statement.SQL.String()
	assert.Contains(t, sql, `INSERT INTO "recommend_runs"`)
	assert.Contains(t, sql, `ON CONFLICT ("run_id") DO UPDATE SET`)
	assert.Contains(t, sql, `"payload"="excluded"."payload"`)
}

func TestListStatement(t *testing.T) {
	t.Parallel()

	a := dryRun(t)
	var rows []Run
	sql := a.listQuery(context.Background(), "2025-06-30", 10).Find(&rows).Statement.SQL.String()
	assert.Contains(t, sql, `FROM "recommend_runs"`)
	assert.Contains(t, sql, "as_of = $1")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, sql, "LIMIT")
	assert.NotContains(t, sql, `"payload"`)
}

func TestOpenRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Open("", nil)
	assert.ErrorIs(t, err, errs.ErrConfig)
}
