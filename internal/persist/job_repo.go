package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// JobRow is one entry of the generation job history.
type JobRow struct {
	ID         string
	Kind       string
	Owner      uint64
	WorldName  string
	Seed       int64
	Outcome    string
	Steps      int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Start(ctx context.Context, row JobRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO generation_jobs (id, kind, owner, world_name, seed)
		 VALUES ($1, $2, $3, $4, $5)`,
		row.ID, row.Kind, int64(row.Owner), row.WorldName, row.Seed,
	)
	return err
}

func (r *JobRepo) Finish(ctx context.Context, id, outcome string, steps int, errMsg string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE generation_jobs
		 SET outcome = $2, steps = $3, error = NULLIF($4, ''), finished_at = NOW()
		 WHERE id = $1`,
		id, outcome, steps, errMsg,
	)
	return err
}

// Load returns a job by id, or nil, nil if it does not exist.
func (r *JobRepo) Load(ctx context.Context, id string) (*JobRow, error) {
	row := &JobRow{}
	var owner int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, kind, owner, world_name, seed, COALESCE(outcome,''), steps, COALESCE(error,''),
		        started_at, finished_at
		 FROM generation_jobs WHERE id = $1`, id,
	).Scan(
		&row.ID, &row.Kind, &owner, &row.WorldName, &row.Seed, &row.Outcome, &row.Steps, &row.Error,
		&row.StartedAt, &row.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.Owner = uint64(owner)
	return row, nil
}
