package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/world"
)

// WorldRow is the metadata of a stored world.
type WorldRow struct {
	Name       string
	Seed       int64
	Width      int
	Height     int
	NumPlates  int
	SeaLevel   float32
	OceanLevel float32
	Step       string
	BiomeNames []string
	Layers     []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type WorldRepo struct {
	db *DB
}

func NewWorldRepo(db *DB) *WorldRepo {
	return &WorldRepo{db: db}
}

// Save writes w and all its layers, replacing any world of the same name.
func (r *WorldRepo) Save(ctx context.Context, w *world.World) error {
	blobs, err := EncodeWorld(w)
	if err != nil {
		return err
	}
	_, biomeNames := w.Biome()
	if biomeNames == nil {
		biomeNames = []string{}
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save world begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO worlds (name, seed, width, height, num_plates, sea_level, ocean_level, step, biome_names)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (name) DO UPDATE SET
		   seed = EXCLUDED.seed, width = EXCLUDED.width, height = EXCLUDED.height,
		   num_plates = EXCLUDED.num_plates, sea_level = EXCLUDED.sea_level,
		   ocean_level = EXCLUDED.ocean_level, step = EXCLUDED.step,
		   biome_names = EXCLUDED.biome_names, updated_at = NOW()`,
		w.Name, w.Seed, w.Width(), w.Height(), w.Params.NumPlates, w.Params.SeaLevel,
		w.Params.OceanLevel, w.Params.Step.Name, biomeNames,
	); err != nil {
		return fmt.Errorf("save world row: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM world_layers WHERE world_name = $1`, w.Name); err != nil {
		return fmt.Errorf("clear layers: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM world_thresholds WHERE world_name = $1`, w.Name); err != nil {
		return fmt.Errorf("clear thresholds: %w", err)
	}

	batch := &pgx.Batch{}
	total := 0
	for _, b := range blobs {
		total += len(b.Data)
		batch.Queue(
			`INSERT INTO world_layers (world_name, layer, kind, data, checksum) VALUES ($1, $2, $3, $4, $5)`,
			w.Name, b.Name, int16(b.Kind), b.Data, b.Checksum,
		)
		for i, th := range b.Thresholds {
			batch.Queue(
				`INSERT INTO world_thresholds (world_name, layer, position, name, value, open)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				w.Name, b.Name, int16(i), th.Name, th.Value, th.Open,
			)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save layers: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save world commit: %w", err)
	}

	r.db.log.Info("world saved",
		zap.String("world", w.Name),
		zap.Int("layers", len(blobs)),
		zap.String("size", humanize.Bytes(uint64(total))))
	return nil
}

// Load reads a world by name. Returns nil, nil if it does not exist.
func (r *WorldRepo) Load(ctx context.Context, name string) (*world.World, error) {
	row := &WorldRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, seed, width, height, num_plates, sea_level, ocean_level, step, biome_names,
		        created_at, updated_at
		 FROM worlds WHERE name = $1`, name,
	).Scan(
		&row.Name, &row.Seed, &row.Width, &row.Height, &row.NumPlates, &row.SeaLevel, &row.OceanLevel,
		&row.Step, &row.BiomeNames, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	thresholds, err := r.loadThresholds(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT layer, kind, data, checksum FROM world_layers WHERE world_name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("query layers: %w", err)
	}
	defer rows.Close()

	var blobs []LayerBlob
	for rows.Next() {
		var b LayerBlob
		var kind int16
		if err := rows.Scan(&b.Name, &kind, &b.Data, &b.Checksum); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		b.Kind = LayerKind(kind)
		b.Thresholds = thresholds[b.Name]
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return DecodeWorld(row, blobs)
}

func (r *WorldRepo) loadThresholds(ctx context.Context, name string) (map[string][]world.Threshold, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT layer, name, value, open FROM world_thresholds
		 WHERE world_name = $1 ORDER BY layer, position`, name)
	if err != nil {
		return nil, fmt.Errorf("query thresholds: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]world.Threshold)
	for rows.Next() {
		var layer string
		var th world.Threshold
		if err := rows.Scan(&layer, &th.Name, &th.Value, &th.Open); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		out[layer] = append(out[layer], th)
	}
	return out, rows.Err()
}

// DecodeWorld rebuilds a world from its row and layer blobs.
func DecodeWorld(row *WorldRow, blobs []LayerBlob) (*world.World, error) {
	step, err := world.StepByName(row.Step)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", row.Name, err)
	}
	w := world.New(row.Name, world.Size{Width: row.Width, Height: row.Height}, row.Seed,
		world.GenerationParameters{
			NumPlates: row.NumPlates, SeaLevel: row.SeaLevel, OceanLevel: row.OceanLevel, Step: step,
		})
	for _, b := range blobs {
		if err := DecodeLayer(w, b, row.BiomeNames); err != nil {
			return nil, fmt.Errorf("world %s: %w", row.Name, err)
		}
	}
	return w, nil
}

// List returns every stored world, most recently updated first.
func (r *WorldRepo) List(ctx context.Context) ([]WorldRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT w.name, w.seed, w.width, w.height, w.num_plates, w.sea_level, w.ocean_level, w.step,
		        w.biome_names, w.created_at, w.updated_at,
		        COALESCE(array_agg(l.layer ORDER BY l.layer) FILTER (WHERE l.layer IS NOT NULL), '{}')
		 FROM worlds w LEFT JOIN world_layers l ON l.world_name = w.name
		 GROUP BY w.name
		 ORDER BY w.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	defer rows.Close()

	var out []WorldRow
	for rows.Next() {
		var row WorldRow
		if err := rows.Scan(
			&row.Name, &row.Seed, &row.Width, &row.Height, &row.NumPlates, &row.SeaLevel, &row.OceanLevel, &row.Step,
			&row.BiomeNames, &row.CreatedAt, &row.UpdatedAt, &row.Layers,
		); err != nil {
			return nil, fmt.Errorf("scan world: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Delete removes a world and its layers. Reports whether a world was removed.
func (r *WorldRepo) Delete(ctx context.Context, name string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM worlds WHERE name = $1`, name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
