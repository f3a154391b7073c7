/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package timeseries

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/models"
)

const defaultTable = "grid_metrics"

// execer is the slice of pgxpool.Pool the writer needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Writer inserts one row per telemetry snapshot. Write failures are
// reported to the caller and recorded against the timeseries component;
// they never fail the poll cycle as a whole.
type Writer struct {
	db    execer
	pool  *pgxpool.Pool
	table string
	log   logger.Logger
}

// Connect dials the database and returns a ready writer.
func Connect(ctx context.Context, cfg *models.TimeseriesConfig, log logger.Logger) (*Writer, error) {
	pool, err := newPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = defaultTable
	}

	return &Writer{
		db:    pool,
		pool:  pool,
		table: table,
		log:   log,
	}, nil
}

// EnsureSchema creates the metrics table when missing and converts it to
// a hypertable when the Timescale extension is available. The hypertable
// conversion is best-effort: plain Postgres works, just without chunking.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			time TIMESTAMPTZ NOT NULL,
			site_name TEXT,
			serial TEXT,
			firmware TEXT,
			grid_status TEXT,
			battery_percent DOUBLE PRECISION,
			site_power DOUBLE PRECISION,
			battery_power DOUBLE PRECISION,
			load_power DOUBLE PRECISION,
			solar_power DOUBLE PRECISION,
			nominal_energy_remaining DOUBLE PRECISION,
			nominal_full_energy DOUBLE PRECISION,
			alerts TEXT[],
			system_status JSONB,
			vitals JSONB
		)`, w.table)

	if _, err := w.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("timeseries: failed to create table %s: %w", w.table, err)
	}

	hypertable := fmt.Sprintf(
		`SELECT create_hypertable('%s', 'time', if_not_exists => TRUE)`, w.table)

	if _, err := w.db.Exec(ctx, hypertable); err != nil {
		w.log.Debug().Err(err).
			Str("table", w.table).
			Msg("Hypertable conversion skipped")
	}

	return nil
}

// WriteSnapshot inserts one snapshot row.
func (w *Writer) WriteSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (
			time, site_name, serial, firmware, grid_status, battery_percent,
			site_power, battery_power, load_power, solar_power,
			nominal_energy_remaining, nominal_full_energy,
			alerts, system_status, vitals
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		w.table)

	args, err := buildArgs(snapshot)
	if err != nil {
		return err
	}

	if _, err := w.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("timeseries: failed to insert snapshot: %w", err)
	}

	return nil
}

// buildArgs flattens a snapshot into the insert's positional arguments.
// Nested documents go in as marshaled JSON so the column type stays JSONB
// regardless of pgx codec registration.
func buildArgs(snapshot *models.Snapshot) ([]interface{}, error) {
	var sitePower, batteryPower, loadPower, solarPower *float64

	if snapshot.Power != nil {
		sitePower = &snapshot.Power.Site
		batteryPower = &snapshot.Power.Battery
		loadPower = &snapshot.Power.Load
		solarPower = &snapshot.Power.Solar
	}

	systemStatus, err := marshalDoc(snapshot.SystemStatus)
	if err != nil {
		return nil, fmt.Errorf("timeseries: failed to marshal system status: %w", err)
	}

	vitals, err := marshalDoc(snapshot.Vitals)
	if err != nil {
		return nil, fmt.Errorf("timeseries: failed to marshal vitals: %w", err)
	}

	return []interface{}{
		snapshot.Timestamp,
		nullable(snapshot.SiteName),
		nullable(snapshot.Serial),
		nullable(snapshot.Firmware),
		nullable(snapshot.GridStatus),
		snapshot.BatteryPercent,
		sitePower,
		batteryPower,
		loadPower,
		solarPower,
		snapshot.NominalEnergyRemaining,
		snapshot.NominalFullEnergy,
		snapshot.Alerts,
		systemStatus,
		vitals,
	}, nil
}

func marshalDoc(doc map[string]interface{}) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}

	return json.Marshal(doc)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// Close releases the connection pool.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}
