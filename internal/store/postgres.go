package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/fleetops/kpi-cli/internal/db"
	"github.com/fleetops/kpi-cli/internal/model"
)

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// condBuilder accumulates WHERE conditions with positional args.
type condBuilder struct {
	conds []string
	args  []any
}

func (b *condBuilder) add(expr string, vals ...any) {
	placeholders := make([]any, len(vals))
	for i := range vals {
		placeholders[i] = fmt.Sprintf("$%d", len(b.args)+i+1)
	}
	b.conds = append(b.conds, fmt.Sprintf(expr, placeholders...))
	b.args = append(b.args, vals...)
}

func (b *condBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// dateConds applies the effective date window from the filter. Explicit
// dates beat (year, week); year alone covers the calendar year.
func dateConds(b *condBuilder, f *model.Filter, col string) {
	start, end, ok := f.Window()
	if !ok {
		return
	}
	b.add(col+" >= %s", start)
	b.add(col+" <= %s", end)
}

func dimensionConds(b *condBuilder, f *model.Filter) {
	if !f.Regions.IsZero() {
		b.add("region = ANY(%s)", []string(f.Regions))
	}
	if !f.SubRegions.IsZero() {
		b.add("sub_region = ANY(%s)", []string(f.SubRegions))
	}
	if f.OrgID != "" {
		b.add("org_id = %s", f.OrgID)
	}
}

// ViewRows aggregates the daily rollup down to one row per courier. The
// rollup already collapses origins and shifts, which is why those two axes
// cannot be filtered here.
func (s *PostgresStore) ViewRows(ctx context.Context, f *model.Filter) ([]model.ViewRow, error) {
	b := &condBuilder{}
	dimensionConds(b, f)
	dateConds(b, f, "day")

	query := `SELECT courier_id, max(name), max(region), max(sub_region),
		sum(offered)::int, sum(accepted)::int, sum(rejected)::int, sum(completed)::int,
		sum(available_seconds)::bigint, sum(gross_value)::float8, sum(delivery_fees)::float8, max(day)
		FROM courier_kpi_daily` + b.where() + ` GROUP BY courier_id`

	rows, err := s.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query view rows")
	}
	defer rows.Close()

	var out []model.ViewRow
	for rows.Next() {
		var r model.ViewRow
		if err := rows.Scan(&r.CourierID, &r.Name, &r.Region, &r.SubRegion,
			&r.Offered, &r.Accepted, &r.Rejected, &r.Completed,
			&r.AvailableSeconds, &r.GrossValue, &r.DeliveryFees, &r.LastActive); err != nil {
			return nil, eris.Wrap(err, "store: scan view row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate view rows")
	}
	return out, nil
}

func (s *PostgresStore) SubRegionMembers(ctx context.Context, group string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sub_region FROM region_groups WHERE group_name = $1 ORDER BY sub_region`, group)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query members of %s", group)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, eris.Wrap(err, "store: scan member")
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate members")
	}
	return members, nil
}

func (s *PostgresStore) CourierProfiles(ctx context.Context, courierIDs []string) ([]model.CourierProfile, error) {
	if len(courierIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT courier_id, name, region, vehicle_type FROM courier_profiles WHERE courier_id = ANY($1)`,
		courierIDs)
	if err != nil {
		return nil, eris.Wrap(err, "store: query profiles")
	}
	defer rows.Close()

	var out []model.CourierProfile
	for rows.Next() {
		var p model.CourierProfile
		if err := rows.Scan(&p.CourierID, &p.Name, &p.Region, &p.VehicleType); err != nil {
			return nil, eris.Wrap(err, "store: scan profile")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate profiles")
	}
	return out, nil
}

// DistinctCourierIDs resolves identity against the non-volume filters only:
// volume axes (origin, shift) stay out so a courier whose rows are split
// across origins still resolves once.
func (s *PostgresStore) DistinctCourierIDs(ctx context.Context, f *model.Filter, rowCap int) ([]string, error) {
	b := &condBuilder{}
	dimensionConds(b, f)
	dateConds(b, f, "date")
	if f.Search != "" {
		b.add("name ILIKE %s", "%"+f.Search+"%")
	}

	query := `SELECT DISTINCT courier_id FROM courier_activity` + b.where()
	if rowCap > 0 {
		b.args = append(b.args, rowCap)
		query += fmt.Sprintf(" LIMIT $%d", len(b.args))
	}

	rows, err := s.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query courier ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "store: scan courier id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate courier ids")
	}
	return ids, nil
}

func (s *PostgresStore) CourierActivityRows(ctx context.Context, courierIDs []string, f *model.Filter, rowCap int) ([]model.CourierActivityRow, error) {
	if len(courierIDs) == 0 {
		return nil, nil
	}

	b := &condBuilder{}
	b.add("courier_id = ANY(%s)", courierIDs)
	dimensionConds(b, f)
	dateConds(b, f, "date")
	if !f.Origins.IsZero() {
		b.add("origin = ANY(%s)", []string(f.Origins))
	}
	if f.Shift != "" {
		b.add("shift = %s", f.Shift)
	}

	query := `SELECT courier_id, name, region, date, offered, accepted, rejected, completed, available_time, gross_value, delivery_fee
		FROM courier_activity` + b.where()
	if rowCap > 0 {
		b.args = append(b.args, rowCap)
		query += fmt.Sprintf(" LIMIT $%d", len(b.args))
	}

	rows, err := s.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query activity rows")
	}
	defer rows.Close()

	var out []model.CourierActivityRow
	for rows.Next() {
		var r model.CourierActivityRow
		if err := rows.Scan(&r.CourierID, &r.Name, &r.Region, &r.Date,
			&r.Offered, &r.Accepted, &r.Rejected, &r.Completed, &r.AvailableTime,
			&r.GrossValue, &r.DeliveryFee); err != nil {
			return nil, eris.Wrap(err, "store: scan activity row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate activity rows")
	}
	return out, nil
}

func (s *PostgresStore) Regions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT region FROM courier_activity WHERE region <> '' ORDER BY region`)
	if err != nil {
		return nil, eris.Wrap(err, "store: query regions")
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, eris.Wrap(err, "store: scan region")
		}
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate regions")
	}
	return regions, nil
}

func (s *PostgresStore) WeeksYears(ctx context.Context) ([]WeekYear, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT extract(isoyear FROM day)::int AS yr, extract(week FROM day)::int AS wk
		 FROM courier_kpi_daily ORDER BY yr DESC, wk DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "store: query weeks")
	}
	defer rows.Close()

	var out []WeekYear
	for rows.Next() {
		var wy WeekYear
		if err := rows.Scan(&wy.Year, &wy.Week); err != nil {
			return nil, eris.Wrap(err, "store: scan week")
		}
		out = append(out, wy)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate weeks")
	}
	return out, nil
}
