package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/repository"
)

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DefaultCollectionTables maps collection names onto their backing tables.
var DefaultCollectionTables = map[string]string{
	"reservations": "salon.reservations",
}

// AppointmentRepository implements port.AppointmentStore backed by PostgreSQL.
type AppointmentRepository struct {
	exec    pgQuerier
	builder squirrel.StatementBuilderType
	tables  map[string]string
}

// NewAppointmentRepository constructs a repository. Only collections listed in tables can be queried;
// a nil map uses DefaultCollectionTables.
func NewAppointmentRepository(exec pgQuerier, tables map[string]string) *AppointmentRepository {
	if tables == nil {
		tables = DefaultCollectionTables
	}
	allowed := make(map[string]string, len(tables))
	for collection, table := range tables {
		collection = strings.TrimSpace(collection)
		table = strings.TrimSpace(table)
		if collection == "" || table == "" {
			continue
		}
		allowed[collection] = table
	}

	return &AppointmentRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		tables:  allowed,
	}
}

// QueryRange returns the appointments of collection dated within rng, ordered by date then start time.
func (r *AppointmentRepository) QueryRange(ctx context.Context, collection string, rng domain.DateRange) ([]domain.Appointment, error) {
	table, ok := r.tables[strings.TrimSpace(collection)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownCollection, collection)
	}

	stmt, args, err := r.builder.
		Select(
			"id",
			"customer_id",
			"stylist_id",
			"service_id",
			"reservation_date",
			"start_time",
			"end_time",
			"status",
			"notes",
			"updated_at",
		).
		From(table).
		Where(squirrel.GtOrEq{"reservation_date": rng.Start}).
		Where(squirrel.LtOrEq{"reservation_date": rng.End}).
		OrderBy("reservation_date ASC", "start_time ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build range query sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	appointments := make([]domain.Appointment, 0)
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appointments = append(appointments, appointment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}

	return appointments, nil
}

func scanAppointment(row pgx.Row) (domain.Appointment, error) {
	var (
		appointment domain.Appointment
		stylistID   sql.NullString
		serviceID   sql.NullString
		endTime     sql.NullString
		notes       sql.NullString
		updatedAt   sql.NullTime
	)

	if err := row.Scan(
		&appointment.ID,
		&appointment.CustomerID,
		&stylistID,
		&serviceID,
		&appointment.Date,
		&appointment.StartTime,
		&endTime,
		&appointment.Status,
		&notes,
		&updatedAt,
	); err != nil {
		return domain.Appointment{}, err
	}

	appointment.Date = domain.DateOnly(appointment.Date)
	appointment.StylistID = stylistID.String
	appointment.ServiceID = serviceID.String
	appointment.EndTime = endTime.String
	if notes.Valid {
		value := notes.String
		appointment.Notes = &value
	}
	if updatedAt.Valid {
		appointment.UpdatedAt = updatedAt.Time.UTC()
	}
	return appointment, nil
}

var _ port.AppointmentStore = (*AppointmentRepository)(nil)
