package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ppiankov/newsflow/internal/extract"
	"github.com/ppiankov/newsflow/internal/model"
)

// IncidentTypeRepository reads the incident type catalog
type IncidentTypeRepository struct {
	db DB
}

var _ extract.IncidentTypeRepository = (*IncidentTypeRepository)(nil)

// NewIncidentTypeRepository creates a repository on db
func NewIncidentTypeRepository(db DB) *IncidentTypeRepository {
	return &IncidentTypeRepository{db: db}
}

// FindAll returns every incident type ordered by id
func (r *IncidentTypeRepository) FindAll(ctx context.Context) ([]model.IncidentType, error) {
	query, args, err := psql.Select("id", "name", "COALESCE(description, '')").
		From(incidentTypeTable).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incident types: %w", err)
	}
	types, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.IncidentType, error) {
		var it model.IncidentType
		err := row.Scan(&it.ID, &it.Name, &it.Description)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan incident types: %w", err)
	}
	return types, nil
}

// UrgencyRepository reads the urgency catalog
type UrgencyRepository struct {
	db DB
}

var _ extract.UrgencyRepository = (*UrgencyRepository)(nil)

// NewUrgencyRepository creates a repository on db
func NewUrgencyRepository(db DB) *UrgencyRepository {
	return &UrgencyRepository{db: db}
}

// FindAll returns every urgency ordered by level
func (r *UrgencyRepository) FindAll(ctx context.Context) ([]model.Urgency, error) {
	query, args, err := psql.Select("id", "name", "level", "COALESCE(description, '')").
		From(urgencyTable).
		OrderBy("level", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query urgencies: %w", err)
	}
	urgencies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Urgency, error) {
		var u model.Urgency
		err := row.Scan(&u.ID, &u.Name, &u.Level, &u.Description)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan urgencies: %w", err)
	}
	return urgencies, nil
}
