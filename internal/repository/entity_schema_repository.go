package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/entityhistory/internal/domain"
	"github.com/rpattn/entityhistory/internal/schema/validator"
)

// ErrSchemaNotFound is returned by GetByName when no schema has the name.
var ErrSchemaNotFound = errors.New("entity schema not found")

type entitySchemaRepository struct {
	pool *pgxpool.Pool
}

// NewEntitySchemaRepository creates a new entity schema repository
func NewEntitySchemaRepository(pool *pgxpool.Pool) EntitySchemaRepository {
	return &entitySchemaRepository{pool: pool}
}

// Create persists a new schema
func (r *entitySchemaRepository) Create(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error) {
	if err := validator.ValidateFields(schema.Fields); err != nil {
		return domain.EntitySchema{}, err
	}
	fieldsJSON, err := json.Marshal(schema.Fields)
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to marshal fields: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO entity_schemas (id, organization_id, name, description, fields, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		schema.ID, schema.OrganizationID, schema.Name, schema.Description, fieldsJSON, schema.CreatedAt, schema.UpdatedAt,
	)
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to create entity schema: %w", err)
	}
	return schema, nil
}

// GetByName retrieves a schema by organization and name
func (r *entitySchemaRepository) GetByName(ctx context.Context, organizationID uuid.UUID, name string) (domain.EntitySchema, error) {
	var (
		schema     domain.EntitySchema
		fieldsJSON []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, description, fields, created_at, updated_at
		 FROM entity_schemas
		 WHERE organization_id = $1 AND name = $2`,
		organizationID, name,
	).Scan(&schema.ID, &schema.OrganizationID, &schema.Name, &schema.Description, &fieldsJSON, &schema.CreatedAt, &schema.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntitySchema{}, fmt.Errorf("failed to get entity schema %s: %w", name, ErrSchemaNotFound)
		}
		return domain.EntitySchema{}, fmt.Errorf("failed to get entity schema by name: %w", err)
	}

	if err := json.Unmarshal(fieldsJSON, &schema.Fields); err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to decode fields for schema %s: %w", schema.ID, err)
	}
	return schema, nil
}

// Update replaces a schema's description and field list
func (r *entitySchemaRepository) Update(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error) {
	if err := validator.ValidateFields(schema.Fields); err != nil {
		return domain.EntitySchema{}, err
	}
	fieldsJSON, err := json.Marshal(schema.Fields)
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to marshal fields: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE entity_schemas SET description = $2, fields = $3, updated_at = $4 WHERE id = $1`,
		schema.ID, schema.Description, fieldsJSON, schema.UpdatedAt,
	)
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to update entity schema: %w", err)
	}
	return schema, nil
}

// ListEntityTypes returns every distinct entity type that has entities or a schema.
func (r *entitySchemaRepository) ListEntityTypes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name FROM entity_schemas
		 UNION
		 SELECT DISTINCT entity_type FROM entities
		 ORDER BY 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var entityType string
		if err := rows.Scan(&entityType); err != nil {
			return nil, fmt.Errorf("failed to scan entity type: %w", err)
		}
		types = append(types, entityType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity types: %w", err)
	}
	return types, nil
}
