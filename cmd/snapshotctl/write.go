package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpattn/entityhistory/internal/domain"
	"github.com/rpattn/entityhistory/internal/repository"
)

func newHistoryCmd(connect func(*cobra.Command) (*session, error)) *cobra.Command {
	var sinceFlag string

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Print the change log of one entity, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}
			var since time.Time
			if sinceFlag != "" {
				if since, err = time.Parse(time.RFC3339, sinceFlag); err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
			}

			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			changes, err := s.changes.ListSince(cmd.Context(), id, since)
			if err != nil {
				return err
			}
			return printChanges(cmd.OutOrStdout(), changes)
		},
	}
	cmd.Flags().StringVar(&sinceFlag, "since", "", "only changes after this point in time (RFC3339)")
	return cmd
}

func newSchemaCmd(connect func(*cobra.Command) (*session, error)) *cobra.Command {
	var (
		orgFlag     string
		fieldFlags  []string
		description string
	)

	cmd := &cobra.Command{
		Use:   "schema <entity-type>",
		Short: "Create or replace the schema of an entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := uuid.Parse(orgFlag)
			if err != nil {
				return fmt.Errorf("invalid --org: %w", err)
			}
			fields := make([]domain.FieldDefinition, 0, len(fieldFlags))
			for _, raw := range fieldFlags {
				field, err := parseField(raw)
				if err != nil {
					return err
				}
				fields = append(fields, field)
			}

			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			existing, err := s.schemas.GetByName(cmd.Context(), orgID, args[0])
			switch {
			case err == nil:
				existing.Description = description
				existing.Fields = fields
				existing.UpdatedAt = time.Now()
				if _, err := s.schemas.Update(cmd.Context(), existing); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated schema %s %s\n", existing.Name, existing.ID)
				return err
			case errors.Is(err, repository.ErrSchemaNotFound):
				schema, err := domain.NewEntitySchema(orgID, args[0], description, fields)
				if err != nil {
					return err
				}
				if schema, err = s.schemas.Create(cmd.Context(), schema); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created schema %s %s\n", schema.Name, schema.ID)
				return err
			default:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&orgFlag, "org", "", "owning organization id")
	cmd.Flags().StringArrayVar(&fieldFlags, "field", nil, "field as name:type[:required], repeatable")
	cmd.Flags().StringVar(&description, "description", "", "schema description")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newCreateCmd(connect func(*cobra.Command) (*session, error)) *cobra.Command {
	var (
		orgFlag string
		reason  string
	)

	cmd := &cobra.Command{
		Use:   "create <entity-type> [name=value...]",
		Short: "Create an entity and log its initial values",
		Long: "Create an entity and log its initial values. Values are parsed as JSON " +
			"when they are valid JSON and stored as strings otherwise.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := uuid.Parse(orgFlag)
			if err != nil {
				return fmt.Errorf("invalid --org: %w", err)
			}
			properties, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			entity := domain.NewEntity(orgID, args[0], properties)
			schema, err := s.schemas.GetByName(cmd.Context(), orgID, args[0])
			switch {
			case err == nil:
				entity.SchemaID = schema.ID
			case !errors.Is(err, repository.ErrSchemaNotFound):
				return err
			}

			created, err := s.entities.Create(cmd.Context(), entity, reason)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&orgFlag, "org", "", "owning organization id")
	cmd.Flags().StringVar(&reason, "reason", "", "reason stored with the change")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newUpdateCmd(connect func(*cobra.Command) (*session, error)) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "update <entity-type> <id> name=value...",
		Short: "Set properties of an entity and log what changed",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}
			properties, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}

			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			entity, err := s.entities.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if entity.EntityType != args[0] {
				return fmt.Errorf("entity %s is a %s, not a %s", id, entity.EntityType, args[0])
			}
			for name, value := range properties {
				entity = entity.WithProperty(name, value)
			}

			updated, err := s.entities.Update(cmd.Context(), entity, reason)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %s %s to version %d\n", updated.EntityType, updated.ID, updated.Version)
			return err
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason stored with the change")
	return cmd
}

// parseAssignments turns name=value arguments into properties. Valid JSON
// values keep their type, numbers as json.Number; anything else is a string.
func parseAssignments(args []string) (map[string]any, error) {
	properties := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected name=value", arg)
		}
		properties[name] = parseValue(raw)
	}
	return properties, nil
}

func parseValue(raw string) any {
	if !json.Valid([]byte(raw)) {
		return raw
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return raw
	}
	return value
}

// parseField reads name:type[:required].
func parseField(raw string) (domain.FieldDefinition, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return domain.FieldDefinition{}, fmt.Errorf("invalid field %q, expected name:type[:required]", raw)
	}
	field := domain.FieldDefinition{
		Name: strings.TrimSpace(parts[0]),
		Type: domain.FieldType(strings.TrimSpace(parts[1])),
	}
	if len(parts) == 3 {
		if strings.TrimSpace(parts[2]) != "required" {
			return domain.FieldDefinition{}, fmt.Errorf("invalid field %q, expected name:type[:required]", raw)
		}
		field.Required = true
	}
	return field, nil
}

func printChanges(w io.Writer, changes []domain.EntityChange) error {
	if len(changes) == 0 {
		_, err := fmt.Fprintln(w, "no changes")
		return err
	}
	for _, change := range changes {
		line := fmt.Sprintf("%s %s", change.ChangeTime.UTC().Format(time.RFC3339), change.ChangeType)
		if change.Reason != nil {
			line += " (" + *change.Reason + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		for _, pc := range change.PropertyChanges {
			if _, err := fmt.Fprintf(w, "  %s: %s%s%s\n", pc.PropertyName, pc.OriginalValue, domain.TrailSeparator, pc.NewValue); err != nil {
				return err
			}
		}
	}
	return nil
}
