package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpattn/entityhistory/internal/app"
	"github.com/rpattn/entityhistory/internal/config"
	"github.com/rpattn/entityhistory/internal/db"
	"github.com/rpattn/entityhistory/internal/domain"
	"github.com/rpattn/entityhistory/internal/export"
	"github.com/rpattn/entityhistory/internal/repository"
	"github.com/rpattn/entityhistory/internal/snapshot"
)

// session is what the commands need from an opened store.
type session struct {
	snapshots export.SnapshotReader
	types     app.EntityTypeLister
	entities  entityStore
	schemas   schemaStore
	changes   changeLister
	close     func()
}

type entityStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error)
	Create(ctx context.Context, entity domain.Entity, reason string) (domain.Entity, error)
	Update(ctx context.Context, entity domain.Entity, reason string) (domain.Entity, error)
}

type schemaStore interface {
	GetByName(ctx context.Context, organizationID uuid.UUID, name string) (domain.EntitySchema, error)
	Create(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error)
	Update(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error)
}

type changeLister interface {
	ListSince(ctx context.Context, entityID uuid.UUID, since time.Time) ([]domain.EntityChange, error)
}

type opener func(ctx context.Context, configPath string, logger *log.Logger) (*session, error)

func openPostgres(ctx context.Context, configPath string, logger *log.Logger) (*session, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	schemas := repository.NewEntitySchemaRepository(conn.Pool)
	catalog := app.NewCatalog(snapshot.NewManager(), schemas, app.PostgresBinder(conn.Pool, cfg.Snapshot, logger, nil))
	return &session{
		snapshots: catalog,
		types:     schemas,
		entities:  repository.NewEntityRepository(conn.Pool),
		schemas:   schemas,
		changes:   repository.NewEntityChangeRepository(conn.Pool),
		close:     conn.Close,
	}, nil
}

func newRootCmd(open opener) *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:          "snapshotctl",
		Short:        "Reconstruct entities as they were at a point in time",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log each reconstruction to stderr")

	connect := func(cmd *cobra.Command) (*session, error) {
		logger := log.New(io.Discard, "", 0)
		if verbose {
			logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
		}
		return open(cmd.Context(), configPath, logger)
	}

	root.AddCommand(
		newGetCmd(connect),
		newTypesCmd(connect),
		newHistoryCmd(connect),
		newSchemaCmd(connect),
		newCreateCmd(connect),
		newUpdateCmd(connect),
	)
	return root
}

func newGetCmd(connect func(*cobra.Command) (*session, error)) *cobra.Command {
	var (
		atFlag string
		trail  bool
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "get <entity-type> <id>",
		Short: "Print the snapshot of one entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if atFlag != "" {
				parsed, err := time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				at = parsed
			}

			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			view, err := export.NewService(s.snapshots).Snapshot(cmd.Context(), args[0], args[1], at)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch {
			case trail:
				return printTrail(w, view)
			case format == "diff":
				_, err := io.WriteString(w, export.DiffAgainstCurrent(view))
				return err
			case format == "xlsx":
				if out == "" {
					return fmt.Errorf("--out is required for xlsx output")
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				if err := export.WriteWorkbook(f, view); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			case format == "json" || format == "":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&atFlag, "at", "", "point in time (RFC3339), defaults to now")
	cmd.Flags().BoolVar(&trail, "trail", false, "print one change trail per line")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, diff or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write xlsx output to")
	return cmd
}

func newTypesCmd(connect func(*cobra.Command) (*session, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List entity types with recorded entities or schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			types, err := s.types.ListEntityTypes(cmd.Context())
			if err != nil {
				return err
			}
			for _, entityType := range types {
				fmt.Fprintln(cmd.OutOrStdout(), entityType)
			}
			return nil
		},
	}
}

func printTrail(w io.Writer, view export.SnapshotView) error {
	rows := view.Rows()
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "no changes to %s %s since %s\n", view.EntityType, view.Key, view.At.Format(time.RFC3339))
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%s: %s\n", row.Property, row.Trail); err != nil {
			return err
		}
	}
	return nil
}
