package db

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	OrganisationKey contextKey = "organisation"
	DBConnKey       contextKey = "db_conn"

	// OrganisationHeader names the organisation of a request when the token
	// carries none.
	OrganisationHeader = "ORGANISATION-NAME"
)

var organisationPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// SchemaName returns the database schema holding an organisation's data.
func SchemaName(organisation string) string {
	return "org_" + organisation
}

// ValidOrganisation reports whether name is safe to use as a schema suffix.
func ValidOrganisation(name string) bool {
	return organisationPattern.MatchString(name)
}

// OrganisationMiddleware pins a connection for the request with its
// search_path set to the organisation's schema. Repositories pick the
// connection up through ConnFromContext.
func OrganisationMiddleware(pool *pgxpool.Pool, defaultOrganisation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			org := extractOrganisation(c, defaultOrganisation)
			if !ValidOrganisation(org) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid organisation")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(org))); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "organisation resolution failed")
			}

			ctx = context.WithValue(ctx, OrganisationKey, org)
			ctx = context.WithValue(ctx, DBConnKey, NewConn(conn))
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("organisation", org)
			return next(c)
		}
	}
}

// extractOrganisation prefers the token claim, then the header, then the
// configured default.
func extractOrganisation(c echo.Context, defaultOrganisation string) string {
	if org, ok := c.Get("jwt_organisation").(string); ok && org != "" {
		return org
	}
	if org := c.Request().Header.Get(OrganisationHeader); org != "" {
		return org
	}
	return defaultOrganisation
}

// ConnFromContext retrieves the organisation-scoped connection from context.
// It is safe to use from several goroutines.
func ConnFromContext(ctx context.Context) *Conn {
	conn, _ := ctx.Value(DBConnKey).(*Conn)
	return conn
}

func OrganisationFromContext(ctx context.Context) string {
	org, _ := ctx.Value(OrganisationKey).(string)
	return org
}

// WithOrganisation pins a connection scoped to org for work outside a
// request, such as CLI commands and scheduled exports. release must be
// called when done.
func WithOrganisation(ctx context.Context, pool *pgxpool.Pool, org string) (context.Context, func(), error) {
	if !ValidOrganisation(org) {
		return ctx, func() {}, fmt.Errorf("invalid organisation: %q", org)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return ctx, func() {}, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(org))); err != nil {
		conn.Release()
		return ctx, func() {}, fmt.Errorf("set search_path: %w", err)
	}
	ctx = context.WithValue(ctx, OrganisationKey, org)
	ctx = context.WithValue(ctx, DBConnKey, NewConn(conn))
	return ctx, conn.Release, nil
}

// CreateOrganisationSchema creates the organisation's schema and migrates
// it. Migrations are skipped when migrations is nil.
func CreateOrganisationSchema(ctx context.Context, pool *pgxpool.Pool, org string, migrations fs.FS) error {
	if !ValidOrganisation(org) {
		return fmt.Errorf("invalid organisation: %q", org)
	}
	schema := SchemaName(org)
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	if migrations != nil {
		if _, err := NewMigrator(pool, migrations).Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}
	return nil
}
