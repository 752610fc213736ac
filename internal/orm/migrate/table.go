package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// TableBuilder creates model tables and, for models with auto migration,
// adds columns declared after the table was created. It never drops or
// alters existing columns.
type TableBuilder struct {
	dialect    database.Dialect
	typeMapper *TypeMapper
	container  schema.ResourceContainer
	logger     *zap.Logger
}

// NewTableBuilder creates a table builder. container resolves the targets of
// many-to-one references.
func NewTableBuilder(dialect database.Dialect, container schema.ResourceContainer, logger *zap.Logger) *TableBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableBuilder{
		dialect:    dialect,
		typeMapper: NewTypeMapper(dialect),
		container:  container,
		logger:     logger,
	}
}

// EnsureAll ensures the tables of every model of r in load order
func (b *TableBuilder) EnsureAll(ctx context.Context, conn database.Conn, r *schema.Registry) error {
	for _, name := range r.LoadOrder() {
		m, err := r.GetResource(name)
		if err != nil {
			return err
		}
		if _, _, err := b.EnsureTable(ctx, conn, m); err != nil {
			return fmt.Errorf("table of %s: %w", name, err)
		}
	}
	return nil
}

// EnsureTable creates the table of m when missing and otherwise adds missing
// columns. It returns whether the table was created and the added columns.
func (b *TableBuilder) EnsureTable(ctx context.Context, conn database.Conn, m *schema.Model) (bool, []string, error) {
	exists, err := b.tableExists(ctx, conn, m.TableName())
	if err != nil {
		return false, nil, err
	}

	if !exists {
		stmts, err := b.CreateTable(m)
		if err != nil {
			return false, nil, err
		}
		for _, stmt := range stmts {
			if _, err := conn.Execute(ctx, stmt); err != nil {
				return false, nil, err
			}
		}
		b.logger.Info("table created", zap.String("model", m.Name()), zap.String("table", m.TableName()))
		return true, nil, nil
	}

	if !m.AutoMigration() {
		return false, nil, nil
	}

	existing, err := b.columns(ctx, conn, m.TableName())
	if err != nil {
		return false, nil, err
	}

	var added []string
	for _, f := range m.ColumnFields() {
		if existing[strings.ToLower(f.Name())] {
			continue
		}
		def, err := b.columnDefinition(f, false)
		if err != nil {
			return false, nil, err
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", b.dialect.Quote(m.TableName()), def)
		if _, err := conn.Execute(ctx, stmt); err != nil {
			return false, nil, err
		}
		added = append(added, f.Name())
	}
	if len(added) > 0 {
		b.logger.Info("columns added", zap.String("model", m.Name()), zap.Strings("columns", added))
	}
	return false, added, nil
}

// CreateTable returns the statements creating the table of m
func (b *TableBuilder) CreateTable(m *schema.Model) ([]string, error) {
	var defs []string
	for _, f := range m.ColumnFields() {
		def, err := b.columnDefinition(f, true)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name(), err)
		}
		defs = append(defs, def)
	}

	table := b.dialect.Quote(m.TableName())
	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(defs, ",\n  ")),
	}
	if m.IsHierarchy() {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s, %s)",
			b.dialect.Quote("idx_"+m.TableName()+"_interval"), table,
			b.dialect.Quote(schema.FieldLeft), b.dialect.Quote(schema.FieldRight)))
	}
	return stmts, nil
}

// columnDefinition renders one column. Constraints that cannot be added to
// a populated table are left out when create is false.
func (b *TableBuilder) columnDefinition(f *schema.Field, create bool) (string, error) {
	columnType, err := b.typeMapper.MapType(f)
	if err != nil {
		return "", err
	}
	parts := []string{b.dialect.Quote(f.Name()), columnType}

	if f.Type() == schema.TypeID {
		return strings.Join(parts, " "), nil
	}

	if f.Name() == schema.FieldVersion {
		parts = append(parts, "NOT NULL DEFAULT 0")
	} else if create && f.IsRequired() && f.Type() != schema.TypeManyToOne {
		parts = append(parts, "NOT NULL")
	}

	if f.Type() == schema.TypeManyToOne {
		target, err := b.container.GetResource(f.Relation())
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("REFERENCES %s (%s) %s",
			b.dialect.Quote(target.TableName()), b.dialect.Quote(schema.FieldID), b.typeMapper.MapOnDelete(f.OnDeleteAction())))
	}
	return strings.Join(parts, " "), nil
}

func (b *TableBuilder) tableExists(ctx context.Context, conn database.Conn, table string) (bool, error) {
	query, args := b.dialect.TableExists(table)
	v, err := conn.QueryValue(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (b *TableBuilder) columns(ctx context.Context, conn database.Conn, table string) (map[string]bool, error) {
	query, args := b.dialect.Columns(table)
	rows, err := conn.QueryAsDictionary(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[strings.ToLower(cast.ToString(row["name"]))] = true
	}
	return out, nil
}
