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

// SyncReport summarizes the catalog writes of one model
type SyncReport struct {
	Model        string
	ModelID      int64
	ModelCreated bool
	Added        []string
	Removed      []string
	Updated      []string
}

// Writes returns the number of catalog rows written
func (r *SyncReport) Writes() int {
	n := len(r.Added) + len(r.Removed) + len(r.Updated)
	if r.ModelCreated {
		// core_model and core_model_data
		n += 2
	}
	return n
}

// Synchronizer mirrors model declarations into core_model, core_field and
// core_model_data. Only column-backed fields are mirrored. Running it twice
// without a declaration change writes nothing the second time.
type Synchronizer struct {
	logger *zap.Logger
}

// NewSynchronizer creates a synchronizer
func NewSynchronizer(logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{logger: logger}
}

// SyncAll synchronizes every model of r in load order
func (s *Synchronizer) SyncAll(ctx context.Context, conn database.Conn, r *schema.Registry) ([]*SyncReport, error) {
	var reports []*SyncReport
	for _, name := range r.LoadOrder() {
		m, err := r.GetResource(name)
		if err != nil {
			return nil, err
		}
		report, err := s.SyncModel(ctx, conn, m)
		if err != nil {
			return nil, fmt.Errorf("sync %s: %w", name, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// SyncModel synchronizes the catalog rows of m
func (s *Synchronizer) SyncModel(ctx context.Context, conn database.Conn, m *schema.Model) (*SyncReport, error) {
	report := &SyncReport{Model: m.Name()}

	id, err := s.ensureModel(ctx, conn, m, report)
	if err != nil {
		return nil, err
	}
	report.ModelID = id

	stored, err := s.storedFields(ctx, conn, m, id)
	if err != nil {
		return nil, err
	}

	for _, change := range NewDiffer(stored, m.ColumnFields()).ComputeDiff() {
		switch change.Type {
		case ChangeAddField:
			f := change.New
			if _, err := conn.Execute(ctx,
				"INSERT INTO core_field (module, model, name, relation, label, type, help) VALUES (?, ?, ?, ?, ?, ?, ?)",
				m.Module(), id, f.Name, nullable(f.Relation), f.Label, f.Type, nullable(f.Help)); err != nil {
				return nil, err
			}
			report.Added = append(report.Added, change.Field)
		case ChangeDropField:
			if _, err := conn.Execute(ctx, "DELETE FROM core_field WHERE id = ?", change.Old.ID); err != nil {
				return nil, err
			}
			report.Removed = append(report.Removed, change.Field)
		case ChangeModifyField:
			f := change.New
			if _, err := conn.Execute(ctx,
				"UPDATE core_field SET relation = ?, label = ?, type = ?, help = ? WHERE id = ?",
				nullable(f.Relation), f.Label, f.Type, nullable(f.Help), f.ID); err != nil {
				return nil, err
			}
			report.Updated = append(report.Updated, change.Field)
		}
	}

	if report.Writes() > 0 {
		s.logger.Info("catalog synchronized",
			zap.String("model", m.Name()),
			zap.Bool("model_created", report.ModelCreated),
			zap.Int("added", len(report.Added)),
			zap.Int("removed", len(report.Removed)),
			zap.Int("updated", len(report.Updated)))
	} else {
		s.logger.Debug("catalog up to date", zap.String("model", m.Name()))
	}
	return report, nil
}

// ensureModel returns the core_model id of m, creating the row and its
// reference key on first registration
func (s *Synchronizer) ensureModel(ctx context.Context, conn database.Conn, m *schema.Model, report *SyncReport) (int64, error) {
	v, err := conn.QueryValue(ctx, "SELECT MAX(id) FROM core_model WHERE name = ?", m.Name())
	if err != nil {
		return 0, err
	}
	if v != nil {
		return cast.ToInt64E(v)
	}

	v, err = conn.QueryValue(ctx,
		"INSERT INTO core_model (name, module, label) VALUES (?, ?, ?) RETURNING id",
		m.Name(), m.Module(), m.Label())
	if err != nil {
		return 0, err
	}
	id, err := cast.ToInt64E(v)
	if err != nil {
		return 0, err
	}

	if _, err := conn.Execute(ctx,
		"INSERT INTO core_model_data (name, module, model, ref_id) VALUES (?, ?, ?, ?)",
		ModelKey(m.Name()), m.Module(), "core.model", id); err != nil {
		return 0, err
	}
	report.ModelCreated = true
	return id, nil
}

func (s *Synchronizer) storedFields(ctx context.Context, conn database.Conn, m *schema.Model, modelID int64) ([]CatalogField, error) {
	rows, err := conn.QueryAsDictionary(ctx,
		"SELECT id, name, relation, label, type, help FROM core_field WHERE module = ? AND model = ?",
		m.Module(), modelID)
	if err != nil {
		return nil, err
	}

	fields := make([]CatalogField, 0, len(rows))
	for _, row := range rows {
		fields = append(fields, CatalogField{
			ID:       cast.ToInt64(row["id"]),
			Name:     cast.ToString(row["name"]),
			Relation: cast.ToString(row["relation"]),
			Label:    cast.ToString(row["label"]),
			Type:     cast.ToString(row["type"]),
			Help:     cast.ToString(row["help"]),
		})
	}
	return fields, nil
}

// ModelKey returns the core_model_data key of a model
func ModelKey(model string) string {
	return "model_" + strings.ReplaceAll(model, ".", "_")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
