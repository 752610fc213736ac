package migrate

import (
	"context"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
)

// ModelData resolves stable reference keys to record ids through
// core_model_data
type ModelData struct{}

// Lookup returns the id referenced by key for model
func (ModelData) Lookup(ctx context.Context, conn database.Conn, model, key string) (int64, error) {
	ids, err := conn.QueryIDs(ctx,
		"SELECT ref_id FROM core_model_data WHERE model = ? AND name = ?", model, key)
	if err != nil {
		return 0, err
	}
	switch len(ids) {
	case 0:
		return 0, ormerrors.ResourceNotFound(model, "no record with key %q", key)
	case 1:
		return ids[0], nil
	default:
		return 0, ormerrors.Argument(model, "key %q is ambiguous", key)
	}
}

// Register records key as the reference of record id of model
func (ModelData) Register(ctx context.Context, conn database.Conn, module, model, key string, id int64) error {
	_, err := conn.Execute(ctx,
		"INSERT INTO core_model_data (name, module, model, ref_id) VALUES (?, ?, ?, ?)",
		key, module, model, id)
	return err
}
