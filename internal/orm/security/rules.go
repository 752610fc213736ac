package security

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"

	"github.com/conduit-lang/objectserver/internal/orm/domain"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// UserPlaceholder is replaced by the acting user id in rule domains
const UserPlaceholder = "$user_id"

// RuleDomain returns the domain the user's searches on model are
// restricted to. Rules bound to the user's roles are ORed; global rules are
// ANDed with them. No applicable rule yields an empty domain.
func (f *Filter) RuleDomain(env schema.Env, model *schema.Model) (domain.Domain, error) {
	if env.Internal() {
		return nil, nil
	}
	admin, err := f.isAdmin(env)
	if err != nil || admin {
		return nil, err
	}

	rows, err := env.Conn().QueryAsDictionary(env.Context(), fmt.Sprintf(
		`SELECT a.id AS id, a.domain AS domain, a.role AS role FROM core_rule a JOIN core_model m ON a.model = m.id WHERE m.name = ? AND %s ORDER BY a.id`,
		userRoles), model.Name(), env.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to load record rules of %s: %w", model.Name(), err)
	}

	var global domain.Domain
	var byRole []domain.Domain
	for _, row := range rows {
		d, err := ParseRule(cast.ToString(row["domain"]), env.UserID())
		if err != nil {
			return nil, ormerrors.Definition(model.Name(), "record rule %d: %v", cast.ToInt64(row["id"]), err)
		}
		if row["role"] == nil {
			global = global.And(d)
			continue
		}
		byRole = append(byRole, d)
	}
	return global.And(domain.Or(byRole...)), nil
}

// ParseRule decodes a JSON rule domain and substitutes the user id
func ParseRule(text string, userID int64) (domain.Domain, error) {
	var raw []interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("invalid domain: %w", err)
	}
	return domain.Domain(substitute(raw, userID).([]interface{})), nil
}

func substitute(v interface{}, userID int64) interface{} {
	switch x := v.(type) {
	case string:
		if x == UserPlaceholder {
			return userID
		}
		return x
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, el := range x {
			out[i] = substitute(el, userID)
		}
		return out
	default:
		return v
	}
}
