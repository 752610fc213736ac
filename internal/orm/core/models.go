// Package core declares the built-in models every object server loads: the
// metadata catalog, users and roles, and the access-control tables read by
// the security filter.
package core

import (
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Model names
const (
	ModelModel       = "core.model"
	ModelField       = "core.field"
	ModelModelData   = "core.model_data"
	ModelUser        = "core.user"
	ModelRole        = "core.role"
	ModelUserRole    = "core.user_role"
	ModelModelAccess = "core.model_access"
	ModelFieldAccess = "core.field_access"
	ModelRule        = "core.rule"
)

// AdminLogin is the login of the user created by Init
const AdminLogin = "admin"

// Models returns fresh declarations of the core models
func Models() []*schema.Model {
	return []*schema.Model{
		catalogModel(),
		catalogField(),
		modelData(),
		user(),
		role(),
		userRole(),
		modelAccess(),
		fieldAccess(),
		rule(),
	}
}

// Register declares the core models in r
func Register(r *schema.Registry) error {
	return r.Register(Models()...)
}

func catalogModel() *schema.Model {
	m := schema.NewModel(ModelModel).
		SetLabel("Model").
		SetVersioned(false).
		SetAudited(false)
	m.Chars("name").SetLabel("Name").SetSize(128).Required()
	m.Chars("module").SetLabel("Module").SetSize(64).Required()
	m.Chars("label").SetLabel("Label").SetSize(256)
	m.OneToMany("fields", ModelField, "model").SetLabel("Fields")
	return m
}

func catalogField() *schema.Model {
	m := schema.NewModel(ModelField).
		SetLabel("Field").
		SetVersioned(false).
		SetAudited(false)
	m.Chars("module").SetLabel("Module").SetSize(64).Required()
	m.ManyToOne("model", ModelModel).SetLabel("Model").Required().OnDelete(schema.OnDeleteCascade)
	m.Chars("name").SetLabel("Name").SetSize(128).Required()
	m.Chars("relation").SetLabel("Relation").SetSize(128)
	m.Chars("label").SetLabel("Label").SetSize(256)
	m.Chars("type").SetLabel("Type").SetSize(32).Required()
	m.Text("help").SetLabel("Help")
	return m
}

func modelData() *schema.Model {
	m := schema.NewModel(ModelModelData).
		SetLabel("Model Data").
		SetVersioned(false).
		SetAudited(false)
	m.Chars("name").SetLabel("Key").SetSize(128).Required()
	m.Chars("module").SetLabel("Module").SetSize(64).Required()
	m.Chars("model").SetLabel("Model").SetSize(128).Required()
	m.BigInteger("ref_id").SetLabel("Referenced ID").Required()
	m.Text("value").SetLabel("Value")
	return m
}

func user() *schema.Model {
	m := schema.NewModel(ModelUser).SetLabel("User")
	m.Chars("name").SetLabel("Name").SetSize(128).Required()
	m.Chars("login").SetLabel("Login").SetSize(64).Required()
	m.Chars("password").SetLabel("Password").SetSize(128)
	m.Chars("email").SetLabel("E-mail").SetSize(128)
	m.Boolean("admin").SetLabel("Administrator").SetDefault(false)
	m.Boolean("active").SetLabel("Active").SetDefault(true)
	m.ManyToMany("roles", ModelUserRole, "user", "role").SetLabel("Roles")

	m.Hook(schema.BeforeCreate, hashPassword)
	m.Hook(schema.BeforeUpdate, hashPassword)
	m.Method("authenticate", authenticate)
	return m
}

func role() *schema.Model {
	m := schema.NewModel(ModelRole).SetLabel("Role")
	m.Chars("name").SetLabel("Name").SetSize(128).Required()
	m.ManyToMany("users", ModelUserRole, "role", "user").SetLabel("Users")
	return m
}

func userRole() *schema.Model {
	m := schema.NewModel(ModelUserRole).
		SetLabel("User Role").
		SetVersioned(false).
		SetAudited(false)
	m.ManyToOne("user", ModelUser).SetLabel("User").Required().OnDelete(schema.OnDeleteCascade)
	m.ManyToOne("role", ModelRole).SetLabel("Role").Required().OnDelete(schema.OnDeleteCascade)
	return m
}

func modelAccess() *schema.Model {
	m := schema.NewModel(ModelModelAccess).SetLabel("Model Access")
	m.Chars("name").SetLabel("Name").SetSize(128)
	m.ManyToOne("model", ModelModel).SetLabel("Model").Required().OnDelete(schema.OnDeleteCascade)
	m.ManyToOne("role", ModelRole).SetLabel("Role").OnDelete(schema.OnDeleteCascade)
	m.Boolean("allow_create").SetLabel("Allow Creating").Required().SetDefault(true)
	m.Boolean("allow_read").SetLabel("Allow Reading").Required().SetDefault(true)
	m.Boolean("allow_write").SetLabel("Allow Writing").Required().SetDefault(true)
	m.Boolean("allow_delete").SetLabel("Allow Deleting").Required().SetDefault(true)
	return m
}

func fieldAccess() *schema.Model {
	m := schema.NewModel(ModelFieldAccess).SetLabel("Field Access")
	m.Chars("name").SetLabel("Name").SetSize(128)
	m.ManyToOne("field", ModelField).SetLabel("Field").Required().OnDelete(schema.OnDeleteCascade)
	m.ManyToOne("role", ModelRole).SetLabel("Role").OnDelete(schema.OnDeleteCascade)
	m.Boolean("allow_read").SetLabel("Allow Reading").Required().SetDefault(true)
	m.Boolean("allow_write").SetLabel("Allow Writing").Required().SetDefault(true)
	return m
}

func rule() *schema.Model {
	m := schema.NewModel(ModelRule).SetLabel("Record Rule")
	m.Chars("name").SetLabel("Name").SetSize(128)
	m.ManyToOne("model", ModelModel).SetLabel("Model").Required().OnDelete(schema.OnDeleteCascade)
	m.ManyToOne("role", ModelRole).SetLabel("Role").OnDelete(schema.OnDeleteCascade)
	m.Text("domain").SetLabel("Domain").Required().SetHelp(`JSON domain; "$user_id" is replaced by the acting user`)
	return m
}
