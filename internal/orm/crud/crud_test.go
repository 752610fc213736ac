package crud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/objectserver/internal/orm/database"
	"github.com/conduit-lang/objectserver/internal/orm/domain"
	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/migrate"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// testEnv is a minimal request scope over one sqlite connection
type testEnv struct {
	ctx      context.Context
	conn     database.Conn
	registry *schema.Registry
	access   AccessFilter
	userID   int64
	internal bool
}

func (e *testEnv) Context() context.Context   { return e.ctx }
func (e *testEnv) Conn() database.Conn        { return e.conn }
func (e *testEnv) UserID() int64              { return e.userID }
func (e *testEnv) Internal() bool             { return e.internal }
func (e *testEnv) Registry() *schema.Registry { return e.registry }

func (e *testEnv) engine(model string) (*Engine, error) {
	m, err := e.registry.GetResource(model)
	if err != nil {
		return nil, err
	}
	return NewEngine(m, e.registry, e.access, nil), nil
}

func (e *testEnv) Search(model string, d []interface{}, order []string, offset, limit int64) ([]int64, error) {
	eng, err := e.engine(model)
	if err != nil {
		return nil, err
	}
	return eng.Search(e, domain.Domain(d), order, offset, limit)
}

func (e *testEnv) Read(model string, ids []int64, fields []string) ([]schema.Record, error) {
	eng, err := e.engine(model)
	if err != nil {
		return nil, err
	}
	return eng.Read(e, ids, fields)
}

// fakeAccess denies operations and fields and restricts searches per model
type fakeAccess struct {
	deny   map[Operation]bool
	fields map[string]bool
	rules  map[string]domain.Domain
	// models reported through Changed, in call order
	changed []string
}

func (a *fakeAccess) CheckModel(_ schema.Env, model *schema.Model, op Operation) error {
	if a.deny[op] {
		return ormerrors.Security(model.Name(), op.String())
	}
	return nil
}

func (a *fakeAccess) DeniedFields(schema.Env, *schema.Model, Operation) (map[string]bool, error) {
	return a.fields, nil
}

func (a *fakeAccess) RuleDomain(_ schema.Env, model *schema.Model) (domain.Domain, error) {
	return a.rules[model.Name()], nil
}

func (a *fakeAccess) Changed(_ schema.Env, model *schema.Model) {
	a.changed = append(a.changed, model.Name())
}

type fixture struct {
	t        *testing.T
	env      *testEnv
	created  []int64
	category *Engine
	party    *Engine
	contact  *Engine
	tag      *Engine
	ids      map[string]int64
	// ids passed to each call of the test.party reference getter
	getterCalls [][]int64
}

func testModels(f *fixture) []*schema.Model {
	category := schema.NewModel("test.category").Hierarchical()
	category.Chars("name").Required()

	party := schema.NewModel("test.party")
	party.Chars("name").Required()
	party.Chars("email")
	party.Chars("reference").ValueGetter(func(_ schema.Env, ids []int64) (map[int64]interface{}, error) {
		f.getterCalls = append(f.getterCalls, append([]int64(nil), ids...))
		out := make(map[int64]interface{}, len(ids))
		for _, id := range ids {
			out[id] = fmt.Sprintf("P-%d", id)
		}
		return out, nil
	})

	tag := schema.NewModel("test.tag").SetNameField("label").SetVersioned(false)
	tag.Chars("label").Required()
	tag.Hook(schema.BeforeCreate, func(_ schema.Env, record schema.Record) error {
		record["label"] = strings.ToUpper(cast.ToString(record["label"]))
		return nil
	})
	tag.Hook(schema.AfterCreate, func(_ schema.Env, record schema.Record) error {
		f.created = append(f.created, record.ID())
		return nil
	})
	tag.Hook(schema.BeforeDelete, func(_ schema.Env, record schema.Record) error {
		if record.ID() == f.ids["locked"] {
			return errors.New("tag is locked")
		}
		return nil
	})

	contactTag := schema.NewModel("test.contact_tag").SetVersioned(false).SetAudited(false)
	contactTag.ManyToOne("contact", "test.contact").Required().OnDelete(schema.OnDeleteCascade)
	contactTag.ManyToOne("tag", "test.tag").Required().OnDelete(schema.OnDeleteCascade)

	contact := schema.NewModel("test.contact").Inherit("test.party", "party")
	contact.ManyToOne("party", "test.party").Required().OnDelete(schema.OnDeleteCascade)
	contact.Integer("age")
	contact.Chars("code").SetSize(4).Readonly().SetDefault("C")
	contact.Enumeration("kind", schema.Option{Key: "person"}, schema.Option{Key: "company"}).SetDefault("person")
	contact.ManyToOne("category", "test.category").OnDelete(schema.OnDeleteSetNull)
	contact.ManyToMany("tags", "test.contact_tag", "contact", "tag")
	contact.OneToMany("links", "test.contact_tag", "contact")
	contact.Chars("summary").ValueGetter(func(env schema.Env, ids []int64) (map[int64]interface{}, error) {
		records, err := env.Read("test.contact", ids, []string{"name", "email"})
		if err != nil {
			return nil, err
		}
		out := make(map[int64]interface{}, len(records))
		for _, rec := range records {
			out[rec.ID()] = fmt.Sprintf("%v <%v>", rec["name"], rec["email"])
		}
		return out, nil
	})

	return []*schema.Model{category, party, tag, contactTag, contact}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	p, err := database.NewProvider(db, "sqlite3", nil)
	require.NoError(t, err)
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f := &fixture{t: t, ids: make(map[string]int64)}
	r := schema.NewRegistry()
	require.NoError(t, r.Register(testModels(f)...))
	require.NoError(t, r.Load())
	require.NoError(t, migrate.NewTableBuilder(conn.Dialect(), r, nil).EnsureAll(ctx, conn, r))

	f.env = &testEnv{ctx: ctx, conn: conn, registry: r, userID: 1}
	f.category = f.engine("test.category")
	f.party = f.engine("test.party")
	f.contact = f.engine("test.contact")
	f.tag = f.engine("test.tag")
	return f
}

func (f *fixture) engine(model string) *Engine {
	eng, err := f.env.engine(model)
	require.NoError(f.t, err)
	return eng
}

// buildTree creates
//
//	node1
//	node2
//	├── node3
//	│   └── node5
//	└── node4
func (f *fixture) buildTree() {
	f.node("node1", "")
	f.node("node2", "")
	f.node("node3", "node2")
	f.node("node4", "node2")
	f.node("node5", "node3")
}

func (f *fixture) node(name, parent string) {
	values := schema.Record{"name": name}
	if parent != "" {
		values["parent"] = f.ids[parent]
	}
	id, err := f.category.Create(f.env, values)
	require.NoError(f.t, err)
	f.ids[name] = id
}

func (f *fixture) assertNode(name string, left, right int64) {
	f.t.Helper()
	records, err := f.category.Read(f.env, []int64{f.ids[name]}, []string{schema.FieldLeft, schema.FieldRight})
	require.NoError(f.t, err)
	require.Len(f.t, records, 1)
	assert.Equal(f.t, [2]interface{}{left, right}, [2]interface{}{records[0][schema.FieldLeft], records[0][schema.FieldRight]}, name)
}

func (f *fixture) version(eng *Engine, id int64) int64 {
	f.t.Helper()
	records, err := eng.Read(f.env, []int64{id}, []string{schema.FieldVersion})
	require.NoError(f.t, err)
	require.Len(f.t, records, 1)
	return records[0][schema.FieldVersion].(int64)
}

func (f *fixture) move(name, parent string) error {
	values := schema.Record{
		"parent":            nil,
		schema.FieldVersion: f.version(f.category, f.ids[name]),
	}
	if parent != "" {
		values["parent"] = f.ids[parent]
	}
	return f.category.Write(f.env, f.ids[name], values)
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "create", OperationCreate.String())
	assert.Equal(t, "read", OperationRead.String())
	assert.Equal(t, "write", OperationWrite.String())
	assert.Equal(t, "delete", OperationDelete.String())
	assert.Equal(t, "unknown", Operation(42).String())
}

func TestCreateAndRead(t *testing.T) {
	f := newFixture(t)

	books, err := f.category.Create(f.env, schema.Record{"name": "Books"})
	require.NoError(t, err)
	red, err := f.tag.Create(f.env, schema.Record{"label": "red"})
	require.NoError(t, err)
	blue, err := f.tag.Create(f.env, schema.Record{"label": "blue"})
	require.NoError(t, err)

	id, err := f.contact.Create(f.env, schema.Record{
		"name":     "Alice",
		"email":    "alice@example.com",
		"age":      "30",
		"category": []interface{}{books, "Books"},
		"tags":     []interface{}{blue, red},
	})
	require.NoError(t, err)

	records, err := f.contact.Read(f.env, []int64{id, 9999}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]

	assert.Equal(t, id, rec.ID())
	assert.Equal(t, "Alice", rec["name"])
	assert.Equal(t, "alice@example.com", rec["email"])
	assert.Equal(t, int64(30), rec["age"])
	assert.Equal(t, "C", rec["code"])
	assert.Equal(t, "person", rec["kind"])
	assert.Equal(t, []interface{}{books, "Books"}, rec["category"])
	assert.Equal(t, []int64{blue, red}, rec["tags"])
	assert.Len(t, rec["links"], 2)
	assert.Equal(t, "Alice <alice@example.com>", rec["summary"])
	assert.Equal(t, int64(0), rec[schema.FieldVersion])
	assert.Equal(t, int64(1), rec[schema.FieldCreatedUser])
	assert.NotNil(t, rec[schema.FieldCreatedTime])

	party, ok := rec["party"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "Alice", party[1])

	partyRecords, err := f.party.Read(f.env, []int64{party[0].(int64)}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", partyRecords[0]["name"])

	tags, err := f.tag.Read(f.env, []int64{red}, []string{"label"})
	require.NoError(t, err)
	assert.Equal(t, "RED", tags[0]["label"])
	assert.Equal(t, []int64{red, blue}, f.created)
}

func TestReadFunctionalFields(t *testing.T) {
	f := newFixture(t)

	// a standalone party shifts party ids away from contact ids
	acme, err := f.party.Create(f.env, schema.Record{"name": "Acme"})
	require.NoError(t, err)
	alice, err := f.contact.Create(f.env, schema.Record{"name": "Alice"})
	require.NoError(t, err)
	bob, err := f.contact.Create(f.env, schema.Record{"name": "Bob"})
	require.NoError(t, err)

	records, err := f.contact.Read(f.env, []int64{alice, bob}, []string{"party"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	aliceParty := records[0]["party"].([]interface{})[0].(int64)
	bobParty := records[1]["party"].([]interface{})[0].(int64)
	require.NotEqual(t, alice, aliceParty)

	t.Run("inherited getter sees base ids", func(t *testing.T) {
		f.getterCalls = nil
		records, err := f.contact.Read(f.env, []int64{alice, bob}, []string{"name", "reference"})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, fmt.Sprintf("P-%d", aliceParty), records[0]["reference"])
		assert.Equal(t, fmt.Sprintf("P-%d", bobParty), records[1]["reference"])
		assert.Equal(t, [][]int64{{aliceParty, bobParty}}, f.getterCalls)
	})

	t.Run("one getter call per read", func(t *testing.T) {
		f.getterCalls = nil
		records, err := f.party.Read(f.env, []int64{acme, bobParty, acme}, []string{"reference"})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, fmt.Sprintf("P-%d", acme), records[0]["reference"])
		assert.Equal(t, [][]int64{{acme, bobParty}}, f.getterCalls)
	})

	t.Run("not searchable", func(t *testing.T) {
		_, err := f.contact.Search(f.env, domain.Domain{domain.Where("reference", "=", "P-1")}, nil, 0, 0)
		assert.ErrorIs(t, err, ormerrors.ErrArgument)
	})
}

func TestReadOneToManyBatch(t *testing.T) {
	f := newFixture(t)
	red, err := f.tag.Create(f.env, schema.Record{"label": "red"})
	require.NoError(t, err)
	blue, err := f.tag.Create(f.env, schema.Record{"label": "blue"})
	require.NoError(t, err)

	alice, err := f.contact.Create(f.env, schema.Record{"name": "Alice", "tags": []int64{red, blue}})
	require.NoError(t, err)
	bob, err := f.contact.Create(f.env, schema.Record{"name": "Bob", "tags": []int64{blue}})
	require.NoError(t, err)
	carol, err := f.contact.Create(f.env, schema.Record{"name": "Carol"})
	require.NoError(t, err)

	records, err := f.contact.Read(f.env, []int64{alice, bob, carol}, []string{"links"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Len(t, records[0]["links"], 2)
	assert.Len(t, records[1]["links"], 1)
	assert.Equal(t, []int64{}, records[2]["links"])

	links, err := f.engine("test.contact_tag").Read(f.env, records[1]["links"].([]int64), []string{"contact", "tag"})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, bob, links[0]["contact"].([]interface{})[0])
	assert.Equal(t, blue, links[0]["tag"].([]interface{})[0])
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		values schema.Record
		kind   error
		field  string
	}{
		{"unknown field", schema.Record{"name": "x", "nickname": "y"}, ormerrors.ErrArgumentOutOfRange, ""},
		{"system field", schema.Record{"name": "x", schema.FieldVersion: 3}, ormerrors.ErrValidation, schema.FieldVersion},
		{"readonly field", schema.Record{"name": "x", "code": "Z"}, ormerrors.ErrValidation, "code"},
		{"functional field", schema.Record{"name": "x", "summary": "Z"}, ormerrors.ErrValidation, "summary"},
		{"missing required inherited field", schema.Record{"age": 3}, ormerrors.ErrValidation, "name"},
		{"one2many value", schema.Record{"name": "x", "links": []int64{1}}, ormerrors.ErrValidation, "links"},
		{"enumeration value", schema.Record{"name": "x", "kind": "robot"}, ormerrors.ErrValidation, "kind"},
		{"conversion failure", schema.Record{"name": "x", "age": "old"}, ormerrors.ErrValidation, "age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.contact.Create(f.env, tt.values)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			if tt.field != "" {
				var e *ormerrors.Error
				require.True(t, errors.As(err, &e))
				assert.Contains(t, e.Fields, tt.field)
			}

			n, err := f.contact.Count(f.env, nil)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestCreateInternalScopeMayWriteReadonly(t *testing.T) {
	f := newFixture(t)
	f.env.internal = true

	id, err := f.contact.Create(f.env, schema.Record{"name": "Bob", "code": "Z"})
	require.NoError(t, err)

	records, err := f.contact.Read(f.env, []int64{id}, []string{"code"})
	require.NoError(t, err)
	assert.Equal(t, "Z", records[0]["code"])
}

func TestCreateSizeLimit(t *testing.T) {
	f := newFixture(t)
	f.env.internal = true

	_, err := f.contact.Create(f.env, schema.Record{"name": "Bob", "code": "TOOLONG"})
	assert.ErrorIs(t, err, ormerrors.ErrValidation)
}

func TestReadErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.contact.Read(f.env, []int64{1}, []string{"nickname"})
	assert.ErrorIs(t, err, ormerrors.ErrArgumentOutOfRange)

	records, err := f.contact.Read(f.env, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWriteVersioning(t *testing.T) {
	f := newFixture(t)
	id, err := f.contact.Create(f.env, schema.Record{"name": "Alice", "age": 30})
	require.NoError(t, err)

	require.NoError(t, f.contact.Write(f.env, id, schema.Record{"age": 31, schema.FieldVersion: int64(0)}))
	assert.Equal(t, int64(1), f.version(f.contact, id))

	t.Run("stale version", func(t *testing.T) {
		err := f.contact.Write(f.env, id, schema.Record{"age": 99, schema.FieldVersion: int64(0)})
		assert.ErrorIs(t, err, ormerrors.ErrConcurrency)
	})

	t.Run("missing version", func(t *testing.T) {
		err := f.contact.Write(f.env, id, schema.Record{"age": 99})
		assert.ErrorIs(t, err, ormerrors.ErrConcurrency)
	})

	t.Run("unknown record", func(t *testing.T) {
		err := f.contact.Write(f.env, 9999, schema.Record{"age": 99, schema.FieldVersion: int64(0)})
		assert.ErrorIs(t, err, ormerrors.ErrResourceNotFound)
	})

	t.Run("unknown field", func(t *testing.T) {
		err := f.contact.Write(f.env, id, schema.Record{"nickname": "x", schema.FieldVersion: int64(1)})
		assert.ErrorIs(t, err, ormerrors.ErrArgumentOutOfRange)
	})

	t.Run("readonly field", func(t *testing.T) {
		err := f.contact.Write(f.env, id, schema.Record{"code": "Z", schema.FieldVersion: int64(1)})
		assert.ErrorIs(t, err, ormerrors.ErrValidation)
	})

	records, err := f.contact.Read(f.env, []int64{id}, []string{"age", schema.FieldVersion})
	require.NoError(t, err)
	assert.Equal(t, int64(31), records[0]["age"])
	assert.Equal(t, int64(1), records[0][schema.FieldVersion])

	t.Run("system fields are ignored", func(t *testing.T) {
		err := f.contact.Write(f.env, id, schema.Record{
			"age":                   32,
			schema.FieldVersion:     int64(1),
			schema.FieldCreatedUser: int64(77),
		})
		require.NoError(t, err)
		records, err := f.contact.Read(f.env, []int64{id}, []string{"age", schema.FieldCreatedUser, schema.FieldVersion})
		require.NoError(t, err)
		assert.Equal(t, int64(32), records[0]["age"])
		assert.Equal(t, int64(1), records[0][schema.FieldCreatedUser])
		assert.Equal(t, int64(2), records[0][schema.FieldVersion])
	})
}

func TestWriteInheritedAndLinks(t *testing.T) {
	f := newFixture(t)
	red, err := f.tag.Create(f.env, schema.Record{"label": "red"})
	require.NoError(t, err)
	blue, err := f.tag.Create(f.env, schema.Record{"label": "blue"})
	require.NoError(t, err)

	id, err := f.contact.Create(f.env, schema.Record{"name": "Alice", "tags": []int64{red}})
	require.NoError(t, err)

	require.NoError(t, f.contact.Write(f.env, id, schema.Record{
		"name":              "Alicia",
		"tags":              []int64{blue},
		schema.FieldVersion: int64(0),
	}))

	records, err := f.contact.Read(f.env, []int64{id}, []string{"name", "tags", "party"})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", records[0]["name"])
	assert.Equal(t, []int64{blue}, records[0]["tags"])

	partyID := records[0]["party"].([]interface{})[0].(int64)
	assert.Equal(t, int64(1), f.version(f.party, partyID))

	ids, err := f.contact.Search(f.env, domain.Domain{domain.Where("name", "=", "Alicia")}, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, ids)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	red, err := f.tag.Create(f.env, schema.Record{"label": "red"})
	require.NoError(t, err)
	a, err := f.contact.Create(f.env, schema.Record{"name": "A", "tags": []int64{red}})
	require.NoError(t, err)
	b, err := f.contact.Create(f.env, schema.Record{"name": "B", "tags": []int64{red}})
	require.NoError(t, err)

	require.NoError(t, f.contact.Delete(f.env, []int64{a, 9999}))
	require.NoError(t, f.contact.Delete(f.env, []int64{9999}))

	ids, err := f.contact.Search(f.env, nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{b}, ids)

	links, err := f.env.conn.QueryIDs(f.env.ctx, "SELECT contact FROM test_contact_tag ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []int64{b}, links)
}

func TestDeleteHookAborts(t *testing.T) {
	f := newFixture(t)
	locked, err := f.tag.Create(f.env, schema.Record{"label": "locked"})
	require.NoError(t, err)
	f.ids["locked"] = locked

	err = f.tag.Delete(f.env, []int64{locked})
	assert.ErrorContains(t, err, "tag is locked")

	n, err := f.tag.Count(f.env, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHierarchyThroughCRUD(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		f := newFixture(t)
		f.buildTree()

		f.assertNode("node1", 1, 2)
		f.assertNode("node2", 3, 10)
		f.assertNode("node3", 4, 7)
		f.assertNode("node4", 8, 9)
		f.assertNode("node5", 5, 6)
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t)
		f.buildTree()

		require.NoError(t, f.category.Delete(f.env, []int64{f.ids["node3"], f.ids["node1"]}))
		ids, err := f.category.Search(f.env, nil, nil, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []int64{f.ids["node2"], f.ids["node4"]}, ids)

		f.assertNode("node2", 1, 4)
		f.assertNode("node4", 2, 3)
	})

	t.Run("move leaf", func(t *testing.T) {
		f := newFixture(t)
		f.buildTree()

		require.NoError(t, f.move("node5", "node2"))
		f.assertNode("node5", 8, 9)
		f.assertNode("node2", 3, 10)
	})

	t.Run("move subtree", func(t *testing.T) {
		f := newFixture(t)
		f.buildTree()

		require.NoError(t, f.move("node3", "node1"))
		f.assertNode("node3", 2, 5)
		f.assertNode("node5", 3, 4)
		f.assertNode("node1", 1, 6)
		assert.Equal(t, int64(1), f.version(f.category, f.ids["node3"]))

		records, err := f.category.Read(f.env, []int64{f.ids["node3"]}, []string{"parent"})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{f.ids["node1"], "node1"}, records[0]["parent"])
	})

	t.Run("move to roots", func(t *testing.T) {
		f := newFixture(t)
		f.buildTree()

		require.NoError(t, f.move("node3", ""))
		f.assertNode("node2", 3, 6)
		f.assertNode("node4", 4, 5)
		f.assertNode("node3", 7, 10)
		f.assertNode("node5", 8, 9)
	})

	t.Run("move under descendant", func(t *testing.T) {
		f := newFixture(t)
		f.buildTree()

		err := f.move("node2", "node5")
		assert.ErrorIs(t, err, ormerrors.ErrValidation)
		f.assertNode("node2", 3, 10)
	})

	t.Run("childof", func(t *testing.T) {
		f := newFixture(t)
		f.buildTree()

		ids, err := f.category.Search(f.env, domain.Domain{domain.Where("id", "childof", f.ids["node2"])}, nil, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []int64{f.ids["node3"], f.ids["node4"], f.ids["node5"]}, ids)
	})

	t.Run("children and descendants", func(t *testing.T) {
		f := newFixture(t)
		f.buildTree()

		records, err := f.category.Read(f.env, []int64{f.ids["node2"]}, []string{schema.FieldChildren, schema.FieldDescendants})
		require.NoError(t, err)
		assert.Equal(t, []int64{f.ids["node3"], f.ids["node4"]}, records[0][schema.FieldChildren])
		assert.ElementsMatch(t, []int64{f.ids["node3"], f.ids["node4"], f.ids["node5"]}, records[0][schema.FieldDescendants])
	})
}

func TestSearchAndCount(t *testing.T) {
	f := newFixture(t)
	for i, name := range []string{"Carol", "Alice", "Bob", "Dave"} {
		_, err := f.contact.Create(f.env, schema.Record{"name": name, "age": 20 + i*10})
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		domain   domain.Domain
		order    []string
		offset   int64
		limit    int64
		expected []int64
	}{
		{"all by id", nil, nil, 0, 0, []int64{1, 2, 3, 4}},
		{"ordered desc", nil, []string{"age desc"}, 0, 0, []int64{4, 3, 2, 1}},
		{"paged", nil, []string{"age"}, 1, 2, []int64{2, 3}},
		{"filtered", domain.Domain{domain.Where("age", ">=", 40)}, nil, 0, 0, []int64{3, 4}},
		{"inherited", domain.Domain{"or", domain.Where("name", "=", "Alice"), domain.Where("name", "=", "Dave")}, nil, 0, 0, []int64{2, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := f.contact.Search(f.env, tt.domain, tt.order, tt.offset, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids)
		})
	}

	n, err := f.contact.Count(f.env, domain.Domain{domain.Where("age", "<", 40)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.contact.Search(f.env, nil, []string{"tags"}, 0, 0)
	assert.ErrorIs(t, err, ormerrors.ErrArgument)
}

func TestAccessFilter(t *testing.T) {
	f := newFixture(t)
	young, err := f.contact.Create(f.env, schema.Record{"name": "Young", "age": 10})
	require.NoError(t, err)
	old, err := f.contact.Create(f.env, schema.Record{"name": "Old", "age": 80})
	require.NoError(t, err)

	access := &fakeAccess{
		deny:   map[Operation]bool{OperationDelete: true},
		fields: map[string]bool{"age": true},
		rules:  map[string]domain.Domain{"test.contact": {domain.Where("name", "=", "Old")}},
	}
	f.env.access = access
	contact := f.engine("test.contact")

	err = contact.Delete(f.env, []int64{young})
	assert.ErrorIs(t, err, ormerrors.ErrSecurity)

	records, err := contact.Read(f.env, []int64{young}, nil)
	require.NoError(t, err)
	assert.NotContains(t, records[0], "age")
	assert.Contains(t, records[0], "name")

	_, err = contact.Read(f.env, []int64{young}, []string{"age"})
	assert.ErrorIs(t, err, ormerrors.ErrSecurity)

	err = contact.Write(f.env, young, schema.Record{"age": 11, schema.FieldVersion: int64(0)})
	assert.ErrorIs(t, err, ormerrors.ErrSecurity)

	ids, err := contact.Search(f.env, nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{old}, ids)

	n, err := contact.Count(f.env, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	f.env.internal = true
	require.NoError(t, contact.Delete(f.env, []int64{young}))
}

func TestChangedModelsReported(t *testing.T) {
	f := newFixture(t)
	access := &fakeAccess{}
	f.env.access = access
	contact := f.engine("test.contact")
	tag := f.engine("test.tag")

	red, err := tag.Create(f.env, schema.Record{"label": "red"})
	require.NoError(t, err)
	assert.Equal(t, []string{"test.tag"}, access.changed)

	access.changed = nil
	id, err := contact.Create(f.env, schema.Record{"name": "Alice", "tags": []int64{red}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"test.contact", "test.party", "test.contact_tag"}, access.changed)

	access.changed = nil
	_, err = contact.Read(f.env, []int64{id}, nil)
	require.NoError(t, err)
	_, err = contact.Search(f.env, nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, access.changed)

	require.NoError(t, contact.Delete(f.env, []int64{9999}))
	assert.Empty(t, access.changed)

	require.NoError(t, contact.Delete(f.env, []int64{id}))
	assert.Contains(t, access.changed, "test.contact")
	assert.Contains(t, access.changed, "test.contact_tag")
}

func TestStaticAccessFlags(t *testing.T) {
	m := schema.NewModel("test.log").SetAccess(true, true, false, false)
	m.Chars("message")
	r := schema.NewRegistry()
	require.NoError(t, r.Register(m))
	require.NoError(t, r.Load())

	env := &testEnv{ctx: context.Background(), registry: r}
	err := NewEngine(m, r, nil, nil).Delete(env, []int64{1})
	assert.ErrorIs(t, err, ormerrors.ErrSecurity)
	err = NewEngine(m, r, nil, nil).Write(env, 1, schema.Record{})
	assert.ErrorIs(t, err, ormerrors.ErrSecurity)
}

func TestNameGet(t *testing.T) {
	f := newFixture(t)
	red, err := f.tag.Create(f.env, schema.Record{"label": "red"})
	require.NoError(t, err)
	alice, err := f.contact.Create(f.env, schema.Record{"name": "Alice"})
	require.NoError(t, err)

	names, err := f.tag.NameGet(f.env, []int64{red, 9999})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{red: "RED"}, names)

	names, err = f.contact.NameGet(f.env, []int64{alice})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{alice: "Alice"}, names)

	link := f.engine("test.contact_tag")
	linkID, err := link.Create(f.env, schema.Record{"contact": alice, "tag": red})
	require.NoError(t, err)
	names, err = link.NameGet(f.env, []int64{linkID})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{linkID: fmt.Sprintf("test.contact_tag,%d", linkID)}, names)
}

func TestDefaultValues(t *testing.T) {
	f := newFixture(t)

	values, err := f.contact.DefaultValues(f.env, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.Record{"code": "C", "kind": "person"}, values)

	values, err = f.contact.DefaultValues(f.env, []string{"kind", "age"})
	require.NoError(t, err)
	assert.Equal(t, schema.Record{"kind": "person"}, values)

	_, err = f.contact.DefaultValues(f.env, []string{"nickname"})
	assert.ErrorIs(t, err, ormerrors.ErrArgumentOutOfRange)
}

func TestIDList(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected []int64
		wantErr  bool
	}{
		{"nil", nil, []int64{}, false},
		{"int64 slice", []int64{3, 1, 3}, []int64{3, 1}, false},
		{"json numbers", []interface{}{float64(2), "5"}, []int64{2, 5}, false},
		{"pairs", []interface{}{[]interface{}{int64(7), "x"}}, []int64{7}, false},
		{"scalar", 5, nil, true},
		{"garbage", []interface{}{"x"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := idList(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids)
		})
	}
}
