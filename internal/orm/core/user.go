package core

import (
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/crypto/bcrypt"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isHashed(password string) bool {
	return strings.HasPrefix(password, "$2a$") || strings.HasPrefix(password, "$2b$")
}

// hashPassword replaces a plain password in the incoming values by its hash
func hashPassword(_ schema.Env, record schema.Record) error {
	v, ok := record["password"]
	if !ok || v == nil {
		return nil
	}
	password := cast.ToString(v)
	if password == "" || isHashed(password) {
		return nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	record["password"] = hash
	return nil
}

// authenticate checks login and password and returns the user id.
// Unknown logins, inactive users and wrong passwords fail alike.
func authenticate(env schema.Env, args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, ormerrors.Argument(ModelUser, "authenticate expects login and password")
	}
	login, err := cast.ToStringE(args[0])
	if err != nil {
		return nil, ormerrors.Argument(ModelUser, "invalid login: %v", err)
	}
	password, err := cast.ToStringE(args[1])
	if err != nil {
		return nil, ormerrors.Argument(ModelUser, "invalid password: %v", err)
	}

	rows, err := env.Conn().QueryAsDictionary(env.Context(),
		"SELECT id, password FROM core_user WHERE login = ? AND active = ?", login, true)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, ormerrors.Security(ModelUser, "authenticate")
	}

	hash := cast.ToString(rows[0]["password"])
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ormerrors.Security(ModelUser, "authenticate")
	}
	return cast.ToInt64E(rows[0]["id"])
}
