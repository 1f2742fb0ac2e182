package authapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
)

// UserMapping holds JMESPath expressions selecting user fields from the
// backend's user JSON. Empty expressions fall back to DefaultUserMapping.
type UserMapping struct {
	ID      string
	Name    string
	Email   string
	IsAdmin string
}

// DefaultUserMapping matches a flat {id, name, email, is_admin} object.
var DefaultUserMapping = UserMapping{
	ID:      "id",
	Name:    "name",
	Email:   "email",
	IsAdmin: "is_admin",
}

// UserMapper converts backend user documents into domain users.
type UserMapper struct {
	m UserMapping
}

// NewUserMapper compiles every expression up front so bad configuration fails at startup.
func NewUserMapper(m UserMapping) (*UserMapper, error) {
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&m.ID, DefaultUserMapping.ID)
	fill(&m.Name, DefaultUserMapping.Name)
	fill(&m.Email, DefaultUserMapping.Email)
	fill(&m.IsAdmin, DefaultUserMapping.IsAdmin)

	for field, expr := range map[string]string{"id": m.ID, "name": m.Name, "email": m.Email, "is_admin": m.IsAdmin} {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("user mapping %s: %w", field, err)
		}
	}
	return &UserMapper{m: m}, nil
}

// Map extracts a User from a decoded JSON document. The whole object is kept
// as the user's Profile.
func (u *UserMapper) Map(doc any) (domainauth.User, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return domainauth.User{}, errors.New("user document is not an object")
	}

	id, err := u.str(u.m.ID, obj)
	if err != nil {
		return domainauth.User{}, err
	}
	if id == "" {
		return domainauth.User{}, errors.New("user document has no id")
	}
	name, err := u.str(u.m.Name, obj)
	if err != nil {
		return domainauth.User{}, err
	}
	email, err := u.str(u.m.Email, obj)
	if err != nil {
		return domainauth.User{}, err
	}
	admin, err := jmespath.Search(u.m.IsAdmin, obj)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("map is_admin: %w", err)
	}

	return domainauth.User{
		ID:      id,
		Name:    name,
		Email:   email,
		IsAdmin: truthy(admin),
		Profile: obj,
	}, nil
}

func (u *UserMapper) str(expr string, obj map[string]any) (string, error) {
	v, err := jmespath.Search(expr, obj)
	if err != nil {
		return "", fmt.Errorf("map %q: %w", expr, err)
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("map %q: unexpected %T", expr, v)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case float64:
		return t != 0
	default:
		return false
	}
}
