package extract

import (
	"fmt"
	"strings"
)

// Role is the meaning of a positional marker argument.
type Role int

const (
	RoleSingular Role = iota
	RolePlural
	RoleDomain
	RoleContext
)

func (r Role) String() string {
	switch r {
	case RolePlural:
		return "plural"
	case RoleDomain:
		return "domain"
	case RoleContext:
		return "context"
	}
	return "singular"
}

// ParseRole converts a role name as written in configuration files.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "singular":
		return RoleSingular, nil
	case "plural":
		return RolePlural, nil
	case "domain":
		return RoleDomain, nil
	case "context":
		return RoleContext, nil
	}
	return 0, fmt.Errorf("unknown marker role %q", s)
}

// DefaultDomain is used for markers without a domain argument.
const DefaultDomain = "default"

// Marker describes a translation function and the order of its literal
// arguments.
type Marker struct {
	Name  string
	Roles []Role
}

// Arity is the number of literal arguments the marker requires.
func (m Marker) Arity() int {
	return len(m.Roles)
}

// Validate checks that the roles contain exactly one singular and at most
// one of each other role.
func (m Marker) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("marker has no name")
	}
	seen := make(map[Role]bool, len(m.Roles))
	for _, r := range m.Roles {
		if seen[r] {
			return fmt.Errorf("marker %s: role %s given twice", m.Name, r)
		}
		seen[r] = true
	}
	if !seen[RoleSingular] {
		return fmt.Errorf("marker %s: no singular argument", m.Name)
	}
	return nil
}

// DefaultMarkers is the __ function family.
var DefaultMarkers = []Marker{
	{Name: "__", Roles: []Role{RoleSingular}},
	{Name: "__n", Roles: []Role{RoleSingular, RolePlural}},
	{Name: "__d", Roles: []Role{RoleDomain, RoleSingular}},
	{Name: "__dn", Roles: []Role{RoleDomain, RoleSingular, RolePlural}},
	{Name: "__x", Roles: []Role{RoleContext, RoleSingular}},
	{Name: "__xn", Roles: []Role{RoleContext, RoleSingular, RolePlural}},
	{Name: "__dx", Roles: []Role{RoleDomain, RoleContext, RoleSingular}},
	{Name: "__dxn", Roles: []Role{RoleDomain, RoleContext, RoleSingular, RolePlural}},
}

// Value is one extracted argument. Number values are integer literals
// passed through as written.
type Value struct {
	Text   string
	Number bool
}

// Message is a call's arguments decoded by role.
type Message struct {
	Domain   string
	Context  string
	Singular string
	// Plural is nil when the marker has no plural argument.
	Plural *string
}

// Decode maps args onto the marker's roles by position. It panics if
// len(args) differs from the arity; the scanner only calls it on exact
// matches.
func (m Marker) Decode(args []Value) Message {
	if len(args) != len(m.Roles) {
		panic(fmt.Sprintf("marker %s: decode %d args, want %d", m.Name, len(args), len(m.Roles)))
	}
	msg := Message{Domain: DefaultDomain}
	for i, role := range m.Roles {
		v := args[i].Text
		switch role {
		case RoleSingular:
			msg.Singular = v
		case RolePlural:
			msg.Plural = &v
		case RoleDomain:
			msg.Domain = v
		case RoleContext:
			msg.Context = v
		}
	}
	return msg
}

// Call is a marker invocation whose arguments matched the signature.
type Call struct {
	Marker  string
	File    string
	Line    int
	Args    []Value
	Message Message
}
