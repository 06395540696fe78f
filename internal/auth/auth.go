// Package auth defines the authorization context consulted by the
// synchronization engines and the bearer-token authentication used at the
// HTTP boundary.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stratadb/strata/internal/syncerr"
)

// Capability names an operation class a caller may be granted.
type Capability string

const (
	// CapCreateDatabase allows creating databases (clone).
	CapCreateDatabase Capability = "create_database"
	// CapDeleteDatabase allows deleting databases (clone compensation).
	CapDeleteDatabase Capability = "delete_database"
	// CapFetch allows fetching remote history into a database.
	CapFetch Capability = "fetch"
	// CapPush allows pushing local history to a remote.
	CapPush Capability = "push"
	// CapCommitRead allows reading commit history and packs.
	CapCommitRead Capability = "commit_read"
	// CapSchemaWrite allows writing the schema graph (pull fast-forward).
	CapSchemaWrite Capability = "schema_write"
	// CapInstanceWrite allows writing the instance graph (pull
	// fast-forward, unpack).
	CapInstanceWrite Capability = "instance_write"
)

// Context is the authorization capability handed to every engine
// operation.
type Context struct {
	User   string
	system bool
	caps   map[Capability]bool
}

// System returns a context holding every capability. The CLI operating on
// its own data directory runs under it.
func System() *Context {
	return &Context{User: "system", system: true}
}

// NewContext grants a user an explicit capability set.
func NewContext(user string, caps ...Capability) *Context {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return &Context{User: user, caps: m}
}

// Allowed reports whether the context holds a capability.
func (c *Context) Allowed(cap Capability) bool {
	return c.system || c.caps[cap]
}

// Require returns an unauthorized error unless the context holds every
// listed capability on the resource.
func (c *Context) Require(resource string, caps ...Capability) error {
	for _, cap := range caps {
		if !c.Allowed(cap) {
			return syncerr.New(syncerr.KindUnauthorized,
				"user %s lacks %s on %s", c.User, cap, resource)
		}
	}
	return nil
}

// Claims is the JWT claim set issued for API access.
type Claims struct {
	jwt.RegisteredClaims
	Capabilities []string `json:"caps"`
}

// ParseBearer validates a bearer token against the shared secret and
// returns the capability context it grants.
func ParseBearer(token string, secret []byte) (*Context, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindUnauthorized, err, "validating bearer token")
	}
	if !parsed.Valid {
		return nil, syncerr.New(syncerr.KindUnauthorized, "invalid bearer token")
	}

	caps := make([]Capability, 0, len(claims.Capabilities))
	for _, c := range claims.Capabilities {
		caps = append(caps, Capability(c))
	}
	return NewContext(claims.Subject, caps...), nil
}

// SignToken mints a token granting the listed capabilities. Used by tests.
func SignToken(user string, secret []byte, caps ...Capability) (string, error) {
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user},
		Capabilities:     names,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
