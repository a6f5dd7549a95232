// Package signature computes the request signature expected by the remote
// media API: a SHA-1 digest over the sorted parameters followed by the secret.
package signature

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ErrMissingSecret is returned when asked to sign with an empty secret.
var ErrMissingSecret = errors.New("signature: no secret configured")

// Value is a parameter value that takes part in signing. It is either a
// String or an Int.
type Value interface {
	canonical() string
}

// String is a text parameter value, used verbatim.
type String string

func (s String) canonical() string { return string(s) }

// Int is an integer parameter value, rendered in base 10.
type Int int64

func (i Int) canonical() string { return strconv.FormatInt(int64(i), 10) }

// Params is the set of named parameters covered by a signature.
type Params map[string]Value

// Canonical renders the parameters as key=value pairs sorted by key and joined
// with '&'. Keys are compared byte-wise.
func Canonical(params Params) string {
	keys := maps.Keys(params)
	slices.Sort(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key].canonical())
	}
	return b.String()
}

// Sign returns the lowercase hex SHA-1 of the canonical parameters with the
// secret appended.
func Sign(params Params, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	sum := sha1.Sum([]byte(Canonical(params) + secret))
	return hex.EncodeToString(sum[:]), nil
}
