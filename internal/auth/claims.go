package auth

import (
	"sort"

	"github.com/example/healthtracker/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claim types written into every access token.
const (
	ClaimID      = "Id"
	ClaimNameID  = "nameid"
	ClaimSubject = "sub"
	ClaimEmail   = "email"
	ClaimJTI     = "jti"
	ClaimRole    = "role"
)

// reserved claim types are owned by the issuer; user and role claims may not
// override them.
var reserved = map[string]bool{
	"sub": true,
	"jti": true,
	"exp": true,
	"nbf": true,
	"iat": true,
}

// claimSet collects claims in insertion order, one entry per distinct
// (type, value) pair.
type claimSet struct {
	types  []string
	values map[string][]string
	seen   map[models.Claim]bool
}

func newClaimSet() *claimSet {
	return &claimSet{values: map[string][]string{}, seen: map[models.Claim]bool{}}
}

func (s *claimSet) add(typ, value string) {
	c := models.Claim{Type: typ, Value: value}
	if s.seen[c] {
		return
	}
	s.seen[c] = true
	if _, ok := s.values[typ]; !ok {
		s.types = append(s.types, typ)
	}
	s.values[typ] = append(s.values[typ], value)
}

// addAssigned adds a claim that came from the identity store.
func (s *claimSet) addAssigned(c models.Claim) bool {
	if c.Type == "" || reserved[c.Type] {
		return false
	}
	s.add(c.Type, c.Value)
	return true
}

// mapClaims renders single-valued types as strings and repeated types as
// arrays.
func (s *claimSet) mapClaims() jwt.MapClaims {
	mc := make(jwt.MapClaims, len(s.types)+3)
	for _, typ := range s.types {
		vals := s.values[typ]
		if len(vals) == 1 {
			mc[typ] = vals[0]
			continue
		}
		mc[typ] = append([]string(nil), vals...)
	}
	return mc
}

// ClaimValues returns the string values of typ in mc, whether it was encoded
// as a single string or an array.
func ClaimValues(mc jwt.MapClaims, typ string) []string {
	switch v := mc[typ].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// flatten lists every non-reserved string claim in mc, ordered by type.
func flatten(mc jwt.MapClaims) []models.Claim {
	types := make([]string, 0, len(mc))
	for typ := range mc {
		if !reserved[typ] {
			types = append(types, typ)
		}
	}
	sort.Strings(types)
	var out []models.Claim
	for _, typ := range types {
		for _, v := range ClaimValues(mc, typ) {
			out = append(out, models.Claim{Type: typ, Value: v})
		}
	}
	return out
}
