package permissions

import "strings"

type combineMode int

const (
	combineAll combineMode = iota
	combineAny
)

// Requirement is the permission demand declared alongside a route: one or
// more codes joined by an AND or OR combinator. An empty requirement is
// satisfied by any authenticated identity.
type Requirement struct {
	codes []string
	mode  combineMode
}

// RequireAll builds a requirement satisfied only when the identity holds
// every listed code.
func RequireAll(codes ...string) Requirement {
	return Requirement{codes: normaliseCodes(codes), mode: combineAll}
}

// RequireAny builds a requirement satisfied when the identity holds at least
// one of the listed codes.
func RequireAny(codes ...string) Requirement {
	return Requirement{codes: normaliseCodes(codes), mode: combineAny}
}

// Codes returns the permission codes the requirement references.
func (r Requirement) Codes() []string {
	return append([]string(nil), r.codes...)
}

// IsEmpty reports whether the requirement demands nothing.
func (r Requirement) IsEmpty() bool {
	return len(r.codes) == 0
}

// Validate checks every referenced code against the registry. A requirement
// naming an unknown or disabled code always denies, so routes fail closed.
func (r Requirement) Validate() error {
	for _, code := range r.codes {
		if err := Validate(code); err != nil {
			return err
		}
	}
	return nil
}

// SatisfiedBy evaluates the requirement against the identity's granted codes.
func (r Requirement) SatisfiedBy(granted []string) bool {
	if len(r.codes) == 0 {
		return true
	}

	held := make(map[string]struct{}, len(granted))
	for _, code := range granted {
		held[strings.TrimSpace(code)] = struct{}{}
	}

	switch r.mode {
	case combineAny:
		for _, code := range r.codes {
			if _, ok := held[code]; ok {
				return true
			}
		}
		return false
	default:
		for _, code := range r.codes {
			if _, ok := held[code]; !ok {
				return false
			}
		}
		return true
	}
}

func normaliseCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	var result []string
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, exists := seen[code]; exists {
			continue
		}
		seen[code] = struct{}{}
		result = append(result, code)
	}
	return result
}
