package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/defi-intents/internal/errors"
)

// Policy holds operator switches applied before any provider call.
type Policy struct {
	// AllowedKinds restricts which action kinds may be previewed. Empty
	// allows all.
	AllowedKinds []string
	// ReinvestBefore lists kinds that compound pending vault rewards before
	// the main call.
	ReinvestBefore []string
}

func (p Policy) CheckKind(kind string) error {
	return CheckKindAllowed(p.AllowedKinds, kind)
}

func (p Policy) ReinvestsBefore(kind string) bool {
	return contains(p.ReinvestBefore, kind)
}

func CheckKindAllowed(allowlist []string, kind string) error {
	if len(allowlist) == 0 {
		return nil
	}
	if contains(allowlist, kind) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("action %s is blocked by the allowed_kinds policy", normalize(kind)))
}

func contains(list []string, kind string) bool {
	want := normalize(kind)
	for _, v := range list {
		if normalize(v) == want {
			return true
		}
	}
	return false
}

func normalize(v string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_")
}
