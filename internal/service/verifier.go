package service

import (
	"context"
	"crypto/subtle"
	"strings"
)

// StaticVerifier checks credentials against a fixed user set. It backs the
// login endpoint in deployments without an external identity provider.
type StaticVerifier struct {
	users map[string]string
}

// NewStaticVerifier parses "user:password" pairs separated by commas.
func NewStaticVerifier(spec string) *StaticVerifier {
	users := map[string]string{}
	for _, pair := range strings.Split(spec, ",") {
		name, pass, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if ok && name != "" {
			users[name] = pass
		}
	}
	return &StaticVerifier{users: users}
}

func (v *StaticVerifier) Empty() bool {
	return v == nil || len(v.users) == 0
}

func (v *StaticVerifier) Verify(ctx context.Context, username, password string) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}
	want, ok := v.users[username]
	if !ok {
		// Burn comparable time for unknown users.
		subtle.ConstantTimeCompare([]byte(password), []byte(password))
		return "", false, nil
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return "", false, nil
	}
	return username, true, nil
}
