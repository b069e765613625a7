/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// Identity is the caller's authenticated identity, taken from the trust headers the fronting
// auth proxy injects.
type Identity struct {
	ProjectID string
	Roles     []string
}

func (i Identity) IsAdmin() bool {
	return lo.Contains(i.Roles, "admin")
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity; absent means an unauthenticated internal call
// and yields the zero identity.
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id
	}
	return Identity{}
}

// identityMiddleware lifts the auth proxy's headers into the request context.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{ProjectID: r.Header.Get("X-Project-Id")}
		if roles := r.Header.Get("X-Roles"); roles != "" {
			for _, role := range strings.Split(roles, ",") {
				if trimmed := strings.TrimSpace(role); trimmed != "" {
					id.Roles = append(id.Roles, trimmed)
				}
			}
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
