// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opentrusty/pkibridge/internal/observability/logger"
)

// Service resolves role names against a fixed role table
type Service struct {
	roles map[string]*Role
}

// NewService creates a new authorization service. With no roles the
// built-in table is used.
func NewService(roles ...*Role) *Service {
	if len(roles) == 0 {
		roles = DefaultRoles()
	}
	s := &Service{roles: make(map[string]*Role, len(roles))}
	for _, r := range roles {
		s.roles[r.Name] = r
	}
	return s
}

// Role returns a role by name
func (s *Service) Role(name string) (*Role, error) {
	r, ok := s.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, name)
	}
	return r, nil
}

// HasPermission reports whether any of the named roles grants permission.
// Unknown role names are ignored.
func (s *Service) HasPermission(ctx context.Context, roleNames []string, permission string) bool {
	for _, name := range roleNames {
		r, err := s.Role(name)
		if err != nil {
			slog.DebugContext(ctx, "ignoring unknown role", logger.Component("authz"), slog.String("role", name))
			continue
		}
		if r.HasPermission(permission) {
			return true
		}
	}
	return false
}

// Require returns ErrAccessDenied unless one of roleNames grants permission
func (s *Service) Require(ctx context.Context, roleNames []string, permission string) error {
	if !s.HasPermission(ctx, roleNames, permission) {
		return fmt.Errorf("%w: %s", ErrAccessDenied, permission)
	}
	return nil
}
