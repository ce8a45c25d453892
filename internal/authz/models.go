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

// Package authz maps bearer token roles onto API permissions.
package authz

import (
	"errors"
	"slices"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrUnknownRole  = errors.New("unknown role")
)

// API permissions
const (
	PermSecretStore  = "secret:store"
	PermSecretRead   = "secret:read"
	PermSecretDelete = "secret:delete"
	PermKeyGenerate  = "key:generate"
	PermOrderCreate  = "order:create"
	PermOrderRead    = "order:read"
	PermOrderManage  = "order:manage"
)

// Role is a named set of permissions
type Role struct {
	Name        string
	Description string
	Permissions []string
}

// HasPermission checks if the role has a specific permission
func (r *Role) HasPermission(permission string) bool {
	return slices.ContainsFunc(r.Permissions, func(p string) bool {
		return p == "*" || p == permission
	})
}
