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

// Built-in role names, carried in the token "roles" claim
const (
	RoleAdmin    = "admin"
	RoleCreator  = "creator"
	RoleObserver = "observer"
	RoleAudit    = "audit"
)

// AdminPermissions grants everything
var AdminPermissions = []string{
	"*",
}

// CreatorPermissions cover everything except deleting secrets
var CreatorPermissions = []string{
	PermSecretStore,
	PermSecretRead,
	PermKeyGenerate,
	PermOrderCreate,
	PermOrderRead,
	PermOrderManage,
}

// ObserverPermissions are read-only
var ObserverPermissions = []string{
	PermSecretRead,
	PermOrderRead,
}

// AuditPermissions can read order records but never secret material
var AuditPermissions = []string{
	PermOrderRead,
}

// DefaultRoles returns the built-in role table
func DefaultRoles() []*Role {
	return []*Role{
		{Name: RoleAdmin, Description: "Full access", Permissions: AdminPermissions},
		{Name: RoleCreator, Description: "Creates and reads secrets and orders", Permissions: CreatorPermissions},
		{Name: RoleObserver, Description: "Reads secrets and orders", Permissions: ObserverPermissions},
		{Name: RoleAudit, Description: "Reads order records", Permissions: AuditPermissions},
	}
}
