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

package pki

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable wraps every failure to reach the subsystem: refused
	// connections, timeouts, TLS errors and error responses that carry no
	// PKI error body.
	ErrUnavailable = errors.New("pki subsystem unavailable")

	// ErrPKI matches any error reported by the subsystem itself
	ErrPKI                  = errors.New("pki error")
	ErrBadRequest           = errors.New("bad request")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrResourceNotFound     = errors.New("resource not found")
	ErrRequestNotFound      = errors.New("request not found")
	ErrCertNotFound         = errors.New("certificate not found")
	ErrKeyNotFound          = errors.New("key not found")
	ErrConflictingOperation = errors.New("conflicting operation")
)

// Error is a protocol-level error returned by the CA or KRA.
// The class name is the server-side exception type.
type Error struct {
	Code      int    `json:"Code"`
	ClassName string `json:"ClassName"`
	Message   string `json:"Message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("pki error: %s (%d): %s", e.shortClass(), e.Code, e.Message)
}

func (e *Error) shortClass() string {
	if i := strings.LastIndex(e.ClassName, "."); i >= 0 {
		return e.ClassName[i+1:]
	}
	return e.ClassName
}

// Is maps the server exception hierarchy onto the package sentinels
func (e *Error) Is(target error) bool {
	if target == ErrPKI {
		return true
	}
	switch e.shortClass() {
	case "BadRequestException":
		return target == ErrBadRequest
	case "UnauthorizedException", "ForbiddenException":
		return target == ErrUnauthorized
	case "ConflictingOperationException":
		return target == ErrConflictingOperation
	case "RequestNotFoundException":
		return target == ErrRequestNotFound || target == ErrResourceNotFound
	case "CertNotFoundException":
		return target == ErrCertNotFound || target == ErrResourceNotFound
	case "KeyNotFoundException":
		return target == ErrKeyNotFound || target == ErrResourceNotFound
	case "ResourceNotFoundException":
		return target == ErrResourceNotFound
	}
	return false
}

// Message extracts the server message from err, falling back to err.Error()
func Message(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
