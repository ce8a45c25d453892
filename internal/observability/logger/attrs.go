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

package logger

import "log/slog"

// Common attribute keys for consistent logging across the application

// Request attributes
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func Method(method string) slog.Attr {
	return slog.String("method", method)
}

func Path(path string) slog.Attr {
	return slog.String("path", path)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String("remote_addr", addr)
}

func UserAgent(ua string) slog.Attr {
	return slog.String("user_agent", ua)
}

func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64("duration_ms", ms)
}

// Caller attributes
func Subject(sub string) slog.Attr {
	return slog.String("subject", sub)
}

// Secret store attributes
func SecretID(id string) slog.Attr {
	return slog.String("secret_id", id)
}

func SecretType(t string) slog.Attr {
	return slog.String("secret_type", t)
}

func KeyID(id string) slog.Attr {
	return slog.String("key_id", id)
}

func Algorithm(alg string) slog.Attr {
	return slog.String("alg", alg)
}

func BitLength(n int) slog.Attr {
	return slog.Int("bit_length", n)
}

// Certificate attributes
func OrderID(id string) slog.Attr {
	return slog.String("order_id", id)
}

func CARequestID(id string) slog.Attr {
	return slog.String("ca_request_id", id)
}

func RequestType(t string) slog.Attr {
	return slog.String("request_type", t)
}

func Profile(id string) slog.Attr {
	return slog.String("profile", id)
}

func CertStatus(status string) slog.Attr {
	return slog.String("cert_status", status)
}

// Error attributes
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func ErrorType(errType string) slog.Attr {
	return slog.String("error_type", errType)
}

// Database attributes
func RowsAffected(rows int64) slog.Attr {
	return slog.Int64("rows_affected", rows)
}

// Component attributes
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Operation(op string) slog.Attr {
	return slog.String("operation", op)
}
