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

package dogtag

import (
	"strings"

	"github.com/opentrusty/pkibridge/internal/pki"
	"github.com/opentrusty/pkibridge/internal/secretstore"
)

// MapAlgorithm translates a secret store algorithm name into the KRA's
// native identifier. Diffie-Hellman and EC are valid store algorithms the
// KRA cannot generate yet, so they map to absent like unknown names do.
func MapAlgorithm(name string) (string, bool) {
	switch strings.ToLower(name) {
	case secretstore.AlgorithmAES:
		return pki.AlgorithmAES, true
	case secretstore.AlgorithmDES:
		return pki.AlgorithmDES, true
	case secretstore.AlgorithmDESede:
		return pki.AlgorithmDES3, true
	case secretstore.AlgorithmDSA:
		return pki.AlgorithmDSA, true
	case secretstore.AlgorithmRSA:
		return pki.AlgorithmRSA, true
	case secretstore.AlgorithmDiffieHellman, secretstore.AlgorithmEC:
		return "", false
	default:
		return "", false
	}
}
