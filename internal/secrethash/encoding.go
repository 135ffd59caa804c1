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

package secrethash

import (
	"encoding/base64"
	"fmt"
	"strings"
)

func encode(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}

// decode parses the `=version=memory,t=iterations,p=parallelism$salt$hash`
// format produced by Hash.
func decode(encodedHash string) (version int, memory, iterations uint32, parallelism uint8, salt, hash []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 3 {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("secrethash: malformed hash")
	}

	if _, err = fmt.Sscanf(parts[0], "=%d=%d,t=%d,p=%d", &version, &memory, &iterations, &parallelism); err != nil {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("secrethash: malformed params: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("secrethash: malformed salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("secrethash: malformed hash digest: %w", err)
	}

	return version, memory, iterations, parallelism, salt, hash, nil
}
