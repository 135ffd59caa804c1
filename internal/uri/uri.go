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

// Package uri canonicalizes redirect URIs so that authorize-time and
// token-time comparisons agree regardless of a trailing slash or the
// default case of the host.
package uri

import (
	"net/url"
	"strings"
)

// Normalize parses raw and re-serializes it in canonical form: lower-cased
// scheme and host, default ports stripped, and a single trailing slash on
// the path collapsed away. It returns raw unchanged (so callers still get a
// deterministic, comparable string) if raw does not parse as a URL.
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = lowerHost(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// Equal reports whether a and b denote the same redirect URI once
// normalized. All authorize/token redirect_uri comparisons in this codebase
// go through Equal, never a raw string ==.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

func lowerHost(host string) string {
	// host may carry a port (host:port) or be an IPv6 literal ([::1]:port);
	// only the hostname portion is case-insensitive per RFC 3986 §3.2.2.
	if i := strings.LastIndex(host, ":"); i != -1 && !strings.Contains(host[i:], "]") {
		return strings.ToLower(host[:i]) + host[i:]
	}
	return strings.ToLower(host)
}
