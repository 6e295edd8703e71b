// Copyright 2025 Blink Labs Software
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

package vouchd

import (
	"fmt"
	"strings"
)

// NormalizeSlug canonicalizes a repository slug to lowercase owner/name.
// A slug must contain exactly one slash, both segments must be non-empty
// and restricted to [a-z0-9-._] after lowercasing, and dot-only segments
// are rejected. Anything else returns an InvalidSlugError.
func NormalizeSlug(raw string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(raw))
	owner, name, ok := strings.Cut(slug, "/")
	if !ok {
		return "", NewInvalidSlugError(raw, "expected owner/name")
	}
	if strings.Contains(name, "/") {
		return "", NewInvalidSlugError(raw, "expected exactly one slash")
	}
	for _, segment := range []string{owner, name} {
		if segment == "" {
			return "", NewInvalidSlugError(raw, "empty owner or name")
		}
		if segment == "." || segment == ".." {
			return "", NewInvalidSlugError(raw, "dot segments not allowed")
		}
		for _, r := range segment {
			if !slugRune(r) {
				return "", NewInvalidSlugError(
					raw,
					fmt.Sprintf("unsupported character %q", r),
				)
			}
		}
	}
	return owner + "/" + name, nil
}

func slugRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '.' || r == '_':
		return true
	}
	return false
}
