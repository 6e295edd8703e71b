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

// Package trustdown implements parsing and rendering of the plain-text
// trust-list format. A trust list is a line-oriented file where each line
// vouches for or denounces a single handle, with optional free-text details.
package trustdown

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// DefaultPlatform is assumed for bare handles that carry no platform prefix
const DefaultPlatform = "github"

// EntryType represents the polarity of a trust-list entry
type EntryType string

const (
	EntryTypeVouch    EntryType = "vouch"
	EntryTypeDenounce EntryType = "denounce"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeVouch, EntryTypeDenounce:
		return true
	}
	return false
}

// Entry represents a single normalized trust-list entry
type Entry struct {
	Platform string
	Username string
	Type     EntryType
	// Details is optional free text after the handle. Empty means absent.
	Details string
}

// Handle returns the canonical platform:username form for the entry
func (e Entry) Handle() string {
	return Handle(e.Platform, e.Username)
}

// Handle joins a platform and username into the canonical handle form
func Handle(platform string, username string) string {
	return platform + ":" + username
}

// InvalidHandleError is returned when a handle token fails normalization
type InvalidHandleError struct {
	Token string
}

func (e InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid handle: %q", e.Token)
}

func NewInvalidHandleError(token string) InvalidHandleError {
	return InvalidHandleError{Token: token}
}

// ParseHandle normalizes a raw handle token into its platform and username
// parts. A single leading '@' is stripped and the token is lowercased before
// splitting on the first ':'. Tokens without a platform prefix default to
// DefaultPlatform.
func ParseHandle(token string) (string, string, error) {
	tmpToken := strings.TrimPrefix(token, "@")
	tmpToken = strings.ToLower(tmpToken)
	if tmpToken == "" {
		return "", "", NewInvalidHandleError(token)
	}
	platform := DefaultPlatform
	username := tmpToken
	if idx := strings.Index(tmpToken, ":"); idx >= 0 {
		platform = tmpToken[:idx]
		username = tmpToken[idx+1:]
	}
	if !validPlatform(platform) || !validUsername(username) {
		return "", "", NewInvalidHandleError(token)
	}
	return platform, username, nil
}

// Parse parses trust-list text into normalized entries. Blank lines and
// comment lines are skipped, malformed lines are dropped silently, and when
// the same handle appears more than once the last occurrence wins. The
// returned entries are sorted by canonical handle.
func Parse(text string) []Entry {
	byHandle := map[string]Entry{}
	for line := range strings.SplitSeq(text, "\n") {
		tmpLine := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if tmpLine == "" || strings.HasPrefix(tmpLine, "#") {
			continue
		}
		entryType := EntryTypeVouch
		if rest, ok := strings.CutPrefix(tmpLine, "-"); ok {
			entryType = EntryTypeDenounce
			tmpLine = strings.TrimSpace(rest)
			if tmpLine == "" {
				// Lone dash
				continue
			}
		}
		token := tmpLine
		details := ""
		if idx := strings.IndexFunc(tmpLine, unicode.IsSpace); idx >= 0 {
			token = tmpLine[:idx]
			details = strings.TrimSpace(tmpLine[idx:])
		}
		platform, username, err := ParseHandle(token)
		if err != nil {
			continue
		}
		byHandle[Handle(platform, username)] = Entry{
			Platform: platform,
			Username: username,
			Type:     entryType,
			Details:  details,
		}
	}
	ret := make([]Entry, 0, len(byHandle))
	for _, entry := range byHandle {
		ret = append(ret, entry)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Handle() < ret[j].Handle()
	})
	return ret
}

// Render produces the canonical text form of a set of entries: one entry per
// line in handle order, denouncements prefixed with "- ", and details
// separated from the handle by two spaces. Duplicate handles collapse to the
// last occurrence, matching Parse semantics.
func Render(entries []Entry) string {
	byHandle := map[string]Entry{}
	for _, entry := range entries {
		byHandle[entry.Handle()] = entry
	}
	handles := make([]string, 0, len(byHandle))
	for handle := range byHandle {
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	var sb strings.Builder
	for _, handle := range handles {
		entry := byHandle[handle]
		if entry.Type == EntryTypeDenounce {
			sb.WriteString("- ")
		}
		sb.WriteString(handle)
		if entry.Details != "" {
			sb.WriteString("  ")
			sb.WriteString(entry.Details)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func validPlatform(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if i > 0 && (r >= '0' && r <= '9' || r == '_' || r == '-') {
			continue
		}
		return false
	}
	return true
}

func validUsername(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			continue
		}
		if i > 0 && (r == '.' || r == '_' || r == '-') {
			continue
		}
		return false
	}
	return true
}
