// Copyright (c) 2026 Shortlisted
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

package gmail

import (
	"encoding/base64"
	"strings"
)

// ExtractBody returns the best plain-text rendering of a message body:
// a text/plain part first, then a text/html part with tags stripped, then
// a single-part body, then "". Parts are searched depth-first so nested
// multipart/alternative trees resolve the same as flat ones.
func ExtractBody(msg *Message) string {
	if len(msg.Payload.Parts) > 0 {
		if text := findPart(msg.Payload.Parts, "text/plain"); text != "" {
			return text
		}
		if html := findPart(msg.Payload.Parts, "text/html"); html != "" {
			return stripHTML(html)
		}
	}
	if msg.Payload.Body.Data != "" {
		body := decodeBody(msg.Payload.Body.Data)
		if strings.EqualFold(msg.Payload.MimeType, "text/html") {
			return stripHTML(body)
		}
		return body
	}
	return ""
}

// findPart returns the decoded body of the first part with the given MIME
// type, searching nested parts depth-first.
func findPart(parts []Part, mimeType string) string {
	for _, p := range parts {
		if strings.EqualFold(p.MimeType, mimeType) && p.Body.Data != "" {
			return decodeBody(p.Body.Data)
		}
		if len(p.Parts) > 0 {
			if body := findPart(p.Parts, mimeType); body != "" {
				return body
			}
		}
	}
	return ""
}

// decodeBody decodes Gmail's URL-safe base64 body data, tolerating both
// padded and unpadded forms.
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

// stripHTML gives a rough plain-text approximation of HTML: tags become
// spaces and whitespace is collapsed.
func stripHTML(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
