/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"strings"
	"unicode"
)

// sqlSplitter walks a migration file and cuts it into statements on top
// level semicolons. Comments are dropped; quoted strings, quoted identifiers
// and dollar quoted bodies are kept whole.
type sqlSplitter struct {
	src        string
	pos        int
	current    strings.Builder
	statements []string

	inSingleQuote bool
	inDoubleQuote bool
	dollarTag     string
}

func splitSQLStatements(content string) []string {
	s := &sqlSplitter{src: content}

	for s.pos < len(s.src) {
		s.step()
	}

	s.flush()

	return s.statements
}

func (s *sqlSplitter) step() {
	rest := s.src[s.pos:]
	ch := rest[0]

	switch {
	case s.dollarTag != "":
		if strings.HasPrefix(rest, s.dollarTag) {
			s.emit(s.dollarTag)
			s.dollarTag = ""

			return
		}
	case s.inSingleQuote:
		if ch == '\'' {
			s.inSingleQuote = false
		}
	case s.inDoubleQuote:
		if ch == '"' {
			s.inDoubleQuote = false
		}
	case strings.HasPrefix(rest, "--"):
		s.skipUntil("\n", false)
		return
	case strings.HasPrefix(rest, "/*"):
		s.skipUntil("*/", true)
		return
	case ch == '$':
		if tag := parseDollarTag(rest); tag != "" {
			s.dollarTag = tag
			s.emit(tag)

			return
		}
	case ch == '\'':
		s.inSingleQuote = true
	case ch == '"':
		s.inDoubleQuote = true
	case ch == ';':
		s.flush()
		s.pos++

		return
	}

	s.current.WriteByte(ch)
	s.pos++
}

func (s *sqlSplitter) emit(text string) {
	s.current.WriteString(text)
	s.pos += len(text)
}

// skipUntil drops input up to the terminator. A line comment keeps its
// newline so the surrounding statement stays readable.
func (s *sqlSplitter) skipUntil(terminator string, consume bool) {
	idx := strings.Index(s.src[s.pos:], terminator)
	if idx < 0 {
		s.pos = len(s.src)
		return
	}

	s.pos += idx

	if consume {
		s.pos += len(terminator)
	}
}

func (s *sqlSplitter) flush() {
	if stmt := strings.TrimSpace(s.current.String()); stmt != "" {
		s.statements = append(s.statements, stmt)
	}

	s.current.Reset()
}

// parseDollarTag returns the opening $tag$ at the start of content, or "".
func parseDollarTag(content string) string {
	if content == "" || content[0] != '$' {
		return ""
	}

	for i := 1; i < len(content); i++ {
		if content[i] == '$' {
			return content[:i+1]
		}

		if !isDollarTagChar(content[i]) {
			return ""
		}
	}

	return ""
}

func isDollarTagChar(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch))
}
