// SPDX-License-Identifier: MPL-2.0

package template

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Quote returns s as a single POSIX shell word that expands back to s.
// Strings the shell printer refuses in POSIX mode (non-printable runes,
// invalid UTF-8) fall back to single-quote splicing, which is byte exact
// for every byte except NUL.
func Quote(s string) (string, error) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return "", fmt.Errorf("%w: NUL byte at offset %d", ErrUnquotable, i)
	}
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err == nil {
		return q, nil
	}
	return singleQuote(s), nil
}

// QuoteArgs quotes each element and joins them with spaces.
func QuoteArgs(argv []string) (string, error) {
	parts := make([]string, 0, len(argv))
	for _, a := range argv {
		q, err := Quote(a)
		if err != nil {
			return "", err
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " "), nil
}

func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
