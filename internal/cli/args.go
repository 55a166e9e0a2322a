package cli

import (
	"errors"
	"strings"
)

var ErrUnterminatedQuote = errors.New("unterminated quote")

// SplitArgs splits a shell line into arguments. Single quotes are literal,
// double quotes honour \" and \\, and a backslash outside quotes escapes the
// next character. JSON arguments can therefore be written as '{"id": 1}'.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false

		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				current.WriteRune(r)
			}

		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				current.WriteRune(r)
			}

		case r == '\'' || r == '"':
			quote = r
			inArg = true

		case r == '\\':
			escaped = true
			inArg = true

		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}

		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
