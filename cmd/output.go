package cmd

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"slotcache/internal/store"
)

// printJSON writes v as one line of JSON, indented when stdout is a terminal
func printJSON(cmd *cobra.Command, v any) error {
	out := cmd.OutOrStdout()

	var (
		data []byte
		err  error
	)
	if isTerminal(out) {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// parseJSONArg decodes a command-line JSON argument; "-" reads stdin
func parseJSONArg(cmd *cobra.Command, arg string) (any, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return nil, err
		}
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("argument is not valid JSON: %w", err)
	}
	return v, nil
}

// parseWhere turns "field=value" into a predicate. The value is read as
// JSON when it parses, otherwise as a plain string, so id=2 matches a number
// and name=alice matches a string.
func parseWhere(expr string) (store.Predicate, error) {
	field, raw, ok := strings.Cut(expr, "=")
	if !ok || field == "" {
		return nil, fmt.Errorf("--where must look like field=value, got %q", expr)
	}

	var want any = raw
	if json.Valid([]byte(raw)) {
		_ = json.Unmarshal([]byte(raw), &want)
	}
	return store.FieldEquals(field, want), nil
}

func whereFlag(cmd *cobra.Command) (store.Predicate, error) {
	expr, _ := cmd.Flags().GetString("where")
	if expr == "" {
		return nil, fmt.Errorf("--where is required")
	}
	return parseWhere(expr)
}

// compareJSON orders decoded JSON values: null, booleans, numbers, strings,
// then everything else by its encoding
func compareJSON(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(x, b.(float64))
	case string:
		return strings.Compare(x, b.(string))
	case nil:
		return 0
	}
	da, _ := json.Marshal(a)
	db, _ := json.Marshal(b)
	return strings.Compare(string(da), string(db))
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// sortKey returns the element itself, or its field when by is set and the
// element is an object. A missing field sorts as null.
func sortKey(elem any, by string) any {
	if by == "" {
		return elem
	}
	if obj, ok := elem.(map[string]any); ok {
		return obj[by]
	}
	return nil
}
