package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"slotcache/internal/store"
)

func newGetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "get",
		Short: "Print the payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				if getBoolFlag(cmd, "raw") {
					raw, found, err := s.store.GetRaw()
					if err != nil || !found {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
					return err
				}

				v, err := s.store.GetParsed()
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			})
		},
	}
	c.Flags().Bool("raw", false, "Print the stored text without decoding it")
	return c
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <json|->",
		Short: "Replace the payload with a JSON object or array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseJSONArg(cmd, args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				return s.store.SetData(v)
			})
		},
	}
}

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <json>...",
		Short: "Append elements to the payload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := make([]any, 0, len(args))
			for _, arg := range args {
				v, err := parseJSONArg(cmd, arg)
				if err != nil {
					return err
				}
				items = append(items, v)
			}
			return withSession(cmd, func(s *session) error {
				return s.store.Insert(items...)
			})
		},
	}
}

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of elements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				n, err := s.store.Count()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				return s.store.Clear()
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "remove [index]",
		Short: "Remove an element by index, or the first one matching --where",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, _ := cmd.Flags().GetString("where")
			if (len(args) == 1) == (where != "") {
				return fmt.Errorf("give either an index or --where")
			}

			if where != "" {
				pred, err := parseWhere(where)
				if err != nil {
					return err
				}
				return withSession(cmd, func(s *session) error {
					return s.store.FindOneAndRemove(pred)
				})
			}

			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer: %w", err)
			}
			return withSession(cmd, func(s *session) error {
				return s.store.RemoveByIndex(idx)
			})
		},
	}
	c.Flags().String("where", "", "Match elements by field=value")
	return c
}

func newUpdateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "update --where field=value <json-object>",
		Short: "Merge fields into the first element matching --where",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := whereFlag(cmd)
			if err != nil {
				return err
			}
			v, err := parseJSONArg(cmd, args[0])
			if err != nil {
				return err
			}
			patch, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("patch must be a JSON object")
			}
			return withSession(cmd, func(s *session) error {
				return s.store.FindOneAndUpdate(pred, patch)
			})
		},
	}
	c.Flags().String("where", "", "Match elements by field=value")
	return c
}

func newReplaceCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "replace --where field=value <json>",
		Short: "Replace the first element matching --where",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred, err := whereFlag(cmd)
			if err != nil {
				return err
			}
			v, err := parseJSONArg(cmd, args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				return s.store.FindOneAndReplace(pred, v)
			})
		},
	}
	c.Flags().String("where", "", "Match elements by field=value")
	return c
}

func newFindCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "find --where field=value",
		Short: "Print the first matching element, or {} when none matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pred, err := whereFlag(cmd)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				elem, found, err := s.store.Find(pred)
				if err != nil {
					return err
				}
				if !found {
					elem = store.Object{}
				}
				return printJSON(cmd, elem)
			})
		},
	}
	c.Flags().String("where", "", "Match elements by field=value")
	return c
}

func newFilterCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "filter --where field=value",
		Short: "Print every matching element",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pred, err := whereFlag(cmd)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				matched, err := s.store.Filter(pred)
				if err != nil {
					return err
				}
				return printJSON(cmd, matched)
			})
		},
	}
	c.Flags().String("where", "", "Match elements by field=value")
	return c
}

func newSortCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "sort",
		Short: "Print the elements in sorted order without changing the payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			by, _ := cmd.Flags().GetString("by")
			desc := getBoolFlag(cmd, "desc")

			return withSession(cmd, func(s *session) error {
				sorted, err := s.store.Sort(func(a, b any) int {
					c := compareJSON(sortKey(a, by), sortKey(b, by))
					if desc {
						return -c
					}
					return c
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, sorted)
			})
		},
	}
	c.Flags().String("by", "", "Sort objects by this field")
	c.Flags().Bool("desc", false, "Sort in descending order")
	return c
}

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Write the memory driver's RDB snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				if s.snapshots == nil {
					return fmt.Errorf("snapshots need the memory driver and a --snapshot path")
				}
				if err := s.snapshots.Save(); err != nil {
					return err
				}
				return printJSON(cmd, s.snapshots.Stats())
			})
		},
	}
}
