package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/break1145/GraphDo/pkg/kernel"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newListCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every record of a user in one category",
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := namespaceFlags(cmd)
			if err != nil {
				return err
			}
			return withStore(cmd, open, func(s memory.Store) error {
				items, err := s.Search(cmd.Context(), ns)
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
}

func newGetCmd(open storeOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print one record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := namespaceFlags(cmd)
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("key")
			return withStore(cmd, open, func(s memory.Store) error {
				item, err := s.Get(cmd.Context(), ns, key)
				if err != nil {
					return fmt.Errorf("get: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), item)
			})
		},
	}
	cmd.Flags().StringP("key", "k", "", "Record key (required)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newPutCmd(open storeOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a record",
		Long:  "Create or replace a record. Without --key a new key is generated, except for the profile which is updated in place.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := namespaceFlags(cmd)
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("key")
			value, _ := cmd.Flags().GetString("value")

			raw, err := checkValue(ns.Category, value)
			if err != nil {
				return err
			}

			return withStore(cmd, open, func(s memory.Store) error {
				key = strings.TrimSpace(key)
				if key == "" && ns.Category == memory.CategoryProfile {
					items, err := s.Search(cmd.Context(), ns)
					if err != nil {
						return fmt.Errorf("put: %w", err)
					}
					if len(items) > 0 {
						key = items[0].Key
					}
				}
				if key == "" {
					key = kernel.NewRecordKey().String()
				}
				if err := s.Put(cmd.Context(), ns, key, raw); err != nil {
					return fmt.Errorf("put: %w", err)
				}
				item, err := s.Get(cmd.Context(), ns, key)
				if err != nil {
					return fmt.Errorf("put: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), item)
			})
		},
	}
	cmd.Flags().StringP("key", "k", "", "Record key (generated when omitted)")
	cmd.Flags().String("value", "", "Record document as JSON (required)")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newDeleteCmd(open storeOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := namespaceFlags(cmd)
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("key")
			return withStore(cmd, open, func(s memory.Store) error {
				if err := s.Delete(cmd.Context(), ns, key); err != nil {
					return fmt.Errorf("delete: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", ns.Prefix(), key)
				return nil
			})
		},
	}
	cmd.Flags().StringP("key", "k", "", "Record key (required)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

// checkValue decodes the document as its category's record and re-encodes
// the normalized form
func checkValue(category memory.Category, value string) ([]byte, error) {
	dec := json.NewDecoder(strings.NewReader(value))
	dec.DisallowUnknownFields()

	var doc any
	switch category {
	case memory.CategoryProfile:
		var p memory.Profile
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("invalid profile: %w", err)
		}
		p.Normalize()
		doc = p
	case memory.CategoryTodo:
		var t memory.Task
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("invalid todo: %w", err)
		}
		t.Normalize()
		if err := t.Validate(); err != nil {
			return nil, err
		}
		t.Key = ""
		doc = t
	case memory.CategoryInstructions:
		var ins memory.Instruction
		if err := dec.Decode(&ins); err != nil {
			return nil, fmt.Errorf("invalid instruction: %w", err)
		}
		if err := ins.Validate(); err != nil {
			return nil, err
		}
		ins.Key = ""
		doc = ins
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}

	raw, err := memory.Encode(doc)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
