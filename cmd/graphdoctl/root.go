package main

import (
	"context"
	"fmt"

	"github.com/break1145/GraphDo/pkg/config"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/break1145/GraphDo/pkg/memory/memoryinfra"
	"github.com/spf13/cobra"
)

// storeOpener returns a store and the function that releases it
type storeOpener func(ctx context.Context) (memory.Store, func() error, error)

// openStore uses the same STORE_* settings as the server
func openStore(ctx context.Context) (memory.Store, func() error, error) {
	cfg, err := config.LoadStore()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Backend == config.StoreBackendMemory {
		return nil, nil, fmt.Errorf("STORE_BACKEND=memory has nothing to manage")
	}
	store, db, err := memoryinfra.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return store, db.Close, nil
}

func newRootCmd(open storeOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "graphdoctl",
		Short:         "Manage GraphDo long-term memory records",
		Long:          "Reads and writes profile, todo and instructions records without going through a chat turn.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("category", "c", "", "Category: profile, todo or instructions (required)")
	root.PersistentFlags().StringP("user", "u", "", "User id (required)")
	_ = root.MarkPersistentFlagRequired("category")
	_ = root.MarkPersistentFlagRequired("user")

	root.AddCommand(
		newListCmd(open),
		newGetCmd(open),
		newPutCmd(open),
		newDeleteCmd(open),
	)
	return root
}

// namespaceFlags reads the persistent --category and --user flags
func namespaceFlags(cmd *cobra.Command) (memory.Namespace, error) {
	tag, _ := cmd.Flags().GetString("category")
	user, _ := cmd.Flags().GetString("user")

	category, err := memory.ParseCategory(tag)
	if err != nil {
		return memory.Namespace{}, fmt.Errorf("unknown category %q", tag)
	}
	id, err := memory.RequireUser(user)
	if err != nil {
		return memory.Namespace{}, fmt.Errorf("--user must not be blank")
	}
	return memory.NewNamespace(category, id), nil
}

// withStore opens the store for one command run
func withStore(cmd *cobra.Command, open storeOpener, fn func(memory.Store) error) error {
	store, closeFn, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return fn(store)
}
