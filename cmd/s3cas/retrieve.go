package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/threefoldtech/s3-cas/pkg/blockstream"
	"github.com/threefoldtech/s3-cas/pkg/objectstore"
	"github.com/threefoldtech/s3-cas/pkg/router"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <bucket> <key> <dest>",
	Short: "Fetch a single object's bytes to a destination file",
	Args:  cobra.ExactArgs(3),
	RunE:  runRetrieve,
}

func init() {
	retrieveCmd.Flags().String("meta-root", ".", "Metastore root directory")
	retrieveCmd.Flags().String("block-root", ".", "Block store root directory")
	retrieveCmd.Flags().String("user", "", "Tenant (user) ID; empty for single-tenant layout")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	bucket, key, dest := args[0], args[1], args[2]
	metaRoot, _ := cmd.Flags().GetString("meta-root")
	blockRoot, _ := cmd.Flags().GetString("block-root")
	userID, _ := cmd.Flags().GetString("user")

	rt, err := router.New(metaRoot, blockRoot, router.AtomicFactory(0, types.DurabilityFsync))
	if err != nil {
		return fmt.Errorf("open router: %w", err)
	}
	defer rt.Close()

	handle, err := rt.GetForTenant(userID)
	if err != nil {
		return err
	}
	store := objectstore.New(handle)

	obj, locations, err := store.GetObjectPaths(bucket, key)
	if err != nil {
		return fmt.Errorf("object %s/%s: %w", bucket, key, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if obj.Variant == types.VariantInline {
		if _, err := out.Write(obj.Inline); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
		return nil
	}

	bs, err := blockstream.New(locations, obj.Size, types.All())
	if err != nil {
		return fmt.Errorf("build block stream: %w", err)
	}
	defer bs.Close()

	if _, err := io.Copy(out, bs); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}
