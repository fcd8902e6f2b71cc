package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/threefoldtech/s3-cas/pkg/blockstore"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

// checkCmd validates the quantified invariants every block and object must
// satisfy, without mutating anything:
//
//  1. every Block.RC >= 1
//  2. every Block has exactly one path-tree entry mapping Block.Path back
//     to it
//  3. every non-inline Object's BlockIDs resolve in the block tree
//  4. every present Block's on-disk file exists
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate block-tree and path-tree invariants without mutating anything",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().String("meta-root", ".", "Metastore root directory")
	checkCmd.Flags().String("block-root", ".", "Block store root directory")
}

func runCheck(cmd *cobra.Command, args []string) error {
	metaRoot, _ := cmd.Flags().GetString("meta-root")
	blockRoot, _ := cmd.Flags().GetString("block-root")

	rt, err := openRouter(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var violations []string

	blockTree, err := rt.Shared().BlockTree()
	if err != nil {
		return err
	}
	pathTree, err := rt.Shared().PathTree()
	if err != nil {
		return err
	}

	blocksSeen := 0
	err = blockTree.ForEach(func(id types.BlockID, b types.Block) error {
		blocksSeen++

		if b.RC < 1 {
			violations = append(violations, fmt.Sprintf("block %s: rc=%d, want >= 1", id, b.RC))
		}

		raw, perr := pathTree.Get(b.Path)
		if perr != nil {
			return perr
		}
		if raw == nil {
			violations = append(violations, fmt.Sprintf("block %s: no path-tree entry for path %x", id, b.Path))
		} else if !bytes.Equal(raw, id[:]) {
			violations = append(violations, fmt.Sprintf("block %s: path-tree entry for %x resolves to a different block", id, b.Path))
		}

		loc := blockstore.FileLocation(blockRoot, b.Path)
		if _, statErr := os.Stat(loc); statErr != nil {
			violations = append(violations, fmt.Sprintf("block %s: on-disk file missing at %s", id, loc))
		}
		return nil
	})
	if err != nil {
		return err
	}

	tenants, err := detectTenants(metaRoot)
	if err != nil {
		return err
	}
	if len(tenants) == 0 {
		tenants = []string{""}
	}

	objectsSeen := 0
	for _, tenant := range tenants {
		handle, err := rt.GetForTenant(tenant)
		if err != nil {
			return err
		}
		buckets, err := handle.Local.ListBuckets()
		if err != nil {
			return err
		}
		for _, b := range buckets {
			tree, err := handle.Local.BucketTree(b.Name)
			if err != nil {
				return err
			}
			err = tree.Range(nil, func(key, value []byte) (bool, error) {
				objectsSeen++
				obj, derr := types.DecodeObject(value)
				if derr != nil {
					violations = append(violations, fmt.Sprintf("tenant %q bucket %q key %q: undecodable: %v", tenant, b.Name, key, derr))
					return true, nil
				}
				if obj.Variant == types.VariantInline {
					return true, nil
				}
				for _, blockID := range obj.Blocks {
					if _, found, berr := blockTree.Get(blockID); berr != nil {
						return false, berr
					} else if !found {
						violations = append(violations, fmt.Sprintf("tenant %q bucket %q key %q: block %s missing from block tree", tenant, b.Name, key, blockID))
					}
				}
				return true, nil
			})
			if err != nil {
				return err
			}
		}
	}

	fmt.Printf("Checked %d blocks and %d objects across %d tenant(s).\n", blocksSeen, objectsSeen, len(tenants))
	if len(violations) == 0 {
		fmt.Println("No invariant violations found.")
		return nil
	}

	fmt.Printf("%d invariant violation(s):\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  - %s\n", v)
	}
	return fmt.Errorf("%d invariant violation(s) found", len(violations))
}
