package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/threefoldtech/s3-cas/pkg/router"
	"github.com/threefoldtech/s3-cas/pkg/types"
	"github.com/threefoldtech/s3-cas/pkg/users"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read-only maintenance and reporting commands over the storage engine",
}

var inspectUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered tenants",
	RunE:  runInspectUsers,
}

var inspectBucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List buckets across one or all tenants",
	RunE:  runInspectBuckets,
}

var inspectBucketStatsCmd = &cobra.Command{
	Use:   "bucket <name>",
	Short: "Show object count, size, and variant breakdown for one bucket",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectBucketStats,
}

var inspectBlocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Show block storage and deduplication statistics",
	RunE:  runInspectBlocks,
}

var inspectObjectCmd = &cobra.Command{
	Use:   "object <bucket> <key>",
	Short: "Show metadata for a single object",
	Args:  cobra.ExactArgs(2),
	RunE:  runInspectObject,
}

func init() {
	for _, c := range []*cobra.Command{inspectUsersCmd, inspectBucketsCmd, inspectBucketStatsCmd, inspectBlocksCmd, inspectObjectCmd} {
		c.Flags().String("meta-root", ".", "Metastore root directory")
		c.Flags().String("block-root", ".", "Block store root directory")
		c.Flags().String("user", "", "Restrict to one tenant (user) ID")
	}
	inspectCmd.AddCommand(inspectUsersCmd, inspectBucketsCmd, inspectBucketStatsCmd, inspectBlocksCmd, inspectObjectCmd)
}

// detectTenants lists the "user_<id>" subdirectories under metaRoot, the
// same directory convention pkg/router.GetForTenant uses to derive a
// tenant's metastore path.
func detectTenants(metaRoot string) ([]string, error) {
	entries, err := os.ReadDir(metaRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, ok := strings.CutPrefix(e.Name(), "user_"); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func openRouter(cmd *cobra.Command) (*router.Router, error) {
	metaRoot, _ := cmd.Flags().GetString("meta-root")
	blockRoot, _ := cmd.Flags().GetString("block-root")
	return router.New(metaRoot, blockRoot, router.AtomicFactory(0, types.DurabilityFsync))
}

func runInspectUsers(cmd *cobra.Command, args []string) error {
	rt, err := openRouter(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	dir := users.NewDirectory(rt.Shared())
	list, err := dir.ListUsers()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No users found")
		return nil
	}

	fmt.Printf("%-20s %-20s %-30s %-6s %-20s\n", "User ID", "UI Login", "S3 Access Key", "Admin", "Created At")
	fmt.Println(strings.Repeat("-", 100))
	for _, u := range list {
		admin := "No"
		if u.IsAdmin {
			admin = "Yes"
		}
		fmt.Printf("%-20s %-20s %-30s %-6s %-20s\n", u.UserID, u.UILogin, u.S3AccessKey, admin, u.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runInspectBuckets(cmd *cobra.Command, args []string) error {
	metaRoot, _ := cmd.Flags().GetString("meta-root")
	userFilter, _ := cmd.Flags().GetString("user")

	rt, err := openRouter(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	tenants := []string{userFilter}
	if userFilter == "" {
		tenants, err = detectTenants(metaRoot)
		if err != nil {
			return err
		}
	}
	if len(tenants) == 0 {
		tenants = []string{""}
	}

	fmt.Printf("%-20s %-30s %-15s %-20s\n", "Tenant", "Bucket Name", "Object Count", "Created At")
	fmt.Println(strings.Repeat("-", 85))
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
			count := 0
			if err == nil {
				_ = tree.Range(nil, func(key, value []byte) (bool, error) {
					count++
					return true, nil
				})
			}
			fmt.Printf("%-20s %-30s %-15d %-20s\n", tenant, b.Name, count, b.CTime.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func runInspectBucketStats(cmd *cobra.Command, args []string) error {
	bucket := args[0]
	userFilter, _ := cmd.Flags().GetString("user")

	rt, err := openRouter(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	handle, err := rt.GetForTenant(userFilter)
	if err != nil {
		return err
	}
	exists, err := handle.Local.BucketExists(bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %q not found", bucket)
	}

	tree, err := handle.Local.BucketTree(bucket)
	if err != nil {
		return err
	}

	var objectCount, multipartCount, inlineCount int
	var totalSize uint64
	uniqueBlocks := make(map[types.BlockID]struct{})

	err = tree.Range(nil, func(key, value []byte) (bool, error) {
		obj, err := types.DecodeObject(value)
		if err != nil {
			return false, err
		}
		objectCount++
		totalSize += obj.Size
		switch obj.Variant {
		case types.VariantMultiPart:
			multipartCount++
		case types.VariantInline:
			inlineCount++
		}
		for _, b := range obj.Blocks {
			uniqueBlocks[b] = struct{}{}
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Bucket: %s\n", bucket)
	fmt.Printf("Object count: %d\n", objectCount)
	fmt.Printf("Total size: %s (%d bytes)\n", formatBytes(totalSize), totalSize)
	fmt.Printf("Unique blocks: %d\n", len(uniqueBlocks))
	fmt.Printf("Multipart objects: %d\n", multipartCount)
	fmt.Printf("Inline objects: %d\n", inlineCount)
	if objectCount > 0 {
		fmt.Printf("Average object size: %s\n", formatBytes(totalSize/uint64(objectCount)))
	}
	return nil
}

func runInspectBlocks(cmd *cobra.Command, args []string) error {
	rt, err := openRouter(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	blockTree, err := rt.Shared().BlockTree()
	if err != nil {
		return err
	}

	var totalBlocks, totalRC int
	var totalSize uint64
	rcDist := make(map[uint64]int)

	err = blockTree.ForEach(func(id types.BlockID, b types.Block) error {
		totalBlocks++
		totalSize += b.Size
		totalRC += int(b.RC)
		rcDist[b.RC]++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println("Block Statistics:")
	fmt.Printf("  Total blocks: %d\n", totalBlocks)
	fmt.Printf("  Total block storage: %s (%d bytes)\n", formatBytes(totalSize), totalSize)
	fmt.Printf("  Total references: %d\n", totalRC)

	if totalBlocks > 0 {
		avg := float64(totalRC) / float64(totalBlocks)
		fmt.Printf("  Average references per block: %.2f\n", avg)
		savings := ((avg - 1.0) / avg) * 100
		fmt.Printf("  Storage savings: %.1f%%\n", savings)
	}

	var rcs []uint64
	for rc := range rcDist {
		rcs = append(rcs, rc)
	}
	sort.Slice(rcs, func(i, j int) bool { return rcs[i] < rcs[j] })

	fmt.Println("\nReference count distribution:")
	shown := 0
	for _, rc := range rcs {
		if shown >= 10 {
			break
		}
		fmt.Printf("  RC=%d: %d blocks\n", rc, rcDist[rc])
		shown++
	}
	if len(rcs) > 10 {
		fmt.Printf("  ... (%d more)\n", len(rcs)-10)
	}
	return nil
}

func runInspectObject(cmd *cobra.Command, args []string) error {
	bucket, key := args[0], args[1]
	userFilter, _ := cmd.Flags().GetString("user")

	rt, err := openRouter(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	handle, err := rt.GetForTenant(userFilter)
	if err != nil {
		return err
	}
	raw, found, err := handle.Local.GetMeta(bucket, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("object %q not found in bucket %q", key, bucket)
	}
	obj, err := types.DecodeObject(raw)
	if err != nil {
		return err
	}

	fmt.Printf("Object: %s/%s\n", bucket, key)
	fmt.Printf("Size: %s (%d bytes)\n", formatBytes(obj.Size), obj.Size)
	fmt.Printf("Variant: %v\n", obj.Variant)
	fmt.Printf("ETag: %x\n", obj.ETag)
	fmt.Printf("Last modified: %s\n", obj.LastModified.Format("2006-01-02 15:04:05"))

	if obj.Variant == types.VariantInline {
		fmt.Printf("Inline data: %d bytes\n", len(obj.Inline))
		return nil
	}

	fmt.Printf("Blocks: %d\n", len(obj.Blocks))
	limit := len(obj.Blocks)
	if limit > 10 {
		limit = 10
	}
	fmt.Println("\nBlock IDs:")
	for i := 0; i < limit; i++ {
		fmt.Printf("  %d: %s\n", i+1, obj.Blocks[i].String())
	}
	if len(obj.Blocks) > limit {
		fmt.Printf("  ... (%d more blocks)\n", len(obj.Blocks)-limit)
	}
	if obj.Variant == types.VariantMultiPart {
		fmt.Printf("\nMultipart upload: %d parts\n", obj.PartCount)
	}
	return nil
}

func formatBytes(n uint64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	if n == 0 {
		return "0 B"
	}
	size := float64(n)
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", size, units[unit])
}
