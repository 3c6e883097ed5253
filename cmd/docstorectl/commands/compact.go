package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/docstore/internal/cliutil"
	"github.com/marmos91/docstore/pkg/compactor"
	"github.com/marmos91/docstore/pkg/metrics"
	"github.com/marmos91/docstore/pkg/recordstore"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run an on-demand compaction pass",
	Long: `compact reconciles records stuck in the "uploading" status against
the object store (promoting to ready or demoting to failed) and removes
shard files with no surviving index entry. Nothing in docstore runs
this pass automatically; this command runs it once, on demand.`,
	RunE: runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := recordstore.Open(recordstore.Config{
		Root:                 cfg.Store.Root,
		ShardWidth:           cfg.Store.ShardWidth,
		IndexRewriteInterval: cfg.Store.IndexRewriteInterval,
		WALFsyncInterval:     cfg.Store.WALFsyncInterval,
		CacheCapacity:        cfg.Store.CacheCapacity,
		LockTimeout:          cfg.Store.LockTimeout,
		EmbeddingDim:         cfg.Store.EmbeddingDim,
	})
	if err != nil {
		return fmt.Errorf("failed to open store at %s: %w", cfg.Store.Root, err)
	}
	defer store.Close()

	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	reg := metrics.NewRegistry(nil, cfg.Metrics.Enabled)
	c := compactor.New(store, store.Shards(), objects, metrics.NewCompaction(reg))

	res := c.Run()

	table := cliutil.NewTableData("METRIC", "VALUE")
	table.AddRow("uploading reconciled", fmt.Sprintf("%d", res.UploadingReconciled))
	table.AddRow("uploading failed", fmt.Sprintf("%d", res.UploadingFailed))
	table.AddRow("orphan shards removed", fmt.Sprintf("%d", res.OrphanShardsRemoved))
	table.AddRow("index entries healed", fmt.Sprintf("%d", res.IndexEntriesHealed))
	table.AddRow("duration", res.Duration.String())
	return cliutil.PrintTable(cmd.OutOrStdout(), table)
}
