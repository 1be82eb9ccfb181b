package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/knowbase/rerankd/internal/output"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage model assets",
		Long:  `Download model assets into the shared cache and inspect their state.`,
	}
	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelStatusCmd())
	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download model assets into the shared cache",
		Long: `Download every asset in the model manifest into the shared cache.
Assets already cached are skipped, so rerunning is cheap.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModelDownload(cmd.Context(), cmd)
		},
	}
}

func runModelDownload(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loader, err := buildLoader(cfg)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if err := loader.Prefetch(ctx, func(msg string) {
		out.Status("", msg)
	}); err != nil {
		return err
	}
	out.Success("model assets cached")
	return nil
}

func newModelStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which model assets are cached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModelStatus(cmd.Context(), cmd)
		},
	}
}

func runModelStatus(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loader, err := buildLoader(cfg)
	if err != nil {
		return err
	}

	statuses, err := loader.CacheStatus(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "cache: %s (namespace %s)", cfg.Cache.Dir, cfg.Cache.Namespace)
	allCached := true
	for _, st := range statuses {
		if st.Cached {
			out.Statusf("✅", "%s (%d bytes)", st.Name, st.Bytes)
		} else {
			allCached = false
			out.Statusf("❌", "%s (not cached)", st.Name)
		}
	}
	if !allCached {
		out.Newline()
		out.Status("", "run 'rerankd model download' to fetch missing assets")
	}
	return nil
}
