package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"storyreel/internal/media"
	"storyreel/internal/storage"
)

func newAssetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Register media sources and their metadata",
	}
	cmd.AddCommand(newAssetsAddCmd(a))
	cmd.AddCommand(newAssetsShowCmd(a))
	return cmd
}

func newAssetsAddCmd(a *app) *cobra.Command {
	var name string
	var probe bool
	cmd := &cobra.Command{
		Use:   "add SRC",
		Short: "Register a media source, probing its duration when ffprobe is available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			kind, ok := media.KindFromSrc(src)
			if !ok {
				return fmt.Errorf("unsupported media type: %s", src)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			asset, err := store.GetAssetBySrc(src)
			if errors.Is(err, storage.ErrNotFound) {
				if name == "" {
					name = path.Base(src)
				}
				asset = &storage.Asset{ID: uuid.NewString(), Kind: string(kind), Name: name, Src: src}
				err = store.SaveAsset(asset)
			}
			if err != nil {
				return err
			}

			if probe {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				prober := media.NewProber(setupLogger(cfg.Logging))
				if !prober.IsAvailable() {
					return errors.New("ffprobe not found")
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				meta, err := prober.Probe(ctx, src)
				if err != nil {
					return err
				}
				if err := store.UpdateAssetMetadata(asset.ID, meta.Duration, meta.Width, meta.Height, meta.VideoCodec, meta.AudioCodec); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), asset.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (default: base name of SRC)")
	cmd.Flags().BoolVar(&probe, "probe", true, "probe metadata with ffprobe")
	return cmd
}

func newAssetsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print an asset and its probed metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			asset, err := store.GetAsset(args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("asset %q not found", args[0])
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "id\t%s\n", asset.ID)
			fmt.Fprintf(tw, "kind\t%s\n", asset.Kind)
			fmt.Fprintf(tw, "name\t%s\n", asset.Name)
			fmt.Fprintf(tw, "src\t%s\n", asset.Src)
			if asset.Duration != nil {
				fmt.Fprintf(tw, "duration\t%.3fs\n", *asset.Duration)
			}
			if asset.Width != nil && asset.Height != nil && *asset.Width > 0 {
				fmt.Fprintf(tw, "size\t%dx%d\n", *asset.Width, *asset.Height)
			}
			if asset.VideoCodec != nil && *asset.VideoCodec != "" {
				fmt.Fprintf(tw, "video\t%s\n", *asset.VideoCodec)
			}
			if asset.AudioCodec != nil && *asset.AudioCodec != "" {
				fmt.Fprintf(tw, "audio\t%s\n", *asset.AudioCodec)
			}
			fmt.Fprintf(tw, "added\t%s\n", humanize.Time(asset.CreatedAt))
			return tw.Flush()
		},
	}
}
