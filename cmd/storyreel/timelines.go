package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"storyreel/internal/storage"
	"storyreel/internal/timeline"
)

func newTimelinesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "timelines",
		Aliases: []string{"tl"},
		Short:   "Inspect and move stored timelines",
	}
	cmd.AddCommand(newTimelinesListCmd(a))
	cmd.AddCommand(newTimelinesExportCmd(a))
	cmd.AddCommand(newTimelinesImportCmd(a))
	return cmd
}

func (a *app) openStore() (*storage.SQLiteStorage, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.NewSQLiteStorage(cfg.Database.Path)
}

func newTimelinesListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List timelines by last update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.ListTimelines(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tUPDATED\tPLAYHEAD")
			for _, it := range items {
				playhead := "-"
				if it.PlaybackState != nil {
					playhead = fmt.Sprintf("%.1fs / %.1fs", it.PlaybackState.Position, it.PlaybackState.Duration)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, it.Name, humanize.Time(it.UpdatedAt), playhead)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of timelines")
	return cmd
}

func newTimelinesExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a timeline's state object as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			t, err := store.GetTimeline(args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("timeline %q not found", args[0])
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := w.Write(append(t.State, '\n'))
			if err != nil {
				return err
			}
			if out != "" && out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s to %s\n", humanize.Bytes(uint64(n)), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newTimelinesImportCmd(a *app) *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Store a state object read from FILE (or - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
				if name == "" {
					name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				}
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}

			state, err := timeline.ParseState(data)
			if err != nil {
				return err
			}
			m := timeline.NewModel()
			m.Load(state)
			raw, err := m.State().Encode()
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if id == "" {
				id = uuid.NewString()
			}
			if err := store.SaveTimeline(&storage.Timeline{ID: id, Name: name, State: raw}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d video, %d audio, %s)\n",
				id, len(state.VideoClips), len(state.AudioClips), humanize.Bytes(uint64(len(raw))))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "timeline id (default: new uuid)")
	cmd.Flags().StringVar(&name, "name", "", "timeline name (default: file name)")
	return cmd
}
