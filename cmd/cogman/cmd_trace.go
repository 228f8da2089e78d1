package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cogman/internal/config"
	"cogman/internal/store"
)

var (
	traceBucket string
	traceLimit  int
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect persisted lifecycle traces",
}

var traceListCmd = &cobra.Command{
	Use:   "list [bucket]",
	Short: "List trace ids in a bucket (all buckets when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		buckets := store.Buckets
		if len(args) == 1 {
			if !store.ValidBucket(args[0]) {
				return fmt.Errorf("unknown bucket %q (want one of %v)", args[0], store.Buckets)
			}
			buckets = []string{args[0]}
		}

		for _, bucket := range buckets {
			ids, err := s.List(bucket, traceLimit)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Printf("%-10s %s\n", bucket, id)
			}
		}
		return nil
	},
}

var traceShowCmd = &cobra.Command{
	Use:   "show <trace-id>",
	Short: "Print one trace with its full lifecycle log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := s.Load(args[0], traceBucket)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	},
}

var traceMoveCmd = &cobra.Command{
	Use:   "move <trace-id> <from> <to>",
	Short: "Move a trace between buckets (e.g. completed -> archived)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, from, to := args[0], args[1], args[2]
		for _, b := range []string{from, to} {
			if !store.ValidBucket(b) {
				return fmt.Errorf("unknown bucket %q (want one of %v)", b, store.Buckets)
			}
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Move(id, from, to); err != nil {
			return err
		}
		fmt.Printf("moved %s: %s -> %s\n", id, from, to)
		return nil
	},
}

func openStore() (*store.TraceStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Storage.DatabasePath)
}

func init() {
	traceListCmd.Flags().IntVar(&traceLimit, "limit", 50, "max ids per bucket")
	traceShowCmd.Flags().StringVar(&traceBucket, "bucket", "", "bucket to load from (searches all when empty)")
	traceCmd.AddCommand(traceListCmd)
	traceCmd.AddCommand(traceShowCmd)
	traceCmd.AddCommand(traceMoveCmd)
}
