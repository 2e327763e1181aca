package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/draftkit/syncache/logger"
	"github.com/draftkit/syncache/persist"
	"github.com/draftkit/syncache/policy"
)

var (
	dbPath    string
	redisURL  string
	namespace string
)

var rootCmd = &cobra.Command{
	Use:   "syncache-inspect",
	Short: "Dump the persisted entries of a syncache blob store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var blobs persist.BlobStore
		switch {
		case redisURL != "":
			opts, err := redis.ParseURL(redisURL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			client := redis.NewClient(opts)
			defer client.Close()
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("cannot reach redis: %w", err)
			}
			blobs = persist.NewRedis(client, "syncache")
		case dbPath != "":
			var err error
			blobs, err = persist.NewSQLite(dbPath)
			if err != nil {
				return fmt.Errorf("cannot open %s: %w", dbPath, err)
			}
		default:
			return fmt.Errorf("one of --db or --redis is required")
		}
		defer blobs.Close()

		adapter := persist.NewAdapter(blobs, logger.NewConsole(logger.GetLevelFromEnv()))
		entries := adapter.LoadAll(ctx)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

		now := time.Now()
		count := 0
		fmt.Printf("%-40s %-12s %-10s %-10s %s\n", "KEY", "NAMESPACE", "AGE", "TTL", "ACCESSES")
		for _, ke := range entries {
			ns := policy.NamespaceOf(ke.Key)
			if namespace != "" && ns != namespace {
				continue
			}
			fmt.Printf("%-40s %-12s %-10s %-10s %d\n",
				ke.Key, ns,
				now.Sub(ke.Entry.CreatedAt).Round(time.Second),
				ke.Entry.TTL.Round(time.Second),
				ke.Entry.AccessCount,
			)
			count++
		}
		fmt.Printf("\n%d live entries\n", count)
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&dbPath, "db", "", "path to a SQLite snapshot file")
	rootCmd.Flags().StringVar(&redisURL, "redis", "", "redis URL of a blob store (overrides --db)")
	rootCmd.Flags().StringVar(&namespace, "namespace", "", "only show entries in this namespace")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
