// Command katamaridb is a CLI front end over the versioned record
// store: set, get, delete, and search a local database file.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/katamari-go/katamari/internal/codec"
	"github.com/katamari-go/katamari/internal/config"
	"github.com/katamari-go/katamari/internal/klog"
	"github.com/katamari-go/katamari/internal/orm"
	"github.com/katamari-go/katamari/internal/record"
	"github.com/katamari-go/katamari/internal/search"
	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
)

func main() {
	root := &cobra.Command{
		Use:   "katamaridb",
		Short: "Interact with a katamari versioned key-value store",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "katamari", "database base path (without extension)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(setCmd(), getCmd(), deleteCmd(), searchCmd())

	if err := root.Execute(); err != nil {
		klog.Component("cli").Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func openStore() (*orm.ORM, error) {
	schema := search.Schema{}
	cacheSize := 1000

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		fields, err := cfg.SchemaFields()
		if err != nil {
			return nil, err
		}
		schema = search.Schema(fields)
		if cfg.CacheSize > 0 {
			cacheSize = cfg.CacheSize
		}
	}

	engine, err := record.Open(dbPath)
	if err != nil {
		return nil, err
	}

	return orm.New(engine, orm.Options{
		Schema:     schema,
		CacheSize:  cacheSize,
		TxLogPath:  dbPath + ".txlog.ndjson",
		CodecOpts:  codec.DefaultOptions(),
		LockShards: 256,
	}), nil
}

func setCmd() *cobra.Command {
	var ttlSeconds int
	var appendMerge bool
	cmd := &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Set a key to a JSON object value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var value map[string]any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return fmt.Errorf("value must be a JSON object: %w", err)
			}
			return store.Set(args[0], value, appendMerge, time.Duration(ttlSeconds)*time.Second)
		},
	}
	cmd.Flags().IntVar(&ttlSeconds, "ttl", 0, "expire the key after this many seconds")
	cmd.Flags().BoolVar(&appendMerge, "append", false, "merge list fields onto the existing value instead of replacing it")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a key's current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			value, err := store.Get(args[0])
			if err != nil {
				return err
			}
			out, err := json.Marshal(value)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Delete(args[0])
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: `Run a search against the index, accepting "field:value" and "field:[start TO end]" clauses alongside bare terms`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			results := store.Search(search.Query{QueryString: args[0]})
			out, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
