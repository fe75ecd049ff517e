// Command katamari-dispatcher runs the WebSocket work dispatcher:
// workers connect, heartbeat, and receive sharded or lambda jobs, with
// all worker and shard state persisted through the same versioned
// store the rest of the core uses.
package main

import (
	"net/http"
	"os"

	"github.com/katamari-go/katamari/internal/codec"
	"github.com/katamari-go/katamari/internal/config"
	"github.com/katamari-go/katamari/internal/dispatch"
	"github.com/katamari-go/katamari/internal/klog"
	"github.com/katamari-go/katamari/internal/orm"
	"github.com/katamari-go/katamari/internal/record"
	"github.com/katamari-go/katamari/internal/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	var (
		dbPath     string
		configPath string
		bindAddr   string
	)

	root := &cobra.Command{
		Use:   "katamari-dispatcher",
		Short: "Run the katamari job dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := klog.Component("dispatcher")

			schema := search.Schema{}
			cacheSize := 1000
			addr := bindAddr

			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				fields, err := cfg.SchemaFields()
				if err != nil {
					return err
				}
				schema = search.Schema(fields)
				if cfg.CacheSize > 0 {
					cacheSize = cfg.CacheSize
				}
				if addr == "" {
					addr = cfg.DispatchBindAddr
				}
			}
			if addr == "" {
				addr = ":8765"
			}

			engine, err := record.Open(dbPath)
			if err != nil {
				return err
			}
			defer engine.Close()

			store := orm.New(engine, orm.Options{
				Schema:     schema,
				CacheSize:  cacheSize,
				TxLogPath:  dbPath + ".txlog.ndjson",
				CodecOpts:  codec.DefaultOptions(),
				LockShards: 256,
			})
			defer store.Close()

			server := dispatch.NewServer(store)
			http.Handle("/ws", server)
			http.Handle("/metrics", promhttp.Handler())

			log.Info().Str("addr", addr).Msg("dispatcher listening")
			return http.ListenAndServe(addr, nil)
		},
	}

	root.Flags().StringVar(&dbPath, "db", "katamari", "database base path (without extension)")
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.Flags().StringVar(&bindAddr, "addr", "", "WebSocket bind address (overrides config)")

	if err := root.Execute(); err != nil {
		klog.Component("dispatcher").Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
