// Command katamari-worker connects to a katamari-dispatcher and
// processes whatever jobs it is assigned.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/katamari-go/katamari/internal/dispatch"
	"github.com/katamari-go/katamari/internal/klog"
	"github.com/spf13/cobra"
)

func main() {
	var (
		serverURL string
		workerID  string
	)

	root := &cobra.Command{
		Use:   "katamari-worker",
		Short: "Connect to a katamari dispatcher and process jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := klog.Component("worker")

			if workerID == "" {
				workerID = uuid.NewString()
			}

			worker, err := dispatch.Dial(serverURL, workerID)
			if err != nil {
				return err
			}
			defer worker.Close()

			worker.SetShardHandler(func(shardData any) (any, error) {
				items, ok := shardData.([]any)
				if !ok {
					return nil, fmt.Errorf("unexpected shard payload type %T", shardData)
				}
				return len(items), nil
			})

			worker.RegisterLambda("echo", func(args map[string]any) (any, error) {
				return args, nil
			})

			log.Info().Str("id", workerID).Str("server", serverURL).Msg("worker connected")
			worker.Run()
			return nil
		},
	}

	root.Flags().StringVar(&serverURL, "server", "ws://localhost:8765/ws", "dispatcher WebSocket URL")
	root.Flags().StringVar(&workerID, "id", "", "worker id (random if omitted)")

	if err := root.Execute(); err != nil {
		klog.Component("worker").Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
