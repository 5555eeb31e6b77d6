// Command tundra-worker runs the background mirroring loop described
// by the tundra package against a configurable datastore backend,
// grounded on _examples/sa6mwa-lockd/cmd/lockd's cobra/viper
// config-binding shape.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/internal/conn"
	"github.com/kvpipe/kvpipe/tundra"
	"github.com/kvpipe/kvpipe/tundra/datastore/azurestore"
	"github.com/kvpipe/kvpipe/tundra/datastore/memdatastore"
	"github.com/kvpipe/kvpipe/tundra/datastore/miniostore"
	"github.com/kvpipe/kvpipe/tundra/datastore/s3store"
	"github.com/kvpipe/kvpipe/tundra/queue/memqueue"
)

func main() {
	os.Exit(submain())
}

func submain() int {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tundra-worker",
		Short:         "Mirror dirtied keys into a blob datastore",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.Flags().String("addr", "127.0.0.1:6379", "host:port of the node")
	root.Flags().String("backend", "mem", "datastore backend: mem|minio|s3|azure")
	root.Flags().String("minio-endpoint", "localhost:9000", "minio endpoint")
	root.Flags().String("minio-access-key", "", "minio access key")
	root.Flags().String("minio-secret-key", "", "minio secret key")
	root.Flags().String("minio-bucket", "tundra", "minio bucket")
	root.Flags().String("s3-region", "us-east-1", "s3 region")
	root.Flags().String("s3-bucket", "tundra", "s3 bucket")
	root.Flags().String("azure-account", "", "azure storage account")
	root.Flags().String("azure-account-key", "", "azure storage account key")
	root.Flags().String("azure-container", "tundra", "azure blob container")
	root.Flags().Int("threads", 4, "worker goroutines")
	for _, name := range []string{
		"addr", "backend", "minio-endpoint", "minio-access-key", "minio-secret-key", "minio-bucket",
		"s3-region", "s3-bucket", "azure-account", "azure-account-key", "azure-container", "threads",
	} {
		_ = viper.BindPFlag(name, root.Flags().Lookup(name))
	}
	viper.SetEnvPrefix("TUNDRA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return root
}

func run(ctx context.Context) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ds, err := buildDatastore(ctx)
	if err != nil {
		return err
	}

	addr := viper.GetString("addr")
	host, port, err := splitHostPort(addr)
	if err != nil {
		return err
	}
	pool := conn.NewTCPPool(2*time.Second, 4)
	spec := conn.NodeSpec{Address: host, Port: port}

	worker := tundra.NewWorker(func(body func(s *kvpipe.Session) error) (any, error) {
		return kvpipe.WithConnection(pool, spec, nil, logger, body)
	}, ds)
	worker.Logger = logger

	q := memqueue.New()
	opts := tundra.WorkerOptions{
		NThreads:     viper.GetInt("threads"),
		EOQBackoffMs: 200,
		MaxAttempts:  10,
		Monitor: func(e tundra.Event) {
			logger.Error("tundra: dropped message", "queue", e.Queue, "id", e.MessageID, "error", e.Err)
		},
	}
	consumer, err := q.Worker(ctx, tundra.QueueName, opts, worker.Handle)
	if err != nil {
		return fmt.Errorf("tundra-worker: start worker: %w", err)
	}

	sigCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-sigCtx.Done()
	consumer.Stop()
	return nil
}

func buildDatastore(ctx context.Context) (tundra.Datastore, error) {
	switch viper.GetString("backend") {
	case "minio":
		return miniostore.New(miniostore.Config{
			Endpoint:  viper.GetString("minio-endpoint"),
			AccessKey: viper.GetString("minio-access-key"),
			SecretKey: viper.GetString("minio-secret-key"),
			Bucket:    viper.GetString("minio-bucket"),
			Prefix:    "tundra",
		})
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Region: viper.GetString("s3-region"),
			Bucket: viper.GetString("s3-bucket"),
			Prefix: "tundra",
		})
	case "azure":
		return azurestore.New(ctx, azurestore.Config{
			Account:    viper.GetString("azure-account"),
			AccountKey: viper.GetString("azure-account-key"),
			Container:  viper.GetString("azure-container"),
			Prefix:     "tundra",
		})
	case "mem", "":
		return memdatastore.New(), nil
	default:
		return nil, fmt.Errorf("tundra-worker: unknown backend %q", viper.GetString("backend"))
	}
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return addr, 0, fmt.Errorf("tundra-worker: %q is not host:port", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("tundra-worker: invalid port in %q: %w", addr, err)
	}
	return addr[:idx], port, nil
}
