// Command coordinatordurable wires the coordinator against the durable
// storegorm backend plus a redislock.Lock for the cluster-wide Monitor
// mutex, glued together with txstore.Combine — the production pairing
// storemem's single-process demo stands in for during local development.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/brnsampaio/tcc-coordinator/config"
	"github.com/brnsampaio/tcc-coordinator/redislock"
	"github.com/brnsampaio/tcc-coordinator/retry"
	"github.com/brnsampaio/tcc-coordinator/storegorm"
	"github.com/brnsampaio/tcc-coordinator/tcc"
	"github.com/brnsampaio/tcc-coordinator/transport/inprocess"
	"github.com/brnsampaio/tcc-coordinator/txstore"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("coordinatordurable: build logger: %v", err)
	}
	defer logger.Sync()

	storeCfg := config.LoadStoreConfig()

	log_, err := storegorm.Open(storeCfg.DSN)
	if err != nil {
		log.Fatalf("open storegorm at %s: %v", storeCfg.DSN, err)
	}

	pool := redislock.NewPool(storeCfg.RedisAddr, storeCfg.RedisPassword)
	lock := redislock.New("monitor", pool)

	store := txstore.Combine(log_, lock)

	manager := tcc.New(store,
		tcc.WithLogger(logger),
		tcc.WithOptions(config.Options{
			Timeout:         5 * time.Second,
			MonitorInterval: 15 * time.Second,
			EnableMonitor:   true,
			Retry:           retry.DefaultConfig(),
		}),
	)
	defer manager.Stop()

	inventory := inprocess.NewResource("inventory")
	payments := inprocess.NewResource("payments")
	if err := manager.Register(inventory); err != nil {
		log.Fatalf("register inventory: %v", err)
	}
	if err := manager.Register(payments); err != nil {
		log.Fatalf("register payments: %v", err)
	}

	ctx := context.Background()
	result, err := manager.StartTransaction(ctx, tcc.TransactionOptions{
		Metadata: map[string]string{"order_id": "ord-durable-1"},
	})
	if err != nil {
		log.Fatalf("start transaction: %v", err)
	}

	fmt.Printf("tx %s: success=%v outcome=%s (dsn=%s redis=%s)\n",
		result.TxID, result.Success, result.Outcome, storeCfg.DSN, storeCfg.RedisAddr)
}
