// Command coordinatordemo wires the coordinator end to end against an
// in-memory store and a handful of in-process participants, so the package
// can be exercised without standing up redis or a database.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/brnsampaio/tcc-coordinator/config"
	"github.com/brnsampaio/tcc-coordinator/retry"
	"github.com/brnsampaio/tcc-coordinator/storemem"
	"github.com/brnsampaio/tcc-coordinator/tcc"
	"github.com/brnsampaio/tcc-coordinator/transport/inprocess"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("coordinatordemo: build logger: %v", err)
	}
	defer logger.Sync()

	store := storemem.New()

	manager := tcc.New(store,
		tcc.WithLogger(logger),
		tcc.WithOptions(config.Options{
			Timeout:         2 * time.Second,
			MonitorInterval: 3 * time.Second,
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
		Metadata: map[string]string{"order_id": "ord-42"},
	})
	if err != nil {
		log.Fatalf("start transaction: %v", err)
	}

	fmt.Printf("tx %s: success=%v outcome=%s\n", result.TxID, result.Success, result.Outcome)
	fmt.Printf("health: %+v\n", manager.GetHealth())
}
