package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/bank-reconciler/internal/app"
	"github.com/nimasrn/bank-reconciler/internal/config"
	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/internal/repository"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/nimasrn/bank-reconciler/pkg/pg"
)

// usage:
//
//	cli migrate [up|down|status] --dir=./migrations --env=.env
//	cli seed-orders --count=10 --amount=500000 --env=.env
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	command, sub := "migrate", ""
	args := positional()
	if len(args) > 0 {
		command = args[0]
	}
	if len(args) > 1 {
		sub = args[1]
	}

	switch command {
	case "migrate":
		err = pg.Migrate(app.WriteConfig(config.Get()), getMigrationPath(), sub)
	case "seed-orders":
		err = seedOrders(config.Get(), flagInt("--count=", 10), int64(flagInt("--amount=", 500000)))
	default:
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		logger.Error("cli: command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

// seedOrders inserts pending bank transfer orders with DH references, for
// local runs against the mock bank.
func seedOrders(c *config.Config, count int, amount int64) error {
	db, err := pg.CreateReadWrite(app.ReadConfig(c), app.WriteConfig(c), false)
	if err != nil {
		return err
	}
	defer db.Close()

	orders := repository.NewOrderRepository(db)
	ctx := context.Background()
	for i := 0; i < count; i++ {
		id := uuid.NewString()
		ref := "DH" + strings.ToUpper(id[:6])
		_, err := orders.Create(ctx, &model.Order{
			ID:              id,
			UserID:          "seed-user",
			Code:            "ORD-" + strings.ToUpper(id[:8]),
			TotalAmount:     amount,
			TransferContent: ref,
			PaymentMethod:   model.PaymentMethodBankTransfer,
			PaymentStatus:   model.PaymentStatusPending,
			CreatedAt:       time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		logger.Info("seeded order", "order_id", id, "reference", ref, "amount", amount)
	}
	return nil
}

func positional() []string {
	var out []string
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			out = append(out, v)
		}
	}
	return out
}

func flagInt(prefix string, def int) int {
	for _, v := range os.Args {
		if strings.HasPrefix(v, prefix) {
			if n, err := strconv.Atoi(strings.TrimPrefix(v, prefix)); err == nil {
				return n
			}
		}
	}
	return def
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "path", path, "error", err)
				return ""
			}
			return path
		}
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--dir=") {
			return strings.TrimPrefix(v, "--dir=")
		}
	}
	return "./migrations"
}
