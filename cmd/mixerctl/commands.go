package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli"

	"privacymixer/internal/models"
	"privacymixer/internal/privacy"
	"privacymixer/internal/relayer"
	"privacymixer/internal/repository"
	"privacymixer/pkg/config"
)

func printJson(w io.Writer, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "marshal failed: %s\n", err)
		return
	}
	fmt.Fprintf(w, "%s\n", b)
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := config.InitLogger(cfg.LogLevel, "text"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScore(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	amount, err := decimal.NewFromString(strings.TrimSpace(c.String("amount")))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", c.String("amount"), err)
	}
	currency, ok := models.ParseCurrency(c.String("currency"))
	if !ok {
		return fmt.Errorf("unsupported currency: %q", c.String("currency"))
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	calc := privacy.Calculator{StablecoinRate: cfg.StablecoinRate, HighValueRate: cfg.HighValueRate}

	score := calc.Score(privacy.ScoreInput{
		DepositAmount:       amount.InexactFloat64(),
		LockDurationSeconds: c.Int64("lock"),
		Currency:            currency,
	})

	if m.verbose {
		fmt.Fprintf(m.e, "base units: %v\n", calc.ToBaseUnits(amount.InexactFloat64(), currency))
	}
	printJson(m.w, struct {
		Amount   string          `json:"amount"`
		Currency models.Currency `json:"currency"`
		Lock     int64           `json:"lock_duration_seconds"`
		Score    int             `json:"privacy_score"`
		Label    string          `json:"label"`
	}{
		Amount:   amount.String(),
		Currency: currency,
		Lock:     c.Int64("lock"),
		Score:    score,
		Label:    privacy.Label(score),
	})
	return nil
}

func runQuote(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	balance, err := decimal.NewFromString(strings.TrimSpace(c.String("balance")))
	if err != nil {
		return fmt.Errorf("invalid balance %q: %w", c.String("balance"), err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	est := relayer.Estimator{
		GasLimit:      cfg.Relayer.GasLimit,
		GasBuffer:     cfg.Relayer.GasBuffer,
		GasPriceGwei:  cfg.Relayer.GasPriceGwei,
		RelayerMarkup: cfg.Relayer.Markup,
	}

	printJson(m.w, est.Quote(balance))
	return nil
}

func runMigrateUp(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.DB.Enabled() {
		return errors.New("DB_HOST is not set")
	}
	db, err := config.InitDB(cfg.DB)
	if err != nil {
		return err
	}
	return config.ExecuteMigrations(db)
}

func runMigrateDown(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.DB.Enabled() {
		return errors.New("DB_HOST is not set")
	}
	db, err := config.InitDB(cfg.DB)
	if err != nil {
		return err
	}
	return config.RollbackMigration(db)
}

func runSnapshots(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	currency, ok := models.ParseCurrency(c.String("currency"))
	if !ok {
		return fmt.Errorf("unsupported currency: %q", c.String("currency"))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.DB.Enabled() {
		return errors.New("DB_HOST is not set")
	}
	db, err := config.InitDB(cfg.DB)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	rows, err := repository.New(db).ListSnapshots(context.Background(), currency, to.Add(-c.Duration("since")), to)
	if err != nil {
		return err
	}
	if m.verbose {
		fmt.Fprintf(m.e, "%d snapshots\n", len(rows))
	}
	printJson(m.w, rows)
	return nil
}

func runDeposit(c *cli.Context) error {
	cmd := models.Command{
		Action:              models.ActionDepositObserved,
		OwnerAddress:        c.String("owner"),
		Currency:            c.String("currency"),
		Amount:              c.String("amount"),
		TransactionHash:     c.String("tx"),
		LockDurationSeconds: c.Int64("lock"),
	}
	if cmd.OwnerAddress == "" || cmd.Amount == "" || cmd.TransactionHash == "" {
		return errors.New("owner, amount and tx are required")
	}
	return sendCommand(c, cmd)
}

func runWithdraw(c *cli.Context) error {
	cmd := models.Command{
		Action:          models.ActionWithdrawalRequested,
		DepositID:       c.String("deposit"),
		WithdrawAddress: c.String("to"),
		UseRelayer:      c.Bool("relayer"),
	}
	if cmd.DepositID == "" || cmd.WithdrawAddress == "" {
		return errors.New("deposit and to are required")
	}
	return sendCommand(c, cmd)
}

func runResetDemo(c *cli.Context) error {
	return sendCommand(c, models.Command{Action: models.ActionResetDemo})
}

func sendCommand(c *cli.Context, cmd models.Command) error {
	m := c.App.Metadata["config"].(*metadata)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.RabbitMQ.Enabled() {
		return errors.New("RABBITMQ_HOST is not set")
	}

	conn, err := config.InitRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer conn.Close()

	publisher, err := config.NewPublisher(conn)
	if err != nil {
		return err
	}
	defer publisher.Close()

	if err := publisher.Publish(cfg.CommandQueue, cmd); err != nil {
		return err
	}
	if m.verbose {
		fmt.Fprintf(m.e, "queued %s on %s\n", cmd.Action, cfg.CommandQueue)
	}
	printJson(m.w, cmd)
	return nil
}

func runPurge(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.RabbitMQ.Enabled() {
		return errors.New("RABBITMQ_HOST is not set")
	}

	conn, err := config.InitRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := config.PurgeQueue(conn, cfg.CommandQueue)
	if err != nil {
		return err
	}
	printJson(m.w, struct {
		Queue  string `json:"queue"`
		Purged int    `json:"purged"`
	}{cfg.CommandQueue, n})
	return nil
}
