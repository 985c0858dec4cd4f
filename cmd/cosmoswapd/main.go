package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Tabellio/cosmoswap/config"
	"github.com/Tabellio/cosmoswap/core"
	"github.com/Tabellio/cosmoswap/observability/logging"
	"github.com/Tabellio/cosmoswap/rpc"
	"github.com/Tabellio/cosmoswap/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	listen := flag.String("listen", "", "listen address override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenAddress = *listen
	}

	logger := logging.Setup("cosmoswapd", cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	nodeCfg := core.NodeConfig{SwapCodeID: cfg.SwapCodeID, FeeBps: cfg.FeeBps}
	if cfg.Admin != "" {
		admin, err := cfg.AdminAddress()
		if err != nil {
			return err
		}
		nodeCfg.Admin = admin
	}
	if cfg.FeeRecipient != "" {
		recipient, err := cfg.FeeRecipientAddress()
		if err != nil {
			return err
		}
		nodeCfg.FeeRecipient = recipient
	}

	node, err := core.NewNode(db, nodeCfg, logger)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	if err := seedGenesis(node, cfg); err != nil {
		return fmt.Errorf("seed genesis: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(node, logger)
	logger.Info("daemon ready", "listen", cfg.ListenAddress, "dataDir", cfg.DataDir)
	return server.Start(ctx, cfg.ListenAddress)
}

// seedGenesis registers configured tokens and balances. Already-registered
// tokens are skipped and balances are overwritten, so restarting with the
// same config is safe.
func seedGenesis(node *core.Node, cfg config.Config) error {
	for _, t := range cfg.Tokens {
		if _, err := node.Token(t.Address); err == nil {
			continue
		}
		if err := node.RegisterToken(t.Address, t.Symbol, t.Decimals); err != nil {
			return fmt.Errorf("register token %s: %w", t.Address, err)
		}
	}
	for _, b := range cfg.Balances {
		addr, err := config.ParseAddress(b.Address)
		if err != nil {
			return err
		}
		amount, err := config.ParseAmount(b.Amount)
		if err != nil {
			return err
		}
		if b.Token != "" {
			if err := node.SetTokenBalance(b.Token, addr, amount); err != nil {
				return fmt.Errorf("seed token balance %s: %w", b.Address, err)
			}
			continue
		}
		if err := node.SetBalance(addr, b.Denom, amount); err != nil {
			return fmt.Errorf("seed balance %s: %w", b.Address, err)
		}
	}
	return nil
}
