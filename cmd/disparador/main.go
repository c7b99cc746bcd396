package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/RenanMaestrya/disparador-outbound/internal/app"
	"github.com/RenanMaestrya/disparador-outbound/internal/auth"
	"github.com/RenanMaestrya/disparador-outbound/internal/config"
	"github.com/RenanMaestrya/disparador-outbound/internal/tracking"
	"github.com/RenanMaestrya/disparador-outbound/pkg/logx"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath      string
		clearAuth    bool
		clearHistory bool
		showHistory  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&clearAuth, "clear-auth", false, "wipe stored session credentials and exit")
	flag.BoolVar(&clearHistory, "clear-history", false, "wipe the send history and exit")
	flag.BoolVar(&showHistory, "show-history", false, "print recent sends and exit")
	flag.Parse()

	if clearAuth || clearHistory || showHistory {
		return maintenance(cfgPath, clearAuth, clearHistory, showHistory)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if errors.Is(err, app.ErrRosterCreated) {
		fmt.Println("planilha de exemplo criada; preencha os contatos e rode novamente")
		return 0
	}
	if err != nil {
		fmt.Println("fatal:", err)
		return 1
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		a.Stop()
		return 1
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.Stop()
	return 0
}

// maintenance handles the one-shot flags without bringing the transport or
// the dispatch engine up.
func maintenance(cfgPath string, clearAuth, clearHistory, showHistory bool) int {
	log := logx.NewConsole("INFO")

	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		fmt.Println("fatal:", err)
		return 1
	}

	if clearAuth {
		store, err := auth.NewStore(cfg.Auth.Dir, log)
		if err == nil {
			err = store.Clear()
		}
		if err != nil {
			fmt.Println("clear-auth:", err)
			return 1
		}
		fmt.Println("credenciais removidas; novo pareamento será necessário")
	}

	if clearHistory || showHistory {
		store, err := tracking.Open(tracking.Config{Path: cfg.Storage.Path}, log)
		if err != nil {
			fmt.Println("fatal:", err)
			return 1
		}
		defer store.Close()
		ctx := context.Background()

		if clearHistory {
			if err := store.ClearAll(ctx); err != nil {
				fmt.Println("clear-history:", err)
				return 1
			}
			fmt.Println("histórico de envios limpo")
		}

		if showHistory {
			if err := printHistory(ctx, store); err != nil {
				fmt.Println("show-history:", err)
				return 1
			}
		}
	}
	return 0
}

func printHistory(ctx context.Context, store tracking.Store) error {
	stats, err := store.Stats(ctx, tracking.DefaultWindow)
	if err != nil {
		return err
	}
	recs, err := store.Recent(ctx, 50)
	if err != nil {
		return err
	}

	fmt.Printf("envios nas últimas 24h: %d\n", stats.CountWithinWindow)
	if !stats.LastSentAt.IsZero() {
		fmt.Printf("último envio: %s\n", stats.LastSentAt.Format(time.RFC3339))
	}
	if len(recs) == 0 {
		fmt.Println("histórico vazio")
		return nil
	}
	fmt.Println()
	for _, r := range recs {
		fmt.Printf("%s  %-20s %-22s %s\n",
			r.SentAt.Format("2006-01-02 15:04"), r.Name, r.Recipient, r.Excerpt)
	}
	return nil
}
