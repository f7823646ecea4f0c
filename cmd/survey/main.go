package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/soaringjerry/truthpref/internal/bank"
	"github.com/soaringjerry/truthpref/internal/cli"
	"github.com/soaringjerry/truthpref/internal/client"
	"github.com/soaringjerry/truthpref/internal/logger"
	"github.com/soaringjerry/truthpref/internal/models"
	"github.com/soaringjerry/truthpref/internal/services"
	"github.com/soaringjerry/truthpref/internal/storage"
	"github.com/soaringjerry/truthpref/internal/utils"
)

func main() {
	var (
		server      = flag.String("server", utils.SafeEnv("TRUTHPREF_SERVER", "http://localhost:3001"), "survey backend base URL")
		stateDir    = flag.String("state-dir", utils.SafeEnv("TRUTHPREF_STATE_DIR", defaultStateDir()), "directory holding the saved attempt")
		redisAddr   = flag.String("redis", utils.SafeEnv("TRUTHPREF_REDIS_ADDR", ""), "keep the saved attempt in Redis at this address instead of a file")
		redisPrefix = flag.String("redis-prefix", utils.SafeEnv("TRUTHPREF_REDIS_PREFIX", "truthpref:"), "Redis key prefix")
		bankPath    = flag.String("bank", "", "question bank YAML file (defaults to the embedded bank)")
		reset       = flag.Bool("reset", false, "discard any saved attempt and start over")
		logMode     = flag.String("log", utils.SafeEnv("TRUTHPREF_LOG_MODE", "prod"), "log mode: prod or dev; logs go to survey.log in the state dir")
	)
	flag.Parse()

	if err := run(*server, *stateDir, *redisAddr, *redisPrefix, *bankPath, *reset, *logMode); err != nil {
		fmt.Fprintf(os.Stderr, "survey: %v\n", err)
		os.Exit(1)
	}
}

func run(server, stateDir, redisAddr, redisPrefix, bankPath string, reset bool, logMode string) error {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	log, err := logger.NewWithOutput(logMode, filepath.Join(stateDir, "survey.log"))
	if err != nil {
		return err
	}
	defer log.Sync()

	questions, err := loadBank(bankPath)
	if err != nil {
		return err
	}

	var store services.StateStorage
	if redisAddr != "" {
		rs, err := storage.NewRedisStorage(storage.RedisOptions{Addr: redisAddr, Prefix: redisPrefix})
		if err != nil {
			return err
		}
		defer rs.Close()
		store = rs
	} else {
		fs, err := storage.NewFileStorage(stateDir)
		if err != nil {
			return err
		}
		store = fs
	}
	if reset {
		if err := store.Clear(); err != nil {
			return fmt.Errorf("reset saved attempt: %w", err)
		}
	}

	ctl, err := services.NewFlowController(questions, store, client.NewHTTPSubmitter(server), services.WithLogger(log))
	if err != nil {
		return err
	}
	if ctl.Resumed() {
		fmt.Println("Resuming your saved progress.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cli.NewRunner(ctl, os.Stdin, os.Stdout, log).Run(ctx)
}

func loadBank(path string) ([]models.QuestionRecord, error) {
	if path == "" {
		return bank.Default()
	}
	return bank.Load(path)
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "truthpref")
	}
	return ".truthpref"
}
