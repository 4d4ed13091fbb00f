package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/pkgmill/pkgmill/pkg/builder"
	"github.com/pkgmill/pkgmill/pkg/config"
	"github.com/pkgmill/pkgmill/pkg/coordinator"
	"github.com/pkgmill/pkgmill/pkg/graph"
	"github.com/pkgmill/pkgmill/pkg/index"
	"github.com/pkgmill/pkgmill/pkg/notify"
	"github.com/pkgmill/pkgmill/pkg/recipe"
	"github.com/pkgmill/pkgmill/pkg/runner"
	"github.com/pkgmill/pkgmill/pkg/source"
	"github.com/pkgmill/pkgmill/pkg/state"
	"github.com/pkgmill/pkgmill/pkg/storage"
	"github.com/pkgmill/pkgmill/pkg/updates"
	"github.com/pkgmill/pkgmill/pkg/web"

	_ "github.com/pkgmill/pkgmill/pkg/storage/bc"
)

func main() {
	cfgFile := flag.String("config", "", "path to a config file")
	serve := flag.Bool("serve", false, "serve HTTP and run periodically")
	flag.Parse()

	level := os.Getenv("PKGMILL_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	appLogger := hclog.New(&hclog.LoggerOptions{
		Name:  "pkgmill",
		Level: hclog.LevelFromString(level),
	})
	appLogger.Info("pkgmill is initializing")

	cfg := config.NewConfig()
	if *cfgFile != "" {
		if err := cfg.LoadFromFile(*cfgFile); err != nil {
			appLogger.Error("Error loading config", "error", err)
			return
		}
	}

	storage.SetLogger(appLogger)
	storage.DoCallbacks()
	store, err := storage.Initialize("bitcask")
	if err != nil {
		appLogger.Error("Couldn't initialize storage", "error", err)
		return
	}
	defer store.Close()

	repo := source.New(appLogger)
	repo.Path = cfg.RepoPath
	repo.Url = cfg.RepoURL
	if err := repo.Bootstrap(); err != nil {
		appLogger.Error("Error bootstrapping checkout", "error", err)
		return
	}

	recipes := recipe.NewLoader(appLogger, cfg.RepoPath, cfg.RecipeDir)

	idx := index.NewService(appLogger)
	for name, url := range cfg.IndexURLs {
		if err := idx.LoadIndex(url); err != nil {
			appLogger.Warn("Error loading artifact index", "index", name, "error", err)
		}
	}

	mailer := notify.NewMailer(appLogger, cfg.MailServer, cfg.MailFrom, cfg.MailTo, cfg.AdminTo)

	bld := builder.New(appLogger, cfg.RepoPath, cfg.BuildCommand, cfg.BindMounts, cfg.DefaultBudget(), cfg.ShortBudget(), cfg.ShortBudgetStyles)
	pub := builder.NewExecPublisher(appLogger, cfg.SignCommand)

	c := coordinator.New(cfg,
		coordinator.WithLogger(appLogger),
		coordinator.WithRepo(repo),
		coordinator.WithRecipes(recipes),
		coordinator.WithResolver(graph.NewResolver(appLogger, recipes, idx, mailer)),
		coordinator.WithChecker(updates.NewExecChecker(appLogger, cfg.CheckerCommand, cfg.AckCommand)),
		coordinator.WithRunner(runner.New(appLogger, bld, pub, mailer)),
		coordinator.WithNotifier(mailer),
		coordinator.WithState(state.New(appLogger, store)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Failures are operational events, not invocation errors: the
	// process itself always exits 0.
	if args := flag.Args(); len(args) > 0 {
		c.Run(ctx, args)
		return
	}

	if !*serve {
		c.Run(ctx, nil)
		return
	}

	srv, err := web.New(appLogger)
	if err != nil {
		appLogger.Error("Error initializing webserver", "error", err)
		return
	}
	srv.Mount("/api/run", c.HTTPEntry())
	go srv.Serve(cfg.Bind)

	ticker := time.NewTicker(time.Duration(cfg.RunIntervalMin) * time.Minute)
	defer ticker.Stop()

	c.Run(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			appLogger.Info("Shutting down")
			appLogger.Info("Goodbye!")
			return
		case pkgs := <-c.Triggers():
			c.Run(ctx, pkgs)
		case <-ticker.C:
			c.Run(ctx, nil)
		}
	}
}
