package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mcplucene/mcplucene/internal/analysis"
	"github.com/mcplucene/mcplucene/internal/config"
	"github.com/mcplucene/mcplucene/internal/index"
	"github.com/mcplucene/mcplucene/internal/logging"
	"github.com/mcplucene/mcplucene/internal/mcp"
	"github.com/mcplucene/mcplucene/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "mcplucene",
		Usage:   "Full-text search and indexing server for personal document collections, exposed as MCP tools",
		Version: version.FullInfo(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "index-path",
				Usage: "Index directory (default ~/.mcplucene/index)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Log file path (default ~/.mcplucene/mcplucene.log)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Keep watching the crawl roots after the initial pass",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
			},
			{
				Name:  "crawl",
				Usage: "Run one crawl and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Re-extract every file regardless of timestamps; files with an unchanged content hash are not rewritten",
					},
				},
				Action: crawlCommand,
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(c *cli.Context) error {
					fmt.Println(version.FullInfo())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, sets up logging and analyzers, and
// opens the index service. Failures here are fatal by design.
func bootstrap(c *cli.Context) (*config.Config, *index.Service, *zap.Logger, error) {
	log, err := logging.New(c.String("log-file"), c.Bool("debug"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log file: %w", err)
	}

	cfg := config.Default()
	if path := c.String("index-path"); path != "" {
		cfg.Index.Path = path
	}
	cfg.Crawler.WatchMode = c.Bool("watch")

	rtPath, err := config.DefaultRuntimePath()
	if err != nil {
		return nil, nil, nil, err
	}
	rc, err := config.LoadRuntime(rtPath)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.Runtime = rc

	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := analysis.Setup(cfg.Analysis.LemmaLanguages, cfg.Analysis.LemmaCacheSize); err != nil {
		return nil, nil, nil, err
	}

	svc, err := index.Open(cfg, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open index: %w", err)
	}

	log.Info("index opened",
		zap.String("path", cfg.Index.Path),
		zap.Bool("schemaUpgradeRequired", svc.SchemaUpgradeRequired()))
	return cfg, svc, log, nil
}

func serveCommand(c *cli.Context) error {
	cfg, svc, log, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := mcp.NewServer(cfg, svc, log)
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("mcp server starting on stdio", zap.String("version", version.Version))
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func crawlCommand(c *cli.Context) error {
	cfg, svc, log, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := mcp.NewServer(cfg, svc, log)
	defer server.Close()

	full := c.Bool("full") || svc.SchemaUpgradeRequired()
	crawler := server.Crawler()
	if err := crawler.Start(full); err != nil {
		return err
	}
	if !crawler.WaitIdle(24 * time.Hour) {
		return fmt.Errorf("crawl did not finish")
	}

	snap := crawler.Stats()
	fmt.Fprintf(os.Stderr, "crawl finished: found=%d indexed=%d skipped=%d deleted=%d failed=%d\n",
		snap.FilesFound, snap.FilesIndexed, snap.FilesSkipped, snap.FilesDeleted, snap.FilesFailed)
	return nil
}
