package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"linkcrawler/pkg/config"
	"linkcrawler/pkg/crawler"
	"linkcrawler/pkg/seed"
	"linkcrawler/pkg/storage"
)

const version = "0.5.2"

// multiFlag collects a repeatable string flag
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ", ")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	// --- Early Initialization & Flags ---
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	var headerFlags, cookieFlags, includeFlags, excludeFlags multiFlag

	versionFlag := flag.Bool("version", false, "Show version")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	configFileFlag := flag.String("config", "", "Path to YAML config file (built-in defaults when empty)")
	seedFlag := flag.String("seed", "", "Crawl seed websites, e.g. 'url1|user2:pwd2@url2' (required)")
	modeFlag := flag.String("mode", crawler.ModeBFS, "Traversal mode: BFS or DFS")
	maxDepthFlag := flag.Int("max-depth", 10, "Maximum crawl depth from the seeds")
	workersFlag := flag.Int("workers", 20, "Maximum concurrent workers (BFS mode)")
	rpmLimitFlag := flag.Int("rpm-limit", 0, "Requests-per-minute limit, 0 disables")
	flag.Var(&headerFlags, "header", "Extra request header, e.g. 'X-Test:1' (repeatable)")
	flag.Var(&cookieFlags, "cookie", "Request cookie, e.g. 'lang=en' (repeatable)")
	flag.Var(&includeFlags, "include", "Url snippet to crawl recursively (repeatable, reserved)")
	flag.Var(&excludeFlags, "exclude", "Url snippet to skip (repeatable, reserved)")
	visitedFileFlag := flag.String("visited-file", "", "Write visited url->fingerprint mapping to this YAML file")
	archiveDirFlag := flag.String("archive-dir", "", "BadgerDB directory for the persistent visited archive (empty to disable)")
	writeArchiveLogFlag := flag.String("write-archive-log", "", "Write all archived urls to this file after the crawl")
	notificationFileFlag := flag.String("notification-file", "", "Write the HTML run summary to this file")
	detailLogURLFlag := flag.String("detail-log-url", "", "Link to the detailed run log, embedded in the notification body")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version)
		os.Exit(0)
	}

	// --- Logger Configuration ---
	level, err := logrus.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}

	// --- Load Application Configuration ---
	cfg := config.Default()
	if *configFileFlag != "" {
		log.Infof("Loading configuration from %s", *configFileFlag)
		cfg, err = config.Load(*configFileFlag)
		if err != nil {
			log.Fatalf("Config error: %v", err)
		}
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// --- Command Line Inputs ---
	if *seedFlag == "" {
		log.Fatal("Error: -seed flag is required.")
	}
	headers, err := seed.ParseKeyValues(headerFlags)
	if err != nil {
		log.Fatalf("Invalid -header flag: %v", err)
	}
	cookies, err := seed.ParseKeyValues(cookieFlags)
	if err != nil {
		log.Fatalf("Invalid -cookie flag: %v", err)
	}

	params := crawler.Params{
		Mode:     *modeFlag,
		MaxDepth: *maxDepthFlag,
		Workers:  *workersFlag,
		RPMLimit: *rpmLimitFlag,
		Headers:  headers,
		Cookies:  cookies,
		Include:  includeFlags,
		Exclude:  excludeFlags,
	}

	// --- Context & Signal Handling ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()
		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	// --- Visited Archive (Optional) ---
	var archive *storage.Archive
	if *archiveDirFlag != "" {
		archive, err = storage.Open(*archiveDirFlag, log)
		if err != nil {
			log.Fatalf("Failed to open visited archive: %v", err)
		}
		defer archive.Close()
		go archive.RunGC(ctx, 10*time.Minute)
	}

	// --- Crawler ---
	c, err := crawler.New(cfg, params, *seedFlag, archive, log)
	if err != nil {
		log.Fatalf("Failed to initialize crawler: %v", err)
	}

	runErr := c.Run(ctx)

	// --- Post-Crawl Actions ---
	c.Report()

	if *visitedFileFlag != "" {
		if err := storage.SaveVisitedYAML(*visitedFileFlag, c.VisitedURLs()); err != nil {
			log.Errorf("Error saving visited urls: %v", err)
		} else {
			log.Infof("Saved visited urls in YAML file: %s", *visitedFileFlag)
		}
	}

	if *notificationFileFlag != "" {
		body := c.NotificationBody(*detailLogURLFlag)
		if err := os.WriteFile(*notificationFileFlag, []byte(body), 0o644); err != nil {
			log.Errorf("Error writing notification body: %v", err)
		} else {
			log.Infof("Wrote notification body to %s", *notificationFileFlag)
		}
	}

	if archive != nil && *writeArchiveLogFlag != "" {
		if ctx.Err() != nil {
			log.Warnf("Skipping archive log due to cancelled crawl: %v", ctx.Err())
		} else if err := archive.WriteVisitedLog(*writeArchiveLogFlag); err != nil {
			log.Errorf("Error writing archive log: %v", err)
		}
	}

	// --- Exit ---
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			log.Warn("Crawl cancelled gracefully.")
			os.Exit(0)
		}
		log.Errorf("Crawl finished with error: %v", runErr)
		os.Exit(1)
	}
}
