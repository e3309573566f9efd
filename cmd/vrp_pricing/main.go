package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vrppricing/internal/api"
	"vrppricing/internal/buildinfo"
	"vrppricing/internal/config"
	"vrppricing/internal/graph"
	"vrppricing/internal/instancefile"
	"vrppricing/internal/metrics"
	"vrppricing/internal/model"
	"vrppricing/internal/pricing"
	"vrppricing/internal/worker"
)

func usage() {
	fmt.Fprintf(os.Stderr, `vrp_pricing %s

Usage:
  vrp_pricing solve [-o out.json] <input.json|->
  vrp_pricing worker [-config file.yaml]
  vrp_pricing serve  [-config file.yaml]

solve   prices one instance from a JSON document and exits
worker  speaks line-delimited JSON on stdin/stdout for a master process
serve   runs the HTTP API
`, buildinfo.Version)
	os.Exit(2)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "solve":
		runSolve(os.Args[2:])
	case "worker":
		runWorker(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	default:
		usage()
	}
}

func signalCtx() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

func runSolve(args []string) {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	out := fs.String("o", "-", "output file, - for stdout")
	customersCSV := fs.String("customers", "", "CSV file overriding the document's customers")
	warehousesCSV := fs.String("warehouses", "", "CSV file overriding the document's warehouses")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
	}

	doc, err := instancefile.Load(fs.Arg(0))
	if err != nil {
		log.Fatalf("read input: %v", err)
	}
	if *customersCSV != "" {
		if doc.Customers, err = instancefile.LoadCustomersCSV(*customersCSV); err != nil {
			log.Fatalf("read customers: %v", err)
		}
	}
	if *warehousesCSV != "" {
		if doc.Warehouses, err = instancefile.LoadWarehousesCSV(*warehousesCSV); err != nil {
			log.Fatalf("read warehouses: %v", err)
		}
	}
	cfg := pricing.DefaultConfig()
	if doc.Options != nil && doc.Options.MaxNeighbors > 0 {
		cfg.MaxNeighbors = doc.Options.MaxNeighbors
	}
	sv, err := pricing.New(&doc.Instance, cfg)
	if err != nil {
		if errors.Is(err, graph.ErrInvalidInstance) {
			log.Fatalf("invalid instance: %v", err)
		}
		log.Fatalf("build solver: %v", err)
	}

	routes, stats, err := sv.Price(signalCtx(), doc.DualValues, doc.Options)
	resp := model.SolveResponse{Routes: routes, Stats: &stats}
	switch {
	case err == nil:
	case errors.Is(err, pricing.ErrNoImprovingColumn):
		resp.NoImprovingColumn = true
	default:
		log.Fatalf("pricing failed: %v", err)
	}

	w := os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("open output: %v", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		log.Fatalf("write output: %v", err)
	}
}

func runWorker(args []string) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	metricsAddr := fs.String("metrics", os.Getenv("METRICS_ADDR"), "address for /metrics, empty to disable")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	metrics.RegisterDefault()
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			log.Printf("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	r := worker.New(os.Stdin, os.Stdout, cfg.Solver.Pricing())
	if err := r.Run(signalCtx()); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker: %v", err)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Instances & pricing
	mux.HandleFunc("/v1/instances", srv.InstancesHandler)
	mux.HandleFunc("/v1/price", srv.PriceHandler)

	// Async jobs
	mux.HandleFunc("/v1/jobs/", srv.JobsHandler) // includes /stream
	mux.HandleFunc("/v1/ws/jobs", srv.WSJobsHandler)

	// Health
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.HandleFunc("/debug/info", srv.DebugInfoHandler)

	// Admin
	mux.HandleFunc("/v1/admin/runs", srv.AdminRunsHandler)
	mux.HandleFunc("/v1/admin/columns", srv.AdminColumnsHandler)
	mux.HandleFunc("/v1/admin/callbacks", srv.AdminCallbacksHandler)

	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Instrument(srv.RateLimit(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.NewCallbackWorker().Start()

	log.Printf("pricing API listening on %s", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
