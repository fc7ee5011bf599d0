package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nightgrove/internal/persistence/indexdb"
	"nightgrove/internal/sim/catalogs"
	"nightgrove/internal/sim/session"
	"nightgrove/internal/sim/tuning"
	"nightgrove/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		modelsDir  = flag.String("models", "", "asset root to scan for <category>/*.glb (default: <configs>/models.json)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		schemaDir  = flag.String("schemas", "", "validate HELLO/INPUT against the JSON schemas in this directory (optional)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite session index")
		noWatch    = flag.Bool("no_watch", false, "do not reload tuning.yaml on change")

		maxSessions   = flag.Int("max_sessions", 64, "max concurrent sessions (0 = unlimited)")
		snapshotEvery = flag.Uint64("snapshot_every", 0, "snapshot every N ticks (0 = only the tick 0 snapshot)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	var (
		cats *catalogs.Catalog
		err  error
	)
	if strings.TrimSpace(*modelsDir) != "" {
		cats, err = catalogs.ScanDir(*modelsDir)
	} else {
		cats, err = catalogs.Load(*configDir)
	}
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	var sessionIndex session.Index
	if idx != nil {
		defer idx.Close()
		sessionIndex = idx
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	wsSrv, err := ws.NewServer(ws.Config{
		Tuning:             tune,
		Catalog:            cats,
		Logger:             logger,
		Index:              sessionIndex,
		DataDir:            *dataDir,
		SnapshotEveryTicks: *snapshotEvery,
		MaxSessions:        *maxSessions,
		SchemaDir:          strings.TrimSpace(*schemaDir),
	})
	if err != nil {
		logger.Fatalf("ws server: %v", err)
	}
	defer wsSrv.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if !*noWatch {
		watcher, err := tuning.NewWatcher(tp)
		if err != nil {
			logger.Fatalf("watch tuning: %v", err)
		}
		defer watcher.Close()
		go watchTuning(ctx, watcher, wsSrv, idx, cats, logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP nightgrove_sessions_active Sessions currently ticking.\n")
		fmt.Fprintf(rw, "# TYPE nightgrove_sessions_active gauge\n")
		fmt.Fprintf(rw, "nightgrove_sessions_active %d\n", wsSrv.ActiveSessions())

		writeIndexMetrics(rw, idx)
	})

	enableAdminHTTP := envBool("NG_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("NG_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			t := wsSrv.Tuning()
			resp := struct {
				ActiveSessions int           `json:"active_sessions"`
				TuningDigest   string        `json:"tuning_digest"`
				ModelsDigest   string        `json:"models_digest"`
				Index          indexdb.Stats `json:"index"`
			}{
				ActiveSessions: wsSrv.ActiveSessions(),
				TuningDigest:   t.Digest(),
				ModelsDigest:   cats.Digest,
				Index:          idx.Stats(),
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/sessions/", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusServiceUnavailable)
				return
			}
			id := strings.TrimPrefix(r.URL.Path, "/admin/v1/sessions/")
			row, ok, err := idx.LookupSession(r.Context(), id)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			if !ok {
				http.NotFound(rw, r)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(row)
		})
	} else {
		logger.Printf("admin endpoints disabled (NG_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tuning=%s models=%s)", *addr, tune.Digest()[:12], cats.Digest[:12])
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func watchTuning(ctx context.Context, w *tuning.Watcher, srv *ws.Server, idx *indexdb.SQLiteIndex, cats *catalogs.Catalog, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-w.Updates:
			if !ok {
				return
			}
			if err := srv.SetTuning(t); err != nil {
				logger.Printf("tuning reload rejected: %v", err)
				continue
			}
			logger.Printf("tuning reloaded digest=%s (applies to new sessions)", t.Digest()[:12])
			if idx != nil {
				if err := idx.UpsertCatalogs(cats, t); err != nil {
					logger.Printf("index backend: upsert catalogs: %v", err)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Printf("tuning reload: %v", err)
		}
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP nightgrove_index_queue_depth Current index queue depth.\n")
	fmt.Fprintf(rw, "# TYPE nightgrove_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "nightgrove_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP nightgrove_index_queue_capacity Index queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE nightgrove_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "nightgrove_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP nightgrove_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE nightgrove_index_dropped_total counter\n")
	fmt.Fprintf(rw, "nightgrove_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "nightgrove_index_dropped_total{kind=%q} %d\n", "session", s.DropSessionTotal)

	fmt.Fprintf(rw, "# HELP nightgrove_index_write_errors_total Failed index transactions.\n")
	fmt.Fprintf(rw, "# TYPE nightgrove_index_write_errors_total counter\n")
	fmt.Fprintf(rw, "nightgrove_index_write_errors_total %d\n", s.WriteErrTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
