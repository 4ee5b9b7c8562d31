// cmd/evaluator/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/SyedDaiam9101/model-evaluator/internal/config"
	"github.com/SyedDaiam9101/model-evaluator/internal/features"
	"github.com/SyedDaiam9101/model-evaluator/internal/inference"
	"github.com/SyedDaiam9101/model-evaluator/internal/inference/onnx"
	"github.com/SyedDaiam9101/model-evaluator/internal/inference/tflite"
	"github.com/SyedDaiam9101/model-evaluator/internal/logger"
	"github.com/SyedDaiam9101/model-evaluator/internal/metrics"
	"github.com/SyedDaiam9101/model-evaluator/internal/middleware"
	"github.com/SyedDaiam9101/model-evaluator/internal/pipeline"
	"github.com/SyedDaiam9101/model-evaluator/internal/predict"
	"github.com/SyedDaiam9101/model-evaluator/internal/runner"
	"github.com/SyedDaiam9101/model-evaluator/internal/tfjs"
)

const serviceName = "model-evaluator"

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to config file (optional)")
	input := flag.String("input", "", "Arrow IPC stream to read, - for stdin (default: -)")
	output := flag.String("output", "", "File to write predictions to, - for stdout (default: -)")
	runtime := flag.String("runtime", "", "Model runtime: tflite, tfjs or onnx (default: tflite)")
	metricsPort := flag.Int("metrics", -1, "Prometheus metrics port, 0 disables (default: 9100)")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Override with flags if provided
	if *input != "" {
		cfg.Input = *input
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *runtime != "" {
		cfg.Runtime = *runtime
	}
	if *metricsPort >= 0 {
		cfg.MetricsPort = *metricsPort
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.Init(cfg.LogLevel, cfg.LogJSON, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Str("code", middleware.ErrorCode(err)).Msg("evaluation failed")
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadWithConfigFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("runtime", cfg.Runtime).
		Int("models", len(cfg.Eval.ModelSpecs)).
		Int("metrics_port", cfg.MetricsPort).
		Bool("otel", cfg.OTELEnabled).
		Msgf("Starting %s", serviceName)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry tracer
	if cfg.OTELEnabled {
		tracerShutdown, err := initTracer(cfg.OTELEndpoint, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize tracer")
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = tracerShutdown(sctx)
			}()
		}
	}

	// Start HTTP server for metrics and health checks
	var healthy atomic.Bool
	if cfg.MetricsPort > 0 {
		httpServer := startHTTPServer(cfg.MetricsPort, &healthy, log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(sctx)
		}()
	}

	stage, closeStage, err := buildStage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStage(); err != nil {
			log.Warn().Err(err).Msg("failed to release models")
		}
	}()

	p := pipeline.New(
		[]pipeline.Extractor{features.New(log), stage},
		middleware.BatchID(),
		middleware.Metrics(),
		middleware.Tracing(nil),
	)

	in, closeIn, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}

	healthy.Store(true)
	metrics.SetHealthy()
	log.Info().Strs("stages", p.Stages()).Msgf("%s is ready", serviceName)

	stats, err := runner.New(p, log, nil).Run(ctx, in, out)
	healthy.Store(false)
	metrics.SetUnhealthy()
	if cerr := closeOut(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	log.Info().Int("batches", stats.Batches).Int("rows", stats.Rows).Msg("evaluation complete")
	return nil
}

// buildStage loads the models of the configured runtime once and returns the
// prediction stage with a function releasing them.
func buildStage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (pipeline.Extractor, func() error, error) {
	switch cfg.Runtime {
	case config.RuntimeTFLite:
		interpreters, err := predict.Load(cfg.Eval, func(spec config.ModelSpec) (inference.Interpreter, error) {
			i, err := tflite.Load(spec.Path, cfg.TFLite.NumThreads)
			if err != nil {
				return nil, err
			}
			return i, nil
		})
		if err != nil {
			return nil, nil, err
		}
		e := predict.NewTFLite(log, cfg.Eval, interpreters)
		return e, e.Close, nil

	case config.RuntimeONNX:
		if err := onnx.Init(cfg.ONNX.SharedLibrary); err != nil {
			return nil, nil, err
		}
		sessions, err := predict.Load(cfg.Eval, func(spec config.ModelSpec) (inference.Session, error) {
			s, err := onnx.New(spec)
			if err != nil {
				return nil, err
			}
			return s, nil
		})
		if err != nil {
			_ = onnx.Destroy()
			return nil, nil, err
		}
		e := predict.NewONNX(log, cfg.Eval, sessions)
		return e, func() error { return errors.Join(e.Close(), onnx.Destroy()) }, nil

	case config.RuntimeTFJS:
		fs := afero.NewOsFs()
		scratch, err := tfjs.NewScratch(fs, cfg.TFJS.ScratchDir)
		if err != nil {
			return nil, nil, err
		}
		models, err := tfjs.Setup(ctx, fs, fs, scratch, cfg.Eval)
		if err != nil {
			_ = fs.RemoveAll(scratch)
			return nil, nil, err
		}
		log.Info().Str("scratch", scratch).Int("models", len(models)).Msg("copied TFJS models to local storage")
		client := tfjs.NewClient(fs, tfjs.CommandExecutor{}, cfg.TFJS.Binary, log)
		e := tfjs.New(log, cfg.Eval, models, client)
		return e, func() error { return fs.RemoveAll(scratch) }, nil
	}
	return nil, nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func startHTTPServer(port int, healthy *atomic.Bool, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Service Unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening (metrics, health)")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return server
}

func initTracer(endpoint string, log zerolog.Logger) (func(context.Context) error, error) {
	// Spans go to stderr; stdout may carry the predictions.
	if endpoint != "" {
		log.Info().Str("endpoint", endpoint).Msg("using stdout trace exporter, OTLP endpoint ignored")
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Create resource with service information
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
