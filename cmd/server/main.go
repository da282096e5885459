package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rcarmo/go-bmp/internal/config"
	"github.com/rcarmo/go-bmp/internal/handler"
	"github.com/rcarmo/go-bmp/internal/logging"
)

const (
	appName    = "BMP Conversion Server"
	appVersion = "v1.0.0"
)

// parsedArgs holds the command-line flags after trimming.
type parsedArgs struct {
	host        string
	port        string
	logLevel    string
	compression string
	strict      bool
	truecolor32 bool
}

func main() {
	args, action := parseFlags()

	switch action {
	case "help":
		showHelp()
		return
	case "version":
		showVersion()
		return
	}

	if err := run(args); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}

func parseFlags() (parsedArgs, string) {
	return parseFlagsWithArgs(os.Args[1:])
}

// parseFlagsWithArgs parses args and returns the action to take instead of
// serving: "help", "version", or "" to serve.
func parseFlagsWithArgs(args []string) (parsedArgs, string) {
	fs := flag.NewFlagSet("bmp-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	hostFlag := fs.String("host", "", "server listen host")
	portFlag := fs.String("port", "", "server listen port")
	logLevelFlag := fs.String("log-level", "", "log level (debug, info, warn, error)")
	compressionFlag := fs.String("compression", "", "default encode compression (none, legacy, rle)")
	strictFlag := fs.Bool("strict", false, "reject truncated pixel data")
	truecolor32Flag := fs.Bool("truecolor32", false, "encode truecolor images as 32-bit")
	helpFlag := fs.Bool("help", false, "show help")
	versionFlag := fs.Bool("version", false, "show version")

	if err := fs.Parse(args); err != nil {
		return parsedArgs{}, "help"
	}

	if *helpFlag {
		return parsedArgs{}, "help"
	}

	if *versionFlag {
		return parsedArgs{}, "version"
	}

	return parsedArgs{
		host:        strings.TrimSpace(*hostFlag),
		port:        strings.TrimSpace(*portFlag),
		logLevel:    strings.TrimSpace(*logLevelFlag),
		compression: strings.TrimSpace(*compressionFlag),
		strict:      *strictFlag,
		truecolor32: *truecolor32Flag,
	}, ""
}

func run(args parsedArgs) error {
	cfg, err := config.LoadWithOverrides(config.LoadOptions{
		Host:        args.host,
		Port:        args.port,
		LogLevel:    args.logLevel,
		Compression: args.compression,
		Strict:      args.strict,
		Truecolor32: args.truecolor32,
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	closeLog, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	server := createServer(cfg)
	logging.Info("starting server on %s (TLS=%t, compression=%s, strict=%t)",
		server.Addr, cfg.Security.EnableTLS, cfg.Codec.Compression, cfg.Codec.Strict)

	return startServer(server, cfg)
}

func createServer(cfg *config.Config) *http.Server {
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/convert", handler.Convert)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	h := applySecurityMiddleware(mux, cfg)
	h = requestLoggingMiddleware(h)

	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func applySecurityMiddleware(next http.Handler, cfg *config.Config) http.Handler {
	if cfg == nil {
		return securityHeadersMiddleware(corsMiddleware(next, nil))
	}

	return securityHeadersMiddleware(corsMiddleware(next, cfg.Security.AllowedOrigins))
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if isOriginAllowed(origin, allowedOrigins, r.Host) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isOriginAllowed(origin string, allowedOrigins []string, host string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range allowedOrigins {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}

	if len(allowedOrigins) == 0 {
		return strings.Contains(origin, host)
	}

	return false
}

func setupLogging(cfg config.LoggingConfig) (func() error, error) {
	closeFn, err := logging.Configure(cfg.Level, cfg.Format, cfg.File)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return closeFn, nil
}

// statusRecorder captures the status code for the request log. WebSocket
// upgrades bypass it so the connection can still be hijacked.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			rec.status = http.StatusSwitchingProtocols
		} else {
			next.ServeHTTP(rec, r)
		}

		logging.Info("%s %s %s %d %s", r.RemoteAddr, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func startServer(server *http.Server, cfg *config.Config) error {
	if server == nil {
		return fmt.Errorf("server is nil")
	}

	var err error
	if cfg != nil && cfg.Security.EnableTLS {
		err = server.ListenAndServeTLS(cfg.Security.TLSCertFile, cfg.Security.TLSKeyFile)
	} else {
		err = server.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

func showHelp() {
	fmt.Println(appName)
	fmt.Println("USAGE: bmp-server [options]")
	fmt.Println("OPTIONS:")
	fmt.Println("  -host               Set server listen host (default 0.0.0.0)")
	fmt.Println("  -port               Set server listen port (default 8080)")
	fmt.Println("  -log-level          Set log level (debug, info, warn, error)")
	fmt.Println("  -compression        Default encode compression (none, legacy, rle)")
	fmt.Println("  -strict             Reject truncated pixel data instead of returning partial images")
	fmt.Println("  -truecolor32        Encode truecolor images as 32-bit")
	fmt.Println("  -version            Show version information")
	fmt.Println("  -help               Show this help message")
	fmt.Println("ENVIRONMENT VARIABLES: SERVER_HOST, SERVER_PORT, LOG_LEVEL, LOG_FORMAT, LOG_FILE,")
	fmt.Println("  BMP_STRICT, BMP_COMPRESSION, BMP_TRUECOLOR32, BMP_MAX_WIDTH, BMP_MAX_HEIGHT, BMP_MAX_PIXELS,")
	fmt.Println("  BMP_MAX_MESSAGE_SIZE, BMP_FRAME_COMPRESSION, ALLOWED_ORIGINS, ENABLE_TLS")
	fmt.Println("EXAMPLES: bmp-server -host 0.0.0.0 -port 8080 -compression rle")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
	fmt.Println("Formats: BMP (BI_RGB, BI_RLE8, BI_RLE4, BI_BITFIELDS)")
}
