package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"photo-ingest/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	StorageDir  string
	DatabaseDir string
	CacheDir    string
	Port        string

	PollInterval        time.Duration
	EnableLoadBalancing bool
	RebalanceInterval   time.Duration
	StatsReportInterval time.Duration

	GeocodeBaseURL     string
	GeocodeMinInterval time.Duration

	ExiftoolPath string

	PublicBaseURL   string
	LogHealthChecks bool

	// Derived paths
	QueueDBPath   string
	CatalogDBPath string
	ExifWorkDir   string

	// Feature flags based on tool and directory availability
	GeocodingEnabled bool
	ExiftoolEnabled  bool
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	storageDir := getEnv("STORAGE_DIR", "/storage")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	cacheDir := getEnv("CACHE_DIR", "/cache")
	port := getEnv("PORT", "8080")
	publicBaseURL := getEnv("PUBLIC_BASE_URL", "")
	pollInterval := getEnvDuration("POLL_INTERVAL", time.Second)
	enableLoadBalancing := getEnvBool("LOAD_BALANCING", true)
	rebalanceInterval := getEnvDuration("REBALANCE_INTERVAL", 5*time.Minute)
	statsReportInterval := getEnvDuration("STATS_REPORT_INTERVAL", 10*time.Minute)
	geocodingEnabled := getEnvBool("GEOCODING_ENABLED", true)
	geocodeBaseURL := getEnv("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org")
	geocodeMinInterval := getEnvDuration("GEOCODE_MIN_INTERVAL", time.Second)
	exiftoolPath := getEnv("EXIFTOOL_PATH", "exiftool")
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)

	logging.Info("  STORAGE_DIR:           %s", storageDir)
	logging.Info("  DATABASE_DIR:          %s", databaseDir)
	logging.Info("  CACHE_DIR:             %s", cacheDir)
	logging.Info("  PORT:                  %s", port)
	logging.Info("  POLL_INTERVAL:         %s", pollInterval)
	logging.Info("  LOAD_BALANCING:        %v", enableLoadBalancing)
	logging.Info("  REBALANCE_INTERVAL:    %s", rebalanceInterval)
	logging.Info("  STATS_REPORT_INTERVAL: %s", statsReportInterval)
	logging.Info("  GEOCODING_ENABLED:     %v", geocodingEnabled)
	logging.Info("  GEOCODE_BASE_URL:      %s", geocodeBaseURL)
	logging.Info("  GEOCODE_MIN_INTERVAL:  %s", geocodeMinInterval)
	logging.Info("  EXIFTOOL_PATH:         %s", exiftoolPath)
	logging.Info("  LOG_HEALTH_CHECKS:     %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())

	// Resolve paths
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	storageDir, err := filepath.Abs(storageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory path: %w", err)
	}
	logging.Info("  Storage directory (absolute): %s", storageDir)

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	cacheDir, err = filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	logging.Info("  Cache directory (absolute): %s", cacheDir)

	config := &Config{
		StorageDir:          storageDir,
		DatabaseDir:         databaseDir,
		CacheDir:            cacheDir,
		Port:                port,
		PublicBaseURL:       publicBaseURL,
		PollInterval:        pollInterval,
		EnableLoadBalancing: enableLoadBalancing,
		RebalanceInterval:   rebalanceInterval,
		StatsReportInterval: statsReportInterval,
		GeocodeBaseURL:      geocodeBaseURL,
		GeocodeMinInterval:  geocodeMinInterval,
		ExiftoolPath:        exiftoolPath,
		LogHealthChecks:     logHealthChecks,
		QueueDBPath:         filepath.Join(databaseDir, "queue.db"),
		CatalogDBPath:       filepath.Join(databaseDir, "catalog.db"),
		ExifWorkDir:         filepath.Join(cacheDir, "exiftool"),
	}

	// The storage and database directories are required; the cache
	// directory only hosts exiftool scratch files.
	if err := ensureDirectory(storageDir, "storage"); err != nil {
		return nil, fmt.Errorf("storage directory error: %w", err)
	}
	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for queue and catalog): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	config.ExiftoolEnabled = checkExiftool(exiftoolPath)
	config.GeocodingEnabled = geocodingEnabled && geocodeBaseURL != ""

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Queue:        ENABLED (required)")
	logging.Info("    Catalog:      ENABLED (required)")
	logging.Info("    Exif:         %s", enabledString(config.ExiftoolEnabled))
	logging.Info("    Geocoding:    %s", enabledString(config.GeocodingEnabled))

	return config, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// checkExiftool verifies the exiftool binary is present and runnable.
// Metadata extraction is best-effort, so a missing binary downgrades the
// feature instead of failing startup.
func checkExiftool(binary string) bool {
	path, err := exec.LookPath(binary)
	if err != nil {
		logging.Warn("  exiftool not found in PATH (%s)", binary)
		logging.Warn("  Photos will be processed without embedded metadata")
		return false
	}
	logging.Debug("  exiftool path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "-ver")
	output, err := cmd.Output()
	if err != nil {
		logging.Warn("  failed to get exiftool version: %v", err)
		return false
	}
	logging.Debug("  exiftool version: %s", strings.TrimSpace(string(output)))
	return true
}

// LogQueueInit logs queue database initialization
func LogQueueInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("QUEUE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Queue and catalog databases initialized in %v", duration)
}

// LogPoolInit logs worker pool configuration before start
func LogPoolInit(workers int, pollInterval time.Duration, loadBalancing bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("WORKER POOL INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Workers:        %d", workers)
	logging.Info("  Poll interval:  %v", pollInterval)
	logging.Info("  Load balancing: %v", loadBalancing)
	logging.Info("  Starting worker pool...")
}

// LogPoolStarted logs successful pool start
func LogPoolStarted() {
	logging.Info("  [OK] Worker pool started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		// Group routes by prefix for cleaner output
		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			groupRoutes := groups[group]
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groupRoutes {
				methodPadded := fmt.Sprintf("%-6s", route.Method)
				logging.Debug("    %s %s", methodPadded, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(port string, startupDuration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", startupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Administration: http://0.0.0.0:%s/api/queue", port)
	logging.Info("    Metrics:        http://0.0.0.0:%s/metrics", port)
	logging.Info("    Health:         http://0.0.0.0:%s/healthz", port)
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    ____  __          __           ____                      __
   / __ \/ /_  ____  / /_____     /  _/___  ____ ____  _____/ /_
  / /_/ / __ \/ __ \/ __/ __ \    / // __ \/ __ '/ _ \(_-</ __/
 / .___/_/ /_/\____/\__/\____/  /___/_/ /_/\__, /\___/___/\__/
/_/                                       /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
