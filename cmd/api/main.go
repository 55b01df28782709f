// cmd/api/main.go
package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"libraloan/pkg/logging"
)

// The gateway fronts the three services under one origin.
func main() {
	logger := logging.Setup()

	routes := map[string]string{
		"/api/v1/catalog":     getEnv("CATALOG_SERVICE_URL", "http://localhost:8081"),
		"/api/v1/circulation": getEnv("CIRCULATION_SERVICE_URL", "http://localhost:8082"),
		"/api/v1/membership":  getEnv("MEMBERSHIP_SERVICE_URL", "http://localhost:8083"),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	for prefix, target := range routes {
		u, err := url.Parse(target)
		if err != nil {
			logger.Error("invalid upstream URL", "prefix", prefix, "url", target, "error", err)
			os.Exit(1)
		}
		router.Mount(prefix, http.StripPrefix(prefix, httputil.NewSingleHostReverseProxy(u)))
	}

	port := getEnv("PORT", "8080")
	srv := &http.Server{Addr: ":" + port, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("API gateway listening", "port", port)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
