/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package main is the entry point for starting the PHR flow server.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/abdm-phr/phr/internal/cert"
	"github.com/abdm-phr/phr/internal/managers"
	"github.com/abdm-phr/phr/internal/system/config"
	"github.com/abdm-phr/phr/internal/system/log"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := log.GetLogger()
	defer logger.Sync()

	phrHome := getPHRHome(logger)

	cfg := initConfigurations(logger, phrHome)
	if cfg == nil {
		logger.Fatal("Failed to initialize configurations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	serviceManager := managers.NewServiceManager(mux, cfg)
	if err := serviceManager.RegisterServices(ctx); err != nil {
		logger.Fatal("Failed to register the services", log.Error(err))
	}

	server, serverAddr := createHTTPServer(logger, cfg, mux)
	ln := listen(logger, cfg, serverAddr, phrHome)

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve requests", log.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down the PHR flow server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down the server gracefully", log.Error(err))
	}
	serviceManager.Shutdown()
}

// getPHRHome retrieves and returns the PHR home directory.
func getPHRHome(logger *log.Logger) string {
	projectHomeFlag := flag.String("phrHome", "", "Path to the PHR flow server home directory")
	flag.Parse()

	if *projectHomeFlag != "" {
		logger.Info("Using phrHome from command line argument", log.String("phrHome", *projectHomeFlag))
		return *projectHomeFlag
	}

	dir, err := os.Getwd()
	if err != nil {
		logger.Fatal("Failed to get current working directory", log.Error(err))
	}
	return dir
}

// initConfigurations loads the deployment configuration and initializes the runtime.
func initConfigurations(logger *log.Logger, phrHome string) *config.Config {
	configFilePath := path.Join(phrHome, "repository/conf/deployment.yaml")
	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		logger.Fatal("Failed to load configurations", log.Error(err))
	}

	if err := config.InitializeRuntime(phrHome, cfg); err != nil {
		logger.Fatal("Failed to initialize runtime", log.Error(err))
	}
	return cfg
}

// listen opens the server listener, with TLS unless the server is HTTP only.
func listen(logger *log.Logger, cfg *config.Config, serverAddr, phrHome string) net.Listener {
	if cfg.Server.HTTPOnly {
		logger.Info("TLS is not enabled, starting server without TLS")
		ln, err := net.Listen("tcp", serverAddr)
		if err != nil {
			logger.Fatal("Failed to start listener", log.Error(err))
		}
		logger.Info("PHR flow server started (HTTP)...", log.String("address", serverAddr))
		return ln
	}

	tlsConfig, err := cert.GetTLSConfig(cfg, phrHome)
	if err != nil {
		logger.Fatal("Failed to load TLS configuration", log.Error(err))
	}
	ln, err := tls.Listen("tcp", serverAddr, tlsConfig)
	if err != nil {
		logger.Fatal("Failed to start TLS listener", log.Error(err))
	}
	logger.Info("PHR flow server started (HTTPS)...", log.String("address", serverAddr))
	return ln
}

// createHTTPServer creates and configures an HTTP server with common settings.
func createHTTPServer(logger *log.Logger, cfg *config.Config, mux *http.ServeMux) (*http.Server, string) {
	wrappedMux := log.AccessLogHandler(logger, mux)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port)

	server := &http.Server{
		Addr:              serverAddr,
		Handler:           wrappedMux,
		ReadHeaderTimeout: 10 * time.Second, // Mitigate Slowloris attacks
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return server, serverAddr
}
