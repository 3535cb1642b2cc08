// Command watchkeep runs the site monitor: it loads a single JSON
// configuration document, schedules every configured check, and
// optionally serves the admin JSON API over TLS. Flag and signal
// handling follow the teacher's cmd/probe daemon shape.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/watchkeep/watchkeep/pkg/audit"
	"github.com/watchkeep/watchkeep/pkg/auth"
	"github.com/watchkeep/watchkeep/pkg/certutil"
	"github.com/watchkeep/watchkeep/pkg/mqttremote"
	"github.com/watchkeep/watchkeep/pkg/site"
	"github.com/watchkeep/watchkeep/pkg/webapi"
)

func main() {
	var (
		configFile = flag.String("config", "watchkeep.json", "path to the site's JSON configuration document")
		initSite   = flag.Bool("init", false, "create a fresh configuration document and self-signed certificate, then exit")
		webui      = flag.Bool("webui", false, "serve the admin JSON API")
		adminUser  = flag.String("admin", "admin", "admin username, used only with --init")
		adminPass  = flag.String("password", "", "admin password, used only with --init")
		webPort    = flag.Int("port", 8443, "web surface listen port, used only with --init")
		auditFile  = flag.String("audit-db", "watchkeep-audit.db", "path to the sqlite audit log")
		mqttBroker = flag.String("mqtt-broker", "", "MQTT broker URL for remote-check push updates (e.g. tcp://localhost:1883); empty disables the bridge")
	)
	flag.Parse()

	if *initSite {
		if err := runInit(*configFile, *adminUser, *adminPass, *webPort); err != nil {
			log.Printf("🛑 init failed: %v", err)
			os.Exit(-1)
		}
		log.Printf("✅ wrote %s", *configFile)
		os.Exit(0)
	}

	s := site.New(*configFile)
	if err := s.LoadConfig(); err != nil {
		log.Printf("🛑 load config: %v", err)
		os.Exit(-1)
	}

	if auditLog, err := audit.Open(*auditFile); err != nil {
		log.Printf("⚠️  audit log disabled: %v", err)
	} else {
		s.SetAuditor(auditLog)
		defer auditLog.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Printf("👋 received %s, shutting down", sig)
		s.Shutdown()
		cancel()
	}()

	var webServer *http.Server
	if *webui {
		srv, err := startWeb(s)
		if err != nil {
			log.Printf("🛑 web surface: %v", err)
			os.Exit(-1)
		}
		webServer = srv
	}

	if *mqttBroker != "" {
		bridge, err := startMQTTBridge(s, *mqttBroker)
		if err != nil {
			log.Printf("⚠️  mqtt bridge disabled: %v", err)
		} else {
			defer bridge.Close()
		}
	}

	runErr := s.Run(ctx)

	if webServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = webServer.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		log.Printf("🛑 run: %v", runErr)
		os.Exit(-1)
	}
	os.Exit(0)
}

func runInit(configFile, adminUser, adminPass string, port int) error {
	if adminPass == "" {
		return fmt.Errorf("--password is required with --init")
	}

	a, err := auth.New(nil, 12*time.Hour)
	if err != nil {
		return err
	}
	hash, err := a.HashPassword(adminPass)
	if err != nil {
		return err
	}

	dir := filepath.Dir(configFile)
	certFile := filepath.Join(dir, "watchkeep.crt")
	keyFile := filepath.Join(dir, "watchkeep.key")

	pair, err := certutil.MakeSelfSigned("localhost", 365*24*time.Hour)
	if err != nil {
		return fmt.Errorf("generate certificate: %w", err)
	}
	if err := pair.WriteFiles(certFile, keyFile); err != nil {
		return err
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generate jwt secret: %w", err)
	}
	jwtSecret := hex.EncodeToString(secretBytes)

	s := site.New(configFile)
	s.SetWebConfig(port, adminUser, hash, certFile, keyFile, jwtSecret)
	return s.SaveConfig()
}

func startWeb(s *site.Site) (*http.Server, error) {
	port, admin, hash, certFile, keyFile, jwtSecret, ok := s.WebConfig()
	if !ok {
		return nil, fmt.Errorf("no web configuration in the site document; run with --init first")
	}

	jwtAuth, err := auth.New([]byte(jwtSecret), 12*time.Hour)
	if err != nil {
		return nil, err
	}

	srv := &webapi.Server{Site: s, Auth: jwtAuth, Admin: admin, Hash: hash}
	engine := srv.Router()

	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        engine,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("🌐 web surface listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			log.Printf("🛑 web surface: %v", err)
		}
	}()

	return httpServer, nil
}

func startMQTTBridge(s *site.Site, broker string) (*mqttremote.Bridge, error) {
	bridge, err := mqttremote.New(mqttremote.Config{
		BrokerURL: broker,
		ClientID:  "watchkeep",
	}, s)
	if err != nil {
		return nil, err
	}
	for _, name := range s.RemoteCheckNames() {
		if err := bridge.Subscribe(name); err != nil {
			log.Printf("⚠️  mqtt subscribe %s: %v", name, err)
		}
	}
	return bridge, nil
}
