package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/anchor-vcs/anchor/internal/server"
	"github.com/anchor-vcs/anchor/internal/users"
	"github.com/anchor-vcs/anchor/pkg/config"
	"github.com/anchor-vcs/anchor/pkg/logging"
)

func main() {
	configPath := flag.String("config", "/etc/anchor/anchord.yaml", "configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("anchord: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	if cfg.Secret == "" {
		log.Fatal("config: secret is required to sign access tokens")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		log.WithError(err).Fatal("create data root")
	}

	// First start: create the admin account from the environment.
	um := users.NewManager(cfg.Root)
	if _, err := um.Profile(cfg.AdminUsername); err != nil {
		password := os.Getenv("ANCHOR_ADMIN_PASSWORD")
		if password == "" {
			log.WithField("user", cfg.AdminUsername).
				Warn("admin account missing and ANCHOR_ADMIN_PASSWORD unset, password logins for admin will fail")
		} else if err := um.Create(cfg.AdminUsername, password); err != nil {
			log.WithError(err).Fatal("bootstrap admin account")
		} else {
			log.WithField("user", cfg.AdminUsername).Info("created admin account")
		}
	}

	s, err := server.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initialize server")
	}

	log.WithFields(logrus.Fields{
		"listen": cfg.Listen,
		"root":   cfg.Root,
	}).Info("anchord listening")
	if err := http.ListenAndServe(cfg.Listen, s.Handler()); err != nil {
		log.WithError(err).Fatal("serve")
	}
}
