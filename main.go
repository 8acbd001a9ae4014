package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nounce/nounced/auth"
	"github.com/nounce/nounced/chat"
	"github.com/nounce/nounced/content"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/ledger"
	"github.com/nounce/nounced/social"
	"github.com/nounce/nounced/util"
	"github.com/nounce/nounced/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	log.Println("Running database migrations...")
	database := db.GetDB()
	log.Println("Database migrations complete")

	// The ledger backend is fixed at startup. With the gateway disabled
	// every chain call is a no-op and the cache is the only store.
	var chain ledger.Ledger
	if conf.Ledger.Enabled {
		chain = ledger.NewGateway(conf)
		log.Printf("Ledger gateway enabled: %s", conf.Ledger.GatewayUrl)
	} else {
		chain = ledger.NewNoop()
		log.Println("Ledger gateway disabled, running cache-only")
	}

	var store content.Store
	if conf.Content.ApiUrl != "" {
		store = content.NewHTTPStore(conf.Content.ApiUrl, conf.Content.GatewayUrl, conf.Content.Jwt)
	} else {
		store = content.NewMemStore()
		log.Println("No content API configured, using in-memory store")
	}

	manager := auth.NewManager(database, time.Duration(conf.Conf.SessionDays)*24*time.Hour)
	orchestrator := social.NewOrchestrator(database, store, chain)
	toggles := social.NewToggles(database, chain)
	feeds := social.NewFeeds(database, conf.Conf.PageSize)
	comments := social.NewComments(database, chain)
	hub := chat.NewHub(database)

	reconciler := social.NewReconciler(database, chain)
	reconciler.Start()

	startSessionSweeper(database)

	handlers := web.NewHandlers(database, manager, orchestrator, toggles, feeds, comments, hub, store)

	startServing(conf, handlers, feeds)
}

// startSessionSweeper drops expired sessions once an hour.
func startSessionSweeper(database *db.DB) {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := database.DeleteExpiredSessions(); err != nil {
				log.Printf("Session sweep failed: %v", err)
			}
		}
	}()
}

func startServing(conf *util.AppConfig, handlers *web.Handlers, feeds *social.Feeds) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := web.Run(conf, handlers, feeds); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping server")
}
