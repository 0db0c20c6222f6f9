package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/mutusfa/Neurodeck/internal/anki"
	"github.com/mutusfa/Neurodeck/internal/config"
	"github.com/mutusfa/Neurodeck/internal/generator"
	"github.com/mutusfa/Neurodeck/internal/storage"
	syncsvc "github.com/mutusfa/Neurodeck/internal/sync"
	"github.com/mutusfa/Neurodeck/internal/web"
)

func main() {
	fs := flag.NewFlagSet("neurodeck", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to the yaml config file")
	fs.String("db", "", "Path to the sqlite database file")
	fs.String("addr", "", "HTTP listen address")
	fs.String("media-dir", "", "Directory for uploaded documents")
	fs.Parse(os.Args[1:])

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	gen, err := generator.New(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		slog.Error("Failed to create card generator", "error", err)
		os.Exit(1)
	}
	defer gen.Close()

	deck := anki.NewConnectDeck(anki.ConnectConfig{
		Endpoint:  cfg.Anki.Endpoint,
		DeckName:  cfg.Anki.DeckName,
		ModelName: cfg.Anki.ModelName,
		IDField:   cfg.Anki.IDField,
		FieldMap:  cfg.Anki.FieldMap,
		Timeout:   cfg.Anki.Timeout,
	})
	defer deck.Close()

	server := web.NewServer(db, gen, syncsvc.NewSyncer(db, deck), cfg.Media.Dir)

	slog.Info("Listening", "addr", cfg.Server.Addr, "database", cfg.Database.Path)
	if err := http.ListenAndServe(cfg.Server.Addr, server); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
