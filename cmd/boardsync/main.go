package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/ldi/boardsync/internal/auth"
	"github.com/ldi/boardsync/internal/bus"
	"github.com/ldi/boardsync/internal/config"
	"github.com/ldi/boardsync/internal/db"
	"github.com/ldi/boardsync/internal/server"
	"github.com/ldi/boardsync/pkg/models"
)

var verbose bool

func main() {
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: boardsync [flags] <init|serve|adduser>")
		os.Exit(1)
	}
	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "init":
		err = runInit(args)
	case "serve":
		err = runServe(args)
	case "adduser":
		err = runAddUser(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("BOARDSYNC_JWT_SECRET is not set")
	}
	return cfg, nil
}

func openDatabase(cfg config.Config) (*db.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(context.Background()); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func runInit(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("✓ Initialized database at %s\n", cfg.DBPath)
	return nil
}

func runServe(args []string) error {
	serveFlags := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := serveFlags.String("addr", "", "Listen address (overrides BOARDSYNC_ADDR)")
	if err := serveFlags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := server.New(database, bus.New(), auth.NewProvider(database, cfg.JWTSecret), cfg)

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Addr)
		errc <- srv.Start(cfg.Addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func runAddUser(args []string) error {
	userFlags := flag.NewFlagSet("adduser", flag.ContinueOnError)
	name := userFlags.String("name", "", "User name (required)")
	role := userFlags.String("role", string(models.RoleMember), "Role: GUEST, MEMBER or ADMIN")
	image := userFlags.String("image", "", "Avatar URL")
	if err := userFlags.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	r := models.Role(*role)
	switch r {
	case models.RoleGuest, models.RoleMember, models.RoleAdmin:
	default:
		return fmt.Errorf("invalid role %q", *role)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return fmt.Errorf("password must not be empty")
	}
	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	existing, err := database.GetUserByName(ctx, *name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user %q already exists", *name)
	}

	u := &db.UserRecord{
		User:         models.User{Name: *name, Image: *image, Role: r},
		PasswordHash: hash,
	}
	if err := database.CreateUser(ctx, u); err != nil {
		return err
	}
	fmt.Printf("✓ Created %s user %s (%s)\n", r, *name, u.ID)
	return nil
}
