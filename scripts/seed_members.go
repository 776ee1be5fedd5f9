package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"torch/internal/database"
	"torch/internal/domain"
	"torch/internal/repository"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		membersPath = flag.String("members", "configs/members.yaml", "path to members.yaml (empty = built-in demo members)")
		dbPath      = flag.String("db", "./data/torch.db", "path to sqlite db")
		overwrite   = flag.Bool("overwrite", false, "replace members that already exist")
	)
	flag.Parse()

	members := repository.DemoMembers()
	if *membersPath != "" {
		loaded, err := repository.LoadMembers(*membersPath)
		if err != nil {
			return err
		}
		members = loaded
	}
	if len(members) == 0 {
		return fmt.Errorf("no members to seed")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	updated := 0
	skipped := 0
	for _, m := range members {
		_, err = db.FindByEmail(ctx, m.Email)
		switch {
		case err == nil && !*overwrite:
			skipped++
			continue
		case err == nil:
			updated++
		case errors.Is(err, domain.ErrMemberNotFound):
			created++
		default:
			return fmt.Errorf("get %s: %w", m.Email, err)
		}
		if err = db.Save(ctx, m); err != nil {
			return fmt.Errorf("save %s: %w", m.ID, err)
		}
	}

	fmt.Printf("done: created=%d updated=%d skipped=%d\n", created, updated, skipped)
	return nil
}
