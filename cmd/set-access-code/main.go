package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/service"
)

const minCodeLength = 6

func main() {
	cmd := &cobra.Command{
		Use:           "set-access-code <exam-id>",
		Short:         "Set or rotate the access code of an exam",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			examID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid exam id: %w", err)
			}
			return run(cmd.Context(), examID)
		},
	}

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, examID uuid.UUID) error {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	code, err := readCode()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash access code: %w", err)
	}

	// ─── Connect ───────────────────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	examRepo := repository.NewExamRepository(pool)
	examService := service.NewExamService(examRepo, repository.NewQuestionRepository(pool), rdb, cfg.ExamCacheTTL, log)

	// ─── Logic ─────────────────────────────────────────────────────────
	found, err := examRepo.UpdateAccessCodeHash(ctx, examID, string(hash))
	if err != nil {
		return fmt.Errorf("update access code: %w", err)
	}
	if !found {
		return service.ErrExamNotFound
	}

	// Sessions opened from now on must see the new hash.
	if err := examService.InvalidateCache(ctx, examID); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate exam cache; old code valid until TTL expires")
	}

	fmt.Printf("Access code updated for exam %s\n", examID)
	return nil
}

func readCode() (string, error) {
	fmt.Print("Enter Access Code: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read access code: %w", err)
	}
	if len(first) < minCodeLength {
		return "", fmt.Errorf("access code must be at least %d characters", minCodeLength)
	}

	fmt.Print("Confirm Access Code: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read access code: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("access codes do not match")
	}
	return string(first), nil
}
