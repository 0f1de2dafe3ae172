// Command accountctl creates an account directly in the database, bypassing
// the HTTP API. Intended for bootstrapping and operational repair: the
// password is prompted interactively and never appears in shell history.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/term"

	"github.com/viewtube/accounts/internal/server/models"
	"github.com/viewtube/accounts/internal/server/password"
	"github.com/viewtube/accounts/internal/server/repositories/repomanager"
)

func main() {

	dsn := flag.String("d", "", "PostgreSQL DSN")
	username := flag.String("u", "", "username")
	email := flag.String("e", "", "email")
	fullName := flag.String("n", "", "full name")
	avatarURL := flag.String("a", "", "avatar URL (optional)")
	flag.Parse()

	if *dsn == "" || *username == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "usage: accountctl -d <dsn> -u <username> -e <email> [-n <full name>] [-a <avatar url>]")
		os.Exit(2)
	}

	plaintext, err := promptPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := createAccount(context.Background(), *dsn, *username, *email, *fullName, *avatarURL, plaintext); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Println("Success!")
}

func promptPassword() (string, error) {
	fmt.Println("Enter password")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}

	fmt.Println("Repeat password")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}

	return string(first), nil
}

func createAccount(ctx context.Context, dsn, username, email, fullName, avatarURL, plaintext string) error {

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("db migration error: %w", err)
	}

	hash, err := password.NewHasher(0).Hash(plaintext)
	if err != nil {
		return err
	}

	repo := m.Accounts(db)
	account, err := repo.Create(ctx, &models.Account{
		Username:     strings.ToLower(strings.TrimSpace(username)),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		FullName:     strings.TrimSpace(fullName),
		AvatarURL:    avatarURL,
		PasswordHash: hash,
	})
	if err != nil {
		return err
	}

	fmt.Printf("created account %s (%s)\n", account.ID, account.Username)
	return nil
}
