package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/cloudLicense/internal/adapters/repository"
	"github.com/poyrazK/cloudLicense/internal/config"
	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
)

var errUsage = errors.New("expected 'create', 'list' or 'revoke' subcommands")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	if err := run(os.Args, os.Stdout, repository.NewPostgresRepository(db)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, repo ports.APIKeyRepository) error {
	createCmd := flag.NewFlagSet("create", flag.ContinueOnError)
	tenantID := createCmd.String("tenant", "default-tenant", "Tenant ID")
	role := createCmd.String("role", "admin", "Role (admin or reader)")
	name := createCmd.String("name", "generic-key", "Description of the key")
	days := createCmd.Int("days", 365, "Validity in days")

	listCmd := flag.NewFlagSet("list", flag.ContinueOnError)
	listTenant := listCmd.String("tenant", "default-tenant", "Tenant ID")

	revokeCmd := flag.NewFlagSet("revoke", flag.ContinueOnError)
	revokeTenant := revokeCmd.String("tenant", "default-tenant", "Tenant ID")
	revokeID := revokeCmd.String("id", "", "API Key UUID to revoke")

	if len(args) < 2 {
		return errUsage
	}

	switch args[1] {
	case "create":
		if err := createCmd.Parse(args[2:]); err != nil {
			return fmt.Errorf("failed to parse create commands: %w", err)
		}
		return generateKey(repo, *tenantID, *role, *name, *days, out)
	case "list":
		if err := listCmd.Parse(args[2:]); err != nil {
			return fmt.Errorf("failed to parse list commands: %w", err)
		}
		return listKeys(repo, *listTenant, out)
	case "revoke":
		if err := revokeCmd.Parse(args[2:]); err != nil {
			return fmt.Errorf("failed to parse revoke commands: %w", err)
		}
		return revokeKey(repo, *revokeTenant, *revokeID, out)
	default:
		return fmt.Errorf("unknown subcommand: %s", args[1])
	}
}

func generateKey(repo ports.APIKeyRepository, tenantID, role, name string, days int, out io.Writer) error {
	if !domain.Role(role).Valid() {
		return fmt.Errorf("invalid role %q, expected admin or reader", role)
	}
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}

	rawKey := make([]byte, 16)
	if _, err := rand.Read(rawKey); err != nil {
		return err
	}
	keyString := "cl_" + hex.EncodeToString(rawKey)

	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, days)

	apiKey := &domain.APIKey{
		ID:        id,
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   domain.HashAPIKey(keyString),
		KeyPrefix: keyString[:8],
		Role:      domain.Role(role),
		Active:    true,
		CreatedAt: now,
		ExpiresAt: &expiresAt,
	}

	if err := repo.CreateAPIKey(context.Background(), apiKey); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}

	fmt.Fprintf(out, "API Key Created Successfully!\n")
	fmt.Fprintf(out, "---------------------------\n")
	fmt.Fprintf(out, "ID:         %s\n", id)
	fmt.Fprintf(out, "Tenant:     %s\n", tenantID)
	fmt.Fprintf(out, "Role:       %s\n", role)
	fmt.Fprintf(out, "Expires:    %v\n", expiresAt.Format(time.RFC3339))
	fmt.Fprintf(out, "VALUE:      %s\n", keyString)
	fmt.Fprintf(out, "---------------------------\n")
	fmt.Fprintf(out, "CAUTION: This is the only time the key will be shown.\n")
	return nil
}

func listKeys(repo ports.APIKeyRepository, tenantID string, out io.Writer) error {
	keys, err := repo.ListAPIKeys(context.Background(), tenantID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "API Keys for Tenant: %s\n", tenantID)
	fmt.Fprintf(out, "%-36s %-15s %-10s %-8s %-6s\n", "ID", "Name", "Role", "Prefix", "Status")
	for _, k := range keys {
		status := "active"
		if !k.Active {
			status = "revoked"
		}
		fmt.Fprintf(out, "%-36s %-15s %-10s %-8s %-6s\n", k.ID, k.Name, k.Role, k.KeyPrefix, status)
	}
	return nil
}

func revokeKey(repo ports.APIKeyRepository, tenantID, id string, out io.Writer) error {
	if id == "" {
		return errors.New("ID is required for revocation")
	}
	if err := repo.DeleteAPIKey(context.Background(), tenantID, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "API Key %s revoked (deleted)\n", id)
	return nil
}
