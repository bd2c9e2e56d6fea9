package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/bsocio/campaign-service/internal/config"
	"github.com/bsocio/campaign-service/internal/db"
	"github.com/bsocio/campaign-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo admins and users",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect Postgres
		pgDB, err := db.NewPostgresConnection(cfg.Postgres.DSN, db.PostgresOpts{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			PingTimeout:     cfg.Postgres.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		defer pgDB.Close()

		log.Println(">> Seeding demo admins...")
		if err := seedAdmins(pgDB); err != nil {
			return err
		}

		log.Println(">> Seeding demo users...")
		if err := seedUsers(pgDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedAdmins inserts deterministic demo admins (idempotent).
func seedAdmins(dbx *sqlx.DB) error {
	admins := []model.Admin{
		{
			Name:         "Campaign Ops",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			RateLimitRPS: intptr(20),
		},
		{
			Name:         "Growth Team",
			APIKey:       "22222222222222222222222222222222",
			Status:       "active",
			RateLimitRPS: intptr(50),
		},
		{
			Name:         "Suspended Account",
			APIKey:       "33333333333333333333333333333333",
			Status:       "suspended",
			RateLimitRPS: nil,
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO admins (name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (api_key) DO UPDATE SET
    name           = EXCLUDED.name,
    status         = EXCLUDED.status,
    rate_limit_rps = EXCLUDED.rate_limit_rps,
    updated_at     = EXCLUDED.updated_at
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, a := range admins {
		if _, err := tx.Exec(q, a.Name, a.APIKey, a.Status, a.RateLimitRPS, now); err != nil {
			return fmt.Errorf("insert admin %q: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admins: %w", err)
	}
	return nil
}

// seedUsers inserts demo recipients across roles and providers (idempotent).
func seedUsers(dbx *sqlx.DB) error {
	type row struct {
		email    string
		role     string
		provider *string
		verified bool
		gender   *string
	}

	rows := []row{
		{email: "ana@example.org", role: "USER", provider: strptr("google"), verified: true, gender: strptr("female")},
		{email: "bruno@example.org", role: "USER", provider: nil, verified: false, gender: strptr("male")},
		{email: "carla@example.org", role: "USER", provider: strptr("facebook"), verified: true, gender: strptr("female")},
		{email: "diego@example.org", role: "ADMIN", provider: nil, verified: true, gender: strptr("male")},
		{email: "elisa@example.org", role: "USER", provider: strptr("google"), verified: false, gender: nil},
	}

	const q = `
INSERT INTO users (email, role, oauth_provider, is_phone_verified, gender, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (email) DO UPDATE SET
    role              = EXCLUDED.role,
    oauth_provider    = EXCLUDED.oauth_provider,
    is_phone_verified = EXCLUDED.is_phone_verified,
    gender            = EXCLUDED.gender
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, r := range rows {
		if _, err := tx.Exec(q, r.email, r.role, r.provider, r.verified, r.gender, now); err != nil {
			return fmt.Errorf("insert user %q: %w", r.email, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit users: %w", err)
	}
	return nil
}

func intptr(i int) *int       { return &i }
func strptr(s string) *string { return &s }
