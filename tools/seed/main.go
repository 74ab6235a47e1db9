// Command seed loads reference data (tenants, users, categories, products)
// from a YAML fixture and prints a development bearer token.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

type fixture struct {
	Tenants []tenantFixture `yaml:"tenants"`
	Users   []userFixture   `yaml:"users"`
}

type tenantFixture struct {
	Name       string            `yaml:"name"`
	Subdomain  string            `yaml:"subdomain"`
	Categories []categoryFixture `yaml:"categories"`
}

type categoryFixture struct {
	Name     string           `yaml:"name"`
	Products []productFixture `yaml:"products"`
}

type productFixture struct {
	Name            string `yaml:"name"`
	Price           int64  `yaml:"price"`
	DurationMinutes int    `yaml:"duration_minutes"`
}

type userFixture struct {
	Email      string   `yaml:"email"`
	Username   string   `yaml:"username"`
	FullName   string   `yaml:"full_name"`
	Password   string   `yaml:"password"`
	Type       string   `yaml:"type"`
	SuperAdmin bool     `yaml:"super_admin"`
	Tenants    []string `yaml:"tenants"`
}

func main() {
	var (
		file      = flag.String("file", getenv("SEED_FILE", "tools/seed/fixtures.yaml"), "fixture file")
		dbURL     = flag.String("database-url", getenv("DATABASE_URL", ""), "postgres url")
		secret    = flag.String("jwt-secret", getenv("JWT_SECRET", ""), "HS256 secret for the dev token")
		rsaKey    = flag.String("jwt-private-key", getenv("JWT_PRIVATE_KEY_FILE", ""), "PEM RSA key; signs RS256 instead of HS256")
		keyID     = flag.String("jwt-kid", getenv("JWT_KID", "dev"), "kid header for RS256 tokens")
		tokenUser = flag.String("token-for", getenv("SEED_TOKEN_FOR", ""), "email of the user to mint a token for")
		ttl       = flag.Duration("token-ttl", 24*time.Hour, "dev token lifetime")
	)
	flag.Parse()

	if strings.TrimSpace(*dbURL) == "" {
		fatal("DATABASE_URL is required")
	}
	fx, err := loadFixture(*file)
	if err != nil {
		fatal(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := db.Open(ctx, *dbURL, db.Options{MaxConns: 2})
	if err != nil {
		fatal(err.Error())
	}
	defer pool.Close()

	var users map[string]seededUser
	err = pool.InTx(ctx, func(tx pgx.Tx) error {
		tenants, err := seedTenants(ctx, tx, fx.Tenants)
		if err != nil {
			return err
		}
		users, err = seedUsers(ctx, tx, fx.Users, tenants)
		return err
	})
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("seeded tenants=%d users=%d\n", len(fx.Tenants), len(fx.Users))

	if *tokenUser == "" || (*secret == "" && *rsaKey == "") {
		return
	}
	u, ok := users[strings.ToLower(*tokenUser)]
	if !ok {
		fatal("unknown user " + *tokenUser)
	}
	claims := auth.NewClaims(u.id, u.tenantIDs, u.superAdmin, *ttl)
	var token string
	if *rsaKey != "" {
		key, kerr := loadRSAKey(*rsaKey)
		if kerr != nil {
			fatal(kerr.Error())
		}
		token, err = auth.SignRS256(claims, key, *keyID)
	} else {
		token, err = auth.SignHS256(claims, *secret)
	}
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("token=%s\n", token)
}

func loadFixture(path string) (fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fixture{}, err
	}
	return parseFixture(raw)
}

func parseFixture(raw []byte) (fixture, error) {
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	seen := map[string]bool{}
	for _, t := range fx.Tenants {
		if strings.TrimSpace(t.Name) == "" {
			return fixture{}, errors.New("tenant name is required")
		}
		seen[t.Name] = true
	}
	for _, u := range fx.Users {
		if u.Email == "" || u.Password == "" {
			return fixture{}, fmt.Errorf("user %q: email and password are required", u.Username)
		}
		switch u.Type {
		case "", "provider", "client", "staff":
		default:
			return fixture{}, fmt.Errorf("user %s: unknown type %q", u.Email, u.Type)
		}
		for _, name := range u.Tenants {
			if !seen[name] {
				return fixture{}, fmt.Errorf("user %s: unknown tenant %q", u.Email, name)
			}
		}
	}
	return fx, nil
}

func seedTenants(ctx context.Context, tx pgx.Tx, tenants []tenantFixture) (map[string]int64, error) {
	ids := make(map[string]int64, len(tenants))
	for _, t := range tenants {
		var id int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO tenants (name, subdomain) VALUES ($1, NULLIF($2, ''))
			 ON CONFLICT (subdomain) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`, t.Name, t.Subdomain).Scan(&id); err != nil {
			return nil, fmt.Errorf("tenant %s: %w", t.Name, err)
		}
		ids[t.Name] = id

		for _, c := range t.Categories {
			// categories and products have no natural key; reruns reuse rows by name
			var categoryID int64
			if err := tx.QueryRow(ctx,
				`WITH found AS (
				   SELECT id FROM categories WHERE tenant_id = $1 AND lower(name) = lower($2) AND NOT is_deleted AND deleted_at IS NULL
				 ), created AS (
				   INSERT INTO categories (tenant_id, name) SELECT $1::bigint, $2::text WHERE NOT EXISTS (SELECT 1 FROM found)
				   RETURNING id
				 )
				 SELECT id FROM found UNION ALL SELECT id FROM created LIMIT 1`,
				id, c.Name).Scan(&categoryID); err != nil {
				return nil, fmt.Errorf("category %s: %w", c.Name, err)
			}
			for _, p := range c.Products {
				duration := p.DurationMinutes
				if duration <= 0 {
					duration = 60
				}
				if _, err := tx.Exec(ctx,
					`INSERT INTO products (tenant_id, category_id, name, price, duration_minutes)
					 SELECT $1::bigint, $2::bigint, $3::text, $4::bigint, $5::int
					 WHERE NOT EXISTS (
					   SELECT 1 FROM products WHERE tenant_id = $1 AND lower(name) = lower($3) AND NOT is_deleted AND deleted_at IS NULL
					 )`,
					id, categoryID, p.Name, p.Price, duration); err != nil {
					return nil, fmt.Errorf("product %s: %w", p.Name, err)
				}
			}
		}
	}
	return ids, nil
}

type seededUser struct {
	id         int64
	tenantIDs  []int64
	superAdmin bool
}

func seedUsers(ctx context.Context, tx pgx.Tx, users []userFixture, tenants map[string]int64) (map[string]seededUser, error) {
	out := make(map[string]seededUser, len(users))
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		username := u.Username
		if username == "" {
			username = strings.SplitN(u.Email, "@", 2)[0]
		}
		typ := u.Type
		if typ == "" {
			typ = "client"
		}
		var id int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (email, username, full_name, hashed_password, user_type, is_super_admin)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (lower(email)) DO UPDATE
			   SET full_name = EXCLUDED.full_name,
			       hashed_password = EXCLUDED.hashed_password,
			       user_type = EXCLUDED.user_type,
			       is_super_admin = EXCLUDED.is_super_admin
			 RETURNING id`,
			u.Email, username, u.FullName, string(hash), typ, u.SuperAdmin).Scan(&id); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Email, err)
		}

		su := seededUser{id: id, superAdmin: u.SuperAdmin}
		for _, name := range u.Tenants {
			tenantID := tenants[name]
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_tenants (user_id, tenant_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, tenantID); err != nil {
				return nil, fmt.Errorf("user %s tenant %s: %w", u.Email, name, err)
			}
			su.tenantIDs = append(su.tenantIDs, tenantID)
		}
		out[strings.ToLower(u.Email)] = su
	}
	return out, nil
}

func loadRSAKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block in " + path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
