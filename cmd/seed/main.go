package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/authgate/internal/config"
	"github.com/dropDatabas3/authgate/internal/security/password"
	"github.com/dropDatabas3/authgate/internal/security/totp"
	"github.com/dropDatabas3/authgate/internal/store"
)

// ---------- helpers env ----------
func strEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func csv(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func main() {
	var (
		configPath = flag.String("config", "", "ruta a config.yaml (default: CONFIG_PATH o configs/config.yaml)")
		envFile    = flag.String("env-file", ".env", "ruta a .env")
		demo       = flag.Bool("demo", true, "crea los usuarios demo (admin, user, test)")
		username   = flag.String("user", strEnv("SEED_USERNAME", ""), "usuario adicional (env SEED_USERNAME)")
		pass       = flag.String("password", strEnv("SEED_PASSWORD", ""), "password del usuario adicional (env SEED_PASSWORD)")
		roles      = flag.String("roles", strEnv("SEED_ROLES", "user"), "roles separados por coma")
		with2FA    = flag.Bool("2fa", false, "habilita TOTP para el usuario adicional e imprime el secreto")
	)
	flag.Parse()

	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	}
	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		Driver:    cfg.Storage.Driver,
		DSN:       cfg.Storage.DSN,
		Migrate:   cfg.Storage.Migrate,
		SecretKey: cfg.Security.SecretBoxKey,
	})
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	var users []store.SeedUser
	if *demo {
		users = append(users, store.DefaultSeed...)
	}
	if *username != "" {
		if *pass == "" {
			log.Fatalf("-password is required with -user")
		}
		if err := password.DefaultPolicy.Validate(*pass); err != nil {
			log.Fatalf("%s: %v", *username, err)
		}
		su := store.SeedUser{Username: *username, Password: *pass, Roles: csv(*roles)}
		if *with2FA {
			_, secret, err := totp.GenerateSecret()
			if err != nil {
				log.Fatalf("totp secret: %v", err)
			}
			su.TwoFactorEnabled = true
			su.TwoFactorSecret = secret
			fmt.Printf("TOTP secret for %s: %s\n", su.Username, secret)
			fmt.Printf("otpauth URI: %s\n", totp.ProvisioningURI(cfg.MFA.Issuer, su.Username, secret))
		}
		users = append(users, su)
	}
	if len(users) == 0 {
		fmt.Println("nothing to seed")
		return
	}

	n, err := store.Seed(ctx, st.Users(), password.Default, users)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("Seed OK: %d user(s) created, %d already present (driver=%s)\n", n, len(users)-n, cfg.Storage.Driver)
}
