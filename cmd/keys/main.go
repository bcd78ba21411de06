package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
)

func main() {
	var (
		flagDir         = flag.String("dir", "keys", "directorio de las claves PEM")
		cmdGenerate     = flag.Bool("generate", false, "genera private.pem y public.pem (Ed25519)")
		cmdRotate       = flag.Bool("rotate", false, "genera un par nuevo y conserva la pública anterior como previous-<ts>.pem")
		cmdList         = flag.Bool("list", false, "lista las claves públicas con su kid")
		cmdGenSecretbox = flag.Bool("gen-secretbox", false, "genera una clave para SECRETBOX_KEY")
		flagForce       = flag.Bool("force", false, "sobrescribe claves existentes con -generate")
	)
	flag.Parse()

	switch {
	case *cmdGenSecretbox:
		generateSecretboxKey()
	case *cmdGenerate:
		if fileExists(filepath.Join(*flagDir, "private.pem")) && !*flagForce {
			log.Fatalf("%s/private.pem already exists (use -force or -rotate)", *flagDir)
		}
		kid, err := writePair(*flagDir)
		if err != nil {
			log.Fatalf("generate: %v", err)
		}
		fmt.Printf("Generated key pair in %s. kid=%s\n", *flagDir, kid)
	case *cmdRotate:
		prev := filepath.Join(*flagDir, "public.pem")
		if !fileExists(prev) {
			log.Fatalf("rotate: %s not found (use -generate first)", prev)
		}
		retired := filepath.Join(*flagDir, "previous-"+time.Now().UTC().Format("20060102T150405Z")+".pem")
		if err := os.Rename(prev, retired); err != nil {
			log.Fatalf("rotate: %v", err)
		}
		kid, err := writePair(*flagDir)
		if err != nil {
			log.Fatalf("rotate: %v", err)
		}
		fmt.Printf("Rotated. new_kid=%s previous=%s\n", kid, retired)
		fmt.Println("Add it to jwt.previous_public_key_paths until issued tokens expire.")
	case *cmdList:
		if err := listKeys(*flagDir); err != nil {
			log.Fatalf("list: %v", err)
		}
	default:
		fmt.Println("usage:")
		fmt.Println("  keys -generate [-dir keys] [-force]")
		fmt.Println("  keys -rotate [-dir keys]")
		fmt.Println("  keys -list [-dir keys]")
		fmt.Println("  keys -gen-secretbox")
	}
}

func writePair(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	privPEM, err := jwtx.EncodePrivatePEM(priv)
	if err != nil {
		return "", err
	}
	pubPEM, err := jwtx.EncodePublicPEM(pub)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "private.pem"), privPEM, 0o600); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "public.pem"), pubPEM, 0o644); err != nil {
		return "", err
	}
	return jwtx.KIDFor(pub), nil
}

func listKeys(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if n == "public.pem" || (strings.HasPrefix(n, "previous-") && strings.HasSuffix(n, ".pem")) {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return errors.New("no public keys found")
	}
	sort.Strings(names)
	fmt.Printf("FILE\t\t\t\t\tKID\n")
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		pub, err := jwtx.ParsePublicPEM(b)
		if err != nil {
			return fmt.Errorf("%s: %w", n, err)
		}
		status := "previous"
		if n == "public.pem" {
			status = "active"
		}
		fmt.Printf("%s\t%s\t(%s)\n", n, jwtx.KIDFor(pub), status)
	}
	return nil
}

func generateSecretboxKey() {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("generate key: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	fmt.Println("Add this to your .env file:")
	fmt.Printf("SECRETBOX_KEY=%s\n", encoded)
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
