// genkey generates the secrets Tsuzuri's bearer auth needs.
//
// Usage (run from the repo root):
//
//	go run ./scripts/genkey            # JWT key pair + a fresh API key
//	go run ./scripts/genkey -jwt=false # API key only
//	go run ./scripts/genkey -key=...   # hash an existing API key
//
// The JWT key pair is written to data/jwt_private.pem and data/jwt_public.pem
// (mode 0600). Point TSUZURI_JWT_PRIVATE_KEY and TSUZURI_JWT_PUBLIC_KEY at
// them; without them the server signs with an ephemeral pair and every token
// dies on restart.
//
// The API key is printed once together with its argon2id hash. Give the key to
// clients and set TSUZURI_API_KEY_HASH to the hash. The server never stores
// the key itself.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashita-ai/tsuzuri/internal/auth"
)

func main() {
	dir := flag.String("dir", "data", "directory for the JWT key pair")
	withJWT := flag.Bool("jwt", true, "write a JWT signing key pair")
	key := flag.String("key", "", "hash this API key instead of generating one")
	flag.Parse()

	if *withJWT {
		if err := writeKeyPair(*dir); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	apiKey := *key
	if apiKey == "" {
		var err error
		if apiKey, err = newAPIKey(); err != nil {
			fmt.Fprintf(os.Stderr, "error: generate api key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("api key:  %s\n", apiKey)
	}
	hash, err := auth.HashAPIKey(apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: hash api key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("TSUZURI_API_KEY_HASH=%s\n", hash)
}

// newAPIKey returns 32 random bytes, base64url-encoded with a tz_ prefix.
func newAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "tz_" + base64.RawURLEncoding.EncodeToString(b), nil
}

func writeKeyPair(dir string) error {
	privPath := filepath.Join(dir, "jwt_private.pem")
	pubPath := filepath.Join(dir, "jwt_public.pem")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	// Refuse to overwrite: rotating keys invalidates live tokens.
	for _, path := range []string{privPath, pubPath} {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, delete it first to rotate keys", path)
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	if err := writePEM(privPath, "PRIVATE KEY", privDER); err != nil {
		return err
	}
	if err := writePEM(pubPath, "PUBLIC KEY", pubDER); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", privPath)
	fmt.Printf("wrote %s\n", pubPath)
	return nil
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
