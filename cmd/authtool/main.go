// Command authtool hashes API keys and mints JWTs for the captcha OCR service.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/facturaIA/captcha-ocr-service/internal/auth"
	"github.com/facturaIA/captcha-ocr-service/internal/config"
)

func main() {
	hashKey := flag.String("hash-key", "", "print the bcrypt hash of this API key (for auth.api_key_hash)")
	token := flag.Bool("token", false, "mint a JWT signed with JWT_SECRET or auth.jwt_secret")
	subject := flag.String("subject", "captcha-client", "token subject")
	scopes := flag.String("scopes", "ocr", "comma-separated token scopes")
	ttl := flag.Duration("ttl", 0, "token lifetime (0 uses auth.token_ttl)")
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	switch {
	case *hashKey != "":
		hash, err := auth.HashAPIKey(*hashKey)
		if err != nil {
			fatal(err)
		}
		fmt.Println(hash)

	case *token:
		if err := config.LoadDotEnv(); err != nil {
			fatal(err)
		}
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		if cfg.Auth.JWTSecret == "" {
			fatal(fmt.Errorf("no JWT secret configured (set JWT_SECRET)"))
		}
		lifetime := *ttl
		if lifetime == 0 {
			lifetime = cfg.Auth.TokenTTL
		}
		signed, err := auth.GenerateToken([]byte(cfg.Auth.JWTSecret), *subject, splitScopes(*scopes), lifetime)
		if err != nil {
			fatal(err)
		}
		fmt.Println(signed)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func splitScopes(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "authtool: %v\n", err)
	os.Exit(1)
}
