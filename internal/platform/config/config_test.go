package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIRESTORE_PROJECT_ID":  "flss-ops-test",
		"API_COMMERCE_SHOP_DOMAIN":  "flss-studio.myshopify.com",
		"API_COMMERCE_ACCESS_TOKEN": "shptest",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Server.Port)
	}
	if cfg.Environment != "local" {
		t.Fatalf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Commerce.APIVersion != "2024-01" || cfg.Commerce.MaxAttempts != 3 {
		t.Fatalf("unexpected commerce defaults: %+v", cfg.Commerce)
	}
	if cfg.Pricing.DefaultTier != "public" || cfg.Pricing.DefaultCurrency != "ZAR" {
		t.Fatalf("unexpected pricing defaults: %+v", cfg.Pricing)
	}
	if len(cfg.Pricing.KnownTiers) != 5 {
		t.Fatalf("expected default tier vocabulary, got %v", cfg.Pricing.KnownTiers)
	}
	if cfg.Pricing.TierCacheTTL != 5*time.Minute || cfg.Pricing.StatusCapacity != 1024 {
		t.Fatalf("unexpected pricing tunables: %+v", cfg.Pricing)
	}
	if cfg.Pubsub.ProjectID != "flss-ops-test" {
		t.Fatalf("expected pubsub project inherited from firestore, got %s", cfg.Pubsub.ProjectID)
	}
}

func TestLoadOverridesFromEnvMap(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_PRICING_KNOWN_TIERS"] = "retail, trade"
	env["API_PRICING_TIER_CACHE_TTL"] = "30s"
	env["API_AUTH_KEYS"] = "ops=abc, automation=def"

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected overridden port, got %s", cfg.Server.Port)
	}
	if len(cfg.Pricing.KnownTiers) != 2 || cfg.Pricing.KnownTiers[1] != "trade" {
		t.Fatalf("unexpected tiers: %v", cfg.Pricing.KnownTiers)
	}
	if cfg.Pricing.TierCacheTTL != 30*time.Second {
		t.Fatalf("unexpected ttl: %v", cfg.Pricing.TierCacheTTL)
	}
	if cfg.Auth.APIKeys["ops"] != "abc" || cfg.Auth.APIKeys["automation"] != "def" {
		t.Fatalf("unexpected api keys: %v", cfg.Auth.APIKeys)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["API_COMMERCE_ACCESS_TOKEN"] = "secret://commerce-token"
	env["API_AUTH_KEYS"] = "ops=secret://ops-key"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		switch ref {
		case "secret://commerce-token":
			return "shpresolved", nil
		case "secret://ops-key":
			return "resolved-key", nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
		WithRequiredSecrets("Commerce.AccessToken", "Auth.APIKeys[ops]"),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Commerce.AccessToken != "shpresolved" {
		t.Fatalf("expected resolved token, got %s", cfg.Commerce.AccessToken)
	}
	if cfg.Auth.APIKeys["ops"] != "resolved-key" {
		t.Fatalf("expected resolved key, got %s", cfg.Auth.APIKeys["ops"])
	}
}

func TestLoadFailsOnMissingRequiredFields(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_FIRESTORE_PROJECT_ID": "p"}),
	)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fields := validation.Fields(); len(fields) == 0 {
		t.Fatal("expected missing fields listed")
	}
}

func TestLoadSurfacesSecretErrors(t *testing.T) {
	env := baseEnv()
	env["API_COMMERCE_ACCESS_TOKEN"] = "secret://commerce-token"

	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("permission denied")
	})

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if secretErr.Ref != "secret://commerce-token" {
		t.Fatalf("unexpected ref %s", secretErr.Ref)
	}
}

func TestLoadReportsMissingRequiredSecretsRedacted(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
		WithRequiredSecrets("Auth.APIKeys[ops]"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Auth.APIKeys[ops]" {
		t.Fatalf("unexpected names: %v", names)
	}
	for _, redacted := range missing.RedactedNames() {
		if redacted == "Auth.APIKeys[ops]" {
			t.Fatal("expected redacted identifier, got the raw name")
		}
	}
}

func TestNormalizeSecretReference(t *testing.T) {
	if got := normalizeSecretReference("sm://commerce-token"); got != "secret://commerce-token" {
		t.Fatalf("expected sm:// normalised, got %s", got)
	}
	if got := normalizeSecretReference(" secret://x "); got != "secret://x" {
		t.Fatalf("expected trimmed reference, got %s", got)
	}
}
