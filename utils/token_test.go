package utils

import (
	"testing"
	"time"
)

func TestTokenLifespan(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want time.Duration
	}{
		{name: "unset defaults to 24h", env: "", want: 24 * time.Hour},
		{name: "explicit hours", env: "6", want: 6 * time.Hour},
		{name: "garbage defaults to 24h", env: "six", want: 24 * time.Hour},
		{name: "non-positive defaults to 24h", env: "-1", want: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TOKEN_HOUR_LIFESPAN", tt.env)
			if got := TokenLifespan(); got != tt.want {
				t.Fatalf("TokenLifespan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJwtGenerate_WithoutLifespanEnv(t *testing.T) {
	t.Setenv("TOKEN_HOUR_LIFESPAN", "")

	token, err := JwtGenerate("ravi@truestate.in", "kam", "truestate")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	parsed, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		t.Fatalf("claims type %T", parsed.Claims)
	}
	if claims.Email != "ravi@truestate.in" || claims.Role != "kam" || claims.Platform != "truestate" {
		t.Errorf("claims = %+v", claims)
	}

	wantExpiry := time.Now().Add(24 * time.Hour).Unix()
	if diff := claims.ExpiresAt - wantExpiry; diff < -5 || diff > 5 {
		t.Errorf("ExpiresAt = %d, want about %d", claims.ExpiresAt, wantExpiry)
	}
}
