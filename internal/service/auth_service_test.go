package service_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/service"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret string, claims *service.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestValidateToken(t *testing.T) {
	svc := service.NewAuthService(&config.Config{JWTSecret: testSecret})

	token := mintToken(t, testSecret, &service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: service.TokenTypeStudent,
		UserID:    studentID,
		ClassID:   7,
	})

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TokenType != service.TokenTypeStudent || claims.UserID != studentID || claims.ClassID != 7 {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestValidateTokenRejections(t *testing.T) {
	svc := service.NewAuthService(&config.Config{JWTSecret: testSecret})

	expired := mintToken(t, testSecret, &service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		TokenType: service.TokenTypeStudent,
		UserID:    studentID,
	})
	if _, err := svc.ValidateToken(expired); err == nil {
		t.Fatal("expired token must be rejected")
	}

	wrongKey := mintToken(t, "other-secret", &service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: service.TokenTypeAdmin,
		UserID:    1,
	})
	if _, err := svc.ValidateToken(wrongKey); err == nil {
		t.Fatal("token signed with a foreign key must be rejected")
	}

	if _, err := svc.ValidateToken("not-a-jwt"); err == nil {
		t.Fatal("malformed token must be rejected")
	}
}
