package utils_test

import (
	"testing"

	"canvas-notes-backend/pkg/utils"
)

func TestJWT_RoundTrip(t *testing.T) {
	svc := utils.NewJWTService("test-secret")

	token, exp, err := svc.GenerateAccessToken("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if exp == 0 {
		t.Error("expected a non-zero expiry")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "user@example.com" {
		t.Errorf("claims wrong: %+v", claims)
	}
	if claims.Type != "access" {
		t.Errorf("expected access token, got %q", claims.Type)
	}
}

func TestJWT_WrongSecretRejected(t *testing.T) {
	token, _, err := utils.NewJWTService("secret-a").GenerateAccessToken("user-1", "u@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := utils.NewJWTService("secret-b").ValidateToken(token); err == nil {
		t.Fatal("token signed with a different secret must be rejected")
	}
}

func TestJWT_GarbageRejected(t *testing.T) {
	svc := utils.NewJWTService("test-secret")
	if _, err := svc.ValidateToken("not.a.token"); err == nil {
		t.Fatal("garbage token must be rejected")
	}
}

func TestJWT_ExtractUser(t *testing.T) {
	svc := utils.NewJWTService("test-secret")
	token, _, err := svc.GenerateAccessToken("user-9", "nine@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	user, err := svc.ExtractUserFromToken(token)
	if err != nil {
		t.Fatalf("ExtractUserFromToken: %v", err)
	}
	if user.ID != "user-9" || user.Email != "nine@example.com" {
		t.Errorf("user wrong: %+v", user)
	}
}
