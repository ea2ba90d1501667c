package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789"

func newTestCodec(t *testing.T, opts ...CodecOption) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	cases := []Identity{
		{ID: "u-1", Role: "ADMIN"},
		{ID: "u-2", Role: "MANAGER", Department: "Finance"},
		{ID: "u-3", Role: "USER", Department: "IT"},
	}
	for _, in := range cases {
		token, exp, err := codec.Issue(in)
		if err != nil {
			t.Fatalf("Issue(%+v): %v", in, err)
		}
		if d := time.Until(exp); d < 23*time.Hour || d > 25*time.Hour {
			t.Fatalf("expected one day expiry, got %v", d)
		}
		got, err := codec.Verify(token)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if got != in {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, in)
		}
	}
}

func TestCodecOmitsEmptyDepartment(t *testing.T) {
	codec := newTestCodec(t)
	token, _, err := codec.Issue(Identity{ID: "u-1", Role: "USER"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if _, ok := claims["department"]; ok {
		t.Fatalf("department claim should be omitted: %v", claims)
	}
	if claims["sub"] != "u-1" || claims["role"] != "USER" || claims["jti"] == nil {
		t.Fatalf("unexpected claims: %v", claims)
	}
}

func TestCodecVerifyRejects(t *testing.T) {
	codec := newTestCodec(t)
	valid, _, err := codec.Issue(Identity{ID: "u-1", Role: "USER"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	past := func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, _, err := newTestCodec(t, WithClock(past)).Issue(Identity{ID: "u-1", Role: "USER"})
	if err != nil {
		t.Fatalf("Issue expired: %v", err)
	}
	otherKey, _ := NewCodec("another-secret-abcdefgh")
	foreign, _, _ := otherKey.Issue(Identity{ID: "u-1", Role: "USER"})
	otherIssuer, _, _ := newTestCodec(t, WithIssuer("someone-else")).Issue(Identity{ID: "u-1", Role: "USER"})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	admin, _, _ := codec.Issue(Identity{ID: "u-1", Role: "ADMIN"})
	parts, adminParts := strings.Split(valid, "."), strings.Split(admin, ".")
	tampered := parts[0] + "." + adminParts[1] + "." + parts[2]

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"tampered":     tampered,
		"expired":      expired,
		"wrong secret": foreign,
		"wrong issuer": otherIssuer,
		"alg none":     unsigned,
	}
	for name, token := range cases {
		if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestCodecIssueValidates(t *testing.T) {
	codec := newTestCodec(t)
	if _, _, err := codec.Issue(Identity{Role: "USER"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing subject, got %v", err)
	}
	if _, _, err := codec.Issue(Identity{ID: "x", Role: "ROOT"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown role, got %v", err)
	}
	if _, err := NewCodec("short"); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestUserServiceLogin(t *testing.T) {
	ctx := context.Background()
	codec := newTestCodec(t)
	svc, err := NewUserService(NewInMemoryUserStore(), codec)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	u, err := svc.CreateUser(ctx, NewUser{Email: " Ann@Example.com ", Name: "Ann", Password: "correct-horse", Role: "manager", Department: "Finance"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "ann@example.com" || u.Role != RoleManager || !u.IsActive {
		t.Fatalf("unexpected user: %+v", u)
	}

	sess, err := svc.Login(ctx, "ann@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	id, err := codec.Verify(sess.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.ID != u.ID || id.Role != "MANAGER" || id.Department != "Finance" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	for name, pw := range map[string]string{"wrong password": "nope-nope", "empty": ""} {
		if _, err := svc.Login(ctx, "ann@example.com", pw); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected invalid credentials, got %v", name, err)
		}
	}
	if _, err := svc.Login(ctx, "ghost@example.com", "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected invalid credentials, got %v", err)
	}

	if _, err := svc.DeactivateUser(ctx, u.ID); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	if _, err := svc.Login(ctx, "ann@example.com", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive user: expected invalid credentials, got %v", err)
	}
}

func TestUserServiceValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := NewUserService(NewInMemoryUserStore(), newTestCodec(t))

	_, err := svc.CreateUser(ctx, NewUser{Email: "bad", Name: "x", Password: "short", Role: "ROOT"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), "email") {
		t.Fatalf("expected email message, got %v", err)
	}

	first := NewUser{Email: "a@example.com", Name: "A", Password: "password1", Role: "USER"}
	if _, err := svc.CreateUser(ctx, first); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := svc.CreateUser(ctx, first); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	role := "ceo"
	if _, err := svc.UpdateUser(ctx, "missing", UserUpdate{Role: &role}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if _, err := svc.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEnsureAdminOnlyOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	svc, _ := NewUserService(NewInMemoryUserStore(), newTestCodec(t))

	created, err := svc.EnsureAdmin(ctx, "root@example.com", "bootstrap-pass")
	if err != nil || !created {
		t.Fatalf("EnsureAdmin first call: created=%v err=%v", created, err)
	}
	created, err = svc.EnsureAdmin(ctx, "other@example.com", "bootstrap-pass")
	if err != nil || created {
		t.Fatalf("EnsureAdmin second call: created=%v err=%v", created, err)
	}
	users, total, err := svc.ListUsers(ctx, UserFilter{Role: "admin"})
	if err != nil || total != 1 || users[0].Email != "root@example.com" {
		t.Fatalf("unexpected admin list: %v %d %v", users, total, err)
	}
}
