package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/taskboard/internal/model"
)

const testSecret = "test-session-secret-32bytes-long!"

func TestTokenManager_IssueAndVerify(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	user := model.SessionUser{ID: "user-1", Name: "A", Email: "a@x.com"}

	token, expiresAt, err := m.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Fatal("Issue() returned empty token")
	}
	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Errorf("expiresAt in %v, want about 1h", until)
	}

	got, ok := m.Verify(token)
	if !ok {
		t.Fatal("Verify() = false, want true")
	}
	if *got != user {
		t.Errorf("Verify() = %+v, want %+v", *got, user)
	}
}

func TestTokenManager_Verify_Invalid(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	valid, _, err := m.Issue(model.SessionUser{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	expired, _, err := NewTokenManager(testSecret, -time.Minute).Issue(model.SessionUser{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	otherKey, _, err := NewTokenManager("another-secret-that-is-32-bytes!!", time.Hour).Issue(model.SessionUser{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// alg=noneのトークンは受け付けない
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString(none) error = %v", err)
	}

	// 有効期限のないトークンは受け付けない
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"空文字", ""},
		{"形式不正", "not-a-token"},
		{"期限切れ", expired},
		{"署名鍵が異なる", otherKey},
		{"改ざん", tamperSignature(valid)},
		{"alg=none", none},
		{"expなし", noExp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Verify(tt.token)
			if ok || got != nil {
				t.Errorf("Verify() = (%+v, %v), want (nil, false)", got, ok)
			}
		})
	}
}

// tamperSignature は署名部分の1文字を別の文字に置き換える。
func tamperSignature(token string) string {
	i := strings.LastIndex(token, ".") + 5
	replacement := byte('A')
	if token[i] == 'A' {
		replacement = 'B'
	}
	return token[:i] + string(replacement) + token[i+1:]
}

func TestTokenManager_Issue_RequiresUserID(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)

	if _, _, err := m.Issue(model.SessionUser{Name: "no id"}); err == nil {
		t.Error("Issue() error = nil, want error for empty user ID")
	}
}
