package keys

import (
	"strings"
	"testing"
)

func TestGenerateTokenShape(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Fatalf("expected %q prefix, got %q", TokenPrefix, token)
	}
	if got, want := len(token), len(TokenPrefix)+tokenLength; got != want {
		t.Fatalf("expected length %d, got %d", want, got)
	}
	for _, r := range token[len(TokenPrefix):] {
		if !strings.ContainsRune(tokenAlphabet, r) {
			t.Fatalf("unexpected character %q in token", r)
		}
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateToken()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %q", token)
		}
		seen[token] = true
	}
}

func TestDigestStableAndTrimmed(t *testing.T) {
	token := "alk_example"
	if Digest(token) != Digest("  "+token+"\n") {
		t.Fatalf("expected digest to ignore surrounding whitespace")
	}
	if Digest(token) == Digest("alk_other") {
		t.Fatalf("expected differing digests for differing tokens")
	}
	if len(Digest(token)) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(Digest(token)))
	}
}

func TestHint(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	hint := Hint(token)
	if !strings.HasPrefix(hint, TokenPrefix) {
		t.Fatalf("expected hint to keep prefix, got %q", hint)
	}
	if strings.Contains(hint, token[len(TokenPrefix)+4:]) {
		t.Fatalf("hint leaks token body: %q", hint)
	}
}

func TestLooksLikeToken(t *testing.T) {
	if !LooksLikeToken(" alk_abc ") {
		t.Fatalf("expected prefixed value to look like a token")
	}
	if LooksLikeToken("sk_live_abc") {
		t.Fatalf("did not expect foreign prefix to look like a token")
	}
}
