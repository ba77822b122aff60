package secrets

import (
	"context"
	"strings"
	"testing"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "default", provider: "", wantErr: false},
		{name: "memory", provider: "memory", wantErr: false},
		{name: "env", provider: "env", wantErr: false},
		{name: "unknown provider", provider: "unknown", wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				if store != nil {
					t.Fatalf("store should be nil when error occurs")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestNewStore_VaultDoesNotDial(t *testing.T) {
	store, err := NewStore(Config{Provider: "vault", Vault: VaultConfig{Address: "http://127.0.0.1:1", PathPrefix: "secret/data/agent"}})
	if err != nil {
		t.Fatalf("NewStore vault: %v", err)
	}
	vs, ok := store.(*vaultStore)
	if !ok {
		t.Fatalf("expected *vaultStore, got %T", store)
	}
	if !vs.isKV2() {
		t.Error("secret/data prefix should be detected as KV v2")
	}
	if got := vs.buildPath("google_api_key"); got != "secret/data/agent/google_api_key" {
		t.Errorf("buildPath = %q", got)
	}
}

func TestMemoryAndEnvStoreBasicContract(t *testing.T) {
	ctx := context.Background()
	stores := []Store{NewMemoryStore(), NewEnvStore()}

	for _, s := range stores {
		if err := s.Set(ctx, "secret_test_key", "value"); err != nil {
			t.Fatalf("set secret failed: %v", err)
		}
		got, err := s.Get(ctx, "secret_test_key")
		if err != nil {
			t.Fatalf("get secret failed: %v", err)
		}
		if got != "value" {
			t.Fatalf("get secret = %q, want value", got)
		}
		if err := s.Delete(ctx, "secret_test_key"); err != nil {
			t.Fatalf("delete secret failed: %v", err)
		}
		_, err = s.Get(ctx, "secret_test_key")
		if err == nil {
			t.Fatalf("expected error after delete")
		}
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	t.Setenv("RESOLVE_TEST_KEY", "from-env")
	store := NewMemoryStoreWith(map[string]string{"google_cx": "cx-123"})

	tests := []struct {
		in, want string
	}{
		{"${RESOLVE_TEST_KEY}", "from-env"},
		{"${RESOLVE_TEST_MISSING}", ""},
		{"secret://google_cx", "cx-123"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tc := range tests {
		got, err := Resolve(ctx, store, tc.in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Resolve(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if _, err := Resolve(ctx, store, "secret://missing"); err == nil {
		t.Error("missing secret reference should error")
	}
	if _, err := Resolve(ctx, nil, "secret://google_cx"); err == nil {
		t.Error("secret reference without store should error")
	}
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStoreWith(map[string]string{"llm/openai": "a", "llm/claude": "b", "search/google": "c"})
	keys, err := s.List(ctx, "llm/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "llm/claude" || keys[1] != "llm/openai" {
		t.Errorf("List = %v", keys)
	}
}
