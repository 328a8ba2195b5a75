package state

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	st, err := Load(path)
	if err != nil || st.Token != "" {
		t.Fatalf("missing file should load empty state: %+v %v", st, err)
	}

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := Save(path, TokenState{Token: "abc", Username: "alice", Role: "competitor", ExpiresAt: exp}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	st, err = Load(path)
	if err != nil || st.Token != "abc" || !st.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected state: %+v %v", st, err)
	}
	if st.Expired(time.Now()) || !st.Expired(exp.Add(time.Second)) {
		t.Fatal("Expired mismatch")
	}

	if err := Clear(path); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("second Clear should be a no-op: %v", err)
	}
}
