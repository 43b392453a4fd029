package store

import (
	"testing"

	"github.com/mmdatafocus/pos_sync/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(nil, config.GetLogger())
}

func TestScopedKeysIsolateTenants(t *testing.T) {
	s := newTestStore(t)
	a := TenantScope{BusinessID: "biz-a", UserID: "u1"}
	b := TenantScope{BusinessID: "biz-b", UserID: "u1"}

	s.Write(a, "expenses_queue", []byte(`["a"]`))
	s.Write(b, "expenses_queue", []byte(`["b"]`))

	got, ok := s.Read(a, "expenses_queue")
	if !ok || string(got) != `["a"]` {
		t.Fatalf("tenant a read = %q, %v", got, ok)
	}
	got, ok = s.Read(b, "expenses_queue")
	if !ok || string(got) != `["b"]` {
		t.Fatalf("tenant b read = %q, %v", got, ok)
	}
}

func TestScopeIsZeroRequiresBothIdentifiers(t *testing.T) {
	if !(TenantScope{BusinessID: "biz"}).IsZero() {
		t.Fatal("scope with empty user must be zero")
	}
	if !(TenantScope{UserID: "u1"}).IsZero() {
		t.Fatal("scope with empty business must be zero")
	}
	if (TenantScope{BusinessID: "biz", UserID: "u1"}).IsZero() {
		t.Fatal("fully resolved scope must not be zero")
	}
}

func TestKeyFormat(t *testing.T) {
	scope := TenantScope{BusinessID: "biz", UserID: "u1"}
	if got := scope.Key("orders_cache"); got != "tenant:biz:user:u1:orders_cache" {
		t.Fatalf("Key = %q", got)
	}
	if got := (TenantScope{}).Key("orders_cache"); got != "orders_cache" {
		t.Fatalf("unscoped Key = %q", got)
	}
}

func TestLegacyKeyMigrationForwardCopies(t *testing.T) {
	s := newTestStore(t)
	s.migrateLegacy = true
	scope := TenantScope{BusinessID: "biz", UserID: "u1"}

	// Pre-scoping build left a bare key behind.
	s.Write(TenantScope{}, "held_sales", []byte(`{"old":true}`))

	got, ok := s.Read(scope, "held_sales")
	if !ok || string(got) != `{"old":true}` {
		t.Fatalf("migrated read = %q, %v", got, ok)
	}

	// Forward copy is non-destructive: the legacy key survives.
	if _, ok := s.Read(TenantScope{}, "held_sales"); !ok {
		t.Fatal("legacy key must survive the forward copy")
	}
	// And the scoped copy is now independent.
	s.Write(TenantScope{}, "held_sales", []byte(`{"changed":true}`))
	got, _ = s.Read(scope, "held_sales")
	if string(got) != `{"old":true}` {
		t.Fatalf("scoped copy changed with legacy key: %q", got)
	}
}

func TestLegacyMigrationDisabled(t *testing.T) {
	s := newTestStore(t)
	s.migrateLegacy = false
	scope := TenantScope{BusinessID: "biz", UserID: "u1"}

	s.Write(TenantScope{}, "held_sales", []byte(`{"old":true}`))
	if _, ok := s.Read(scope, "held_sales"); ok {
		t.Fatal("read must miss when migration is disabled")
	}
}

func TestRemoveAcrossScopes(t *testing.T) {
	s := newTestStore(t)
	a := TenantScope{BusinessID: "biz-a", UserID: "u1"}
	b := TenantScope{BusinessID: "biz-b", UserID: "u2"}

	s.Write(TenantScope{}, "offline_sales_queue", []byte(`[]`))
	s.Write(a, "offline_sales_queue", []byte(`[1]`))
	s.Write(b, "offline_sales_queue", []byte(`[2]`))
	s.Write(a, "orders_cache", []byte(`[3]`))

	s.RemoveAcrossScopes("offline_sales_queue")

	if _, ok := s.Read(TenantScope{}, "offline_sales_queue"); ok {
		t.Fatal("bare key must be removed")
	}
	if _, ok := s.Read(a, "offline_sales_queue"); ok {
		t.Fatal("tenant a queue must be removed")
	}
	if _, ok := s.Read(b, "offline_sales_queue"); ok {
		t.Fatal("tenant b queue must be removed")
	}
	if _, ok := s.Read(a, "orders_cache"); !ok {
		t.Fatal("unrelated key must survive")
	}
}

func TestReadJSONRoundTrip(t *testing.T) {
	s := newTestStore(t)
	scope := TenantScope{BusinessID: "biz", UserID: "u1"}

	type blob struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := WriteJSON(s, scope, "sample", blob{Name: "x", Count: 2}); err != nil {
		t.Fatal(err)
	}
	var out blob
	if !ReadJSON(s, scope, "sample", &out) {
		t.Fatal("ReadJSON missed a written key")
	}
	if out.Name != "x" || out.Count != 2 {
		t.Fatalf("round trip = %+v", out)
	}
}

func TestReadJSONCorruptValue(t *testing.T) {
	s := newTestStore(t)
	scope := TenantScope{BusinessID: "biz", UserID: "u1"}
	s.Write(scope, "sample", []byte(`{not json`))

	var out map[string]string
	if ReadJSON(s, scope, "sample", &out) {
		t.Fatal("corrupt value must read as a miss")
	}
}

func TestResolveScopeTrimsAndValidates(t *testing.T) {
	if got := ResolveScope(" biz ", " u1 "); got.BusinessID != "biz" || got.UserID != "u1" {
		t.Fatalf("ResolveScope = %+v", got)
	}
	if got := ResolveScope("biz", " "); !got.IsZero() {
		t.Fatalf("blank user must resolve to zero scope, got %+v", got)
	}
}
