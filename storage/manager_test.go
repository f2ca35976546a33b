package storage

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type cart struct {
	Items []string `json:"items"`
	Total float64  `json:"total"`
}

func TestManagerSetGetRoundTrip(t *testing.T) {
	m := NewManager(NewMemoryPort(0))

	if err := m.SetItem("cart", cart{Items: []string{"fern"}, Total: 450}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got cart
	if !m.GetItem("cart", &got) {
		t.Fatalf("GetItem returned false")
	}
	if len(got.Items) != 1 || got.Items[0] != "fern" || got.Total != 450 {
		t.Fatalf("got %+v", got)
	}
}

func TestManagerStoresRenamedEnvelope(t *testing.T) {
	port := NewMemoryPort(0)
	m := NewManager(port, WithNamespace("test_"))

	if err := m.SetItem("k", map[string]string{"data": "kept"}, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, ok, _ := port.Get("test_k")
	if !ok {
		t.Fatalf("namespaced key missing")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		t.Fatalf("stored value not json: %v", err)
	}
	for _, short := range []string{"d", "t", "e"} {
		if _, ok := fields[short]; !ok {
			t.Fatalf("stored envelope %s missing %q", raw, short)
		}
	}
	// Payload keys are not renamed.
	if !strings.Contains(raw, `"data":"kept"`) {
		t.Fatalf("payload altered: %s", raw)
	}
}

func TestManagerReadsLongFieldNames(t *testing.T) {
	port := NewMemoryPort(0)
	clock := newFakeClock()
	m := NewManager(port, WithClock(clock.Now))

	exp := clock.Now().Add(time.Hour).UnixMilli()
	legacy := `{"data":{"theme":"dark"},"timestamp":1,"expires":` + jsonInt(exp) + `}`
	_ = port.Set(DefaultNamespace+"prefs", legacy)

	var got map[string]string
	if !m.GetItem("prefs", &got) || got["theme"] != "dark" {
		t.Fatalf("legacy envelope not read: %v", got)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestManagerExpiredItemIsEvictedOnRead(t *testing.T) {
	port := NewMemoryPort(0)
	clock := newFakeClock()
	m := NewManager(port, WithClock(clock.Now))

	if err := m.SetItem("session", "abc", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(time.Minute)
	if !m.GetItem("session", nil) {
		t.Fatalf("item at exactly expires should still be live")
	}

	clock.Advance(time.Millisecond)
	var got string
	if m.GetItem("session", &got) {
		t.Fatalf("expired item returned %q", got)
	}
	if _, ok, _ := port.Get(DefaultNamespace + "session"); ok {
		t.Fatalf("expired item not evicted")
	}
}

func TestManagerDefaultTTLIsSevenDays(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(NewMemoryPort(0), WithClock(clock.Now))
	if err := m.SetItem("k", 1, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(7*24*time.Hour - time.Second)
	if !m.GetItem("k", nil) {
		t.Fatalf("item expired before seven days")
	}
	clock.Advance(2 * time.Second)
	if m.GetItem("k", nil) {
		t.Fatalf("item survived past seven days")
	}
}

func TestManagerMalformedEntriesAreAbsent(t *testing.T) {
	port := NewMemoryPort(0)
	m := NewManager(port)

	_ = port.Set(DefaultNamespace+"garbage", "{not json")
	_ = port.Set(DefaultNamespace+"partial", `{"d":1}`)

	if m.GetItem("garbage", nil) {
		t.Fatalf("garbage entry returned")
	}
	if _, ok := m.GetRaw("partial"); ok {
		t.Fatalf("partial entry returned")
	}
	keys, _ := port.Keys()
	if len(keys) != 0 {
		t.Fatalf("malformed entries not evicted: %v", keys)
	}
}

func TestManagerDecodeMismatchEvicts(t *testing.T) {
	m := NewManager(NewMemoryPort(0))
	if err := m.SetItem("n", "not a number", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var n int
	if m.GetItem("n", &n) {
		t.Fatalf("decode mismatch returned true")
	}
	if _, ok := m.GetRaw("n"); ok {
		t.Fatalf("undecodable entry still present")
	}
}

func TestManagerDecodeMismatchKeepsRewrittenValue(t *testing.T) {
	m := NewManager(NewMemoryPort(0))
	if err := m.SetItem("n", 42, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	// The failed decode saw an older payload than the one now stored.
	if m.evictIfUnchanged(m.prefix+"n", json.RawMessage(`"not a number"`)) {
		t.Fatalf("rewritten entry evicted")
	}
	var n int
	if !m.GetItem("n", &n) || n != 42 {
		t.Fatalf("GetItem = %d, want 42", n)
	}
}

func TestManagerUpdateSerializesAppends(t *testing.T) {
	m := NewManager(NewMemoryPort(0))
	const writers = 8

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.Update("log", 0, func(current json.RawMessage, ok bool) (any, error) {
				var list []int
				if ok {
					if err := json.Unmarshal(current, &list); err != nil {
						return nil, err
					}
				}
				return append(list, i), nil
			})
			if err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	var list []int
	if !m.GetItem("log", &list) || len(list) != writers {
		t.Fatalf("list = %v, want %d entries", list, writers)
	}
}

func TestManagerUpdateErrorLeavesItem(t *testing.T) {
	m := NewManager(NewMemoryPort(0))
	_ = m.SetItem("k", "v1", 0)

	err := m.Update("k", 0, func(json.RawMessage, bool) (any, error) {
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var got string
	if !m.GetItem("k", &got) || got != "v1" {
		t.Fatalf("item = %q", got)
	}
}

func TestManagerCleanupOnlyTouchesNamespace(t *testing.T) {
	port := NewMemoryPort(0)
	clock := newFakeClock()
	m := NewManager(port, WithClock(clock.Now))

	_ = m.SetItem("short", 1, time.Second)
	_ = m.SetItem("long", 2, time.Hour)
	_ = port.Set(DefaultNamespace+"broken", "oops")
	_ = port.Set("other_app_key", "oops")

	clock.Advance(time.Minute)
	if removed := m.Cleanup(); removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	keys, _ := port.Keys()
	want := []string{"other_app_key", DefaultNamespace + "long"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	if again := m.Cleanup(); again != 0 {
		t.Fatalf("second cleanup removed %d", again)
	}
}

func TestManagerCleanupConcurrentWithWrites(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(NewMemoryPort(0), WithClock(clock.Now))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.SetItem("live", j, time.Hour)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Cleanup()
				m.GetItem("live", nil)
			}
		}()
	}
	wg.Wait()

	if !m.GetItem("live", nil) {
		t.Fatalf("live item lost to cleanup")
	}
}

func TestManagerUsageTriggersCleanup(t *testing.T) {
	port := NewMemoryPort(0)
	clock := newFakeClock()
	m := NewManager(port, WithClock(clock.Now), WithQuota(200))

	_ = m.SetItem("stale", strings.Repeat("x", 100), time.Second)
	clock.Advance(time.Minute)

	// The stale entry is still on the port until usage crosses the quota.
	if _, ok, _ := port.Get(DefaultNamespace + "stale"); !ok {
		t.Fatalf("stale entry evicted too early")
	}
	_ = m.SetItem("fresh", strings.Repeat("y", 100), time.Hour)

	if _, ok, _ := port.Get(DefaultNamespace + "stale"); ok {
		t.Fatalf("stale entry survived automatic cleanup")
	}
	if !m.GetItem("fresh", nil) {
		t.Fatalf("fresh entry missing")
	}
}

func TestManagerQuotaExceededCleansAndRetries(t *testing.T) {
	port := NewMemoryPort(220)
	clock := newFakeClock()
	m := NewManager(port, WithClock(clock.Now))

	if err := m.SetItem("old", strings.Repeat("a", 100), time.Second); err != nil {
		t.Fatalf("set old: %v", err)
	}
	clock.Advance(time.Minute)

	if err := m.SetItem("new", strings.Repeat("b", 100), time.Hour); err != nil {
		t.Fatalf("set new after cleanup: %v", err)
	}

	if err := m.SetItem("huge", strings.Repeat("c", 500), time.Hour); err == nil {
		t.Fatalf("expected quota error for oversized item")
	}
	if !m.GetItem("new", nil) {
		t.Fatalf("existing item lost after failed write")
	}
}

func TestManagerExportImport(t *testing.T) {
	src := NewManager(NewMemoryPort(0), WithNamespace("a_"))
	_ = src.SetItem("filters", map[string]any{"category": "ferns"}, 0)
	_ = src.SetItem("theme", "dark", 0)

	exported := src.ExportAll()
	if len(exported) != 2 {
		t.Fatalf("exported %d items, want 2", len(exported))
	}

	dst := NewManager(NewMemoryPort(0), WithNamespace("b_"))
	if err := dst.ImportAll(exported); err != nil {
		t.Fatalf("import: %v", err)
	}
	var theme string
	if !dst.GetItem("theme", &theme) || theme != "dark" {
		t.Fatalf("theme = %q", theme)
	}

	err := dst.ImportAll(map[string]json.RawMessage{"bad": json.RawMessage("{")})
	if err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestManagerNamespacesAreIsolated(t *testing.T) {
	port := NewMemoryPort(0)
	a := NewManager(port, WithNamespace("a_"))
	b := NewManager(port, WithNamespace("b_"))

	_ = a.SetItem("k", "from a", 0)
	if b.GetItem("k", nil) {
		t.Fatalf("namespace b sees a's item")
	}
	if err := b.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !a.GetItem("k", nil) {
		t.Fatalf("clearing b removed a's item")
	}
}
