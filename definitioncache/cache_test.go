package definitioncache

import (
	"testing"
	"time"
)

func TestStoreAndFetchTools(t *testing.T) {
	c := New(time.Minute)
	tools := []*ToolDefinition{{Name: "search", Description: "search the web"}}
	if err := c.StoreTools("srv", tools); err != nil {
		t.Fatalf("StoreTools: %v", err)
	}
	got, ok := c.Tools("srv")
	if !ok {
		t.Fatal("Tools() reported a miss right after StoreTools")
	}
	if len(got) != 1 || got[0].Name != "search" {
		t.Fatalf("Tools() = %+v, want one search tool", got)
	}
}

func TestToolsExpireAfterTTL(t *testing.T) {
	c := New(time.Minute)
	restore := fakeClock(t)
	defer restore()

	if err := c.StoreTools("srv", []*ToolDefinition{{Name: "search"}}); err != nil {
		t.Fatalf("StoreTools: %v", err)
	}
	if _, ok := c.Tools("srv"); !ok {
		t.Fatal("Tools() reported a miss before the TTL elapsed")
	}

	advanceClock(2 * time.Minute)
	if _, ok := c.Tools("srv"); ok {
		t.Fatal("Tools() reported a hit after the TTL elapsed")
	}
}

func TestInvalidateClearsAllThreeLists(t *testing.T) {
	c := New(time.Minute)
	_ = c.StoreTools("srv", []*ToolDefinition{{Name: "t"}})
	_ = c.StoreResources("srv", []*ResourceDefinition{{URI: "file:///a"}})
	c.StorePrompts("srv", []*PromptDefinition{{Name: "p"}})

	c.Invalidate("srv")

	if _, ok := c.Tools("srv"); ok {
		t.Error("Tools() still hit after Invalidate")
	}
	if _, ok := c.Resources("srv"); ok {
		t.Error("Resources() still hit after Invalidate")
	}
	if _, ok := c.Prompts("srv"); ok {
		t.Error("Prompts() still hit after Invalidate")
	}
}

func TestMatchResourceTemplate(t *testing.T) {
	c := New(0)
	if err := c.StoreResources("srv", []*ResourceDefinition{
		{URITemplate: "file:///{path}", Name: "file"},
	}); err != nil {
		t.Fatalf("StoreResources: %v", err)
	}
	def, ok := c.MatchResource("srv", "file:///etc/hosts")
	if !ok {
		t.Fatal("MatchResource missed a uri that fits the template")
	}
	if def.Name != "file" {
		t.Errorf("matched def.Name = %q, want file", def.Name)
	}
}

func TestMatchResourceExact(t *testing.T) {
	c := New(0)
	if err := c.StoreResources("srv", []*ResourceDefinition{
		{URI: "config://app", Name: "config"},
	}); err != nil {
		t.Fatalf("StoreResources: %v", err)
	}
	if _, ok := c.MatchResource("srv", "config://other"); ok {
		t.Fatal("MatchResource matched an unrelated fixed uri")
	}
	if _, ok := c.MatchResource("srv", "config://app"); !ok {
		t.Fatal("MatchResource missed the exact uri")
	}
}

// fakeClock swaps the package-level now() for a controllable one; callers
// must defer the returned restore func.
func fakeClock(t *testing.T) func() {
	t.Helper()
	current := time.Now()
	prev := now
	now = func() time.Time { return current }
	return func() { now = prev }
}

func advanceClock(d time.Duration) {
	current := now()
	now = func() time.Time { return current.Add(d) }
}
