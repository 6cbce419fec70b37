package multiagent

import "testing"

func newTestPrefixRouter() *PrefixRouter {
	return NewPrefixRouter(map[string]string{
		"code-expert": "code-expert",
		"codeexpert":  "code-expert",
		"writer":      "writer",
	}, nil)
}

func TestPrefixRouterWithAt(t *testing.T) {
	id, rest, ok := newTestPrefixRouter().Match("@writer draft a letter")
	if !ok {
		t.Fatal("expected prefix match")
	}
	if id != "writer" {
		t.Errorf("got %q, want %q", id, "writer")
	}
	if rest != "draft a letter" {
		t.Errorf("rest = %q", rest)
	}
}

func TestPrefixRouterCaseAndPunctuation(t *testing.T) {
	id, rest, ok := newTestPrefixRouter().Match("  @CodeExpert: fix this")
	if !ok || id != "code-expert" {
		t.Fatalf("got (%q, %v), want code-expert", id, ok)
	}
	if rest != "fix this" {
		t.Errorf("rest = %q", rest)
	}
}

func TestPrefixRouterNoPrefix(t *testing.T) {
	_, rest, ok := newTestPrefixRouter().Match("just a question")
	if ok {
		t.Fatal("no prefix must not match")
	}
	if rest != "just a question" {
		t.Errorf("rest = %q", rest)
	}
}

func TestPrefixRouterUnknown(t *testing.T) {
	_, rest, ok := newTestPrefixRouter().Match("@unknown hello")
	if ok {
		t.Fatal("unknown prefix must not match")
	}
	if rest != "@unknown hello" {
		t.Errorf("unknown prefix must leave the query untouched, got %q", rest)
	}
}

func TestPrefixRouterPrefixOnly(t *testing.T) {
	id, rest, ok := newTestPrefixRouter().Match("@writer")
	if !ok || id != "writer" || rest != "" {
		t.Errorf("got (%q, %q, %v)", id, rest, ok)
	}
}
