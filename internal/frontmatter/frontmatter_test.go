package frontmatter

import (
	"testing"

	"github.com/starford/livevars/internal/value"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantBlock string
		wantBody  string
		wantOK    bool
	}{
		{"no block", "# Title\nbody", "", "# Title\nbody", false},
		{"closed", "---\ntitle: X\n---\n\nbody\n", "title: X\n", "body\n", true},
		{"empty block", "---\n---\nbody", "", "body", true},
		{"trailing spaces on markers", "--- \ntitle: X\n---\t\nbody", "title: X\n", "body", true},
		{"unterminated", "---\ntitle: X\nbody", "", "---\ntitle: X\nbody", false},
		{"marker not first", "\n---\ntitle: X\n---\n", "", "\n---\ntitle: X\n---\n", false},
		{"closing at EOF", "---\ntitle: X\n---", "title: X\n", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			block, body, ok := Split(tc.raw)
			if ok != tc.wantOK || block != tc.wantBlock || body != tc.wantBody {
				t.Errorf("Split = (%q, %q, %v), want (%q, %q, %v)", block, body, ok, tc.wantBlock, tc.wantBody, tc.wantOK)
			}
		})
	}
}

func TestParse(t *testing.T) {
	raw := []byte("---\ntitle: Hello\ncount: 2\nmeta:\n  owner: alice\ntags: [a, b]\n---\nBody {{title}}\n")
	m := Parse(raw)
	if got := m.Keys(); len(got) != 4 || got[0] != "title" || got[3] != "tags" {
		t.Fatalf("keys = %v", got)
	}
	root := value.Object(m)
	if v, _ := value.Lookup(root, "meta.owner"); value.Display(v) != "alice" {
		t.Errorf("meta.owner = %s", value.Display(v))
	}
	if v, _ := value.Lookup(root, "count"); v.Kind() != value.KindNumber {
		t.Errorf("count kind = %s", v.Kind())
	}
}

func TestParse_DegradesToEmpty(t *testing.T) {
	for _, raw := range []string{
		"no front matter",
		"---\ntitle: [unclosed\n---\n",
		"---\n- just\n- a list\n---\n",
		"---\nplain scalar\n---\n",
		"---\n\n---\n",
	} {
		if m := Parse([]byte(raw)); m == nil || m.Len() != 0 {
			t.Errorf("Parse(%q) should be empty", raw)
		}
	}
}
