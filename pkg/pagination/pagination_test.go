package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func ctxWithQuery(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+rawQuery, nil)
	return c
}

func TestParseDefaults(t *testing.T) {
	p := Parse(ctxWithQuery(t, ""))
	if p.Page != DefaultPage || p.Limit != DefaultLimit {
		t.Fatalf("expected defaults %d/%d, got %d/%d", DefaultPage, DefaultLimit, p.Page, p.Limit)
	}
	if p.Offset != 0 {
		t.Fatalf("expected offset 0, got %d", p.Offset)
	}
}

func TestParseValidValues(t *testing.T) {
	p := Parse(ctxWithQuery(t, "page=3&limit=50"))
	if p.Page != 3 || p.Limit != 50 {
		t.Fatalf("expected 3/50, got %d/%d", p.Page, p.Limit)
	}
	if p.Offset != 100 {
		t.Fatalf("expected offset 100, got %d", p.Offset)
	}
}

func TestParseClampsOutOfRange(t *testing.T) {
	cases := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"page=0&limit=0", DefaultPage, DefaultLimit},
		{"page=-5&limit=-1", DefaultPage, DefaultLimit},
		{"page=2&limit=9999", 2, MaxLimit},
		{"page=abc&limit=xyz", DefaultPage, DefaultLimit},
	}

	for _, tc := range cases {
		p := Parse(ctxWithQuery(t, tc.query))
		if p.Page != tc.wantPage || p.Limit != tc.wantLimit {
			t.Fatalf("query %q: expected %d/%d, got %d/%d", tc.query, tc.wantPage, tc.wantLimit, p.Page, p.Limit)
		}
	}
}
