package tab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAccessible(t *testing.T) {
	tests := []struct {
		url     string
		blocked bool
	}{
		{"https://example.com/login", false},
		{"http://localhost:8080", false},
		{"file:///tmp/page.html", false},
		{"chrome://settings", true},
		{"chrome-extension://abcdef/popup.html", true},
		{"CHROME://newtab", true},
		{"about:blank", true},
		{"edge://flags", true},
		{"devtools://devtools/bundled/inspector.html", true},
		{"view-source:https://example.com", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := CheckAccessible(tt.url)
			if tt.blocked {
				var ie *InaccessibleError
				assert.ErrorAs(t, err, &ie)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type stubResolver struct {
	active Info
	byID   map[ID]Info
}

func (s stubResolver) Active(ctx context.Context) (Info, error) { return s.active, nil }

func (s stubResolver) Lookup(ctx context.Context, id ID) (Info, error) {
	info, ok := s.byID[id]
	if !ok {
		return Info{}, ErrNoActiveTab
	}
	return info, nil
}

func TestResolve(t *testing.T) {
	r := stubResolver{
		active: Info{ID: "a", URL: "https://a.test"},
		byID:   map[ID]Info{"b": {ID: "b", URL: "https://b.test"}},
	}
	ctx := context.Background()

	info, err := Resolve(ctx, r, "")
	assert.NoError(t, err)
	assert.Equal(t, ID("a"), info.ID)

	info, err = Resolve(ctx, r, "b")
	assert.NoError(t, err)
	assert.Equal(t, ID("b"), info.ID)

	_, err = Resolve(ctx, r, "missing")
	assert.ErrorIs(t, err, ErrNoActiveTab)
}
