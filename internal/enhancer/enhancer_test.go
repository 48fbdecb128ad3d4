package enhancer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/grouper/internal/event"
)

func boolPtr(b bool) *bool { return &b }

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_InvalidRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantLine int
	}{
		{name: "unknown matcher", raw: "color:red -app", wantLine: 1},
		{name: "missing actions", raw: "function:foo", wantLine: 1},
		{name: "missing matchers", raw: "+app", wantLine: 1},
		{name: "unknown action flag", raw: "function:foo +sticky", wantLine: 1},
		{name: "matcher after action", raw: "function:foo -app module:bar", wantLine: 1},
		{name: "unterminated quote", raw: `function:"foo bar -app`, wantLine: 1},
		{name: "invalid app value", raw: "app:maybe -group", wantLine: 1},
		{name: "error on later line", raw: "# comment\n\nfunction:ok -app\nbogus", wantLine: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			_, err := Parse(tt.raw, nil)

			// Assert
			var invalid *InvalidEnhancementsError
			require.True(t, errors.As(err, &invalid), "expected InvalidEnhancementsError, got %v", err)
			assert.Equal(t, tt.wantLine, invalid.Line)
		})
	}
}

func TestParse_UnknownBase(t *testing.T) {
	t.Parallel()

	// Act
	_, err := Parse("", []string{"does-not-exist"})

	// Assert
	require.Error(t, err)
	var invalid *InvalidEnhancementsError
	assert.False(t, errors.As(err, &invalid), "unknown bases are not syntax errors")
}

func TestParse_CanonicalText(t *testing.T) {
	t.Parallel()

	// Act
	e, err := Parse("  !module:foo.*   function:\"a b\"  -app +group  ", nil)

	// Assert
	require.NoError(t, err)
	require.Len(t, e.Rules, 1)
	assert.Equal(t, `!module:foo.* function:"a b" -app +group`, e.Rules[0].Text())
	assert.Equal(t, LatestVersion, e.Version)
}

func TestBaseNames_AllCompile(t *testing.T) {
	t.Parallel()

	for _, name := range BaseNames() {
		e, err := Parse("", []string{name})
		require.NoError(t, err, name)
		assert.NotEmpty(t, e.effectiveRules(), name)
	}
}

// =============================================================================
// ApplyToFrames Tests
// =============================================================================

func TestApplyToFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		bases    []string
		platform string
		frame    event.Frame
		want     FrameState
	}{
		{
			name:     "no rules keeps client in_app",
			platform: "python",
			frame:    event.Frame{Function: "main", InApp: boolPtr(true)},
			want:     FrameState{InApp: true, Contributes: true},
		},
		{
			name:     "base marks node_modules as system",
			bases:    []string{"newstyle:2023-01-11"},
			platform: "javascript",
			frame:    event.Frame{AbsPath: "/app/node_modules/react/index.js", InApp: boolPtr(true)},
			want:     FrameState{InApp: false, Contributes: true},
		},
		{
			name:     "base ignored for other family",
			bases:    []string{"newstyle:2023-01-11"},
			platform: "python",
			frame:    event.Frame{AbsPath: "/app/node_modules/react/index.js", InApp: boolPtr(true)},
			want:     FrameState{InApp: true, Contributes: true},
		},
		{
			name:     "path matching is case insensitive",
			raw:      "path:**/vendor/** -app",
			platform: "go",
			frame:    event.Frame{Filename: `C:\Src\Vendor\lib.go`, InApp: boolPtr(true)},
			want:     FrameState{InApp: false, Contributes: true},
		},
		{
			name:     "group removal sets hint",
			raw:      "function:log_* -group",
			platform: "python",
			frame:    event.Frame{Function: "log_error"},
			want: FrameState{
				InApp:       false,
				Contributes: false,
				Hint:        "marked out of grouping by stack trace rule (function:log_* -group)",
			},
		},
		{
			name:     "project rules override bases",
			raw:      "path:**/node_modules/my-lib/** +app",
			bases:    []string{"newstyle:2023-01-11"},
			platform: "javascript",
			frame:    event.Frame{AbsPath: "/app/node_modules/my-lib/index.js"},
			want:     FrameState{InApp: true, Contributes: true},
		},
		{
			name:     "app matcher sees earlier actions",
			raw:      "module:vendor.* -app\napp:no -group",
			platform: "python",
			frame:    event.Frame{Module: "vendor.http", InApp: boolPtr(true)},
			want: FrameState{
				InApp:       false,
				Contributes: false,
				Hint:        "marked out of grouping by stack trace rule (app:no -group)",
			},
		},
		{
			name:     "negated matcher",
			raw:      "!module:myapp.* -group",
			platform: "python",
			frame:    event.Frame{Module: "myapp.views"},
			want:     FrameState{InApp: false, Contributes: true},
		},
		{
			name:     "frame platform beats event platform",
			raw:      "family:native function:* -group",
			platform: "javascript",
			frame:    event.Frame{Function: "memcpy", Platform: "native"},
			want: FrameState{
				Contributes: false,
				Hint:        "marked out of grouping by stack trace rule (family:native function:* -group)",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			e, err := Parse(tt.raw, tt.bases)
			require.NoError(t, err)
			ev := &event.Event{Platform: tt.platform}

			// Act
			states := e.ApplyToFrames(ev, []event.Frame{tt.frame})

			// Assert
			require.Len(t, states, 1)
			assert.Equal(t, tt.want, states[0])
		})
	}
}

// =============================================================================
// Dumps / Loads Tests
// =============================================================================

func TestCodecs_Initialized(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() { mustZstdEncoder() })
	require.NotPanics(t, func() { mustZstdDecoder() })
	assert.NotNil(t, zstdEncoder)
	assert.NotNil(t, zstdDecoder)
}

func TestDumps_Deterministic(t *testing.T) {
	t.Parallel()

	// Arrange
	raw := "function:foo -group\npath:**/lib/** -app"
	a, err := Parse(raw, []string{"newstyle:2023-01-11"})
	require.NoError(t, err)
	b, err := Parse(raw, []string{"newstyle:2023-01-11"})
	require.NoError(t, err)

	// Act
	blobA, err := a.Dumps()
	require.NoError(t, err)
	blobB, err := b.Dumps()
	require.NoError(t, err)

	// Assert
	assert.Equal(t, blobA, blobB)
	assert.NotContains(t, blobA, "=", "blob is unpadded base64url")
}

func TestLoads_RestoresBehavior(t *testing.T) {
	t.Parallel()

	// Arrange
	original, err := Parse("function:log_* -group", []string{"newstyle:2023-01-11"})
	require.NoError(t, err)
	blob, err := original.Dumps()
	require.NoError(t, err)

	ev := &event.Event{Platform: "javascript"}
	frames := []event.Frame{
		{Function: "log_error"},
		{AbsPath: "/srv/node_modules/x/y.js", InApp: boolPtr(true)},
	}

	// Act
	restored, err := Loads(blob)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, original.Bases, restored.Bases)
	assert.Equal(t, original.ApplyToFrames(ev, frames), restored.ApplyToFrames(ev, frames))

	again, err := Loads(blob)
	require.NoError(t, err)
	assert.Same(t, restored, again, "loaded blobs are memoized")
}

func TestLoads_InvalidBlob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		blob string
	}{
		{name: "empty", blob: ""},
		{name: "not base64", blob: "!!!"},
		{name: "not zstd", blob: "aGVsbG8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			_, err := Loads(tt.blob)

			// Assert
			assert.Error(t, err)
		})
	}
}
