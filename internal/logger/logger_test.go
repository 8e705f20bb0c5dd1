package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetupFormats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := Setup("json", "warn", &buf)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", SolverKey, "ConvGemm1x1")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"solver":"ConvGemm1x1"`)

	buf.Reset()
	log, err = Setup(" Text ", "debug", &buf)
	require.NoError(t, err)
	log.Debug("tick")
	require.Contains(t, buf.String(), "msg=tick")

	buf.Reset()
	log, err = Setup("", "info", &buf)
	require.NoError(t, err)
	log.Info("pretty by default")
	require.Contains(t, buf.String(), ansiBlue+ansiBold+"INFO ")

	_, err = Setup("xml", "info", &buf)
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("via context")
	require.Contains(t, buf.String(), "via context")

	require.NotNil(t, FromContext(context.Background()))
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.With(SolverKey, "x").WithGroup("g").Error("dropped")
}

func TestSourceIsTheCaller(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Pretty(&buf, slog.LevelInfo).Warn("located")
	require.Contains(t, buf.String(), "[logger_test.go:")

	buf.Reset()
	JSON(&buf, slog.LevelInfo).With("k", 1).Info("located")
	require.Contains(t, buf.String(), "logger_test.go")
	require.NotContains(t, buf.String(), `logger.go"`)
}

func TestPrettyAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))
	log.Info("search done",
		SolverKey, "ConvIm2ColGemm",
		"best", 1500*time.Microsecond,
		"config", "16,32,8,1",
		"note", "two words",
		"error", errors.New("boom"),
	)

	out := buf.String()
	require.Contains(t, out, ansiGreen+"solver=ConvIm2ColGemm"+ansiReset)
	require.Contains(t, out, "best=1.5ms")
	require.Contains(t, out, "config=16,32,8,1")
	require.Contains(t, out, `note="two words"`)
	require.Contains(t, out, ansiRed+"error=boom")
	require.True(t, strings.HasSuffix(out, "\n"))
	require.Equal(t, 1, strings.Count(out, "\n"))
}

func TestPrettyLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))

	log := New(h)
	log.Info("quiet")
	require.Zero(t, buf.Len())
	log.Error("loud")
	require.Contains(t, buf.String(), "loud")
}

func TestPrettyGroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(NewPrettyHandler(&buf, nil))

	base.With(SolverKey, "ConvGemm1x1").WithGroup("search").WithGroup("window").
		Info("heartbeat", "n", 3, slog.Group("best", "index", 7))
	out := buf.String()
	require.Contains(t, out, "solver=ConvGemm1x1")
	require.Contains(t, out, "search.window.n=3")
	require.Contains(t, out, "search.window.best.index=7")

	buf.Reset()
	// A solver attribute inside a group is an ordinary attribute.
	base.WithGroup("db").Info("stored", SolverKey, "ConvGemm1x1")
	require.Contains(t, buf.String(), ansiCyan+"db.solver=ConvGemm1x1")

	buf.Reset()
	require.Same(t, base.Handler(), base.Handler().WithGroup(""))
	base.With().Info("bare")
	require.Contains(t, buf.String(), "bare")
}

func TestPrettyDerivedHandlersAreIndependent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	root := NewPrettyHandler(&buf, nil)
	a := slog.New(root.WithAttrs([]slog.Attr{slog.String("branch", "a")}))
	b := slog.New(root.WithAttrs([]slog.Attr{slog.String("branch", "b")}))

	a.Info("one")
	b.Info("two")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "branch=a")
	require.NotContains(t, lines[0], "branch=b")
	require.Contains(t, lines[1], "branch=b")
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()
	require.True(t, needsQuoting(""))
	require.True(t, needsQuoting("a b"))
	require.True(t, needsQuoting(`say "hi"`))
	require.True(t, needsQuoting("k=v"))
	require.False(t, needsQuoting("ConvGemm1x1"))
	require.False(t, needsQuoting("3-32-32-3x3-64-32-32-8-1x1-1x1-1x1-1-0-NCHW-FP32-F"))
}
