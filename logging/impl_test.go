package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestConsoleAppenderOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("ransac")
	logger.AddAppender(NewWriterAppender(&buf))
	logger.SetLevel(INFO)

	logger.Debugw("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Infow("best model", "inliers", 20, "iteration", 3)
	parts := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	test.That(t, len(parts), test.ShouldEqual, 6)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "ransac")
	test.That(t, parts[3], test.ShouldContainSubstring, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "best model")

	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields, test.ShouldResemble, map[string]any{"inliers": 20.0, "iteration": 3.0})
}

func TestSubloggerName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("transform")
	logger.AddAppender(NewWriterAppender(&buf))
	sub := logger.Sublogger("homography")

	sub.SetLevel(WARN)
	sub.Infow("hidden")
	sub.Warnw("singular matrix", "det", 0.0)
	parts := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	test.That(t, parts[1], test.ShouldEqual, "WARN")
	test.That(t, parts[2], test.ShouldEqual, "transform.homography")
	test.That(t, parts[4], test.ShouldEqual, "singular matrix")

	buf.Reset()
	logger.Infow("parent keeps its level")
	test.That(t, buf.String(), test.ShouldContainSubstring, "parent keeps its level")
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Warnw("degenerate sample", "index", 4)
	logger.Debugw("debug line", "dangling")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("degenerate sample").Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].ContextMap()["index"], test.ShouldEqual, int64(4))
	test.That(t, logs.All()[1].ContextMap()["dangling"], test.ShouldNotBeNil)
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
		fails    bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"warning", WARN, false},
		{"error", ERROR, false},
		{"verbose", DEBUG, true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			level, err := LevelFromString(tc.in)
			if tc.fails {
				test.That(t, err, test.ShouldNotBeNil)
				return
			}
			test.That(t, err, test.ShouldBeNil)
			test.That(t, level, test.ShouldEqual, tc.expected)
		})
	}

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
}
