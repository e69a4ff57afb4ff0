package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_, ok := r.Last()
	assert.False(t, ok)

	r.Notify(context.Background(), Success("Task Saved", "ok"))
	r.Notify(context.Background(), Failure("Error", "bad"))

	all := r.All()
	assert.Len(t, all, 2)
	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, VariantDestructive, last.Variant)
}

func TestMultiAndLog(t *testing.T) {
	var buf bytes.Buffer
	r := &Recorder{}
	m := Multi{r, Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}}

	m.Notify(context.Background(), Failure("Error", "Failed to update task status"))
	assert.Len(t, r.All(), 1)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Failed to update task status")
}
