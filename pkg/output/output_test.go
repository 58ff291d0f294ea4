package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larrydiffey/difcopy/pkg/core"
)

func sampleOperation() *core.Operation {
	ok := core.NewItem("/src/a.txt", "/dst/a.txt", 2048)
	ok.Status = core.ItemCompleted
	ok.BytesTransferred = 2048
	bad := core.NewItem("/src/b.txt", "/dst/b.txt", 10)
	bad.Fail(errors.New("permission denied"))
	op := core.NewOperation(core.ModeMove, ok, bad)
	op.MarkStarted(time.Now())
	op.MarkFinished(core.OperationCompleted, time.Now())
	return op
}

func TestOperations_Text(t *testing.T) {
	var buf bytes.Buffer
	op := sampleOperation()

	require.NoError(t, New(FormatText, &buf).Operations([]*core.Operation{op}))
	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, op.ID)
	assert.Contains(t, out, "move")
	assert.Contains(t, out, "2.0 KiB")
}

func TestOperations_EmptyText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatText, &buf).Operations(nil))
	assert.Equal(t, "No operations in history\n", buf.String())
}

func TestOperations_CSV(t *testing.T) {
	var buf bytes.Buffer
	op := sampleOperation()

	require.NoError(t, New(FormatCSV, &buf).Operations([]*core.Operation{op}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,mode,status"))
	assert.True(t, strings.HasPrefix(lines[1], op.ID+",move,completed,2,1,2048"))
}

func TestOperations_JSON(t *testing.T) {
	var buf bytes.Buffer
	op := sampleOperation()

	require.NoError(t, New(FormatJSON, &buf).Operations([]*core.Operation{op}))
	var decoded []*core.Operation
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "permission denied", decoded[0].Items[1].ErrorMessage)
}

func TestOperation_TextShowsErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatText, &buf).Operation(sampleOperation()))
	assert.Contains(t, buf.String(), "permission denied")
	assert.Contains(t, buf.String(), "verification:")
}

func TestFormatTextMap_Sorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatText, &buf).Format(map[string]interface{}{"b": 2, "a": 1}))
	assert.Equal(t, "a: 1\nb: 2\n", buf.String())
}

func TestFormat_Unsupported(t *testing.T) {
	assert.Error(t, New(Format("xml"), &bytes.Buffer{}).Success("x"))
}

func TestStreamWriter_SinkAndNotifier(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamWriter(&buf)
	op := sampleOperation()

	var sink core.ProgressSink = s
	var notifier core.Notifier = s

	sink.Progress(core.ProgressEvent{
		OperationID:            op.ID,
		ItemID:                 op.Items[0].ID,
		OperationBytes:         512,
		OperationTotal:         1024,
		BytesPerSecond:         1024 * 1024,
		EstimatedTimeRemaining: core.UnboundedETA,
		ItemStatus:             core.ItemInProgress,
	})
	sink.Progress(core.ProgressEvent{
		OperationID:            op.ID,
		ItemID:                 op.Items[0].ID,
		EstimatedTimeRemaining: 2 * time.Second,
		ItemStatus:             core.ItemCompleted,
		Done:                   true,
	})
	notifier.ItemFailed(op, op.Items[1])
	notifier.OperationCompleted(op)

	var events []StreamEvent
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var ev StreamEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 4)

	assert.Equal(t, "progress", events[0].Type)
	assert.Equal(t, 50.0, events[0].Percent)
	assert.Equal(t, "1.0 MiB/s", events[0].Speed)
	assert.Nil(t, events[0].ETASeconds)

	assert.Equal(t, "item", events[1].Type)
	require.NotNil(t, events[1].ETASeconds)
	assert.Equal(t, 2.0, *events[1].ETASeconds)

	assert.Equal(t, "item_failed", events[2].Type)
	assert.Equal(t, "permission denied", events[2].Message)

	assert.Equal(t, "complete", events[3].Type)
	assert.Equal(t, "completed", events[3].Status)
}
