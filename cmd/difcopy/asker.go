package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// terminalAsker prompts on the terminal for destination conflicts.
// An upper-case answer applies to the rest of the operation.
type terminalAsker struct {
	in  *bufio.Reader
	out io.Writer

	// lines is fed by a single reader goroutine so a pending prompt can be
	// abandoned when ctx is cancelled
	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// newTerminalAsker returns nil when in is not an interactive terminal, which
// makes the resolver skip conflicting items under the ask policy
func newTerminalAsker(in *os.File, out io.Writer) core.ConflictAsker {
	info, err := in.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return nil
	}
	return &terminalAsker{in: bufio.NewReader(in), out: out}
}

func (a *terminalAsker) Ask(ctx context.Context, req core.ConflictRequest) (core.ConflictDecision, error) {
	fmt.Fprintf(a.out, "\n%s already exists\n", req.Item.DestinationPath)
	fmt.Fprintf(a.out, "  source:      %s, modified %s\n", humanize.IBytes(uint64(req.Source.Size)), humanize.Time(req.Source.ModTime))
	fmt.Fprintf(a.out, "  destination: %s, modified %s\n", humanize.IBytes(uint64(req.Destination.Size)), humanize.Time(req.Destination.ModTime))

	a.once.Do(func() {
		a.lines = make(chan lineResult, 1)
		go a.readLines()
	})

	for {
		fmt.Fprint(a.out, "[o]verwrite, [s]kip, [n]ewer only, [r]ename, [c]ancel (upper case = all): ")

		var ans lineResult
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return core.ConflictDecision{Resolution: core.ConflictCancel}, nil
		case got, ok := <-a.lines:
			if !ok {
				got = lineResult{err: io.EOF}
			}
			ans = got
		}
		if ans.err != nil && ans.line == "" {
			return core.ConflictDecision{}, fmt.Errorf("read answer: %w", ans.err)
		}

		if decision, ok := parseAnswer(strings.TrimSpace(ans.line)); ok {
			return decision, nil
		}
	}
}

func (a *terminalAsker) readLines() {
	defer close(a.lines)
	for {
		line, err := a.in.ReadString('\n')
		a.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

func parseAnswer(answer string) (core.ConflictDecision, bool) {
	if len(answer) != 1 {
		return core.ConflictDecision{}, false
	}

	all := strings.ToUpper(answer) == answer
	var policy core.ConflictPolicy
	switch strings.ToLower(answer) {
	case "o":
		policy = core.ConflictOverwrite
	case "s":
		policy = core.ConflictSkip
	case "n":
		policy = core.ConflictOverwriteIfNewer
	case "r":
		policy = core.ConflictRename
	case "c":
		return core.ConflictDecision{Resolution: core.ConflictCancel}, true
	default:
		return core.ConflictDecision{}, false
	}
	return core.ConflictDecision{Resolution: policy, ApplyToAll: all}, true
}
