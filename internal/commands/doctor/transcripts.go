package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hay-kot/mqchat/internal/core/transcript"
	"github.com/hay-kot/mqchat/internal/store/linefile"
)

// TranscriptCheck scans the chat directory for unreadable transcripts, lines
// that are not in record form, and files that are not transcripts at all.
type TranscriptCheck struct {
	dir string
}

// NewTranscriptCheck creates a check over the transcripts in dir.
func NewTranscriptCheck(dir string) *TranscriptCheck {
	return &TranscriptCheck{dir: dir}
}

func (c *TranscriptCheck) Name() string {
	return "Transcripts"
}

func (c *TranscriptCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			result.add("Chat directory", StatusPass, "no transcripts yet")
			return result
		}
		result.add("Chat directory", StatusFail, err.Error())
		return result
	}

	store := linefile.New(c.dir)
	count := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		key, ok := strings.CutPrefix(name, linefile.FilePrefix)
		if !ok || key == "" {
			result.add(name, StatusWarn, "not a transcript")
			continue
		}

		count++
		bad, err := malformedLines(ctx, store, key)
		switch {
		case err != nil:
			result.add(key, StatusFail, err.Error())
		case bad > 0:
			result.add(key, StatusWarn, fmt.Sprintf("%d lines not in record form", bad))
		}
	}

	if len(result.Items) == 0 {
		result.add("Transcripts readable", StatusPass, fmt.Sprintf("%d conversations", count))
	}

	return result
}

func malformedLines(ctx context.Context, store *linefile.Store, key string) (int, error) {
	lines, err := store.ReadAll(ctx, key)
	if err != nil {
		return 0, err
	}

	bad := 0
	for _, line := range lines {
		if _, _, _, ok := transcript.SplitLine(line); !ok {
			bad++
		}
	}
	return bad, nil
}
