package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Line(t *testing.T) {
	at := time.Date(2026, time.March, 7, 18, 5, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "plain",
			msg:  Message{Author: "Sam", Text: "yo", At: at},
			want: "Sam (07/03 18:05): yo",
		},
		{
			name: "multiline",
			msg:  Message{Author: "Tony", Text: "one\ntwo\r\nthree\rfour", At: at},
			want: "Tony (07/03 18:05): one two three four",
		},
		{
			name: "empty text",
			msg:  Message{Author: "todos", At: at},
			want: "todos (07/03 18:05): ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.Line())
		})
	}
}

func TestSplitLine(t *testing.T) {
	author, stamp, text, ok := SplitLine("Sam (07/03 18:05): see you (later): ok")
	assert.True(t, ok)
	assert.Equal(t, "Sam", author)
	assert.Equal(t, "07/03 18:05", stamp)
	assert.Equal(t, "see you (later): ok", text)

	for _, bad := range []string{"", "no stamp here", " (07/03 18:05): x", "Sam (soon): x"} {
		_, _, _, ok := SplitLine(bad)
		assert.False(t, ok, bad)
	}
}
