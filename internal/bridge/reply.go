package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/constantino-dev/sentbench/pkg/types"
)

// ReplyPrefix marks the embedder output lines that carry an embedding.
const ReplyPrefix = "Sequence embedding: "

// IsReply reports whether line carries the reply marker.
func IsReply(line string) bool {
	return strings.HasPrefix(line, ReplyPrefix)
}

// ParseReply parses one reply line into a vector.
func ParseReply(line string) (types.Vector, error) {
	rest, ok := strings.CutPrefix(line, ReplyPrefix)
	if !ok {
		return nil, &ProtocolError{Line: line, Reason: "missing reply marker"}
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, &ProtocolError{Line: line, Reason: "empty embedding"}
	}

	vec := make(types.Vector, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &ProtocolError{Line: line, Reason: fmt.Sprintf("field %d: %q is not a number", i, f)}
		}
		vec[i] = v
	}
	return vec, nil
}

// FormatReply renders vec the way an embedder replies.
func FormatReply(vec types.Vector) string {
	var sb strings.Builder
	sb.WriteString(ReplyPrefix)
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return sb.String()
}
