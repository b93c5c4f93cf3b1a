package gateway

import (
	"encoding/json"
	"strings"

	"novel-chat/internal/domain"
)

const dataPrefix = "data: "

// decodeFrame decodifica una línea del stream SSE. Cualquier línea que no
// sea `data: <JSON>` válido, o cuyo type no se reconozca, se mapea a
// FrameUnrecognized para que el lector la descarte sin abortar el stream.
func decodeFrame(line string) domain.StreamFrame {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return domain.StreamFrame{Type: domain.FrameUnrecognized}
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	var frame domain.StreamFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return domain.StreamFrame{Type: domain.FrameUnrecognized}
	}

	switch frame.Type {
	case domain.FrameSession, domain.FrameContent, domain.FrameDone:
		return frame
	default:
		return domain.StreamFrame{Type: domain.FrameUnrecognized}
	}
}
