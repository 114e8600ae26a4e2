package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteSSEData 写入一条 data 事件并立即刷新
func WriteSSEData(w http.ResponseWriter, flusher http.Flusher, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	flusher.Flush()
	return nil
}

// SendSSEChunk 发送Server-Sent Events数据块
func SendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	return WriteSSEData(w, flusher, data)
}
