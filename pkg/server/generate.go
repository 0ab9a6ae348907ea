package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// streamEvent 流式生成的单个事件
type streamEvent struct {
	Message      string `json:"message"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// handleGenerate 单次生成，后端失败时返回 502
func (s *Server) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeGenerate(w, r)
		if !ok {
			return
		}

		answer, err := s.manager.GenerateAnswer(r.Context(), req.Queries, req.Context, req.Conversation)
		if err != nil {
			s.logger.Error("generate failed", "error", err, "generator", answer.Generator)
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, answer)
	}
}

// handleGenerateStream 以 SSE 逐块输出回答
//
// 每个块一条 data 事件，结束时发送 finish_reason 为 stop 的事件；
// 生成失败时发送 error 事件。客户端断开会取消生成。
func (s *Server) handleGenerateStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeGenerate(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		chunks, errs := s.manager.GenerateStream(r.Context(), req.Queries, req.Context, req.Conversation)
		for chunk := range chunks {
			if err := writeEvent(w, "", streamEvent{Message: chunk}); err != nil {
				s.logger.Warn("stream write failed", "error", err)
			}
			flusher.Flush()
		}

		if err := <-errs; err != nil {
			if r.Context().Err() == nil {
				s.logger.Error("generate stream failed", "error", err)
				_ = writeEvent(w, "error", errorResponse{Error: err.Error()})
				flusher.Flush()
			}
			return
		}

		_ = writeEvent(w, "", streamEvent{FinishReason: "stop"})
		flusher.Flush()
	}
}

// writeEvent 写出一条 SSE 事件
func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
