// Package server 提供生成调度的 HTTP 接口。
//
// 路由:
//
//	GET  /health               健康检查
//	GET  /api/generators       列出后端与当前选择
//	POST /api/set_generator    切换后端
//	POST /api/generate         单次生成
//	POST /api/generate_stream  以 Server-Sent Events 流式生成
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/easyops/verba-go/pkg/core/message"
	"github.com/easyops/verba-go/pkg/generation"
	"github.com/easyops/verba-go/pkg/otel"
)

// Server 生成调度 HTTP 服务
type Server struct {
	manager *generation.Manager
	logger  otel.Logger
}

// New 创建 HTTP 服务，logger 为 nil 时不输出日志
func New(manager *generation.Manager, logger otel.Logger) *Server {
	if logger == nil {
		logger = otel.NewNoopLogger()
	}
	return &Server{manager: manager, logger: logger}
}

// Handler 返回挂载了全部路由的 chi 路由器
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth())

	r.Route("/api", func(r chi.Router) {
		r.Get("/generators", s.handleListGenerators())
		r.Post("/set_generator", s.handleSetGenerator())
		r.Post("/generate", s.handleGenerate())
		r.Post("/generate_stream", s.handleGenerateStream())
	})

	return r
}

// generateRequest 生成请求体
type generateRequest struct {
	Queries      []string             `json:"queries"`
	Context      []string             `json:"context"`
	Conversation message.Conversation `json:"conversation"`
}

// generatorJSON 后端列表项
type generatorJSON struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	RequiresEnv []string `json:"requires_env"`
	Streamable  bool     `json:"streamable"`
}

// generatorsResponse 后端列表响应
type generatorsResponse struct {
	Selected   string          `json:"selected"`
	Generators []generatorJSON `json:"generators"`
}

// selectRequest 切换后端请求体
type selectRequest struct {
	Generator string `json:"generator"`
}

// selectResponse 切换后端响应
type selectResponse struct {
	Success  bool   `json:"success"`
	Selected string `json:"selected"`
}

// errorResponse 错误响应
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleListGenerators 按注册顺序返回后端
func (s *Server) handleListGenerators() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := generatorsResponse{
			Selected:   s.manager.Selected(),
			Generators: []generatorJSON{},
		}
		for _, name := range s.manager.Names() {
			b, _ := s.manager.Backend(name)
			requires := b.RequiresEnv
			if requires == nil {
				requires = []string{}
			}
			resp.Generators = append(resp.Generators, generatorJSON{
				Name:        b.Name,
				Description: b.Description,
				RequiresEnv: requires,
				Streamable:  b.Streamable,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleSetGenerator 切换后端，名称未注册时返回 404
func (s *Server) handleSetGenerator() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		ok := s.manager.SelectBackend(req.Generator)
		status := http.StatusOK
		if !ok {
			status = http.StatusNotFound
		}
		writeJSON(w, status, selectResponse{Success: ok, Selected: s.manager.Selected()})
	}
}

// decodeGenerate 解析并校验生成请求
func decodeGenerate(w http.ResponseWriter, r *http.Request) (generateRequest, bool) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return req, false
	}
	if len(req.Queries) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "queries cannot be empty"})
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
