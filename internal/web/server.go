// Package web 是一个最小的 UI 协作者：把 Controller 的当前状态渲染成 HTML / JSON，
// 并提供零参数的重试入口与 SSE 状态推送。
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/samber/lo"

	"github.com/John-Robertt/hirelist/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed templates/page.html.tmpl
var templatesFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templatesFS, "templates/page.html.tmpl"))

// StateReader 是 web 层对状态持有者的唯一依赖（只读 + 通知）。
type StateReader interface {
	State() domain.State
	Subscribe() (<-chan struct{}, func())
}

type Server struct {
	states StateReader
	retry  func()
	log    logger.Logger
}

// New 构造 Server。retry 是交给 UI 的零参数重试回调。
func New(states StateReader, retry func(), log logger.Logger) *Server {
	if log == nil {
		log = logger.NOP
	}
	return &Server{states: states, retry: retry, log: log}
}

// Handler 返回 http handler。
//
// 路由：
// - GET  /            HTML 页面
// - POST /retry       重试后 303 回到 /
// - GET  /api/state   当前状态 JSON
// - POST /api/retry   重试，202 + 状态 JSON
// - GET  /api/events  SSE，每次状态变化推送一条 state 事件
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.pageHandler)
	r.Post("/retry", s.retryFormHandler)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.stateHandler)
		r.Post("/retry", s.retryAPIHandler)
		r.Get("/events", s.eventsHandler)
	})
	return r
}

type pageRow struct {
	ID     int
	ListID int
	Name   string
}

type pageData struct {
	Status  string
	Records []pageRow
	Groups  int
}

func newPageData(st domain.State) pageData {
	rows := make([]pageRow, 0, st.Len())
	for _, r := range st.Records() {
		name, _ := r.Label()
		rows = append(rows, pageRow{ID: r.ID(), ListID: r.GroupID(), Name: name})
	}
	groups := len(lo.UniqBy(rows, func(r pageRow) int { return r.ListID }))
	return pageData{Status: st.Status().String(), Records: rows, Groups: groups}
}

func (s *Server) pageHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, newPageData(s.states.State())); err != nil {
		s.log.Errorn("render page", logger.NewErrorField(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) retryFormHandler(w http.ResponseWriter, r *http.Request) {
	s.retry()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, http.StatusOK, s.states.State())
}

func (s *Server) retryAPIHandler(w http.ResponseWriter, r *http.Request) {
	s.retry()
	s.writeState(w, http.StatusAccepted, s.states.State())
}

func (s *Server) writeState(w http.ResponseWriter, code int, st domain.State) {
	b, err := json.Marshal(st)
	if err != nil {
		s.log.Errorn("encode state", logger.NewErrorField(err))
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// 先订阅再读状态：保证两者之间的迁移不会丢。
	ch, unsubscribe := s.states.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := s.writeEvent(w, s.states.State()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			if err := s.writeEvent(w, s.states.State()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, st domain.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		s.log.Errorn("encode state event", logger.NewErrorField(err))
		return err
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", b)
	return err
}
