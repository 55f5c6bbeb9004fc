package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/John-Robertt/hirelist/internal/app/controller"
	"github.com/John-Robertt/hirelist/internal/domain"
)

var _ controller.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的加载进度输出。
//
// - 过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：controller 只发状态变化，CLI 决定如何展示
// - keepalive：加载时间较长时定期输出一行
type progressUI struct {
	w        io.Writer
	endpoint string
	now      func() time.Time

	mu          sync.Mutex
	runStarted  time.Time
	lastPrinted time.Time
	loading     bool

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh  chan struct{}
	stopped bool
}

func newProgressUI(w io.Writer, endpoint string) *progressUI {
	return &progressUI{
		w:                  w,
		endpoint:           endpoint,
		now:                time.Now,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStateChange(seq uint64, st domain.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	now := p.now()
	switch st.Status() {
	case domain.StatusLoading:
		p.runStarted = now
		p.loading = true
		fmt.Fprintf(p.w, "[%s] 加载 #%d: %s\n", now.Format("15:04:05"), seq, formatEndpoint(p.endpoint))
		if p.stopCh == nil {
			p.startTickerLocked()
		}
	case domain.StatusSuccess:
		p.loading = false
		groups := lo.Uniq(lo.Map(st.Records(), func(r domain.Record, _ int) int { return r.GroupID() }))
		fmt.Fprintf(p.w, "[%s] 完成 #%d: records=%d groups=%d (%s)\n",
			now.Format("15:04:05"), seq, st.Len(), len(groups), formatShortDuration(now.Sub(p.runStarted)),
		)
	default:
		p.loading = false
		fmt.Fprintf(p.w, "[%s] 失败 #%d (%s)\n",
			now.Format("15:04:05"), seq, formatShortDuration(now.Sub(p.runStarted)),
		)
	}
	p.lastPrinted = now
}

// Stop 停止 keepalive；之后的状态变化不再输出。可重复调用。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if p.stopCh != nil {
		close(p.stopCh)
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.keepalive()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) keepalive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || !p.loading {
		return
	}

	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	now := p.now()
	if now.Sub(p.lastPrinted) <= threshold {
		return
	}
	fmt.Fprintf(p.w, "仍在加载… elapsed=%s\n", formatElapsed(now.Sub(p.runStarted)))
	p.lastPrinted = now
}

// formatEndpoint 只展示 scheme://host/path，去掉 query 与 userinfo。
func formatEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return truncate(raw, 120)
	}
	return truncate(u.Scheme+"://"+u.Host+u.Path, 120)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
