package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/John-Robertt/hirelist/internal/domain"
	"github.com/John-Robertt/hirelist/internal/pipeline"
	"github.com/John-Robertt/hirelist/internal/source"
)

// ErrClosed 表示 Controller 已经 Close。
var ErrClosed = errors.New("controller: closed")

// Source 是 Controller 对记录来源的唯一依赖。
type Source interface {
	Fetch(ctx context.Context) ([]domain.Record, error)
}

// Controller 持有当前三态结果，并在每次 Trigger 时发起一次新的 run。
//
// 并发模型：
// - 写者只有两类：Trigger 与 run 完成；二者经 publishMu 串行化，观察者回调也在其内部按顺序派发
// - 当前状态槽与序号由 mu 保护，读者（State/Subscribe）只等 mu，不会被慢观察者阻塞
// - 每次 Trigger 序号 +1；run 完成时序号不是最新的结果直接丢弃（不取消在途请求）
type Controller struct {
	src Source
	log logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	publishMu sync.Mutex

	mu        sync.Mutex
	seq       uint64
	state     domain.State
	closed    bool
	observers []Observer
	subs      map[int]chan struct{}
	nextSub   int
}

// New 构造 Controller 并立即发起第一次 run（等价于一次 Trigger）。
// log 为空时不输出日志。
func New(src Source, log logger.Logger, observers ...Observer) *Controller {
	if log == nil {
		log = logger.NOP
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		src:       src,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		state:     domain.Loading(),
		observers: append([]Observer(nil), observers...),
		subs:      make(map[int]chan struct{}),
	}
	c.Trigger()
	return c
}

// State 返回最新状态；run 进行中返回 Loading。
func (c *Controller) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Seq 返回最近一次 Trigger 分配的序号。
func (c *Controller) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Trigger 发起一次新的 run：同步把状态置为 Loading，然后在后台执行 fetch + pipeline。
// 它同时也是交给 UI 的零参数重试入口。Close 之后调用无效果。
func (c *Controller) Trigger() {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	c.state = domain.Loading()
	obs, subs := c.listenersLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Infon("run started", logger.NewIntField("seq", int64(seq)))
	c.dispatch(seq, domain.Loading(), obs, subs)

	go c.run(seq)
}

func (c *Controller) run(seq uint64) {
	defer c.wg.Done()

	started := time.Now()
	recs, err := c.src.Fetch(c.ctx)

	var st domain.State
	if err != nil {
		c.log.Warnn("run failed",
			logger.NewIntField("seq", int64(seq)),
			logger.NewStringField("kind", source.Kind(err)),
			logger.NewDurationField("duration", time.Since(started)),
			logger.NewErrorField(err),
		)
		st = domain.Failure()
	} else {
		out := pipeline.Process(recs)
		c.log.Infon("run succeeded",
			logger.NewIntField("seq", int64(seq)),
			logger.NewIntField("fetched", int64(len(recs))),
			logger.NewIntField("records", int64(len(out))),
			logger.NewDurationField("duration", time.Since(started)),
		)
		st = domain.Success(out)
	}

	if !c.publish(seq, st) {
		c.log.Debugn("run result discarded",
			logger.NewIntField("seq", int64(seq)),
			logger.NewStringField("status", st.Status().String()),
		)
	}
}

// publish 仅当 seq 仍是最新序号时写入状态并通知；返回是否写入。
func (c *Controller) publish(seq uint64, st domain.State) bool {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return false
	}
	c.state = st
	obs, subs := c.listenersLocked()
	c.mu.Unlock()

	c.dispatch(seq, st, obs, subs)
	return true
}

func (c *Controller) listenersLocked() ([]Observer, []chan struct{}) {
	subs := make([]chan struct{}, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	return c.observers, subs
}

func (c *Controller) dispatch(seq uint64, st domain.State, obs []Observer, subs []chan struct{}) {
	for _, o := range obs {
		o.OnStateChange(seq, st)
	}
	// 通道通知可合并：订阅者收到信号后自行读取 State()。
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe 返回一个状态变化通知通道及取消函数。
//
// 通道容量为 1，多次迁移可能合并成一次信号；收到信号后应调用 State() 读取最新状态。
// 取消后通道不再收到信号（通道不会被关闭）。
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Wait 阻塞直到当前状态不再是 Loading，或 ctx 结束，或 Controller 被 Close（返回 ErrClosed）。
func (c *Controller) Wait(ctx context.Context) (domain.State, error) {
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for {
		st := c.State()
		if st.Status() != domain.StatusLoading {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		case <-c.ctx.Done():
			return c.State(), ErrClosed
		}
	}
}

// Close 停止接收新的 Trigger，取消在途请求的 context，并等待所有 run goroutine 退出。
// Close 之后状态保持不变，迟到的结果全部丢弃。
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
