package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/hirelist/internal/app/controller"
	"github.com/John-Robertt/hirelist/internal/config"
	"github.com/John-Robertt/hirelist/internal/domain"
	"github.com/John-Robertt/hirelist/internal/infra/fsx"
	"github.com/John-Robertt/hirelist/internal/infra/httpx"
	"github.com/John-Robertt/hirelist/internal/source"
	"github.com/John-Robertt/hirelist/internal/web"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run 执行 CLI 并返回退出码（不直接 os.Exit，便于测试）。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.RunContext(ctx, args)
	if err == nil {
		return exitOK
	}

	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		if msg := strings.TrimSpace(ec.Error()); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return ec.ExitCode()
	}
	// 其余错误来自参数解析（未知参数/缺值等）。
	fmt.Fprintf(stderr, "参数错误：%v\n", err)
	return exitUsage
}

func newApp(stdout, stderr io.Writer) *cli.App {
	common := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "配置文件路径（默认尝试读取 ./" + config.FileName + "）",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "远端 JSON 集合地址",
			Value: source.DefaultURL,
		},
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "HTTP 总超时（秒）",
			Value: config.DefaultTimeoutSec,
		},
	}

	return &cli.App{
		Name:      "hirelist",
		Usage:     "拉取远端记录集合，过滤无效记录并按 listId、name 排序",
		Writer:    stdout,
		ErrWriter: stderr,
		// 退出码由 run 统一处理；默认的 handler 会直接 os.Exit。
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:  "fetch",
				Usage: "拉取一次并输出结果（stdout 非 TTY 时只输出一个 JSON）",
				Flags: append(append([]cli.Flag(nil), common...),
					&cli.StringFlag{
						Name:  "out",
						Usage: "把排序后的记录原子写入该文件（JSON 数组）",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "输出结构化日志",
					},
				),
				Action: func(c *cli.Context) error {
					return fetchAction(c, stdout, stderr)
				},
			},
			{
				Name:  "serve",
				Usage: "启动本地 Web 页面（加载/失败重试/列表）",
				Flags: append(append([]cli.Flag(nil), common...),
					&cli.StringFlag{
						Name:  "listen",
						Usage: "监听地址",
						Value: config.DefaultListen,
					},
				),
				Action: func(c *cli.Context) error {
					return serveAction(c, stderr)
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (config.EffectiveConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, cli.Exit(fmt.Sprintf("读取当前目录失败：%v", err), exitFailure)
	}

	args := config.CLIArgs{
		ConfigPath:  c.String("config"),
		Endpoint:    c.String("endpoint"),
		EndpointSet: c.IsSet("endpoint"),
		TimeoutSec:  c.Int("timeout"),
		TimeoutSet:  c.IsSet("timeout"),
	}
	if c.Command.Name == "serve" {
		args.Listen = c.String("listen")
		args.ListenSet = c.IsSet("listen")
	}

	eff, err := config.LoadEffective(cwd, args)
	if err != nil {
		return config.EffectiveConfig{}, cli.Exit(err.Error(), exitUsage)
	}
	return eff, nil
}

func newSource(eff config.EffectiveConfig) (*source.HTTPSource, error) {
	client, err := httpx.NewClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("初始化 HTTP client 失败：%v", err), exitUsage)
	}
	return source.New(eff.Endpoint, client), nil
}

func fetchAction(c *cli.Context, stdout, stderr io.Writer) error {
	eff, err := loadConfig(c)
	if err != nil {
		return err
	}
	src, err := newSource(eff)
	if err != nil {
		return err
	}

	// 日志默认关闭：logger 写 stdout，而非 TTY 时 stdout 只能是一个 JSON。
	log := logger.NOP
	if c.Bool("verbose") {
		if !isTTYWriter(stdout) {
			return cli.Exit("--verbose 只能在 stdout 为终端时使用（非 TTY 时 stdout 只输出 JSON）", exitUsage)
		}
		log = logger.NewLogger().Child("hirelist")
	}

	var observers []controller.Observer
	if w, interactive := pickProgressWriter(stdout, stderr); interactive {
		ui := newProgressUI(w, eff.Endpoint)
		defer ui.Stop()
		observers = append(observers, ui)
	}

	ctrl := controller.New(src, log.Child("controller"), observers...)
	defer ctrl.Close()

	st, err := ctrl.Wait(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("已中断：%v", err), exitFailure)
	}

	if out := strings.TrimSpace(c.String("out")); out != "" && st.Status() == domain.StatusSuccess {
		if err := writeRecordsFile(out, st.Records()); err != nil {
			emitState(stdout, stderr, st)
			return cli.Exit(fmt.Sprintf("写入 %s 失败：%v", out, err), exitFailure)
		}
	}

	emitState(stdout, stderr, st)
	if st.Status() != domain.StatusSuccess {
		return cli.Exit("", exitFailure)
	}
	return nil
}

func serveAction(c *cli.Context, stderr io.Writer) error {
	eff, err := loadConfig(c)
	if err != nil {
		return err
	}
	src, err := newSource(eff)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", eff.Listen)
	if err != nil {
		return cli.Exit(fmt.Sprintf("监听 %s 失败：%v", eff.Listen, err), exitFailure)
	}

	log := logger.NewLogger().Child("hirelist")
	ctrl := controller.New(src, log.Child("controller"))
	defer ctrl.Close()

	g, gctx := errgroup.WithContext(c.Context)
	srv := &http.Server{
		Handler:           web.New(ctrl, ctrl.Trigger, log.Child("web")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// 关闭时让 SSE 等长连接随之结束。
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	fmt.Fprintf(stderr, "listening on http://%s\n", ln.Addr())
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return cli.Exit(fmt.Sprintf("服务异常退出：%v", err), exitFailure)
	}
	return nil
}

func writeRecordsFile(path string, recs []domain.Record) error {
	if recs == nil {
		recs = []domain.Record{}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, append(b, '\n'))
}

// emitState 输出最终状态。
//
// - stdout 是 TTY：人类可读的分组列表，失败提示走 stderr
// - stdout 非 TTY：stdout 必须且仅输出一个 State JSON（摘要走 stderr）
func emitState(stdout, stderr io.Writer, st domain.State) {
	recs := st.Records()
	groups := lo.CountValuesBy(recs, func(r domain.Record) int { return r.GroupID() })

	if isTTYWriter(stdout) {
		switch st.Status() {
		case domain.StatusSuccess:
			last := 0
			for i, r := range recs {
				if i == 0 || r.GroupID() != last {
					last = r.GroupID()
					fmt.Fprintf(stdout, "listId=%d（%d 条）\n", last, groups[last])
				}
				name, _ := r.Label()
				fmt.Fprintf(stdout, "  id=%-6d %s\n", r.ID(), name)
			}
			fmt.Fprintf(stdout, "完成：records=%d groups=%d\n", len(recs), len(groups))
		default:
			fmt.Fprintln(stderr, "加载失败：请检查网络或 endpoint 配置后重试。")
		}
		return
	}

	enc := json.NewEncoder(stdout)
	_ = enc.Encode(st)
	switch st.Status() {
	case domain.StatusSuccess:
		fmt.Fprintf(stderr, "完成：records=%d groups=%d\n", len(recs), len(groups))
	default:
		fmt.Fprintf(stderr, "完成：status=%s\n", st.Status())
	}
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func isTTYWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTTY(f)
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTYWriter(stderr) {
		return stderr, true
	}
	if isTTYWriter(stdout) {
		return stdout, true
	}
	return nil, false
}
