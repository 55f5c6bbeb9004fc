package web

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/John-Robertt/hirelist/internal/domain"
)

// fakeStates 是一个可由测试直接设置的 StateReader。
type fakeStates struct {
	mu    sync.Mutex
	st    domain.State
	subs  []chan struct{}
	unsub atomic.Int32
}

func (f *fakeStates) State() domain.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeStates) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() { f.unsub.Add(1) }
}

func (f *fakeStates) set(st domain.State) {
	f.mu.Lock()
	f.st = st
	subs := append([]chan struct{}(nil), f.subs...)
	f.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func rec(id, group int, label string) domain.Record {
	return domain.NewRecord(id, group, &label)
}

func newTestServer(t *testing.T, st domain.State) (*fakeStates, *atomic.Int32, *httptest.Server) {
	t.Helper()
	states := &fakeStates{st: st}
	var retries atomic.Int32
	srv := httptest.NewServer(New(states, func() {
		retries.Add(1)
		states.set(domain.Loading())
	}, logger.NOP).Handler())
	t.Cleanup(srv.Close)
	return states, &retries, srv
}

func getDoc(t *testing.T, url string) *goquery.Document {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

func TestPage_Loading(t *testing.T) {
	_, _, srv := newTestServer(t, domain.Loading())

	doc := getDoc(t, srv.URL+"/")
	require.Equal(t, 1, doc.Find(".loading").Length())
	require.Equal(t, 1, doc.Find(`meta[http-equiv="refresh"]`).Length())
	require.Zero(t, doc.Find(".card").Length())
}

func TestPage_FailureOffersRetry(t *testing.T) {
	_, _, srv := newTestServer(t, domain.Failure())

	doc := getDoc(t, srv.URL+"/")
	require.Equal(t, 1, doc.Find(".error-message").Length())
	form := doc.Find("form")
	require.Equal(t, 1, form.Length())
	action, _ := form.Attr("action")
	method, _ := form.Attr("method")
	require.Equal(t, "/retry", action)
	require.Equal(t, "post", method)
	require.Zero(t, doc.Find(`meta[http-equiv="refresh"]`).Length())
}

func TestPage_SuccessRendersCardsInOrder(t *testing.T) {
	_, _, srv := newTestServer(t, domain.Success([]domain.Record{
		rec(2, 10, "Amy"),
		rec(1, 10, "Bob"),
		rec(9, 20, "<b>Zed</b>"),
	}))

	doc := getDoc(t, srv.URL+"/")
	cards := doc.Find(".card")
	require.Equal(t, 3, cards.Length())

	var got []string
	cards.Each(func(_ int, s *goquery.Selection) {
		got = append(got, s.Find(".id").Text()+"/"+s.Find(".list-id").Text()+"/"+s.Find(".name").Text())
	})
	require.Equal(t, []string{"2/10/Amy", "1/10/Bob", "9/20/<b>Zed</b>"}, got)

	// 名称必须被转义，不能变成真实标签。
	require.Zero(t, doc.Find(".name b").Length())
	require.Contains(t, doc.Find(".summary").Text(), "3 条记录")
	require.Contains(t, doc.Find(".summary").Text(), "2 个分组")
}

func TestPage_EmptySuccess(t *testing.T) {
	_, _, srv := newTestServer(t, domain.Success(nil))

	doc := getDoc(t, srv.URL+"/")
	require.Zero(t, doc.Find(".card").Length())
	require.Contains(t, doc.Find(".summary").Text(), "0 条记录")
}

func TestRetryForm_CallsRetryAndRedirects(t *testing.T) {
	_, retries, srv := newTestServer(t, domain.Failure())

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Post(srv.URL+"/retry", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	require.Equal(t, int32(1), retries.Load())
}

func TestAPIState(t *testing.T) {
	states, _, srv := newTestServer(t, domain.Success([]domain.Record{
		rec(2, 10, "Amy"),
		domain.NewRecord(3, 10, nil),
	}))

	body := getBody(t, http.MethodGet, srv.URL+"/api/state", http.StatusOK)
	require.Equal(t, "success", gjson.Get(body, "status").String())
	require.Equal(t, int64(2), gjson.Get(body, "records.#").Int())
	require.Equal(t, "Amy", gjson.Get(body, "records.0.name").String())
	require.Equal(t, int64(10), gjson.Get(body, "records.0.listId").Int())
	require.Equal(t, gjson.Null, gjson.Get(body, "records.1.name").Type)

	states.set(domain.Failure())
	body = getBody(t, http.MethodGet, srv.URL+"/api/state", http.StatusOK)
	require.Equal(t, "failure", gjson.Get(body, "status").String())
	require.False(t, gjson.Get(body, "records").Exists())
}

func TestAPIRetry(t *testing.T) {
	_, retries, srv := newTestServer(t, domain.Failure())

	body := getBody(t, http.MethodPost, srv.URL+"/api/retry", http.StatusAccepted)
	require.Equal(t, "loading", gjson.Get(body, "status").String())
	require.Equal(t, int32(1), retries.Load())
}

func TestAPIRetry_MethodNotAllowed(t *testing.T) {
	_, retries, srv := newTestServer(t, domain.Failure())

	_ = getBody(t, http.MethodGet, srv.URL+"/api/retry", http.StatusMethodNotAllowed)
	require.Zero(t, retries.Load())
}

func TestEvents_PushesStateChanges(t *testing.T) {
	states, _, srv := newTestServer(t, domain.Loading())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	nextData := func() string {
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		t.Fatalf("SSE 流提前结束：%v", sc.Err())
		return ""
	}

	require.Equal(t, "loading", gjson.Get(nextData(), "status").String())

	states.set(domain.Success([]domain.Record{rec(1, 1, "a")}))
	data := nextData()
	require.Equal(t, "success", gjson.Get(data, "status").String())
	require.Equal(t, "a", gjson.Get(data, "records.0.name").String())

	cancel()
	require.Eventually(t, func() bool { return states.unsub.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func getBody(t *testing.T, method, url string, wantStatus int) string {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	var sb strings.Builder
	_, err = bufio.NewReader(resp.Body).WriteTo(&sb)
	require.NoError(t, err)
	return sb.String()
}
