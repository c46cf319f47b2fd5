package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keep94/cardledger/apps/ledgerd/api"
	"github.com/keep94/cardledger/fin/findb/for_memory"
	"github.com/keep94/cardledger/fin/session"
	"github.com/keep94/cardledger/fin/syncq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
)

type fakeClock struct{}

func (fakeClock) Now() time.Time {
	return kNow
}

type idleScheduler struct{}

func (idleScheduler) AfterFunc(d time.Duration, f func()) syncq.Timer {
	return idleTimer{}
}

type idleTimer struct{}

func (idleTimer) Stop() bool {
	return true
}

type occurrence struct {
	Id       string `json:"id"`
	Value    int64  `json:"value"`
	OpDate   string `json:"opDate"`
	PostDate string `json:"postDate"`
	Method   string `json:"method"`
	Planned  *bool  `json:"planned"`
	Amount   string `json:"amount"`
	Virtual  bool   `json:"virtual"`
	MasterId string `json:"masterId"`
	Match    string `json:"match"`
}

type changes struct {
	Added   []string    `json:"added"`
	Removed []string    `json:"removed"`
	Updated []string    `json:"updated"`
	Record  *occurrence `json:"record"`
	Pending bool        `json:"pending"`
}

type status struct {
	Profile string   `json:"profile"`
	Pending bool     `json:"pending"`
	Dirty   []string `json:"dirty"`
	Ran     *bool    `json:"ran"`
}

type server struct {
	t       *testing.T
	handler http.Handler
	remote  *for_memory.Remote
}

func newServer(t *testing.T) *server {
	remote := for_memory.NewRemote()
	next := 0
	s, err := session.Open(context.Background(), session.Config{
		Profile: "home",
		Cache:   for_memory.NewCache(),
		Remote:  remote,
		Clock:   fakeClock{},
		Queue: &syncq.Options{
			Scheduler:       idleScheduler{},
			TriggerInterval: time.Nanosecond,
		},
		NewId: func() string {
			next++
			return fmt.Sprintf("id%d", next)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &server{t: t, handler: api.New(s, zerolog.Nop()), remote: remote}
}

func (s *server) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *server) decode(
	method, target, body string, expectedCode int, v interface{}) {
	s.t.Helper()
	w := s.do(method, target, body)
	require.Equal(s.t, expectedCode, w.Code, w.Body.String())
	if v != nil {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), v))
	}
}

func (s *server) setUp() {
	s.decode(
		http.MethodPut,
		"/cards",
		`[{"name":"Visa","closeDay":10,"dueDay":20}]`,
		http.StatusOK,
		nil)
	s.decode(
		http.MethodPost,
		"/records",
		`{"id":"rent","desc":"Rent","value":-100000,"opDate":"2024-03-01","recurrence":"monthly"}`,
		http.StatusOK,
		nil)
	s.decode(
		http.MethodPost,
		"/records",
		`{"id":"coffee","desc":"Coffee","value":-350,"opDate":"2024-03-14","method":"visa"}`,
		http.StatusOK,
		nil)
}

func TestAddResolvesMethodAndPostDate(t *testing.T) {
	s := newServer(t)
	s.setUp()
	var record occurrence
	s.decode(http.MethodGet, "/record?id=coffee", "", http.StatusOK, &record)
	assert := assert.New(t)
	assert.Equal("Visa", record.Method)
	assert.Equal("2024-04-20", record.PostDate)
	assert.Equal("-3.50", record.Amount)
	require.NotNil(t, record.Planned)
	assert.False(*record.Planned)

	var records []occurrence
	s.decode(http.MethodGet, "/records", "", http.StatusOK, &records)
	assert.Len(records, 2)
}

func TestMethodsAndPostDate(t *testing.T) {
	s := newServer(t)
	s.setUp()
	var methods []string
	s.decode(http.MethodGet, "/methods", "", http.StatusOK, &methods)
	assert.Equal(t, []string{"Visa", "Cash"}, methods)

	var reply map[string]string
	s.decode(
		http.MethodGet,
		"/postdate?date=2024-03-09&method=visa",
		"",
		http.StatusOK,
		&reply)
	assert.Equal(t, "2024-03-20", reply["postDate"])
}

func TestOccurrences(t *testing.T) {
	s := newServer(t)
	s.setUp()
	var reply struct {
		Occurrences []occurrence `json:"occurrences"`
		More        bool         `json:"more"`
	}
	s.decode(
		http.MethodGet,
		"/occurrences?start=2024-03-01&end=2024-05-31",
		"",
		http.StatusOK,
		&reply)
	assert := assert.New(t)
	require.Len(t, reply.Occurrences, 4)
	assert.False(reply.More)
	assert.Equal("rent@2024-03-01", reply.Occurrences[0].Id)
	assert.True(reply.Occurrences[0].Virtual)
	assert.Equal("coffee", reply.Occurrences[1].Id)
	assert.Equal("rent@2024-05-01", reply.Occurrences[3].Id)

	s.decode(
		http.MethodGet,
		"/occurrences?start=2024-03-01&end=2024-05-31&pagesize=3&page=0",
		"",
		http.StatusOK,
		&reply)
	assert.Len(reply.Occurrences, 3)
	assert.True(reply.More)

	s.decode(
		http.MethodGet,
		"/occurrences?start=2024-03-01&end=2024-05-31&concrete=1",
		"",
		http.StatusOK,
		&reply)
	require.Len(t, reply.Occurrences, 1)
	assert.Equal("coffee", reply.Occurrences[0].Id)
}

func TestDetachAndBalance(t *testing.T) {
	s := newServer(t)
	s.setUp()
	var c changes
	s.decode(
		http.MethodPost,
		"/detach?id=rent@2024-04-01",
		`{"value":-110000}`,
		http.StatusOK,
		&c)
	assert := assert.New(t)
	assert.Equal([]string{"rent"}, c.Updated)
	require.Len(t, c.Added, 1)
	require.NotNil(t, c.Record)
	assert.Equal(int64(-110000), c.Record.Value)
	assert.Equal("2024-04-01", c.Record.OpDate)

	var day struct {
		Occurrences []occurrence `json:"occurrences"`
		Total       string       `json:"total"`
	}
	s.decode(http.MethodGet, "/day?date=2024-04-01", "", http.StatusOK, &day)
	require.Len(t, day.Occurrences, 1)
	assert.Equal(c.Added[0], day.Occurrences[0].Id)
	assert.Equal("parent", day.Occurrences[0].Match)
	assert.Equal("-1100.00", day.Total)

	var balance struct {
		Total   int64  `json:"total"`
		Planned int64  `json:"planned"`
		Amount  string `json:"amount"`
	}
	s.decode(http.MethodGet, "/balance?date=2024-04-30", "", http.StatusOK, &balance)
	assert.Equal(int64(-210350), balance.Total)
	assert.Equal(int64(-210000), balance.Planned)

	s.decode(http.MethodPut, "/startbalance", `"5000.00"`, http.StatusOK, nil)
	s.decode(http.MethodGet, "/balance?date=2024-04-30", "", http.StatusOK, &balance)
	assert.Equal(int64(289650), balance.Total)
	assert.Equal("2896.50", balance.Amount)
}

func TestDeleteOccurrenceAndTruncate(t *testing.T) {
	s := newServer(t)
	s.setUp()
	var c changes
	s.decode(
		http.MethodPost,
		"/deleteoccurrence?id=rent&date=2024-05-01",
		"",
		http.StatusOK,
		&c)
	assert.Equal(t, []string{"rent"}, c.Updated)
	var day struct {
		Occurrences []occurrence `json:"occurrences"`
	}
	s.decode(http.MethodGet, "/day?date=2024-05-01", "", http.StatusOK, &day)
	assert.Empty(t, day.Occurrences)

	s.decode(
		http.MethodPost,
		"/truncate?id=rent&date=2024-04-01",
		"",
		http.StatusOK,
		&c)
	s.decode(http.MethodGet, "/day?date=2024-06-01", "", http.StatusOK, &day)
	assert.Empty(t, day.Occurrences)
	s.decode(http.MethodGet, "/day?date=2024-03-01", "", http.StatusOK, &day)
	assert.Len(t, day.Occurrences, 1)

	s.decode(http.MethodPost, "/deleteall?id=rent", "", http.StatusOK, &c)
	assert.Equal(t, []string{"rent"}, c.Removed)
}

func TestUpdateAndRemove(t *testing.T) {
	s := newServer(t)
	s.setUp()
	var c changes
	s.decode(
		http.MethodPut,
		"/record?id=coffee",
		`{"desc":"Coffee","value":-350,"opDate":"2024-03-14","method":"Cash","planned":false}`,
		http.StatusOK,
		&c)
	assert.Equal(t, []string{"coffee"}, c.Updated)
	require.NotNil(t, c.Record)
	assert.Equal(t, "2024-03-14", c.Record.PostDate)

	s.decode(http.MethodDelete, "/record?id=coffee", "", http.StatusOK, &c)
	assert.Equal(t, []string{"coffee"}, c.Removed)
	s.decode(http.MethodGet, "/record?id=coffee", "", http.StatusNotFound, nil)
}

func TestErrors(t *testing.T) {
	s := newServer(t)
	s.decode(
		http.MethodPost,
		"/records",
		`{"desc":"Gym","value":-5000,"recurrence":"daily"}`,
		http.StatusBadRequest,
		nil)
	s.decode(
		http.MethodPut,
		"/cards",
		`[{"name":"Visa","closeDay":40,"dueDay":20}]`,
		http.StatusBadRequest,
		nil)
	s.decode(http.MethodPost, "/records", `{`, http.StatusBadRequest, nil)
	s.decode(http.MethodGet, "/detach", "", http.StatusMethodNotAllowed, nil)
	s.decode(http.MethodGet, "/day?date=tomorrow", "", http.StatusBadRequest, nil)
	s.decode(
		http.MethodPost,
		"/detach?id=nosuch&date=2024-04-01",
		"",
		http.StatusNotFound,
		nil)
}

func TestFlush(t *testing.T) {
	s := newServer(t)
	s.setUp()
	var st status
	s.decode(http.MethodGet, "/status", "", http.StatusOK, &st)
	assert := assert.New(t)
	assert.Equal("home", st.Profile)
	assert.True(st.Pending)
	assert.Contains(st.Dirty, syncq.Ledger)

	s.decode(http.MethodPost, "/flush", "", http.StatusOK, &st)
	assert.False(st.Pending)
	require.NotNil(t, st.Ran)
	assert.True(*st.Ran)
	data, err := s.remote.Read(context.Background(), "ledgers/home/ledger")
	require.NoError(t, err)
	assert.Contains(string(data), "coffee")
}

func TestFlushOfflineKeepsPending(t *testing.T) {
	s := newServer(t)
	s.setUp()
	s.remote.SetOffline(true)
	var st status
	s.decode(http.MethodPost, "/flush", "", http.StatusOK, &st)
	assert.True(t, st.Pending)

	s.remote.SetOffline(false)
	s.decode(http.MethodPost, "/online", "", http.StatusOK, &st)
	assert.False(t, st.Pending)
}

func TestBudgetsAndReservations(t *testing.T) {
	s := newServer(t)
	s.setUp()
	var list []struct {
		Id     string `json:"id"`
		Name   string `json:"name"`
		Amount int64  `json:"amount"`
	}
	s.decode(
		http.MethodPut,
		"/budgets",
		`[{"name":"Food","amount":40000,"recurrence":"monthly","startDate":"2024-03-01","active":true}]`,
		http.StatusOK,
		&list)
	require.Len(t, list, 1)
	assert := assert.New(t)
	assert.NotEmpty(list[0].Id)
	assert.Equal("Food", list[0].Name)

	var reservations []occurrence
	s.decode(http.MethodGet, "/reservations", "", http.StatusOK, &reservations)
	require.Len(t, reservations, 1)
	assert.Equal(int64(-40000), reservations[0].Value)
	assert.Equal("2024-03-15", reservations[0].PostDate)

	var records []occurrence
	s.decode(http.MethodGet, "/records?reservations=1", "", http.StatusOK, &records)
	assert.Len(records, 3)

	var balance struct {
		Total int64 `json:"total"`
	}
	s.decode(http.MethodGet, "/balance?date=2024-03-31", "", http.StatusOK, &balance)
	assert.Equal(int64(-100000), balance.Total)
	s.decode(
		http.MethodGet,
		"/balance?date=2024-03-31&reservations=1",
		"",
		http.StatusOK,
		&balance)
	assert.Equal(int64(-140000), balance.Total)

	s.decode(
		http.MethodPut,
		"/budgets",
		`[{"name":"","amount":40000,"recurrence":"monthly"}]`,
		http.StatusBadRequest,
		nil)
	s.decode(
		http.MethodPut,
		"/budgets",
		`[{"name":"Food","amount":40000,"recurrence":"weekly","active":true}]`,
		http.StatusBadRequest,
		nil)
	s.decode(http.MethodGet, "/budgets", "", http.StatusOK, &list)
	assert.Len(list, 1)
}
