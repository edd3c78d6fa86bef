package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"depthscope/internal/depth"
	"depthscope/internal/model"
)

type fakeService struct {
	result model.DepthResult
	source model.Source
	err    error
	last   depth.Request
}

func (f *fakeService) Depth(_ context.Context, req depth.Request) (model.DepthResult, model.Source, error) {
	f.last = req
	if f.err != nil {
		return model.DepthResult{}, "", f.err
	}
	return f.result, f.source, nil
}

func testResult() model.DepthResult {
	return model.DepthResult{
		Bids:         []model.DepthLevel{{Price: 99, BaseAmount: 1, QuoteAmount: 99, LiquidityUSD: 99}},
		Asks:         []model.DepthLevel{{Price: 101, BaseAmount: 1, QuoteAmount: 101, LiquidityUSD: 101}},
		CurrentPrice: 100,
		BaseSymbol:   "CAKE",
		QuoteSymbol:  "USDT",
		PoolType:     model.PoolTypeV3,
	}
}

func TestHandleDepthSuccess(t *testing.T) {
	svc := &fakeService{result: testResult(), source: model.SourceRPC}
	srv := New(svc, ":0", Options{})

	r := httptest.NewRequest(http.MethodGet, "/v1/depth?chain=56&pool=0x1234&usd_price=100&max_levels=25&precision=0.5", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var body struct {
		model.DepthResult
		Source model.Source `json:"source"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Source != model.SourceRPC || body.CurrentPrice != 100 {
		t.Fatalf("source/price = %s/%g", body.Source, body.CurrentPrice)
	}
	if svc.last.ChainID != 56 || svc.last.MaxLevels != 25 || svc.last.Precision != 0.5 {
		t.Fatalf("parsed request = %+v", svc.last)
	}
}

func TestHandleDepthErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", model.NewInvalidInput("pool", "malformed"), http.StatusBadRequest},
		{"unsupported", model.NewUnsupported("no such chain"), http.StatusBadRequest},
		{"upstream", model.NewUpstreamUnavailable("all endpoints down"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := New(&fakeService{err: tc.err}, ":0", Options{})
			r := httptest.NewRequest(http.MethodGet, "/v1/depth?chain=56&pool=0x1234&usd_price=100", nil)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, r)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			var body model.RequestError
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			var want *model.RequestError
			if !asRequestError(tc.err, &want) || body.Code != want.Code {
				t.Fatalf("code = %s", body.Code)
			}
		})
	}
}

func asRequestError(err error, target **model.RequestError) bool {
	re, ok := err.(*model.RequestError)
	if ok {
		*target = re
	}
	return ok
}

func TestHandleDepthParseFailures(t *testing.T) {
	srv := New(&fakeService{result: testResult()}, ":0", Options{})
	cases := []struct {
		name  string
		query string
		field string
	}{
		{"missing chain", "pool=0x1234&usd_price=1", "chain"},
		{"bad usd price", "chain=56&pool=0x1234&usd_price=abc", "usd_price"},
		{"bad max levels", "chain=56&pool=0x1234&usd_price=1&max_levels=x", "max_levels"},
		{"bad tick spacing", "chain=56&pool=0x1234&usd_price=1&tick_spacing=x", "tick_spacing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/depth?"+tc.query, nil)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, r)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var body model.RequestError
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Field != tc.field {
				t.Fatalf("field = %s, want %s", body.Field, tc.field)
			}
		})
	}
}

func TestHandleDepthMethodNotAllowed(t *testing.T) {
	srv := New(&fakeService{}, ":0", Options{})
	r := httptest.NewRequest(http.MethodPost, "/v1/depth", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := New(&fakeService{}, ":0", Options{})
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestDepthWebSocketStream(t *testing.T) {
	svc := &fakeService{result: testResult(), source: model.SourceRPC}
	srv := New(svc, ":0", Options{StreamInterval: 50 * time.Millisecond})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/depth/ws?chain=56&pool=0x1234&usd_price=100"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame struct {
			model.DepthResult
			Source model.Source `json:"source"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if frame.CurrentPrice != 100 || frame.Source != model.SourceRPC {
			t.Fatalf("frame %d = %+v", i, frame)
		}
	}
}
