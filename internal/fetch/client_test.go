package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"firstpull/internal/first"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := newClient(ClientOptions{
		JobURL:          srv.URL + "/SASJobExecution/",
		Base:            srv.URL,
		UserAgent:       "firstpull-test",
		RequestTimeout:  5 * time.Second,
		DownloadTimeout: 5 * time.Second,
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func TestClient_PostQuery(t *testing.T) {
	var gotHeader http.Header
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotHeader = r.Header.Clone()
		gotForm = r.PostForm
		fmt.Fprint(w, "<html>done</html>")
	}))
	defer srv.Close()

	c := testClient(t, srv)
	page, err := c.PostQuery(context.Background(), first.NewQuery(6))
	require.NoError(t, err)
	assert.Equal(t, "<html>done</html>", page)

	assert.Equal(t, "XMLHttpRequest", gotHeader.Get("X-Requested-With"))
	assert.Equal(t, "*/*", gotHeader.Get("Accept"))
	assert.Equal(t, srv.URL+"/query", gotHeader.Get("Referer"))
	assert.Equal(t, srv.URL, gotHeader.Get("Origin"))
	assert.Equal(t, "application/x-www-form-urlencoded", gotHeader.Get("Content-Type"))
	assert.Equal(t, "firstpull-test", gotHeader.Get("User-Agent"))

	assert.Equal(t, first.Program, gotForm.Get("_program"))
	assert.Equal(t, first.AppHost, gotForm.Get("_apphostname"))
	assert.Contains(t, gotForm.Get("SASQueryString"), "&State=6&")
	assert.Contains(t, gotForm.Get("SASQueryString"), "Criteria=Years: 2010-2023")
}

func TestClient_PostQuery_SSOChallenge(t *testing.T) {
	var posts, authHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/SASJobExecution/", func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			w.WriteHeader(statusSSOChallenge)
			fmt.Fprint(w, `{"uri":"/SASLogon/guest"}`)
			return
		}
		fmt.Fprint(w, "<html>result</html>")
	})
	mux.HandleFunc("/SASLogon/guest", func(w http.ResponseWriter, r *http.Request) {
		authHits.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv)
	page, err := c.PostQuery(context.Background(), first.NewQuery(1))
	require.NoError(t, err)

	assert.Equal(t, "<html>result</html>", page)
	assert.Equal(t, int32(2), posts.Load())
	assert.Equal(t, int32(1), authHits.Load())
}

func TestClient_PostQuery_SSOChallengeAbsoluteURI(t *testing.T) {
	var authHits atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var posts atomic.Int32
	mux.HandleFunc("/SASJobExecution/", func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			w.WriteHeader(statusSSOChallenge)
			fmt.Fprintf(w, `{"uri":%q}`, srv.URL+"/SASLogon/abs")
			return
		}
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/SASLogon/abs", func(w http.ResponseWriter, r *http.Request) {
		authHits.Add(1)
	})

	c := testClient(t, srv)
	page, err := c.PostQuery(context.Background(), first.NewQuery(1))
	require.NoError(t, err)
	assert.Equal(t, "ok", page)
	assert.Equal(t, int32(1), authHits.Load())
}

func TestClient_PostQuery_SSOChallengeWithoutURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusSSOChallenge)
		fmt.Fprint(w, `{"status":"authentication required"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.PostQuery(context.Background(), first.NewQuery(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sso challenge")
}

func TestClient_PostQuery_ChallengeNotRetriedTwice(t *testing.T) {
	var posts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/SASJobExecution/", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(statusSSOChallenge)
		fmt.Fprint(w, `{"uri":"/SASLogon/guest"}`)
	})
	mux.HandleFunc("/SASLogon/guest", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv)
	page, err := c.PostQuery(context.Background(), first.NewQuery(1))
	require.NoError(t, err)

	// The retried response is returned as-is and the link wait downstream
	// reports the failure.
	assert.Equal(t, int32(2), posts.Load())
	assert.Contains(t, page, "uri")
}

func TestClient_SubmitProgressForm(t *testing.T) {
	var gotPath string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotForm = r.PostForm
		fmt.Fprint(w, "<html>report</html>")
	}))
	defer srv.Close()

	c := testClient(t, srv)
	form := &ProgressForm{
		Action: "/SASJobExecution/progress",
		Fields: url.Values{"_token": {"abc"}, "_status": {"running"}},
	}
	page, err := c.SubmitProgressForm(context.Background(), form)
	require.NoError(t, err)

	assert.Equal(t, "<html>report</html>", page)
	assert.Equal(t, "/SASJobExecution/progress", gotPath)
	assert.Equal(t, "abc", gotForm.Get("_token"))
	assert.Equal(t, "running", gotForm.Get("_status"))
}

func TestClient_SubmitProgressForm_DefaultAction(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.SubmitProgressForm(context.Background(), &ProgressForm{Fields: url.Values{}})
	require.NoError(t, err)
	assert.Equal(t, "/SASJobExecution/", gotPath)
}

func TestClient_Download(t *testing.T) {
	payload := []byte("workbook-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	data, err := c.Download(context.Background(), srv.URL+"/files/files/report.xlsx")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestClient_Download_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Download(context.Background(), srv.URL+"/files/files/missing.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestClient_SeedCookies(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("JSESSIONID"); err == nil {
			gotCookie = c.Value
		}
	}))
	defer srv.Close()

	c := testClient(t, srv)
	c.SeedCookies([]*http.Cookie{{Name: "JSESSIONID", Value: "browser-session", Path: "/"}})

	_, err := c.PostQuery(context.Background(), first.NewQuery(1))
	require.NoError(t, err)
	assert.Equal(t, "browser-session", gotCookie)
}
