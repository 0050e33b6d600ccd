package healthreport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"carder-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// a 512 bit test key; the private exponent stays with the stub so it
// could decrypt what the client sends
const (
	stubModulusHex  = "00b1f3519b2d4a83f2a4b1c7d9e8f6a5c3d2e1f0998877665544332211fedcba0987654321fedcba0987654321fedcba0987654321fedcba0987654321fedcbab"
	stubExponentHex = "10001"
)

type stubPortal struct {
	rejectLogin bool
	pubKeyBody  string
	loginPage   string
	reportHtml  string
	saveBody    string

	lastLoginForm map[string]string
	lastSaveForm  map[string]string
}

func newStubPortal() *stubPortal {
	return &stubPortal{
		loginPage: `<html><form id="fm1">
			<input type="hidden" name="execution" value="e1s1-abcdef"/>
		</form></html>`,
		pubKeyBody: fmt.Sprintf(
			`{"modulus": "%s", "exponent": "%s"}`,
			stubModulusHex, stubExponentHex,
		),
		reportHtml: reportPageHtml,
		saveBody:   `{"e": 0, "m": "操作成功", "d": {}}`,
	}
}

func (p *stubPortal) start(t *testing.T) (*httptest.Server, ClientOptions) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cas/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, p.loginPage)
			return
		}

		err := r.ParseForm()
		require.NoError(t, err)
		p.lastLoginForm = map[string]string{}
		for key := range r.PostForm {
			p.lastLoginForm[key] = r.PostForm.Get(key)
		}

		if p.rejectLogin {
			fmt.Fprint(w, `<html><title>统一身份认证</title></html>`)
			return
		}
		fmt.Fprint(w, `<html>redirecting to the report portal</html>`)
	})
	mux.HandleFunc("/cas/v2/getPubKey", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, p.pubKeyBody)
	})
	mux.HandleFunc("/ncov/wap/default/index", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, p.reportHtml)
	})
	mux.HandleFunc("/ncov/wap/default/save", func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseForm()
		require.NoError(t, err)
		p.lastSaveForm = map[string]string{}
		for key := range r.PostForm {
			p.lastSaveForm[key] = r.PostForm.Get(key)
		}
		fmt.Fprint(w, p.saveBody)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, ClientOptions{
		LoginUrl:  server.URL + "/cas/login",
		PubKeyUrl: server.URL + "/cas/v2/getPubKey",
		ReportUrl: server.URL + "/ncov/wap/default/index",
		SaveUrl:   server.URL + "/ncov/wap/default/save",
	}
}

func TestLogin(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/healthreport")
	defer cleanup()
	ctx := context.Background()

	portal := newStubPortal()
	_, opts := portal.start(t)

	client, err := NewClient(ctx, opts)
	require.NoError(t, err)

	err = client.Login(ctx, "3180000000", "hunter2")
	require.NoError(t, err)

	require.Equal(t, "3180000000", portal.lastLoginForm["username"])
	require.Equal(t, "e1s1-abcdef", portal.lastLoginForm["execution"])
	require.Equal(t, "submit", portal.lastLoginForm["_eventId"])
	// the password field carries the fixed-width RSA ciphertext,
	// never the cleartext
	require.Len(t, portal.lastLoginForm["password"], 128)
	require.NotContains(t, portal.lastLoginForm["password"], "hunter2")
}

func TestLoginRejected(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/healthreport")
	defer cleanup()
	ctx := context.Background()

	portal := newStubPortal()
	portal.rejectLogin = true
	_, opts := portal.start(t)

	client, err := NewClient(ctx, opts)
	require.NoError(t, err)

	err = client.Login(ctx, "3180000000", "wrong")
	require.ErrorIs(t, err, LoginFailed)
}

func TestLoginMissingExecution(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/healthreport")
	defer cleanup()
	ctx := context.Background()

	portal := newStubPortal()
	portal.loginPage = `<html><form id="fm1"></form></html>`
	_, opts := portal.start(t)

	client, err := NewClient(ctx, opts)
	require.NoError(t, err)

	err = client.Login(ctx, "3180000000", "hunter2")
	require.ErrorIs(t, err, FragmentMissing)
}

func TestLoginBadPubKey(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/healthreport")
	defer cleanup()
	ctx := context.Background()

	portal := newStubPortal()
	portal.pubKeyBody = `<html>not json</html>`
	_, opts := portal.start(t)

	client, err := NewClient(ctx, opts)
	require.NoError(t, err)

	err = client.Login(ctx, "3180000000", "hunter2")
	require.ErrorIs(t, err, FragmentInvalid)
}

func TestSaveClassification(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/healthreport")
	defer cleanup()
	ctx := context.Background()

	record := Record{"id": json.Number("114515"), "name": "张三"}

	cases := []struct {
		body          string
		expectCode    string
		expectAlready bool
	}{
		{body: `{"e": 0, "m": "ok"}`, expectCode: "0", expectAlready: false},
		{body: `{"e": "0", "m": "ok"}`, expectCode: "0", expectAlready: false},
		{body: `{"e": 1, "m": "already submitted today"}`, expectCode: "1", expectAlready: true},
	}
	for _, test := range cases {
		portal := newStubPortal()
		portal.saveBody = test.body
		_, opts := portal.start(t)

		client, err := NewClient(ctx, opts)
		require.NoError(t, err)

		result, err := client.Save(ctx, record)
		require.NoError(t, err)
		require.Equal(t, test.expectCode, result.Code)
		require.Equal(t, test.expectAlready, result.AlreadySubmitted())
		require.Equal(t, "114515", portal.lastSaveForm["id"])
	}
}

func TestSaveInvalidResponse(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/healthreport")
	defer cleanup()
	ctx := context.Background()

	portal := newStubPortal()
	portal.saveBody = `<html>502 bad gateway</html>`
	_, opts := portal.start(t)

	client, err := NewClient(ctx, opts)
	require.NoError(t, err)

	_, err = client.Save(ctx, Record{"id": json.Number("1")})
	require.ErrorIs(t, err, FragmentInvalid)
}
