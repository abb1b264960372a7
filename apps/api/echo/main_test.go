package echoapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/weeklog/apps/api/echo"
	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
	"github.com/trezcool/weeklog/services/email"
	"github.com/trezcool/weeklog/storage/database/inmem"
	"github.com/trezcool/weeklog/testutil"
)

const pwd = "s3cure-Passw0rd"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testApp struct {
	conf    *core.Config
	server  *echoapi.Server
	usrRepo user.Repository
	logRepo progress.Repository
	logger  *testutil.Logger
	mailSvc core.EmailService
}

// newTestApp wires a server on a fresh in-memory database. mailSvc defaults to the console mock.
func newTestApp(t *testing.T, mailSvc ...core.EmailService) testApp {
	t.Helper()

	conf := core.NewTestConfig()
	db := inmemdb.Open()
	app := testApp{
		conf:    conf,
		usrRepo: inmemdb.NewUserRepository(db),
		logRepo: inmemdb.NewLogRepository(db),
		logger:  testutil.NewLogger(),
	}

	app.mailSvc = emailsvc.NewConsoleServiceMock(conf)
	if len(mailSvc) > 0 {
		app.mailSvc = mailSvc[0]
	}
	emailsvc.ClearSentMessages()

	app.server = app.newServer(nil)
	return app
}

// newServer builds a server over the app's repositories. Request logs are written to reqLogs, or disabled if nil.
func (app testApp) newServer(reqLogs io.Writer) *echoapi.Server {
	validate, translator := testutil.NewValidator()
	return echoapi.NewServer(echoapi.Options{
		Conf:           app.conf,
		Logger:         app.logger,
		UserSvc:        user.NewService(app.usrRepo, validate),
		LogSvc:         progress.NewService(app.logRepo, app.mailSvc, app.conf, app.logger, validate),
		MailSvc:        app.mailSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: reqLogs == nil,
		ReqLogOutput:   reqLogs,
	})
}

func (app testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.NewClaims(usr, app.conf), app.conf.SecretKey)
	require.NoError(t, err)
	return token
}

func (app testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app testApp) run(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	rec := app.do(newAuthRequest(method, tt.path, tt.token, tt.body))
	checkCodeAndData(t, tt, rec)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the response to tt. wantCode defaults to 200; data is only checked when wantData is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
