package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bytedeck/deck/apps/api/echo"
	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/digest"
	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
	"github.com/bytedeck/deck/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server     echoapi.Server
	conf       *core.Config
	repos      *testutil.Repos
	tenants    *tenant.Service
	dispatcher *testutil.FakeDispatcher
	token      string
}

func setup(t *testing.T, statusCheck ...func() error) *testApp {
	t.Helper()
	conf := testutil.NewConfig()
	repos := testutil.NewRepos()
	validate, translator := core.NewValidator()
	dispatcher := new(testutil.FakeDispatcher)

	scheduleSvc := schedule.NewService(repos.Tasks, conf.Digest.Schedule)
	tenantSvc := tenant.NewService(tenant.Deps{
		Repo:      repos.Tenants,
		Provision: repos.DB,
		Users:     repos.Users,
		Sites:     repos.Sites,
		Schedule:  scheduleSvc,
		Validate:  validate,
	}, conf.Site.Domain, conf.Deck.ShortName)

	opts := &echoapi.Options{
		DisableReqLogs: true,
		TestMode:       true,
		AppName:        conf.AppName,
		SecretKey:      conf.SecretKey,
		JWTExpiration:  conf.Server.JWTExpirationDelta,
		Validate:       validate,
		Translator:     translator,
		Gatherer:       prometheus.NewRegistry(),
		Tenants:        tenantSvc,
		Users:          user.NewService(repos.Users, validate),
		Notifications:  notification.NewService(repos.Notifications, validate),
		Schedule:       scheduleSvc,
		Digests:        digest.NewBuilder(repos.Users, repos.Notifications, repos.Submissions, repos.Sites, conf.Deck.ShortName),
		Dispatcher:     dispatcher,
		RootURL:        conf.RootURL,
	}
	if len(statusCheck) > 0 {
		check := statusCheck[0]
		opts.StatusCheck = func(_ context.Context) error { return check() }
	}

	return &testApp{
		server:     echoapi.NewServer(opts),
		conf:       conf,
		repos:      repos,
		tenants:    tenantSvc,
		dispatcher: dispatcher,
		token:      getToken(t, conf, true),
	}
}

// createTenant creates a tenant the way the API does, owned by "owner".
func (app *testApp) createTenant(t *testing.T, name string) tenant.Tenant {
	t.Helper()
	tn, err := app.tenants.Create(context.Background(), tenant.NewTenant{
		Name:          name,
		OwnerUsername: "owner",
		OwnerEmail:    "owner@" + name + ".test",
	})
	if err != nil {
		t.Fatalf("createTenant() failed: %v", err)
	}
	return tn
}

func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

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

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, operator bool) string {
	t.Helper()
	claims := echoapi.NewOperatorClaims(conf.AppName, "ops", time.Hour)
	claims.IsOperator = operator
	token, err := echoapi.GenerateToken(claims, conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
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

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
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
