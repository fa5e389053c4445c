package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakePortal struct {
	t          *testing.T
	logins     int
	validToken string

	runtimeBody  string
	expireTokens map[string]bool
	writes       []map[string]any
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			p.t.Error(err)
			return
		}
		if r.PostFormValue("account") != "user" || r.PostFormValue("password") != "pass" {
			fmt.Fprint(w, `{"code":10,"message":"bad credentials","success":false}`)
			return
		}
		p.logins++
		p.validToken = fmt.Sprintf("token-%d", p.logins)
		fmt.Fprintf(w, `{"code":0,"success":true,"result":{"token":"%s"}}`, p.validToken)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("loginToken")
		if token == "" || token != p.validToken || p.expireTokens[token] {
			fmt.Fprint(w, `{"code":401,"message":"session expired","success":false}`)
			return
		}
		switch r.URL.Path {
		case "/api/device/SER100/runtime":
			fmt.Fprint(w, p.runtimeBody)
		case "/api/device/SER100/midbox":
			fmt.Fprint(w, `{"code":120,"message":"no midbox","success":false}`)
		case "/api/device/SER100/parameters/read":
			fmt.Fprint(w, `{"code":0,"success":true,"result":{"values":[0,0,0]}}`)
		case "/api/device/SER100/parameters/write":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				p.t.Error(err)
				return
			}
			p.writes = append(p.writes, body)
			fmt.Fprint(w, `{"code":0,"success":true}`)
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func TestClientRuntime(t *testing.T) {

	portal := &fakePortal{
		t: t,
		runtimeBody: `{"code":0,"success":true,"result":{
			"status":16,
			"ppv1":3000,"ppv2":2500,"ppv3":0,
			"vpv1":350.5,"vpv2":341.2,
			"pCharge":1200,"pDisCharge":0,"vBat":53.2,
			"soc":250,"soh":100,
			"vacr":241.3,"fac":50.01,"pToGrid":800,"pToUser":0,
			"pinv":4500,"pLoad":3700,
			"tinner":41.5,"tradiator1":38.2}}`,
	}
	server := httptest.NewServer(portal.handler())
	defer server.Close()

	client := NewClient(server.URL, "user", "pass", zap.Must(zap.NewDevelopment()))

	runtime, err := client.Runtime(context.Background(), "SER100")
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, "SER100", runtime.Serial)
	assert.Equal(t, 5500.0, runtime.PVPowerWatt, "pv power is the string sum")
	assert.Equal(t, 350.5, runtime.PV1Voltage)
	assert.Equal(t, 1200.0, runtime.ChargePowerWatt)
	assert.Equal(t, 100.0, runtime.SOC, "soc is clamped")
	assert.Equal(t, 250.0, runtime.RawSOC, "raw soc keeps the portal value")
	assert.Equal(t, -800.0, runtime.GridPowerWatt, "export reads negative")
	assert.Equal(t, 1, portal.logins, "single login for the session")

	// session survives a second call without another login
	_, err = client.Runtime(context.Background(), "SER100")
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, 1, portal.logins)
}

func TestClientReauthOnSessionExpiry(t *testing.T) {

	portal := &fakePortal{
		t:            t,
		runtimeBody:  `{"code":0,"success":true,"result":{"status":0,"ppv1":100}}`,
		expireTokens: map[string]bool{},
	}
	server := httptest.NewServer(portal.handler())
	defer server.Close()

	client := NewClient(server.URL, "user", "pass", zap.Must(zap.NewDevelopment()))

	if err := client.Authenticate(context.Background()); err != nil {
		t.Error(err)
		return
	}
	// expire the token the client is holding; the next call must re-login and
	// retry transparently
	portal.expireTokens[portal.validToken] = true

	runtime, err := client.Runtime(context.Background(), "SER100")
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, 100.0, runtime.PV1PowerWatt)
	assert.Equal(t, 2, portal.logins, "one re-login after expiry")
}

func TestClientMidboxUnsupported(t *testing.T) {

	portal := &fakePortal{t: t}
	server := httptest.NewServer(portal.handler())
	defer server.Close()

	client := NewClient(server.URL, "user", "pass", zap.Must(zap.NewDevelopment()))

	midbox, err := client.Midbox(context.Background(), "SER100")
	assert.NoError(t, err, "unsupported section is not an error")
	assert.Nil(t, midbox)
}

func TestClientParameters(t *testing.T) {

	portal := &fakePortal{t: t}
	server := httptest.NewServer(portal.handler())
	defer server.Close()

	client := NewClient(server.URL, "user", "pass", zap.Must(zap.NewDevelopment()))

	values, err := client.ReadParameters(context.Background(), "SER100", 64, 3)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, []uint16{0, 0, 0}, values)

	err = client.WriteParameters(context.Background(), "SER100", map[uint16]uint16{64: 80})
	if err != nil {
		t.Error(err)
		return
	}
	if assert.Len(t, portal.writes, 1) {
		entries := portal.writes[0]["values"].([]any)
		entry := entries[0].(map[string]any)
		assert.Equal(t, 64.0, entry["register"])
		assert.Equal(t, 80.0, entry["value"])
	}
}

func TestClientBadCredentials(t *testing.T) {

	portal := &fakePortal{t: t}
	server := httptest.NewServer(portal.handler())
	defer server.Close()

	client := NewClient(server.URL, "user", "wrong", zap.Must(zap.NewDevelopment()))

	err := client.Authenticate(context.Background())
	assert.Error(t, err)
}
