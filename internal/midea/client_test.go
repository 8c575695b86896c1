package midea

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	testAppKey   = "testkey"
	testEmail    = "user@example.com"
	testPassword = "secret"
)

var testDataKey = []byte("fedcba9876543210")

// accessTokenFor builds the access token the cloud would hand out for dataKey.
func accessTokenFor(t *testing.T, appKey string, dataKey []byte) string {
	t.Helper()
	enc, err := aesEcbEncrypt(dataKey, []byte(md5Hex([]byte(appKey))[:dataKeySize]))
	if err != nil {
		t.Fatalf("encrypting data key: %v", err)
	}
	return hex.EncodeToString(enc)
}

// fakeReply is one scripted cloud answer.
type fakeReply struct {
	code   string
	msg    string
	result any
}

// fakeCloud is an httptest handler speaking the cloud envelope. Scripted
// replies are consumed in order per endpoint; the last one repeats.
type fakeCloud struct {
	t *testing.T

	mu       sync.Mutex
	calls    []string
	forms    []url.Values
	scripted map[string][]fakeReply
	// transparent handles decrypted transparent payloads.
	transparent func(frame []byte) []byte
}

func newFakeCloud(t *testing.T) *fakeCloud {
	return &fakeCloud{
		t:        t,
		scripted: make(map[string][]fakeReply),
	}
}

func (f *fakeCloud) script(endpoint string, replies ...fakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted[endpoint] = append(f.scripted[endpoint], replies...)
}

func (f *fakeCloud) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCloud) defaultReply(endpoint string, form url.Values) fakeReply {
	switch endpoint {
	case endpointLoginID:
		return fakeReply{code: "0", result: map[string]string{"loginId": "L123"}}
	case endpointLogin:
		return fakeReply{code: "0", result: map[string]string{
			"sessionId":   "S1",
			"accessToken": accessTokenFor(f.t, testAppKey, testDataKey),
		}}
	case endpointHomeGroups:
		return fakeReply{code: "0", result: map[string]any{"list": []map[string]string{
			{"id": "10", "name": "Holiday", "isDefault": "0"},
			{"id": "11", "name": "Home", "isDefault": "1"},
		}}}
	case endpointAppliances:
		return fakeReply{code: "0", result: map[string]any{"list": []map[string]string{
			{"id": "1001", "name": "Lounge", "type": "0xAC", "onlineStatus": "1", "activeStatus": "1"},
			{"id": "1002", "name": "Dehumidifier", "type": "0xA1", "onlineStatus": "1", "activeStatus": "1"},
			{"id": "hg-" + form.Get("homegroupId"), "name": "marker", "type": "0x00"},
		}}}
	case endpointTransparentSend:
		raw, err := hex.DecodeString(form.Get("order"))
		if err != nil {
			f.t.Errorf("order is not hex: %v", err)
			return fakeReply{code: "1"}
		}
		plain, err := aesEcbDecrypt(raw, testDataKey)
		if err != nil {
			f.t.Errorf("order does not decrypt: %v", err)
			return fakeReply{code: "1"}
		}
		frame, err := decodeOrder(plain)
		if err != nil {
			f.t.Errorf("order does not decode: %v", err)
			return fakeReply{code: "1"}
		}
		reply := frame
		if f.transparent != nil {
			reply = f.transparent(frame)
		}
		enc, _ := aesEcbEncrypt(encodeOrder(reply), testDataKey)
		return fakeReply{code: "0", result: map[string]string{"reply": hex.EncodeToString(enc)}}
	}
	return fakeReply{code: "0", result: map[string]any{}}
}

func (f *fakeCloud) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("ParseForm: %v", err)
	}
	endpoint := strings.TrimPrefix(r.URL.Path, "/v1/")

	params := url.Values{}
	for k, v := range r.PostForm {
		if k != "sign" {
			params[k] = v
		}
	}
	if got, want := r.PostForm.Get("sign"), sign(r.URL.Path, params, testAppKey); got != want {
		f.t.Errorf("%s: sign = %s, want %s", endpoint, got, want)
	}
	if r.PostForm.Get("appId") != appID || r.PostForm.Get("src") != src {
		f.t.Errorf("%s: missing client identity fields: %v", endpoint, r.PostForm)
	}

	f.mu.Lock()
	f.calls = append(f.calls, endpoint)
	f.forms = append(f.forms, r.PostForm)
	var reply fakeReply
	scripted := f.scripted[endpoint]
	switch {
	case len(scripted) > 1:
		reply = scripted[0]
		f.scripted[endpoint] = scripted[1:]
	case len(scripted) == 1:
		reply = scripted[0]
	}
	f.mu.Unlock()

	if reply.code == "" || (reply.code == "0" && reply.result == nil) {
		reply = f.defaultReply(endpoint, r.PostForm)
	}

	body := map[string]any{"errorCode": reply.code, "msg": reply.msg}
	if reply.result != nil {
		body["result"] = reply.result
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		f.t.Errorf("encoding reply: %v", err)
	}
}

// newTestClient returns a client pointed at a fake cloud, with the settling
// delay recorded instead of slept.
func newTestClient(t *testing.T, cloud *fakeCloud) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(cloud)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		AppKey:   testAppKey,
		Email:    testEmail,
		Password: testPassword,
		BaseURL:  srv.URL + "/v1/",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{AppKey: "k", Email: "e"}); err == nil {
		t.Error("expected error without password")
	}
}

func TestLogin(t *testing.T) {
	cloud := newFakeCloud(t)
	c, sleeps := newTestClient(t, cloud)
	ctx := context.Background()

	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !c.LoggedIn() {
		t.Fatal("LoggedIn() = false after login")
	}
	if c.session.LoginID != "L123" || c.session.SessionID != "S1" {
		t.Errorf("session = %+v", c.session)
	}
	if !bytes.Equal(c.session.dataKey, testDataKey) {
		t.Errorf("data key = %q, want %q", c.session.dataKey, testDataKey)
	}

	// Second non-forced login is a no-op.
	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("second Login() error = %v", err)
	}
	want := []string{endpointLoginID, endpointLogin}
	if got := cloud.callLog(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if len(*sleeps) != 0 {
		t.Errorf("non-forced login slept %v", *sleeps)
	}

	// Login form carries the hashed password.
	form := cloud.forms[1]
	if form.Get("password") != encryptPassword("L123", testPassword, testAppKey) {
		t.Errorf("password field = %q", form.Get("password"))
	}
	if form.Get("sessionId") != "" {
		t.Error("login request must not carry a session id")
	}
}

func TestLogin_Forced(t *testing.T) {
	cloud := newFakeCloud(t)
	c, sleeps := newTestClient(t, cloud)
	ctx := context.Background()

	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := c.Login(ctx, true); err != nil {
		t.Fatalf("forced Login() error = %v", err)
	}

	want := []string{endpointLoginID, endpointLogin, endpointLoginID, endpointLogin}
	if got := cloud.callLog(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != defaultForcedLoginDelay {
		t.Errorf("sleeps = %v, want [%v]", *sleeps, defaultForcedLoginDelay)
	}
}

func TestAPIRequest_SessionRestartRetriesOnce(t *testing.T) {
	cloud := newFakeCloud(t)
	c, _ := newTestClient(t, cloud)
	ctx := context.Background()

	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	cloud.script(endpointAppliances,
		fakeReply{code: "3004", msg: "value is illegal"},
		fakeReply{code: "0"},
	)

	result, err := c.APIRequest(ctx, endpointAppliances, map[string]string{"homegroupId": "11"})
	if err != nil {
		t.Fatalf("APIRequest() error = %v", err)
	}
	if !strings.Contains(string(result), "1001") {
		t.Errorf("result = %s", result)
	}

	want := []string{endpointLoginID, endpointLogin, endpointAppliances, endpointLogin, endpointAppliances}
	if got := cloud.callLog(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestAPIRequest_FullRestartResolvesLoginID(t *testing.T) {
	cloud := newFakeCloud(t)
	c, sleeps := newTestClient(t, cloud)
	ctx := context.Background()

	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	cloud.script(endpointHomeGroups, fakeReply{code: "3144"}, fakeReply{code: "0"})

	if _, err := c.ListHomeGroups(ctx, false); err != nil {
		t.Fatalf("ListHomeGroups() error = %v", err)
	}
	want := []string{
		endpointLoginID, endpointLogin,
		endpointHomeGroups, endpointLoginID, endpointLogin, endpointHomeGroups,
	}
	if got := cloud.callLog(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if len(*sleeps) != 0 {
		t.Errorf("full restart must not settle, slept %v", *sleeps)
	}
}

func TestAPIRequest_ForcedRestartSettles(t *testing.T) {
	cloud := newFakeCloud(t)
	c, sleeps := newTestClient(t, cloud)
	ctx := context.Background()

	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	cloud.script(endpointHomeGroups, fakeReply{code: "3106", msg: "invalidSession"}, fakeReply{code: "0"})

	if _, err := c.ListHomeGroups(ctx, false); err != nil {
		t.Fatalf("ListHomeGroups() error = %v", err)
	}
	if len(*sleeps) != 1 {
		t.Errorf("sleeps = %v, want one settling delay", *sleeps)
	}
}

func TestAPIRequest_DeviceOffline(t *testing.T) {
	cloud := newFakeCloud(t)
	c, _ := newTestClient(t, cloud)
	ctx := context.Background()

	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	cloud.script(endpointTransparentSend, fakeReply{code: "3123", msg: "device offline"})

	_, err := c.SendTransparentCommand(ctx, "1001", []byte{0x5a, 0x5a})
	if !errors.Is(err, ErrDeviceOffline) {
		t.Fatalf("error = %v, want ErrDeviceOffline", err)
	}
	if KindOf(err) != KindDeviceOffline {
		t.Errorf("KindOf() = %v, want device_offline", KindOf(err))
	}
	sends := 0
	for _, call := range cloud.callLog() {
		if call == endpointTransparentSend {
			sends++
		}
	}
	if sends != 1 {
		t.Errorf("transparent sends = %d, want 1 (offline is not retried)", sends)
	}
}

func TestAPIRequest_UnknownCode(t *testing.T) {
	cloud := newFakeCloud(t)
	c, _ := newTestClient(t, cloud)
	ctx := context.Background()

	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	cloud.script(endpointHomeGroups, fakeReply{code: "1234", msg: "nope"})

	_, err := c.ListHomeGroups(ctx, false)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("error = %v, want ErrProtocol", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != 1234 || apiErr.Msg != "nope" {
		t.Errorf("error = %#v", err)
	}
}

func TestAPIRequest_RetryExhausted(t *testing.T) {
	cloud := newFakeCloud(t)
	c, _ := newTestClient(t, cloud)
	ctx := context.Background()

	if err := c.Login(ctx, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	cloud.script(endpointHomeGroups, fakeReply{code: "3176"})

	_, err := c.ListHomeGroups(ctx, false)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}

	attempts := 0
	for _, call := range cloud.callLog() {
		if call == endpointHomeGroups {
			attempts++
		}
	}
	if attempts != maxAttempts {
		t.Errorf("attempts = %d, want %d", attempts, maxAttempts)
	}

	// The next call starts with a fresh budget.
	cloud.mu.Lock()
	cloud.scripted[endpointHomeGroups] = []fakeReply{{code: "0"}}
	cloud.mu.Unlock()
	if _, err := c.ListHomeGroups(ctx, true); err != nil {
		t.Errorf("ListHomeGroups() after exhaustion error = %v", err)
	}
}

func TestLogin_FailureBypassesDispatch(t *testing.T) {
	cloud := newFakeCloud(t)
	c, _ := newTestClient(t, cloud)

	cloud.script(endpointLogin, fakeReply{code: "3004", msg: "bad password"})

	err := c.Login(context.Background(), false)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	want := []string{endpointLoginID, endpointLogin, endpointLogin, endpointLogin}
	if got := cloud.callLog(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if c.LoggedIn() {
		t.Error("LoggedIn() = true after failed login")
	}
}

func TestSendTransparentCommand(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.transparent = func(frame []byte) []byte {
		out := make([]byte, len(frame))
		for i, b := range frame {
			out[len(frame)-1-i] = b
		}
		return out
	}
	c, _ := newTestClient(t, cloud)

	frame := []byte{0x5a, 0x5a, 0x01, 0xaa, 0xff, 0x00}
	reply, err := c.SendTransparentCommand(context.Background(), "1001", frame)
	if err != nil {
		t.Fatalf("SendTransparentCommand() error = %v", err)
	}
	want := []byte{0x00, 0xff, 0xaa, 0x01, 0x5a, 0x5a}
	if !bytes.Equal(reply, want) {
		t.Errorf("reply = %x, want %x", reply, want)
	}

	// Logged in implicitly; the send carries the session and appliance.
	last := cloud.forms[len(cloud.forms)-1]
	if last.Get("sessionId") != "S1" || last.Get("applianceId") != "1001" || last.Get("funId") != "0000" {
		t.Errorf("send form = %v", last)
	}
}

func TestListAppliances_DefaultHomeGroup(t *testing.T) {
	cloud := newFakeCloud(t)
	c, _ := newTestClient(t, cloud)
	ctx := context.Background()

	list, err := c.ListAppliances(ctx, "")
	if err != nil {
		t.Fatalf("ListAppliances() error = %v", err)
	}
	if len(list) != 3 || list[2].ID != "hg-11" {
		t.Fatalf("list = %+v, want default group 11", list)
	}
	if !list[0].Online() || !list[0].Active() {
		t.Errorf("appliance status = %+v", list[0])
	}

	// Home groups are cached.
	if _, err := c.ListAppliances(ctx, ""); err != nil {
		t.Fatalf("second ListAppliances() error = %v", err)
	}
	groupCalls := 0
	for _, call := range cloud.callLog() {
		if call == endpointHomeGroups {
			groupCalls++
		}
	}
	if groupCalls != 1 {
		t.Errorf("home group calls = %d, want 1", groupCalls)
	}
}

func TestListAppliances_NoDefaultGroup(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.script(endpointHomeGroups, fakeReply{code: "0", result: map[string]any{"list": []map[string]string{
		{"id": "10", "isDefault": "0"},
	}}})
	c, _ := newTestClient(t, cloud)

	_, err := c.ListAppliances(context.Background(), "")
	if !errors.Is(err, ErrNoDefaultHomeGroup) {
		t.Errorf("error = %v, want ErrNoDefaultHomeGroup", err)
	}
}

func TestErrorCodeUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want errorCode
	}{
		{`"0"`, 0},
		{`0`, 0},
		{`"3123"`, 3123},
		{`9999`, 9999},
		{`null`, 0},
	}
	for _, tt := range tests {
		var got errorCode
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
