package midea

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/midea-bridge/internal/metrics"
)

// Fixed client identity sent with every request.
const (
	DefaultBaseURL = "https://mapp.appsmb.com/v1/"

	appID      = "1017"
	formatJSON = "2"
	clientType = "1" // Android
	language   = "en_US"
	src        = "17"

	stampLayout = "20060102150405"
)

// Endpoints.
const (
	endpointLoginID         = "user/login/id/get"
	endpointLogin           = "user/login"
	endpointHomeGroups      = "homegroup/list/get"
	endpointAppliances      = "appliance/list/get"
	endpointTransparentSend = "appliance/transparent/send"
)

const (
	// maxAttempts bounds one logical call: the first try plus two retries.
	maxAttempts = 3

	defaultForcedLoginDelay = 10 * time.Second
	defaultRequestTimeout   = 30 * time.Second

	// maxResponseBytes caps how much of a reply is read.
	maxResponseBytes = 1 << 20

	transparentFunID = "0000"
)

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the cloud account credentials and client tuning.
type Config struct {
	// AppKey is the application key shipped with the vendor's mobile app.
	AppKey   string
	Email    string
	Password string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// ForcedLoginDelay is the settling time after a forced login.
	// Default: 10 seconds.
	ForcedLoginDelay time.Duration

	// RequestTimeout bounds each HTTP round trip. Default: 30 seconds.
	RequestTimeout time.Duration

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Session is the client's login identity. It is owned by one Client and
// only touched with the client lock held.
type Session struct {
	LoginID     string
	SessionID   string
	AccessToken string
	dataKey     []byte
}

// Active reports whether a session token is held.
func (s *Session) Active() bool {
	return s.SessionID != ""
}

// clear drops the session token but keeps the resolved login id.
func (s *Session) clear() {
	s.SessionID = ""
	s.AccessToken = ""
	s.dataKey = nil
}

// HomeGroup is one entry of the account's home group list.
type HomeGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault string `json:"isDefault"`
}

// ApplianceInfo is one record of the appliance roster.
type ApplianceInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	ModelNumber  string `json:"modelNumber"`
	SerialNumber string `json:"sn"`
	ActiveStatus string `json:"activeStatus"`
	OnlineStatus string `json:"onlineStatus"`
}

// Online reports whether the cloud considers the appliance reachable.
func (a ApplianceInfo) Online() bool {
	return a.OnlineStatus == "1"
}

// Active reports whether the appliance is activated on the account.
func (a ApplianceInfo) Active() bool {
	return a.ActiveStatus == "1"
}

// apiResponse is the cloud's JSON envelope.
type apiResponse struct {
	ErrorCode errorCode       `json:"errorCode"`
	Msg       string          `json:"msg"`
	Result    json.RawMessage `json:"result"`
}

// errorCode accepts the code as a JSON string or number.
type errorCode int

func (c *errorCode) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("error code %s: %w", data, err)
	}
	*c = errorCode(n)
	return nil
}

// Client talks to the Midea cloud.
//
// Thread Safety:
//   - All methods are safe for concurrent use. A single mutex is held for
//     the whole sign-send-receive-retry cycle of each call, including any
//     re-login performed as recovery.
type Client struct {
	cfg        Config
	baseURL    *url.URL
	httpClient *http.Client
	metrics    *metrics.Metrics

	mu         sync.Mutex
	session    Session
	homeGroups []HomeGroup
	// recovering suppresses nested recovery while a recovery login runs.
	recovering bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient validates cfg and returns a logged-out client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AppKey == "" || cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("midea: app key, email and password are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("midea: parsing base url: %w", err)
	}
	if cfg.ForcedLoginDelay == 0 {
		cfg.ForcedLoginDelay = defaultForcedLoginDelay
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// LoggedIn reports whether the client currently holds a session.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Active()
}

// Login authenticates with the cloud.
//
// The login id is resolved on first use or when force is set. A non-forced
// login while a session exists is a no-op. A forced login waits the
// settling delay before returning; the client lock is held throughout so a
// concurrent caller cannot observe the stale session.
func (c *Client) Login(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx, force)
}

// APIRequest sends one signed request and returns the result payload.
//
// Parameters:
//   - ctx: Context for cancellation
//   - endpoint: Path relative to the base URL (e.g. "appliance/list/get")
//   - args: Endpoint parameters, merged over the fixed client fields
//
// Returns:
//   - json.RawMessage: The "result" member of a successful reply
//   - error: *Error with KindProtocol, KindDeviceOffline or KindRetryExhausted
func (c *Client) APIRequest(ctx context.Context, endpoint string, args map[string]string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request(ctx, endpoint, args)
}

// SendTransparentCommand sends raw frame bytes to an appliance and returns
// the decrypted reply frame.
func (c *Client) SendTransparentCommand(ctx context.Context, applianceID string, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.Active() {
		if err := c.login(ctx, false); err != nil {
			return nil, err
		}
	}

	c.logDebug("sending transparent command", "appliance_id", applianceID, "frame", hex.EncodeToString(payload))

	// Recovery inside request may replace the session, so the payload is
	// encrypted per attempt via the args builder.
	result, err := c.requestWith(ctx, endpointTransparentSend, func() (map[string]string, error) {
		if len(c.session.dataKey) == 0 {
			return nil, ErrNotLoggedIn
		}
		order, encErr := aesEcbEncrypt(encodeOrder(payload), c.session.dataKey)
		if encErr != nil {
			return nil, encErr
		}
		return map[string]string{
			"order":       hex.EncodeToString(order),
			"funId":       transparentFunID,
			"applianceId": applianceID,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, protocolError(endpointTransparentSend, fmt.Errorf("decoding reply: %w", err))
	}
	raw, err := hex.DecodeString(body.Reply)
	if err != nil {
		return nil, protocolError(endpointTransparentSend, fmt.Errorf("decoding reply hex: %w", err))
	}
	plain, err := aesEcbDecrypt(raw, c.session.dataKey)
	if err != nil {
		return nil, protocolError(endpointTransparentSend, fmt.Errorf("decrypting reply: %w", err))
	}
	reply, err := decodeOrder(plain)
	if err != nil {
		return nil, protocolError(endpointTransparentSend, err)
	}

	c.logDebug("received transparent reply", "appliance_id", applianceID, "frame", hex.EncodeToString(reply))
	return reply, nil
}

// ListHomeGroups returns the account's home groups, fetched once and
// cached unless refresh is set.
func (c *Client) ListHomeGroups(ctx context.Context, refresh bool) ([]HomeGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listHomeGroups(ctx, refresh)
}

// ListAppliances returns the appliance roster for homeGroupID, or for the
// account's default home group when homeGroupID is empty.
func (c *Client) ListAppliances(ctx context.Context, homeGroupID string) ([]ApplianceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.Active() {
		if err := c.login(ctx, false); err != nil {
			return nil, err
		}
	}

	if homeGroupID == "" {
		groups, err := c.listHomeGroups(ctx, false)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			if g.IsDefault == "1" {
				homeGroupID = g.ID
				break
			}
		}
		if homeGroupID == "" {
			return nil, ErrNoDefaultHomeGroup
		}
	}

	result, err := c.request(ctx, endpointAppliances, map[string]string{"homegroupId": homeGroupID})
	if err != nil {
		return nil, err
	}
	var body struct {
		List []ApplianceInfo `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, protocolError(endpointAppliances, fmt.Errorf("decoding appliance list: %w", err))
	}
	c.logDebug("appliance list", "home_group_id", homeGroupID, "count", len(body.List))
	return body.List, nil
}

func (c *Client) listHomeGroups(ctx context.Context, refresh bool) ([]HomeGroup, error) {
	if len(c.homeGroups) > 0 && !refresh {
		return c.homeGroups, nil
	}
	result, err := c.request(ctx, endpointHomeGroups, nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		List []HomeGroup `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, protocolError(endpointHomeGroups, fmt.Errorf("decoding home groups: %w", err))
	}
	c.homeGroups = body.List
	return c.homeGroups, nil
}

// login runs with c.mu held.
func (c *Client) login(ctx context.Context, force bool) error {
	if c.session.LoginID == "" || force {
		if err := c.resolveLoginID(ctx); err != nil {
			return err
		}
	}

	if !force && c.session.Active() {
		return nil
	}

	result, err := c.request(ctx, endpointLogin, map[string]string{
		"loginAccount": c.cfg.Email,
		"password":     encryptPassword(c.session.LoginID, c.cfg.Password, c.cfg.AppKey),
	})
	if err != nil {
		return err
	}

	var body struct {
		SessionID   string `json:"sessionId"`
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return protocolError(endpointLogin, fmt.Errorf("decoding session: %w", err))
	}
	if body.SessionID == "" {
		return protocolError(endpointLogin, errors.New("empty session id"))
	}
	dataKey, err := deriveDataKey(body.AccessToken, c.cfg.AppKey)
	if err != nil {
		return protocolError(endpointLogin, err)
	}

	c.session.SessionID = body.SessionID
	c.session.AccessToken = body.AccessToken
	c.session.dataKey = dataKey
	c.logInfo("logged in to midea cloud", "forced", force)

	if force {
		if err := c.sleep(ctx, c.cfg.ForcedLoginDelay); err != nil {
			return err
		}
	}
	return nil
}

// resolveLoginID runs with c.mu held.
func (c *Client) resolveLoginID(ctx context.Context) error {
	result, err := c.request(ctx, endpointLoginID, map[string]string{"loginAccount": c.cfg.Email})
	if err != nil {
		return err
	}
	var body struct {
		LoginID string `json:"loginId"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return protocolError(endpointLoginID, fmt.Errorf("decoding login id: %w", err))
	}
	if body.LoginID == "" {
		return protocolError(endpointLoginID, errors.New("empty login id"))
	}
	c.session.LoginID = body.LoginID
	return nil
}

// request runs with c.mu held.
func (c *Client) request(ctx context.Context, endpoint string, args map[string]string) (json.RawMessage, error) {
	return c.requestWith(ctx, endpoint, func() (map[string]string, error) { return args, nil })
}

// requestWith performs the retry loop. buildArgs is called before every
// attempt so arguments that depend on the session are rebuilt after a
// recovery login.
func (c *Client) requestWith(ctx context.Context, endpoint string, buildArgs func() (map[string]string, error)) (json.RawMessage, error) {
	for attempt := 1; ; attempt++ {
		args, err := buildArgs()
		if err != nil {
			return nil, protocolError(endpoint, err)
		}

		resp, err := c.roundTrip(ctx, endpoint, args)
		if err != nil {
			return nil, err
		}
		if resp.ErrorCode == 0 {
			return resp.Result, nil
		}

		code := int(resp.ErrorCode)
		if endpoint != endpointLogin {
			action := RecoveryFor(code)
			switch {
			case action == ActionDeviceOffline:
				return nil, &Error{Kind: KindDeviceOffline, Endpoint: endpoint, Code: code, Msg: resp.Msg}
			case !action.Retryable():
				return nil, &Error{Kind: KindProtocol, Endpoint: endpoint, Code: code, Msg: resp.Msg}
			}
			if err := c.recover(ctx, action, code, resp.Msg); err != nil {
				return nil, err
			}
		}

		if attempt >= maxAttempts {
			return nil, &Error{Kind: KindRetryExhausted, Endpoint: endpoint, Code: code, Msg: resp.Msg}
		}
		c.logInfo("retrying midea api call", "endpoint", endpoint, "attempt", attempt+1, "code", code)
	}
}

// recover performs a recovery action. Recovery is not nested: an error
// code returned while a recovery login is already running is simply
// retried by the inner request.
func (c *Client) recover(ctx context.Context, action Action, code int, msg string) error {
	c.metrics.Recovery(action.String())
	if c.recovering {
		return nil
	}

	switch action {
	case ActionIgnore:
		c.logInfo("midea error ignored", "code", code, "msg", msg)
		return nil
	case ActionSessionRestart:
		c.logInfo("restarting midea session", "code", code, "msg", msg)
	case ActionFullRestart:
		c.logInfo("restarting midea login", "code", code, "msg", msg)
	case ActionForcedRestart:
		c.logInfo("restarting midea login (forced)", "code", code, "msg", msg)
	}

	c.recovering = true
	defer func() { c.recovering = false }()

	c.session.clear()
	switch action {
	case ActionFullRestart:
		if err := c.resolveLoginID(ctx); err != nil {
			return err
		}
		return c.login(ctx, false)
	case ActionForcedRestart:
		return c.login(ctx, true)
	default:
		return c.login(ctx, false)
	}
}

// roundTrip signs and posts one request. It never retries.
func (c *Client) roundTrip(ctx context.Context, endpoint string, args map[string]string) (*apiResponse, error) {
	start := time.Now()

	form := url.Values{}
	form.Set("appId", appID)
	form.Set("format", formatJSON)
	form.Set("clientType", clientType)
	form.Set("language", language)
	form.Set("src", src)
	form.Set("stamp", c.now().Format(stampLayout))
	for k, v := range args {
		form.Set(k, v)
	}
	if c.session.Active() {
		form.Set("sessionId", c.session.SessionID)
	}

	target := c.baseURL.JoinPath(endpoint)
	form.Set("sign", sign(target.Path, form, c.cfg.AppKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, protocolError(endpoint, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.CloudRequest(endpoint, metrics.OutcomeError, time.Since(start))
		return nil, protocolError(endpoint, fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.CloudRequest(endpoint, metrics.OutcomeError, time.Since(start))
		return nil, protocolError(endpoint, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.CloudRequest(endpoint, metrics.OutcomeError, time.Since(start))
		return nil, protocolError(endpoint, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		c.metrics.CloudRequest(endpoint, metrics.OutcomeError, time.Since(start))
		return nil, protocolError(endpoint, fmt.Errorf("decoding response: %w", err))
	}

	outcome := metrics.OutcomeOK
	if out.ErrorCode != 0 {
		outcome = metrics.OutcomeError
	}
	c.metrics.CloudRequest(endpoint, outcome, time.Since(start))
	return &out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}
