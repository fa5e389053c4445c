package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"

	"go.uber.org/zap"
)

const (
	tokenHeader = "loginToken"

	// envelope code the portal uses for sections the station does not have
	// (no midbox behind this serial, for instance)
	codeSectionUnsupported = 120
	// envelope code for an expired or invalid session token
	codeSessionExpired = 401
)

// Client implements lxp_modbus.CloudService against the vendor monitor
// portal. It owns the session token and re-authenticates transparently when
// the portal expires it.
type Client struct {
	client   *http.Client
	baseURL  string
	username string
	password string
	logger   *zap.Logger

	mu    sync.Mutex
	token string
}

func NewClient(baseURL, username, password string, logger *zap.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		logger:   logger,
	}
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

type loginResult struct {
	Token string `json:"token"`
}

func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

// loginLocked posts the credential form and stores the session token.
// Callers must hold c.mu.
func (c *Client) loginLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("account", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cloud login: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud login: unexpected status %d", resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("cloud login: decode response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("cloud login: %s (code %d)", env.Message, env.Code)
	}
	var result loginResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return fmt.Errorf("cloud login: decode result: %w", err)
	}
	if result.Token == "" {
		return errors.New("cloud login: empty token")
	}

	c.token = result.Token
	c.logger.Debug("cloud session authenticated", zap.String("account", c.username))
	return nil
}

func (c *Client) ensureLogin(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		if err := c.loginLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

func (c *Client) resetToken(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// only drop the token we actually used; a concurrent request may already
	// have refreshed it
	if c.token == stale {
		c.token = ""
	}
}

// doRequest performs an authenticated call and decodes the envelope result
// into out. A session rejection triggers exactly one re-login and retry.
func (c *Client) doRequest(ctx context.Context, build func(ctx context.Context) (*http.Request, error), out any) error {
	var lastErr error
	for i := 0; i < 2; i++ {
		token, err := c.ensureLogin(ctx)
		if err != nil {
			return err
		}
		req, err := build(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(tokenHeader, token)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.resetToken(token)
			lastErr = fmt.Errorf("cloud request: unauthorized (status %d)", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("cloud request: unexpected status %d", resp.StatusCode)
		}

		var env apiEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("cloud request: decode response: %w", err)
		}
		if env.Code == codeSessionExpired {
			c.resetToken(token)
			lastErr = fmt.Errorf("cloud request: session expired: %s", env.Message)
			continue
		}
		if !env.Success {
			if env.Code == codeSectionUnsupported {
				return errSectionUnsupported
			}
			return fmt.Errorf("cloud request: %s (code %d)", env.Message, env.Code)
		}
		if out != nil {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("cloud request: decode result: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

var errSectionUnsupported = errors.New("cloud: section not supported by device")

func (c *Client) newGetRequest(ctx context.Context, segments ...string) (*http.Request, error) {
	u, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
}

func (c *Client) newPostJSONRequest(ctx context.Context, body any, segments ...string) (*http.Request, error) {
	u, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// runtimePayload mirrors the portal's runtime document. The portal already
// serves scaled decimal values, so mapping is field renaming plus the derived
// totals the register path also computes.
type runtimePayload struct {
	Status uint16 `json:"status"`

	PPV1 float64 `json:"ppv1"`
	PPV2 float64 `json:"ppv2"`
	PPV3 float64 `json:"ppv3"`
	VPV1 float64 `json:"vpv1"`
	VPV2 float64 `json:"vpv2"`
	VPV3 float64 `json:"vpv3"`

	PCharge    float64 `json:"pCharge"`
	PDischarge float64 `json:"pDisCharge"`
	VBat       float64 `json:"vBat"`
	SOC        float64 `json:"soc"`
	SOH        float64 `json:"soh"`

	VAC       float64 `json:"vacr"`
	FAC       float64 `json:"fac"`
	PToGrid   float64 `json:"pToGrid"`
	PFromGrid float64 `json:"pToUser"`

	VEPS float64 `json:"vepsr"`
	FEPS float64 `json:"feps"`
	PEPS float64 `json:"peps"`

	PInv  float64 `json:"pinv"`
	PRec  float64 `json:"prec"`
	PLoad float64 `json:"pLoad"`

	TInner    float64 `json:"tinner"`
	TRadiator float64 `json:"tradiator1"`
}

func (c *Client) Runtime(ctx context.Context, serial string) (*lxp_modbus.InverterRuntimeData, error) {
	var payload runtimePayload
	err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.newGetRequest(ctx, "api", "device", serial, "runtime")
	}, &payload)
	if err != nil {
		if errors.Is(err, errSectionUnsupported) {
			return nil, nil
		}
		return nil, err
	}

	data := &lxp_modbus.InverterRuntimeData{
		Serial:    serial,
		Status:    payload.Status,
		StatusStr: lxp_modbus.InverterStatusToString(payload.Status),

		PV1PowerWatt:       payload.PPV1,
		PV2PowerWatt:       payload.PPV2,
		PV3PowerWatt:       payload.PPV3,
		PVPowerWatt:        payload.PPV1 + payload.PPV2 + payload.PPV3,
		PV1Voltage:         payload.VPV1,
		PV2Voltage:         payload.VPV2,
		PV3Voltage:         payload.VPV3,
		ChargePowerWatt:    payload.PCharge,
		DischargePowerWatt: payload.PDischarge,
		BatteryVoltage:     payload.VBat,

		SOC:    clampPercent(payload.SOC),
		SOH:    clampPercent(payload.SOH),
		RawSOC: payload.SOC,
		RawSOH: payload.SOH,

		GridVoltage:       payload.VAC,
		GridFrequency:     payload.FAC,
		GridPowerWatt:     payload.PFromGrid - payload.PToGrid,
		PowerToGridWatt:   payload.PToGrid,
		PowerFromGridWatt: payload.PFromGrid,

		EPSVoltage:   payload.VEPS,
		EPSFrequency: payload.FEPS,
		EPSPowerWatt: payload.PEPS,

		InverterPowerWatt:  payload.PInv,
		RectifierPowerWatt: payload.PRec,
		LoadPowerWatt:      payload.PLoad,

		InternalTempC: payload.TInner,
		RadiatorTempC: payload.TRadiator,
	}
	return data, nil
}

type energyPayload struct {
	EPVDay        float64 `json:"ePvDay"`
	EChargeDay    float64 `json:"eChgDay"`
	EDischargeDay float64 `json:"eDisChgDay"`
	EToGridDay    float64 `json:"eToGridDay"`
	EToUserDay    float64 `json:"eToUserDay"`
	EEPSDay       float64 `json:"eEpsDay"`

	EPVAll        float64 `json:"ePvAll"`
	EChargeAll    float64 `json:"eChgAll"`
	EDischargeAll float64 `json:"eDisChgAll"`
	EToGridAll    float64 `json:"eToGridAll"`
	EToUserAll    float64 `json:"eToUserAll"`
	EEPSAll       float64 `json:"eEpsAll"`
}

func (c *Client) Energy(ctx context.Context, serial string) (*lxp_modbus.InverterEnergyData, error) {
	var payload energyPayload
	err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.newGetRequest(ctx, "api", "device", serial, "energy")
	}, &payload)
	if err != nil {
		if errors.Is(err, errSectionUnsupported) {
			return nil, nil
		}
		return nil, err
	}

	return &lxp_modbus.InverterEnergyData{
		Serial: serial,

		PVEnergyTodayKWh:        payload.EPVDay,
		ChargeEnergyTodayKWh:    payload.EChargeDay,
		DischargeEnergyTodayKWh: payload.EDischargeDay,
		GridExportTodayKWh:      payload.EToGridDay,
		GridImportTodayKWh:      payload.EToUserDay,
		EPSEnergyTodayKWh:       payload.EEPSDay,

		PVEnergyTotalKWh:        payload.EPVAll,
		ChargeEnergyTotalKWh:    payload.EChargeAll,
		DischargeEnergyTotalKWh: payload.EDischargeAll,
		GridExportTotalKWh:      payload.EToGridAll,
		GridImportTotalKWh:      payload.EToUserAll,
		EPSEnergyTotalKWh:       payload.EEPSAll,
	}, nil
}

type batteryModulePayload struct {
	BatIndex       int     `json:"batIndex"`
	Voltage        float64 `json:"totalVoltage"`
	Current        float64 `json:"current"`
	SOC            float64 `json:"soc"`
	SOH            float64 `json:"soh"`
	MaxCellVoltage float64 `json:"maxCellVoltage"`
	MinCellVoltage float64 `json:"minCellVoltage"`
	MaxCellTemp    float64 `json:"maxCellTemp"`
	MinCellTemp    float64 `json:"minCellTemp"`
	CycleCount     uint16  `json:"cycleCnt"`
}

type batteryPayload struct {
	BatParallelNum int     `json:"batParallelNum"`
	Voltage        float64 `json:"vBat"`
	Current        float64 `json:"iBat"`
	SOC            float64 `json:"soc"`
	SOH            float64 `json:"soh"`

	Modules []batteryModulePayload `json:"batteryArray"`
}

func (c *Client) Battery(ctx context.Context, serial string) (*lxp_modbus.BatteryBankData, error) {
	var payload batteryPayload
	err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.newGetRequest(ctx, "api", "device", serial, "battery")
	}, &payload)
	if err != nil {
		if errors.Is(err, errSectionUnsupported) {
			return nil, nil
		}
		return nil, err
	}

	bank := &lxp_modbus.BatteryBankData{
		Serial:      serial,
		ModuleCount: payload.BatParallelNum,
		Voltage:     payload.Voltage,
		CurrentAmp:  payload.Current,
		SOC:         clampPercent(payload.SOC),
		SOH:         clampPercent(payload.SOH),
		RawSOC:      payload.SOC,
		RawSOH:      payload.SOH,
	}
	for _, m := range payload.Modules {
		bank.Modules = append(bank.Modules, lxp_modbus.BatteryModuleData{
			Index:          m.BatIndex,
			Voltage:        m.Voltage,
			CurrentAmp:     m.Current,
			SOC:            clampPercent(m.SOC),
			SOH:            clampPercent(m.SOH),
			RawSOC:         m.SOC,
			RawSOH:         m.SOH,
			MaxCellVoltage: m.MaxCellVoltage,
			MinCellVoltage: m.MinCellVoltage,
			MaxCellTempC:   m.MaxCellTemp,
			MinCellTempC:   m.MinCellTemp,
			CycleCount:     m.CycleCount,
		})
	}
	return bank, nil
}

type midboxPayload struct {
	SmartPortMode uint16 `json:"smartPortMode"`

	GridL1Voltage float64 `json:"vGridL1"`
	GridL2Voltage float64 `json:"vGridL2"`
	UPSL1Voltage  float64 `json:"vUpsL1"`
	UPSL2Voltage  float64 `json:"vUpsL2"`
	LoadL1Voltage float64 `json:"vLoadL1"`
	LoadL2Voltage float64 `json:"vLoadL2"`
	GenL1Voltage  float64 `json:"vGenL1"`
	GenL2Voltage  float64 `json:"vGenL2"`

	GridFrequency float64 `json:"fGrid"`

	GridL1Power   float64 `json:"pGridL1"`
	GridL2Power   float64 `json:"pGridL2"`
	LoadL1Power   float64 `json:"pLoadL1"`
	LoadL2Power   float64 `json:"pLoadL2"`
	GenL1Power    float64 `json:"pGenL1"`
	GenL2Power    float64 `json:"pGenL2"`
	UPSL1Power    float64 `json:"pUpsL1"`
	UPSL2Power    float64 `json:"pUpsL2"`
	SmartL1Power  float64 `json:"pSmartLoad1"`
	SmartL2Power  float64 `json:"pSmartLoad2"`
}

// Midbox returns (nil, nil) when the station has no GridBOSS/MID unit, which
// the portal reports as an unsupported-section envelope.
func (c *Client) Midbox(ctx context.Context, serial string) (*lxp_modbus.MidboxRuntimeData, error) {
	var payload midboxPayload
	err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.newGetRequest(ctx, "api", "device", serial, "midbox")
	}, &payload)
	if err != nil {
		if errors.Is(err, errSectionUnsupported) {
			return nil, nil
		}
		return nil, err
	}

	return &lxp_modbus.MidboxRuntimeData{
		Serial: serial,

		SmartPortMode:    payload.SmartPortMode,
		SmartPortModeStr: lxp_modbus.SmartPortModeToString(payload.SmartPortMode),

		GridL1Voltage: payload.GridL1Voltage,
		GridL2Voltage: payload.GridL2Voltage,
		UPSL1Voltage:  payload.UPSL1Voltage,
		UPSL2Voltage:  payload.UPSL2Voltage,
		LoadL1Voltage: payload.LoadL1Voltage,
		LoadL2Voltage: payload.LoadL2Voltage,
		GenL1Voltage:  payload.GenL1Voltage,
		GenL2Voltage:  payload.GenL2Voltage,

		GridFrequency: payload.GridFrequency,

		GridL1PowerWatt:     payload.GridL1Power,
		GridL2PowerWatt:     payload.GridL2Power,
		LoadL1PowerWatt:     payload.LoadL1Power,
		LoadL2PowerWatt:     payload.LoadL2Power,
		GenL1PowerWatt:      payload.GenL1Power,
		GenL2PowerWatt:      payload.GenL2Power,
		UPSL1PowerWatt:      payload.UPSL1Power,
		UPSL2PowerWatt:      payload.UPSL2Power,
		SmartLoad1PowerWatt: payload.SmartL1Power,
		SmartLoad2PowerWatt: payload.SmartL2Power,
	}, nil
}

type readParamsRequest struct {
	StartRegister uint16 `json:"startRegister"`
	PointNumber   uint16 `json:"pointNumber"`
}

type readParamsResult struct {
	Values []uint16 `json:"values"`
}

func (c *Client) ReadParameters(ctx context.Context, serial string, start uint16, count uint16) ([]uint16, error) {
	var result readParamsResult
	err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.newPostJSONRequest(ctx, readParamsRequest{
			StartRegister: start,
			PointNumber:   count,
		}, "api", "device", serial, "parameters", "read")
	}, &result)
	if err != nil {
		return nil, err
	}
	if len(result.Values) != int(count) {
		return nil, fmt.Errorf("cloud parameter read: expected %d values, got %d", count, len(result.Values))
	}
	return result.Values, nil
}

type writeParamsEntry struct {
	Register uint16 `json:"register"`
	Value    uint16 `json:"value"`
}

type writeParamsRequest struct {
	Values []writeParamsEntry `json:"values"`
}

func (c *Client) WriteParameters(ctx context.Context, serial string, values map[uint16]uint16) error {
	body := writeParamsRequest{}
	for reg, val := range values {
		body.Values = append(body.Values, writeParamsEntry{Register: reg, Value: val})
	}
	return c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.newPostJSONRequest(ctx, body, "api", "device", serial, "parameters", "write")
	}, nil)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
