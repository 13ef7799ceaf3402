// Package mpesa is a Daraja client covering the Lipa Na M-Pesa Online (STK
// push) flow.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cradoe/songbid/internal/gateway"
	"github.com/cradoe/songbid/internal/ledger"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	// Daraja answers a query for an unfinished push with HTTP 500 and this code
	processingErrorCode = "500.001.1001"

	timestampLayout = "20060102150405"
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	PassKey        string
	ShortCode      string
	CallbackURL    string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

type pushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type pushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type queryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type queryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Push sends an STK push prompt to the customer's phone. The returned
// CorrelationID is Daraja's CheckoutRequestID.
func (c *Client) Push(ctx context.Context, req gateway.PushRequest) (*gateway.PushResult, error) {
	// M-Pesa only moves whole shillings
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(0)) {
		return nil, ledger.ErrInvalidAmount
	}

	timestamp := c.now().Format(timestampLayout)

	payload := pushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.IntPart(),
		PartyA:            req.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.Reference,
		TransactionDesc:   "Wallet top up",
	}

	var res pushResponse
	status, errRes, err := c.do(ctx, pushPath, payload, &res)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || res.ResponseCode != "0" {
		desc := res.ResponseDescription
		if desc == "" {
			desc = errRes.ErrorMessage
		}
		return nil, fmt.Errorf("stk push rejected (%d): %s: %w", status, desc, ledger.ErrGatewayUnavailable)
	}

	return &gateway.PushResult{CorrelationID: res.CheckoutRequestID, Message: res.CustomerMessage}, nil
}

// Query asks Daraja for the outcome of a push.
func (c *Client) Query(ctx context.Context, correlationID string) (*gateway.QueryResult, error) {
	timestamp := c.now().Format(timestampLayout)

	payload := queryPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: correlationID,
	}

	var res queryResponse
	status, errRes, err := c.do(ctx, queryPath, payload, &res)
	if err != nil {
		return nil, err
	}

	if errRes.ErrorCode == processingErrorCode {
		return &gateway.QueryResult{Status: gateway.StatusProcessing}, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("stk query failed (%d %s): %s: %w",
			status, errRes.ErrorCode, errRes.ErrorMessage, ledger.ErrGatewayUnavailable)
	}

	return resultFromCode(res.ResultCode, res.ResultDesc), nil
}

func resultFromCode(code, desc string) *gateway.QueryResult {
	if code == "" {
		return &gateway.QueryResult{Status: gateway.StatusProcessing}
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return &gateway.QueryResult{Status: gateway.StatusFailed, Reason: "unrecognised result code " + code}
	}

	if n == 0 {
		return &gateway.QueryResult{Status: gateway.StatusSuccess}
	}

	// 1032 cancelled by user, 1037 phone unreachable, 1 insufficient balance,
	// 2001 wrong pin; all of them end the push
	if desc == "" {
		desc = "payment declined with code " + code
	}
	return &gateway.QueryResult{Status: gateway.StatusFailed, Reason: desc}
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))
}

// do posts payload and decodes a 200 body into out. Non-200 bodies are decoded
// as a Daraja error response.
func (c *Client) do(ctx context.Context, path string, payload, out any) (int, errorResponse, error) {
	var errRes errorResponse

	token, err := c.accessToken(ctx)
	if err != nil {
		return 0, errRes, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, errRes, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, errRes, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errRes, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, errRes, transportError(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.resetToken()
	}

	if resp.StatusCode != http.StatusOK {
		// best effort; an unparseable error body still yields the status code
		_ = json.Unmarshal(raw, &errRes)
		return resp.StatusCode, errRes, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, errRes, fmt.Errorf("decode %s response: %w", path, err)
	}

	return resp.StatusCode, errRes, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("get access token: %s: %w", string(body), ledger.ErrGatewayUnavailable)
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode access token: %w", err)
	}

	expiresIn, err := strconv.Atoi(res.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3599
	}

	c.token = res.AccessToken
	// refresh a minute early
	c.tokenExpiry = c.now().Add(time.Duration(expiresIn)*time.Second - time.Minute)

	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.tokenExpiry = time.Time{}
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%v: %w", err, ledger.ErrGatewayTimeout)
	}
	return fmt.Errorf("%v: %w", err, ledger.ErrGatewayUnavailable)
}
