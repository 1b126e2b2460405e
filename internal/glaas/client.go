// Package glaas implements the signed HTTP client to the remote LaaS
// (lineage-as-a-service) server described in spec §4.11 / §6.
package glaas

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/roar-ml/roar/internal/rerr"
)

const (
	requestTimeout   = 30 * time.Second
	probeTimeout     = 10 * time.Second
	sigNamespace     = "glaas"
	transportRetries = 2
)

// Envelope is the {success, data} wrapper the server returns on success.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// Client talks to the LaaS server with SSH-signed requests.
type Client struct {
	http    *resty.Client
	baseURL string
	signer  *Signer
}

// New builds a Client. keyPath is the configured private-key path (may be
// empty, in which case Signer falls back to the documented resolution
// order).
func New(baseURL, keyPath string) (*Client, error) {
	signer, err := NewSigner(keyPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:    resty.New().SetTimeout(requestTimeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
	}, nil
}

// Health probes GET /api/v1/health with the shorter probe timeout; no
// signature is required.
func (c *Client) Health(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	resp, err := c.http.R().SetContext(probeCtx).SetDoNotParseResponse(false).
		SetHeader("Accept", "application/json").
		Get(c.baseURL + "/api/v1/health")
	if err != nil {
		return rerr.Wrap(rerr.KindRegistration, "health probe transport error", err)
	}
	if resp.StatusCode() != 200 {
		return classifyStatus(resp.StatusCode(), resp.Body())
	}
	return nil
}

// Do issues a signed request and returns the unwrapped `data` payload (or
// raw body bytes when the response isn't a {success,data} envelope).
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var bodyBytes []byte
	var err error
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, rerr.Wrap(rerr.KindRegistration, "encode request body", err)
		}
	}

	headers, err := c.signer.Headers(method, path, bodyBytes)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindSigning, "sign request", err)
	}

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if bodyBytes != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(bodyBytes)
	}

	var resp *resty.Response
	var transportErr error
	attempt := func() error {
		resp, transportErr = req.Execute(method, c.baseURL+path)
		return transportErr
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), transportRetries)
	_ = backoff.Retry(attempt, backoff.WithContext(bo, ctx))
	if transportErr != nil {
		return nil, rerr.Wrap(rerr.KindRegistration, "transport error", transportErr)
	}
	if resp.StatusCode() >= 400 {
		return nil, classifyStatus(resp.StatusCode(), resp.Body())
	}
	return decodeBody(resp.Body())
}

// decodeBody implements the strict response decoding of spec §4.11: empty
// or whitespace body decodes to {}; HTML yields an error with a truncated
// preview; invalid JSON yields an error citing the byte offset; a
// {success,data} envelope is unwrapped.
func decodeBody(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}
	if looksLikeHTML(trimmed) {
		preview := trimmed
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, rerr.New(rerr.KindRegistration, fmt.Sprintf("server returned HTML, not JSON: %q", preview))
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err == nil && env.Data != nil {
		return env.Data, nil
	}

	var probe json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		offset := jsonErrorOffset(err)
		return nil, rerr.New(rerr.KindRegistration, fmt.Sprintf("invalid JSON response at byte %d", offset))
	}
	return probe, nil
}

func jsonErrorOffset(err error) int64 {
	if se, ok := err.(*json.SyntaxError); ok {
		return se.Offset
	}
	if ue, ok := err.(*json.UnmarshalTypeError); ok {
		return ue.Offset
	}
	return 0
}

func looksLikeHTML(body []byte) bool {
	lower := bytes.ToLower(bytes.TrimSpace(body))
	return bytes.HasPrefix(lower, []byte("<!doctype")) || bytes.HasPrefix(lower, []byte("<html"))
}

// classifyStatus maps an HTTP status / body to the error taxonomy of
// spec §4.11.
func classifyStatus(status int, body []byte) error {
	switch {
	case status == 401:
		return rerr.New(rerr.KindSigning, "authentication missing or invalid")
	case status == 403 && looksLikeHTML(body):
		return rerr.New(rerr.KindRegistration, "request blocked by a proxy or firewall")
	case status == 404:
		return rerr.New(rerr.KindRegistration, "not found")
	case status == 413:
		return rerr.New(rerr.KindRegistration, "payload too large")
	case status >= 500 && status < 600 && isSizeRelated(body):
		return rerr.New(rerr.KindRegistration, "payload too large")
	case status >= 500:
		return rerr.New(rerr.KindRegistration, fmt.Sprintf("server error (%d)", status))
	default:
		return rerr.New(rerr.KindRegistration, fmt.Sprintf("unexpected status %d", status))
	}
}

func isSizeRelated(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "too large") || strings.Contains(lower, "entity too large") || strings.Contains(lower, "payload")
}

// Signer builds the Authorization header of spec §4.11 from a local SSH
// key pair, invoking `ssh-keygen -Y sign -n glaas` to produce the
// signature (roar never implements SSH signing itself).
type Signer struct {
	privateKeyPath string
	publicKeyPath  string
	fingerprint    string
}

// NewSigner resolves the key pair per the documented order: ROAR_SSH_KEY
// env, the configured path, then ~/.ssh/{id_ed25519,id_rsa,id_ecdsa}.
func NewSigner(configuredKeyPath string) (*Signer, error) {
	privPath, err := resolvePrivateKeyPath(configuredKeyPath)
	if err != nil {
		return nil, err
	}
	pubPath := privPath + ".pub"
	pubBody, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindSigning, "read public key", err)
	}
	fp := fingerprint(pubBody)
	return &Signer{privateKeyPath: privPath, publicKeyPath: pubPath, fingerprint: fp}, nil
}

func resolvePrivateKeyPath(configured string) (string, error) {
	if envPath := os.Getenv("ROAR_SSH_KEY"); envPath != "" {
		return envPath, nil
	}
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", rerr.Wrap(rerr.KindSigning, "resolve home directory", err)
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		candidate := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", rerr.New(rerr.KindSigning, "no SSH key found in ~/.ssh")
}

// fingerprint computes the standard OpenSSH SHA256 key fingerprint:
// base64(sha256(decoded key blob)) with padding stripped, matching the
// format spec §4.11 requires (and what the LaaS server computes from the
// registered public key).
func fingerprint(pubKeyBody []byte) string {
	fields := strings.Fields(string(pubKeyBody))
	if len(fields) < 2 {
		return "SHA256:" + base64.RawStdEncoding.EncodeToString(sha256Sum(bytes.TrimSpace(pubKeyBody)))
	}
	blob, err := base64.StdEncoding.DecodeString(fields[1])
	if err != nil {
		return "SHA256:" + base64.RawStdEncoding.EncodeToString(sha256Sum(bytes.TrimSpace(pubKeyBody)))
	}
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(sha256Sum(blob))
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// Headers builds the Authorization header for one request.
func (s *Signer) Headers(method, path string, body []byte) (map[string]string, error) {
	ts := strconv.FormatInt(unixNow(), 10)
	payload := ts + "\n" + method + "\n" + path
	if len(body) > 0 {
		bodyHash := sha256.Sum256(body)
		payload += "\n" + fmt.Sprintf("%x", bodyHash)
	}

	sig, err := signPayload(s.privateKeyPath, payload)
	if err != nil {
		return nil, err
	}

	header := fmt.Sprintf(`Signature keyid="%s" ts="%s" sig="%s"`, s.fingerprint, ts, sig)
	return map[string]string{"Authorization": header}, nil
}

// Fingerprint exposes the resolved key fingerprint, used by `roar auth`.
func (s *Signer) Fingerprint() string { return s.fingerprint }
