// Package legacy implements the salted, domain-separated request-signing
// protocol the legacy MPC custodial service authenticates with.
package legacy

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/chain"
)

// saltBase is the shared base salt; each request kind adds its own offset
// so a signature valid for one kind cannot be replayed as another.
const saltBase uint32 = 3177899144

const (
	saltOffsetClaimOidc       uint32 = 0
	saltOffsetNewAccount      uint32 = 0
	saltOffsetUserCredentials uint32 = 2
	saltOffsetSignDelegate    uint32 = 3
)

// ProtocolError 旧服务返回非 2xx；4xx 为终态（入参错误），5xx 可重试
type ProtocolError struct {
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("legacy service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Terminal marks 4xx responses as non-retryable for the job queue.
func (e *ProtocolError) Terminal() bool {
	return e.StatusCode < http.StatusInternalServerError
}

// Client 旧 MPC 服务客户端，以迁移运营方密钥对签署每个请求
type Client struct {
	baseURL     string
	http        *http.Client
	operatorKey ed25519.PrivateKey
	operatorPK  chain.PublicKey
}

// NewClient creates a client signing with the given migration-operator key.
func NewClient(baseURL string, operatorKey ed25519.PrivateKey, timeout time.Duration) *Client {
	pub, _ := operatorKey.Public().(ed25519.PublicKey)

	return &Client{
		baseURL:     baseURL,
		http:        &http.Client{Timeout: timeout},
		operatorKey: operatorKey,
		operatorPK:  chain.PublicKeyFromED25519(pub),
	}
}

// OperatorPublicKey returns the signing public key sent with every request.
func (c *Client) OperatorPublicKey() chain.PublicKey {
	return c.operatorPK
}

// SaltedDigest computes sha256(u32_le(salt) ‖ payload ‖ 0x00 ‖ publicKey).
// The zero byte separates the payload from the key so neither can absorb
// bytes of the other.
func SaltedDigest(salt uint32, payload []byte, publicKey chain.PublicKey) [32]byte {
	buf := make([]byte, 0, 4+len(payload)+1+len(publicKey.Data))
	buf = binary.LittleEndian.AppendUint32(buf, salt)
	buf = append(buf, payload...)
	buf = append(buf, 0x00)
	buf = append(buf, publicKey.Data[:]...)

	return sha256.Sum256(buf)
}

func (c *Client) signPayload(saltOffset uint32, payload []byte) string {
	digest := SaltedDigest(saltBase+saltOffset, payload, c.operatorPK)

	return hex.EncodeToString(ed25519.Sign(c.operatorKey, digest[:]))
}

// ClaimOidcToken proves control of the hashed identity token to the legacy
// service. Idempotent: claiming the same token twice is accepted.
func (c *Client) ClaimOidcToken(ctx context.Context, token string) error {
	tokenHash := sha256.Sum256([]byte(token))

	body := map[string]any{
		"oidc_token_hash": hex.EncodeToString(tokenHash[:]),
		"frp_public_key":  c.operatorPK.String(),
		"frp_signature":   c.signPayload(saltOffsetClaimOidc, tokenHash[:]),
	}

	if err := c.post(ctx, "/claim_oidc", body, nil); err != nil {
		return err
	}

	log.Debug().Msg("Claimed oidc token with legacy service")

	return nil
}

type userCredentialsResponse struct {
	RecoveryPK string `json:"recovery_pk"`
}

// UserCredentials exchanges a claimed identity token for the legacy
// MPC-issued recovery public key. The token must have been claimed first;
// the legacy service rejects it otherwise and the auth error is surfaced
// unchanged.
func (c *Client) UserCredentials(ctx context.Context, token string) (chain.PublicKey, error) {
	body := map[string]any{
		"oidc_token":     token,
		"frp_public_key": c.operatorPK.String(),
		"frp_signature":  c.signPayload(saltOffsetUserCredentials, []byte(token)),
	}

	var res userCredentialsResponse
	if err := c.post(ctx, "/user_credentials", body, &res); err != nil {
		return chain.PublicKey{}, err
	}

	pk, err := chain.ParsePublicKey(res.RecoveryPK)
	if err != nil {
		return chain.PublicKey{}, errors.Wrap(err, "legacy service returned an unparsable recovery key")
	}

	return pk, nil
}

type signResponse struct {
	Signature string `json:"signature"`
}

// SignDelegateAction requests a co-signature over the serialized delegate
// action. The salt payload folds in the full delegate-action bytes before
// the token bytes, so a signature obtained for one delegate action cannot
// be replayed for another. Returns the raw 64-byte signature.
func (c *Client) SignDelegateAction(ctx context.Context, token string, delegateAction []byte) ([]byte, error) {
	payload := make([]byte, 0, len(delegateAction)+len(token))
	payload = append(payload, delegateAction...)
	payload = append(payload, []byte(token)...)

	body := map[string]any{
		"delegate_action": base64.StdEncoding.EncodeToString(delegateAction),
		"oidc_token":      token,
		"frp_public_key":  c.operatorPK.String(),
		"frp_signature":   c.signPayload(saltOffsetSignDelegate, payload),
	}

	var res signResponse
	if err := c.post(ctx, "/sign", body, &res); err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(res.Signature)
	if err != nil {
		return nil, errors.Wrap(err, "legacy service returned an unparsable signature")
	}

	if len(raw) != ed25519.SignatureSize {
		return nil, errors.Errorf("legacy signature has %d bytes, want %d", len(raw), ed25519.SignatureSize)
	}

	return raw, nil
}

// CreateNewAccount asks the legacy service to create an account for the
// token's identity. Administrative path, not used by the steady-state
// migration pipeline.
func (c *Client) CreateNewAccount(ctx context.Context, token, accountID string) error {
	payload := make([]byte, 0, len(accountID)+len(token))
	payload = append(payload, []byte(accountID)...)
	payload = append(payload, []byte(token)...)

	body := map[string]any{
		"near_account_id": accountID,
		"oidc_token":      token,
		"frp_public_key":  c.operatorPK.String(),
		"frp_signature":   c.signPayload(saltOffsetNewAccount, payload),
	}

	return c.post(ctx, "/new_account", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s request", path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", path)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to reach legacy service at %s", path)
	}
	defer func() { _ = res.Body.Close() }()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s response", path)
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return &ProtocolError{StatusCode: res.StatusCode, Body: string(resBody)}
	}

	if result != nil {
		if err := json.Unmarshal(resBody, result); err != nil {
			return errors.Wrapf(err, "failed to decode %s response", path)
		}
	}

	return nil
}
