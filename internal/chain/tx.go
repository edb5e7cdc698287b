package chain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"math/big"

	"github.com/near/borsh-go"
	"github.com/pkg/errors"
)

// delegateActionDiscriminant is the NEP-461 message discriminant prepended
// to a delegate action before hashing, so the signature cannot be replayed
// as a plain transaction (2^30 + 366).
const delegateActionDiscriminant uint32 = (1 << 30) + 366

// Action 链上动作，borsh 枚举顺序必须与链上布局一致
type Action struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	CreateAccount  CreateAccountAction
	DeployContract DeployContractAction
	FunctionCall   FunctionCallAction
	Transfer       TransferAction
	Stake          StakeAction
	AddKey         AddKeyAction
	DeleteKey      DeleteKeyAction
	DeleteAccount  DeleteAccountAction
	Delegate       SignedDelegateAction
}

const (
	actionCreateAccount uint8 = iota
	actionDeployContract
	actionFunctionCall
	actionTransfer
	actionStake
	actionAddKey
	actionDeleteKey
	actionDeleteAccount
	actionDelegate
)

type CreateAccountAction struct{}

type DeployContractAction struct {
	Code []byte
}

type FunctionCallAction struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    big.Int
}

type TransferAction struct {
	Deposit big.Int
}

type StakeAction struct {
	Stake     big.Int
	PublicKey PublicKey
}

type AddKeyAction struct {
	PublicKey PublicKey
	AccessKey AccessKey
}

type DeleteKeyAction struct {
	PublicKey PublicKey
}

type DeleteAccountAction struct {
	BeneficiaryID string
}

// AccessKey 访问密钥（nonce + 权限）
type AccessKey struct {
	Nonce      uint64
	Permission AccessKeyPermission
}

// AccessKeyPermission borsh 枚举：FunctionCall = 0, FullAccess = 1
type AccessKeyPermission struct {
	Enum         borsh.Enum `borsh_enum:"true"`
	FunctionCall FunctionCallPermission
	FullAccess   FullAccessPermission
}

const (
	permissionFunctionCall uint8 = iota
	permissionFullAccess
)

type FunctionCallPermission struct {
	Allowance   *big.Int
	ReceiverID  string
	MethodNames []string
}

type FullAccessPermission struct{}

// AddFullAccessKey builds the action granting pk unrestricted access.
func AddFullAccessKey(pk PublicKey) Action {
	return Action{
		Enum: borsh.Enum(actionAddKey),
		AddKey: AddKeyAction{
			PublicKey: pk,
			AccessKey: AccessKey{
				Nonce:      0,
				Permission: AccessKeyPermission{Enum: borsh.Enum(permissionFullAccess)},
			},
		},
	}
}

// DelegateAction 元交易载荷：由 sender 授权、经中继方上链执行的动作序列。
// 构造后不可变，必须先签名再中继。
type DelegateAction struct {
	SenderID       string
	ReceiverID     string
	Actions        []Action
	Nonce          uint64
	MaxBlockHeight uint64
	PublicKey      PublicKey
}

// Serialize returns the fixed binary (borsh) form shared with the live
// chain format.
func (d *DelegateAction) Serialize() ([]byte, error) {
	data, err := borsh.Serialize(*d)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize delegate action")
	}

	return data, nil
}

// DeserializeDelegateAction is the inverse of Serialize.
func DeserializeDelegateAction(data []byte) (DelegateAction, error) {
	var d DelegateAction
	if err := borsh.Deserialize(&d, data); err != nil {
		return DelegateAction{}, errors.Wrap(err, "failed to deserialize delegate action")
	}

	return d, nil
}

// SignableBytes prepends the NEP-461 discriminant to the serialized action.
func (d *DelegateAction) SignableBytes() ([]byte, error) {
	payload, err := d.Serialize()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint32(out, delegateActionDiscriminant)

	return append(out, payload...), nil
}

// SignableHash is the sha256 digest the delegate-action signature covers.
func (d *DelegateAction) SignableHash() ([32]byte, error) {
	signable, err := d.SignableBytes()
	if err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(signable), nil
}

// SignedDelegateAction 已签名的元交易载荷
type SignedDelegateAction struct {
	DelegateAction DelegateAction
	Signature      Signature
}

// DelegateOf wraps a signed delegate action as a transaction action.
func DelegateOf(signed SignedDelegateAction) Action {
	return Action{
		Enum:     borsh.Enum(actionDelegate),
		Delegate: signed,
	}
}

// Transaction 外层链上交易
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []Action
}

// Hash is the sha256 digest of the serialized transaction; this is both
// the signing payload and the transaction id.
func (t *Transaction) Hash() ([32]byte, error) {
	data, err := borsh.Serialize(*t)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "failed to serialize transaction")
	}

	return sha256.Sum256(data), nil
}

// SignWith signs the transaction hash with the given ed25519 key.
func (t *Transaction) SignWith(key ed25519.PrivateKey) (SignedTransaction, error) {
	hash, err := t.Hash()
	if err != nil {
		return SignedTransaction{}, err
	}

	sig, err := SignatureFromRaw(ed25519.Sign(key, hash[:]))
	if err != nil {
		return SignedTransaction{}, err
	}

	return SignedTransaction{Transaction: *t, Signature: sig}, nil
}

// SignedTransaction 已签名交易，按 borsh 序列化后以 base64 广播
type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
}

// Base64 returns the broadcast encoding expected by send_tx.
func (st *SignedTransaction) Base64() (string, error) {
	data, err := borsh.Serialize(*st)
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize signed transaction")
	}

	return base64.StdEncoding.EncodeToString(data), nil
}
