// Package pipeline implements the four-stage migration:
// identity intake → access-key provisioning → signing → relay.
// Stages communicate exclusively by enqueuing jobs; data flows strictly
// forward and a stage's retry never re-runs upstream work.
package pipeline

import (
	"github/fastauth/go-migrate/internal/identity"
)

// Stage queue names.
const (
	QueueIntake    = "migration_intake"
	QueueProvision = "migration_provision"
	QueueSign      = "migration_sign"
	QueueRelay     = "migration_relay"
)

// StageQueues lists the queues in pipeline order.
var StageQueues = []string{QueueIntake, QueueProvision, QueueSign, QueueRelay}

// IntakeJob 阶段 1 载荷：一条旧身份记录
type IntakeJob struct {
	Identity identity.LegacyIdentity `json:"identity"`
}

// ProvisionJob 阶段 2 载荷：旧恢复密钥、新派生密钥与已认领的身份令牌
type ProvisionJob struct {
	OldPublicKey  string   `json:"old_public_key"`
	NewPublicKeys []string `json:"new_public_keys"`
	Token         string   `json:"token"`
}

// SignJob 阶段 3 载荷：已序列化的未签名元交易与身份令牌
type SignJob struct {
	DelegateAction []byte `json:"delegate_action"`
	Token          string `json:"token"`
}

// RelayJob 阶段 4 载荷：已序列化的元交易与旧服务返回的原始签名（hex）
type RelayJob struct {
	DelegateAction []byte `json:"delegate_action"`
	Signature      string `json:"signature"`
}
