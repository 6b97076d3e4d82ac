package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Provider is the capability set every external platform implements. The
// registry holds one per platform id; callers never switch on the id string.
type Provider interface {
	ID() string
	AuthKind() string
	Config() PlatformConfig
	Webhook() WebhookProfile
	EventExtractors() map[string]EventExtractor
	ExchangeCode(ctx context.Context, req TokenRequest) (TokenGrant, error)
	Refresh(ctx context.Context, req TokenRequest) (TokenGrant, error)
}

// EventExtractor turns a decoded platform payload into the platform neutral
// parts of a NormalizedEvent.
type EventExtractor func(payload Payload) (EventDraft, error)

type Registry interface {
	Provider(id string) (Provider, error)
	ConfigFor(id string) (PlatformConfig, error)
	IDs() []string
	List() []Provider
}

// KVEntry is a single key/value pair returned by a prefix scan.
type KVEntry struct {
	Key   string
	Value []byte
}

// KVStore is the storage collaborator every persistent component is built on.
// SetIfAbsent must be atomic: concurrent callers for the same key observe
// exactly one created=true.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string) ([]KVEntry, error)
}

// KVTaker is implemented by backends that can read and remove a key in one
// atomic step. Single use records such as OAuth states prefer it.
type KVTaker interface {
	Take(ctx context.Context, key string) ([]byte, bool, error)
}

// Broadcaster delivers a message to one live subscriber on a topic.
type Broadcaster interface {
	Broadcast(ctx context.Context, topic string, userID string, message []byte) error
}

type CredentialStore interface {
	GetCredential(ctx context.Context, platform string) (Credential, bool, error)
	SaveCredential(ctx context.Context, credential Credential) error
	DeleteCredential(ctx context.Context, platform string) error
}

type StatusStore interface {
	GetStatus(ctx context.Context, platform string) (IntegrationStatus, bool, error)
	SaveStatus(ctx context.Context, status IntegrationStatus) error
}

// SecretResolver resolves the secret references held by PlatformConfig.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretProvider seals credential material at rest.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// CredentialFlow is the credential surface consumed by transports, commands
// and the sync runner.
type CredentialFlow interface {
	AuthorizeURL(ctx context.Context, platform string, redirectURI string) (AuthorizationRequest, error)
	CompleteCallback(ctx context.Context, req CallbackRequest) (Credential, error)
	ExchangeCode(ctx context.Context, platform string, code string) (Credential, error)
	RefreshIfExpired(ctx context.Context, platform string) (Credential, error)
	ForceRefresh(ctx context.Context, platform string) (Credential, error)
	Credential(ctx context.Context, platform string) (Credential, error)
	Disconnect(ctx context.Context, platform string) (IntegrationStatus, error)
	Status(ctx context.Context, platform string) (IntegrationStatus, error)
	Statuses(ctx context.Context) ([]IntegrationStatus, error)
	MarkSynced(ctx context.Context, platform string, at time.Time) error
}
