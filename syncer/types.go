package syncer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/ims_backend/models"
)

var ErrSyncInProgress = errors.New("sync already in progress")

type ConflictPolicy string

const (
	PolicyServerWins    ConflictPolicy = "server-wins"
	PolicyClientWins    ConflictPolicy = "client-wins"
	PolicyLastWriteWins ConflictPolicy = "last-write-wins"
	PolicyManual        ConflictPolicy = "manual"
)

func ParseConflictPolicy(v string) (ConflictPolicy, error) {
	p := ConflictPolicy(strings.ToLower(strings.TrimSpace(v)))
	switch p {
	case "":
		return PolicyLastWriteWins, nil
	case PolicyServerWins, PolicyClientWins, PolicyLastWriteWins, PolicyManual:
		return p, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", v)
}

// PullRequest is the body of POST /sync/pull.
type PullRequest struct {
	Since int64 `json:"since"`
}

// ChangeSet is the pull response and the push request body.
type ChangeSet struct {
	Products     []models.Product         `json:"products"`
	Transactions []models.Transaction     `json:"transactions"`
	Adjustments  []models.StockAdjustment `json:"adjustments"`
}

func (c *ChangeSet) Len() int {
	return len(c.Products) + len(c.Transactions) + len(c.Adjustments)
}

// PushResponse maps "entityType-entityId" to the server version token.
type PushResponse struct {
	Versions map[string]int64 `json:"versions"`
}

func VersionKey(entityType models.EntityType, entityId int) string {
	return fmt.Sprintf("%s-%d", entityType, entityId)
}

// SyncResult accumulates one cycle. Errors holds the phase failures; they do
// not undo the other phase's applied effects.
type SyncResult struct {
	RunId      string   `json:"runId"`
	Pulled     int      `json:"pulled"`
	Pushed     int      `json:"pushed"`
	Conflicts  int      `json:"conflicts"`
	Unresolved int      `json:"unresolved"`
	Errors     []string `json:"errors"`
}

// Err summarises the result as an error, or nil for a clean cycle.
// Unresolved manual conflicts alone wrap ErrConflictUnresolved.
func (r *SyncResult) Err() error {
	if len(r.Errors) > 0 {
		return fmt.Errorf("sync finished with %d error(s): %s", len(r.Errors), strings.Join(r.Errors, "; "))
	}
	if r.Unresolved > 0 {
		return fmt.Errorf("%w: %d record(s)", models.ErrConflictUnresolved, r.Unresolved)
	}
	return nil
}

func (r *SyncResult) status() models.SyncRunStatus {
	switch {
	case len(r.Errors) == 0:
		return models.SyncRunStatusSuccess
	case r.Pulled+r.Pushed > 0:
		return models.SyncRunStatusPartial
	default:
		return models.SyncRunStatusFailed
	}
}

type ResolveRequest struct {
	EntityType models.EntityType `json:"entityType" binding:"required"`
	EntityId   int               `json:"entityId" binding:"required,gt=0"`
	Keep       string            `json:"keep" binding:"required,oneof=server local"`
}

type StatusResponse struct {
	ServerConfigured  bool            `json:"serverConfigured"`
	Policy            ConflictPolicy  `json:"policy"`
	Running           bool            `json:"running"`
	Pending           int             `json:"pending"`
	Conflicts         int             `json:"conflicts"`
	LastPulledAt      *int64          `json:"lastPulledAt"`
	LastSyncAt        *int64          `json:"lastSyncAt"`
	LastSuccessSyncAt *int64          `json:"lastSuccessSyncAt"`
	LastRun           *models.SyncRun `json:"lastRun,omitempty"`
}

type SyncHistoryResponse struct {
	Items []models.SyncRun `json:"items"`
}

// PubSubPushEnvelope is the body Pub/Sub push subscriptions deliver.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
