package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/logger"
	"tss-custody/internal/storage/models"
)

// ShareIdentity is the identity key a custodian node scopes a fragment to.
type ShareIdentity struct {
	UserAuthID string           `json:"user_auth_id"`
	AuthType   models.AuthType  `json:"auth_type"`
	CurveType  models.CurveType `json:"curve_type"`
	PublicKey  string           `json:"public_key"`
}

// CheckResult is a node's answer to an existence probe.
type CheckResult struct {
	Exists      bool   `json:"exists"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// NodeClient talks to one custodian node at a time. Fleet-wide fan-out is
// layered on top so each node remains an independent failure domain.
type NodeClient interface {
	Register(ctx context.Context, node models.KeyShareNode, identity ShareIdentity, fragment []byte) error
	Get(ctx context.Context, node models.KeyShareNode, identity ShareIdentity) ([]byte, error)
	Check(ctx context.Context, node models.KeyShareNode, identity ShareIdentity) (*CheckResult, error)
	Reshare(ctx context.Context, node models.KeyShareNode, identity ShareIdentity, fragment []byte) error
}

// HTTPNodeClient is the JSON-over-HTTP NodeClient used in production.
type HTTPNodeClient struct {
	client *http.Client
}

// NewHTTPNodeClient returns a client with a bounded per-call timeout; the
// engine itself carries no timeout primitive.
func NewHTTPNodeClient(timeout time.Duration) *HTTPNodeClient {
	return &HTTPNodeClient{client: &http.Client{Timeout: timeout}}
}

type shareRequest struct {
	ShareIdentity
	Share []byte `json:"share"`
}

type shareResponse struct {
	Share []byte `json:"share"`
}

type nodeErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPNodeClient) Register(ctx context.Context, node models.KeyShareNode, identity ShareIdentity, fragment []byte) error {
	return c.call(ctx, node, http.MethodPost, "/api/v1/shares", shareRequest{ShareIdentity: identity, Share: fragment}, nil)
}

func (c *HTTPNodeClient) Get(ctx context.Context, node models.KeyShareNode, identity ShareIdentity) ([]byte, error) {
	var resp shareResponse
	if err := c.call(ctx, node, http.MethodPost, "/api/v1/shares/get", identity, &resp); err != nil {
		return nil, err
	}
	return resp.Share, nil
}

func (c *HTTPNodeClient) Check(ctx context.Context, node models.KeyShareNode, identity ShareIdentity) (*CheckResult, error) {
	resp := &CheckResult{}
	if err := c.call(ctx, node, http.MethodPost, "/api/v1/shares/check", identity, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *HTTPNodeClient) Reshare(ctx context.Context, node models.KeyShareNode, identity ShareIdentity, fragment []byte) error {
	return c.call(ctx, node, http.MethodPut, "/api/v1/shares", shareRequest{ShareIdentity: identity, Share: fragment}, nil)
}

func (c *HTTPNodeClient) call(ctx context.Context, node models.KeyShareNode, method, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode request for node %s", node.NodeID)
	}
	req, err := http.NewRequestWithContext(ctx, method, node.ServerURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(err, "failed to build request for node %s", node.NodeID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, "node %s unreachable", node.NodeID)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var nodeErr nodeErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&nodeErr); decodeErr == nil && nodeErr.Code != "" {
			return apperrors.New(apperrors.Code(nodeErr.Code), "node %s: %s", node.NodeID, nodeErr.Message)
		}
		return apperrors.Wrap(errors.Errorf("status %d", resp.StatusCode), "node %s returned an error", node.NodeID)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Wrap(err, "failed to decode response from node %s", node.NodeID)
		}
	}
	return nil
}

// CheckOutcome is one node's result from a fleet-wide existence probe.
type CheckOutcome struct {
	Node   models.KeyShareNode
	Result *CheckResult
	Err    error
}

// WriteOutcome is one node's result from a fleet-wide register/reshare.
type WriteOutcome struct {
	Node models.KeyShareNode
	Err  error
}

// FragmentOutcome is one node's result from a fleet-wide fragment fetch.
type FragmentOutcome struct {
	Node     models.KeyShareNode
	Fragment []byte
	Err      error
}

// CheckFleet probes every node in parallel. One node's failure never affects
// another's result; the caller aggregates.
func CheckFleet(ctx context.Context, client NodeClient, nodes []models.KeyShareNode, identity ShareIdentity) []CheckOutcome {
	outcomes := make([]CheckOutcome, len(nodes))
	var wg sync.WaitGroup
	wg.Add(len(nodes))
	for i, node := range nodes {
		go func(i int, node models.KeyShareNode) {
			defer wg.Done()
			result, err := client.Check(ctx, node, identity)
			outcomes[i] = CheckOutcome{Node: node, Result: result, Err: err}
		}(i, node)
	}
	wg.Wait()
	return outcomes
}

// RegisterFleet registers fragments across the fleet in parallel, one
// fragment per node. Partial failure is reported per node, never rolled
// back: reconciliation is the resharing protocol's job.
func RegisterFleet(ctx context.Context, client NodeClient, nodes []models.KeyShareNode, identity ShareIdentity, fragments map[uuid.UUID][]byte) []WriteOutcome {
	return writeFleet(ctx, nodes, fragments, func(ctx context.Context, node models.KeyShareNode, fragment []byte) error {
		return client.Register(ctx, node, identity, fragment)
	})
}

// ReshareFleet upserts fragments across the fleet in parallel.
func ReshareFleet(ctx context.Context, client NodeClient, nodes []models.KeyShareNode, identity ShareIdentity, fragments map[uuid.UUID][]byte) []WriteOutcome {
	return writeFleet(ctx, nodes, fragments, func(ctx context.Context, node models.KeyShareNode, fragment []byte) error {
		return client.Reshare(ctx, node, identity, fragment)
	})
}

func writeFleet(ctx context.Context, nodes []models.KeyShareNode, fragments map[uuid.UUID][]byte, write func(context.Context, models.KeyShareNode, []byte) error) []WriteOutcome {
	outcomes := make([]WriteOutcome, len(nodes))
	var wg sync.WaitGroup
	wg.Add(len(nodes))
	for i, node := range nodes {
		go func(i int, node models.KeyShareNode) {
			defer wg.Done()
			fragment, ok := fragments[node.ID]
			if !ok {
				outcomes[i] = WriteOutcome{Node: node, Err: fmt.Errorf("no fragment assigned to node %s", node.NodeID)}
				return
			}
			err := write(ctx, node, fragment)
			if err != nil {
				logger.Log.Warnf("Custody write to node %s failed: %v", node.NodeID, err)
			}
			outcomes[i] = WriteOutcome{Node: node, Err: err}
		}(i, node)
	}
	wg.Wait()
	return outcomes
}

// FetchFragments retrieves this wallet's fragments from every node in
// parallel. The caller decides whether enough came back to reconstruct.
func FetchFragments(ctx context.Context, client NodeClient, nodes []models.KeyShareNode, identity ShareIdentity) []FragmentOutcome {
	outcomes := make([]FragmentOutcome, len(nodes))
	var wg sync.WaitGroup
	wg.Add(len(nodes))
	for i, node := range nodes {
		go func(i int, node models.KeyShareNode) {
			defer wg.Done()
			fragment, err := client.Get(ctx, node, identity)
			outcomes[i] = FragmentOutcome{Node: node, Fragment: fragment, Err: err}
		}(i, node)
	}
	wg.Wait()
	return outcomes
}
