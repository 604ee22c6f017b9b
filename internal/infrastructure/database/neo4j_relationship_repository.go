package database

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4JRelationshipRepository implements RelationshipRepository on FLOW
// relationships between Wallet nodes, one relationship per (from, to, asset)
type Neo4JRelationshipRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JRelationshipRepository creates a new Neo4J relationship repository
func NewNeo4JRelationshipRepository(client *Neo4JClient, logger *logger.Logger) *Neo4JRelationshipRepository {
	return &Neo4JRelationshipRepository{
		client: client,
		logger: logger.WithComponent("neo4j-relationship-repo"),
	}
}

var _ repository.RelationshipRepository = (*Neo4JRelationshipRepository)(nil)

// The event key list on each relationship makes the merge idempotent. MERGE on
// the relationship locks both wallet nodes, so concurrent writers to the same
// aggregate serialize.
const mergeFlowsQuery = `
	UNWIND $events AS ev
	MERGE (a:Wallet {address: ev.from})
	MERGE (b:Wallet {address: ev.to})
	MERGE (a)-[r:FLOW {asset: ev.asset}]->(b)
	ON CREATE SET
		r.amount = 0.0,
		r.tx_count = 0,
		r.event_keys = [],
		r.first_seen = ev.block_time,
		r.last_seen = ev.block_time
	WITH r, ev
	WHERE NOT ev.key IN r.event_keys
	SET
		r.amount = r.amount + ev.amount,
		r.tx_count = r.tx_count + 1,
		r.event_keys = r.event_keys + ev.key,
		r.first_seen = CASE WHEN ev.block_time < r.first_seen THEN ev.block_time ELSE r.first_seen END,
		r.last_seen = CASE WHEN ev.block_time > r.last_seen THEN ev.block_time ELSE r.last_seen END
	RETURN ev.key AS key
	ORDER BY key
`

// MergeTransfers folds the events into their aggregates in a single write transaction
func (r *Neo4JRelationshipRepository) MergeTransfers(ctx context.Context, events []*entity.TransferEvent) ([]string, error) {
	params := flowParams(events)
	if len(params) == 0 {
		return []string{}, nil
	}

	session := r.client.NewSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	merged, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, mergeFlowsQuery, map[string]any{"events": params})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(records))
		for _, record := range records {
			key, _, err := neo4j.GetRecordValue[string](record, "key")
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return keys, nil
	})
	if err != nil {
		r.logger.Error("Failed to merge transfers", zap.Int("events", len(params)), zap.Error(err))
		return nil, fmt.Errorf("failed to merge transfers: %w", err)
	}

	return merged.([]string), nil
}

// flowParams converts events into query parameters, dropping self transfers and
// keys repeated inside the batch
func flowParams(events []*entity.TransferEvent) []map[string]any {
	seen := make(map[string]struct{}, len(events))
	params := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		if ev == nil || ev.From == "" || ev.To == "" || ev.From == ev.To {
			continue
		}
		key := ev.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		params = append(params, map[string]any{
			"from":       ev.From,
			"to":         ev.To,
			"asset":      ev.Asset(),
			"amount":     ev.Amount,
			"key":        key,
			"block_time": ev.BlockTime.UTC(),
		})
	}
	return params
}

const flowsForWalletsQuery = `
	UNWIND $addresses AS addr
	MATCH (w:Wallet {address: addr})
	CALL {
		WITH w
		MATCH (w)-[r:FLOW]-(:Wallet)
		WHERE r.last_seen >= $since
		RETURN r
		ORDER BY r.tx_count DESC, r.amount DESC
		LIMIT $limit
	}
	WITH DISTINCT r
	MATCH (a:Wallet)-[r]->(b:Wallet)
	RETURN a.address AS from, b.address AS to, r.asset AS asset, r.amount AS amount,
		r.tx_count AS tx_count, r.first_seen AS first_seen, r.last_seen AS last_seen,
		r.event_keys AS event_keys
	ORDER BY from, to, asset
`

// GetFlowsForWallets returns the strongest aggregates touching each wallet
func (r *Neo4JRelationshipRepository) GetFlowsForWallets(ctx context.Context, addresses []string, since time.Time, perWalletLimit int) ([]*entity.FlowRecord, error) {
	if len(addresses) == 0 {
		return []*entity.FlowRecord{}, nil
	}
	limit := int64(perWalletLimit)
	if limit <= 0 {
		limit = math.MaxInt32
	}

	flows, err := r.readFlows(ctx, flowsForWalletsQuery, map[string]any{
		"addresses": addresses,
		"since":     since.UTC(),
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get flows for wallets: %w", err)
	}
	return flows, nil
}

const recentFlowsQuery = `
	MATCH (a:Wallet)-[r:FLOW]->(b:Wallet)
	WHERE r.last_seen >= $since
	RETURN a.address AS from, b.address AS to, r.asset AS asset, r.amount AS amount,
		r.tx_count AS tx_count, r.first_seen AS first_seen, r.last_seen AS last_seen,
		r.event_keys AS event_keys
	ORDER BY r.last_seen DESC, from, to, asset
	LIMIT $limit
`

// GetRecentFlows returns the most recently active aggregates
func (r *Neo4JRelationshipRepository) GetRecentFlows(ctx context.Context, since time.Time, limit int) ([]*entity.FlowRecord, error) {
	capped := int64(limit)
	if capped <= 0 {
		capped = math.MaxInt32
	}

	flows, err := r.readFlows(ctx, recentFlowsQuery, map[string]any{
		"since": since.UTC(),
		"limit": capped,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recent flows: %w", err)
	}
	return flows, nil
}

// Ping checks connectivity
func (r *Neo4JRelationshipRepository) Ping(ctx context.Context) error {
	if r.client.GetDriver() == nil {
		return fmt.Errorf("neo4j driver is not connected")
	}
	return r.client.GetDriver().VerifyConnectivity(ctx)
}

func (r *Neo4JRelationshipRepository) readFlows(ctx context.Context, query string, params map[string]any) ([]*entity.FlowRecord, error) {
	session := r.client.NewSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		flows := make([]*entity.FlowRecord, 0, len(records))
		for _, record := range records {
			flow, err := flowFromRecord(record)
			if err != nil {
				return nil, err
			}
			flows = append(flows, flow)
		}
		return flows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*entity.FlowRecord), nil
}

func flowFromRecord(record *neo4j.Record) (*entity.FlowRecord, error) {
	from, _, err := neo4j.GetRecordValue[string](record, "from")
	if err != nil {
		return nil, err
	}
	to, _, err := neo4j.GetRecordValue[string](record, "to")
	if err != nil {
		return nil, err
	}
	asset, _, err := neo4j.GetRecordValue[string](record, "asset")
	if err != nil {
		return nil, err
	}
	amount, _, err := neo4j.GetRecordValue[float64](record, "amount")
	if err != nil {
		return nil, err
	}
	txCount, _, err := neo4j.GetRecordValue[int64](record, "tx_count")
	if err != nil {
		return nil, err
	}
	firstSeen, _, err := neo4j.GetRecordValue[time.Time](record, "first_seen")
	if err != nil {
		return nil, err
	}
	lastSeen, _, err := neo4j.GetRecordValue[time.Time](record, "last_seen")
	if err != nil {
		return nil, err
	}
	rawKeys, _, err := neo4j.GetRecordValue[[]any](record, "event_keys")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rawKeys))
	for _, k := range rawKeys {
		if key, ok := k.(string); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	return &entity.FlowRecord{
		FromAddress: from,
		ToAddress:   to,
		Asset:       asset,
		Amount:      amount,
		TxCount:     txCount,
		FirstSeen:   firstSeen.UTC(),
		LastSeen:    lastSeen.UTC(),
		EventKeys:   keys,
	}, nil
}
