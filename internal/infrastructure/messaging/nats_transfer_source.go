package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
	"wallet-cluster-analyzer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ErrSourceUnavailable is returned when no upstream parser answers a fetch request
var ErrSourceUnavailable = errors.New("transfer source unavailable")

// WalletTransfersRequest asks the upstream parser for the transfers of one wallet
type WalletTransfersRequest struct {
	Address string `json:"address"`
	Limit   int    `json:"limit"`
}

// WalletTransfersReply is the parser's answer to a WalletTransfersRequest
type WalletTransfersReply struct {
	Transfers []*entity.TransferEvent `json:"transfers"`
	Error     string                  `json:"error,omitempty"`
}

// requester is the part of *nats.Conn the source needs
type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// NATSTransferSource fetches wallet history from the parser over NATS request/reply
type NATSTransferSource struct {
	conn    requester
	subject string
	timeout time.Duration
	logger  *logger.Logger
}

// NewNATSTransferSource creates a transfer source. A nil conn yields a source
// that always reports ErrSourceUnavailable.
func NewNATSTransferSource(conn *nats.Conn, subject string, timeout time.Duration, logger *logger.Logger) *NATSTransferSource {
	s := &NATSTransferSource{
		subject: subject,
		timeout: timeout,
		logger:  logger.WithComponent("nats-transfer-source"),
	}
	if conn != nil {
		s.conn = conn
	}
	return s
}

var _ repository.TransferSource = (*NATSTransferSource)(nil)

// FetchWalletTransfers requests up to limit transfers of the address
func (s *NATSTransferSource) FetchWalletTransfers(ctx context.Context, address string, limit int) ([]*entity.TransferEvent, error) {
	if s.conn == nil {
		return nil, ErrSourceUnavailable
	}

	payload, err := json.Marshal(WalletTransfersRequest{Address: address, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal fetch request: %w", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg, err := s.conn.RequestWithContext(ctx, s.subject, payload)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, ErrSourceUnavailable
		}
		return nil, fmt.Errorf("request wallet transfers: %w", err)
	}

	var reply WalletTransfersReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("unmarshal wallet transfers: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("parser error for %s: %s", address, reply.Error)
	}

	transfers := make([]*entity.TransferEvent, 0, len(reply.Transfers))
	for _, ev := range reply.Transfers {
		if ev != nil {
			transfers = append(transfers, ev)
		}
	}

	s.logger.Debug("Fetched wallet transfers",
		zap.String("address", address),
		zap.Int("transfers", len(transfers)))
	return transfers, nil
}
