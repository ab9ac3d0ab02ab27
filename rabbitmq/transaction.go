package rabbitmq

import (
	"context"
	"fmt"

	"github.com/israelio/rabbit-blocking-client/internal/frame"
)

// TxSelect puts the channel into transaction mode
func (ch *Channel) TxSelect() error {
	req := &frame.TxSelect{}
	resp, err := ch.rpcRequest(context.Background(), req)
	if _, err := expect[*frame.TxSelectOk](req, resp, err); err != nil {
		return err
	}
	ch.txActive.Store(true)
	return nil
}

// TxCommit commits the current transaction
func (ch *Channel) TxCommit() error {
	req := &frame.TxCommit{}
	resp, err := ch.rpcRequest(context.Background(), req)
	if _, err := expect[*frame.TxCommitOk](req, resp, err); err != nil {
		return err
	}
	ch.txActive.Store(false)
	return nil
}

// TxRollback abandons the current transaction
func (ch *Channel) TxRollback() error {
	req := &frame.TxRollback{}
	resp, err := ch.rpcRequest(context.Background(), req)
	if _, err := expect[*frame.TxRollbackOk](req, resp, err); err != nil {
		return err
	}
	ch.txActive.Store(false)
	return nil
}

// TxActive reports whether a transaction was selected and not yet
// committed or rolled back.
func (ch *Channel) TxActive() bool {
	return ch.txActive.Load()
}

// Tx runs fn inside a transaction. It commits when fn succeeds and rolls
// back when fn fails, returning fn's error.
func (ch *Channel) Tx(fn func(*Channel) error) error {
	if err := ch.TxSelect(); err != nil {
		return err
	}
	if err := fn(ch); err != nil {
		if rbErr := ch.TxRollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return ch.TxCommit()
}
