package replica

import (
	"context"
	"errors"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/wire"
)

// Agreement decides when a client write is applied. It returns once the local Replica applied
// the write, with the outcome of applying it.
type Agreement interface {
	Agree(context.Context, wire.Write) error
}

// AgreementFn builds the Agreement of a Replica.
type AgreementFn func(*Replica) Agreement

// Local applies writes immediately without agreeing with anyone.
// It tolerates no faults and suits a single replica deployment.
func Local(r *Replica) Agreement {
	return &localAgreement{r: r}
}

type localAgreement struct {
	r *Replica
}

func (l *localAgreement) Agree(ctx context.Context, w wire.Write) error {
	if err := w.Verify(); err != nil {
		return err
	}
	if err := l.r.Verify(ctx, w); err != nil {
		return err
	}

	err := l.r.Deliver(ctx, w)
	if errors.Is(err, bboard.ErrDuplicate) {
		return nil
	}
	return err
}
