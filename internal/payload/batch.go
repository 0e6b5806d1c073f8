package payload

import (
	"fmt"

	"github.com/shineum/sendwire/internal/email"
)

// BuildBatch converts per-recipient messages and an optional shared base
// message into a batch payload. Requests keep the input order.
//
// The base may not have recipients; its Reply-To is sent as reply_to.
// The first structural error aborts the build and is wrapped with the
// position of the offending message.
func BuildBatch(requests []*email.Message, base *email.Message) (*Batch, error) {
	batch := &Batch{
		Requests: make([]Payload, 0, len(requests)),
	}

	if base != nil {
		p, err := buildBase(base)
		if err != nil {
			return nil, fmt.Errorf("base: %w", err)
		}
		batch.Base = p
	}

	for i, msg := range requests {
		p, err := Build(msg)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		batch.Requests = append(batch.Requests, *p)
	}

	return batch, nil
}

func buildBase(msg *email.Message) (*Payload, error) {
	p, err := build(msg, true)
	if err != nil {
		return nil, err
	}
	if len(p.To) > 0 || len(p.Cc) > 0 || len(p.Bcc) > 0 {
		return nil, ErrBaseHasRecipients
	}
	return p, nil
}
