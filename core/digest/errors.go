package digest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
)

var (
	// ErrInvalidRecipient is returned when a recipient has no usable email address.
	ErrInvalidRecipient = errors.New("invalid digest recipient")
	// ErrDeliveryFailure is matched by every *DeliveryError.
	ErrDeliveryFailure = errors.New("digest delivery failure")
	ErrInvalidRootURL  = errors.New("root url must be an absolute url")
)

// DeliveryError gathers the transport errors of one batch, keyed by recipient user ID.
type DeliveryError struct {
	Schema   core.Schema
	Failures map[int64]error
}

func (e *DeliveryError) Error() string {
	ids := make([]int64, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	msgs := make([]string, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, fmt.Sprintf("user %d: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("%s: %d digest(s) of %s not delivered: %s",
		ErrDeliveryFailure, len(ids), e.Schema, strings.Join(msgs, "; "))
}

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailure }
