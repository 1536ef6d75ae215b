// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dataio defines the contract between a member and the
// application data it carries: where a freshly created unit's
// payload comes from, and where the ordered output of consensus goes.
package dataio

// OrderedBatch is the application-data payload of one round of
// consensus output: the data carried by a contiguous run of units the
// ordering algorithm has finalized, in their decided order.
type OrderedBatch[D any] []D

// DataIO is the host's data plane. GetData supplies the payload for a
// unit the local authority is about to create; it may block (e.g. on
// a mempool) but must not stall the reactor indefinitely, since no
// other unit can be created by this authority until it returns.
// SendOrderedBatch delivers one round of finalized output; an error
// is logged and does not stop the reactor, since batches for later
// rounds may still succeed.
type DataIO[D any] interface {
	GetData() D
	SendOrderedBatch(batch OrderedBatch[D]) error
}
