package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the reconciliation controller. It exclusively owns the local
// cart view: every mutation is applied optimistically, confirmed against the
// remote store, and either committed from a fresh authoritative snapshot or
// rolled back to the pre-mutation state. Mutations on one line are
// serialized; lines are otherwise independent.
type Service struct {
	remote RemoteStore
	tokens TokenProvider
	view   *localView
	guard  *mutationGuard
	logger OperationLogger
	nowFn  func() int64
}

// NewService wires a Service.
func NewService(remote RemoteStore, tokens TokenProvider, options ...ServiceOption) (*Service, error) {
	if remote == nil {
		return nil, fmt.Errorf("%w: remote store dependency is nil", ErrInvalidServiceConfig)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token provider dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		remote: remote,
		tokens: tokens,
		view:   newLocalView(),
		guard:  newMutationGuard(),
		nowFn:  func() int64 { return time.Now().UTC().Unix() },
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Snapshot returns the current view. Readers may call it at any time; they
// receive a value copy and never observe a partially replaced snapshot.
func (service *Service) Snapshot() Snapshot {
	return service.view.snapshotNow()
}

// Close freezes the view. Results of remote calls still in flight are
// discarded instead of applied.
func (service *Service) Close() {
	service.view.close()
}

// Refresh fetches the authoritative snapshot and replaces the view wholesale.
func (service *Service) Refresh(ctx context.Context) (Snapshot, error) {
	_, epoch := service.view.current()
	token, err := service.bearerToken(ctx, operationRefresh)
	if err != nil {
		return service.view.snapshotNow(), err
	}
	fresh, err := service.remote.FetchSnapshot(ctx, token)
	if err != nil {
		service.invalidateOnUnauthorized(ctx, err)
		service.logOperation(ctx, OperationLog{Operation: operationRefresh, Error: err})
		return service.view.snapshotNow(), WrapError(operationRefresh, errorSubjectSnapshot, errorCodeFetch, err)
	}
	if !service.view.replaceAt(epoch, fresh) {
		return service.view.snapshotNow(), WrapError(operationRefresh, errorSubjectView, errorCodeClosed, ErrViewClosed)
	}
	service.logOperation(ctx, OperationLog{Operation: operationRefresh})
	return fresh, nil
}

// AddProduct puts a product into the cart. A product already present
// degrades to a quantity change on its line; a new product is shown
// optimistically under a provisional line id until the authoritative
// snapshot assigns the real one.
func (service *Service) AddProduct(ctx context.Context, productID ProductID, name string, unitPrice PriceCents, quantity Quantity) (MutationResult, error) {
	snapshot, epoch := service.view.current()
	if line, present := snapshot.ItemByProductID(productID); present {
		delta, err := NewQuantityDelta(quantity.Int64())
		if err != nil {
			return service.failedResult(), err
		}
		return service.ChangeQuantity(ctx, line.ID, delta)
	}

	guardKey := productGuardPrefix + productID.String()
	if !service.guard.tryAcquire(guardKey) {
		return service.ignoredResult(ctx, operationAddProduct, OperationLog{ProductID: productID})
	}
	defer service.guard.release(guardKey)

	token, err := service.bearerToken(ctx, operationAddProduct)
	if err != nil {
		return service.failedResult(), err
	}

	// The provisional line id is guarded for the duration as well, so a
	// concurrent Clear sees the line as busy instead of shipping the
	// client-generated id to the server.
	provisionalID := ItemID{value: provisionalIDPrefix + uuid.NewString()}
	if !service.guard.tryAcquire(provisionalID.String()) {
		return service.ignoredResult(ctx, operationAddProduct, OperationLog{ProductID: productID})
	}
	defer service.guard.release(provisionalID.String())

	optimistic := CartItem{
		ID:             provisionalID,
		ProductID:      productID,
		Name:           name,
		UnitPriceCents: unitPrice,
		Quantity:       quantity,
	}
	service.view.upsertAt(epoch, optimistic)

	delta := QuantityDelta(quantity.Int64())
	if err := service.remote.AddOrIncrement(ctx, token, productID, unitPrice, delta); err != nil {
		service.view.removeAt(epoch, provisionalID)
		service.invalidateOnUnauthorized(ctx, err)
		service.logOperation(ctx, OperationLog{Operation: operationAddProduct, ProductID: productID, Delta: delta.Int64(), Error: err})
		return service.failedResult(), WrapError(operationAddProduct, errorSubjectRemote, errorCodeCall, err)
	}
	return service.reconcile(ctx, operationAddProduct, epoch, token, OperationLog{ProductID: productID, Delta: delta.Int64()})
}

// ChangeQuantity applies a signed quantity delta to an existing line. A
// decrement that would take the quantity below one is ignored without a
// remote call; removing a line entirely requires RemoveItem.
func (service *Service) ChangeQuantity(ctx context.Context, itemID ItemID, delta QuantityDelta) (MutationResult, error) {
	if !service.guard.tryAcquire(itemID.String()) {
		return service.ignoredResult(ctx, operationChangeQuantity, OperationLog{ItemID: itemID, Delta: delta.Int64()})
	}
	defer service.guard.release(itemID.String())

	snapshot, epoch := service.view.current()
	item, present := snapshot.ItemByID(itemID)
	if !present {
		return service.ignoredResult(ctx, operationChangeQuantity, OperationLog{ItemID: itemID, Delta: delta.Int64()})
	}
	updated := item.Quantity.Int64() + delta.Int64()
	if updated < 1 {
		return service.ignoredResult(ctx, operationChangeQuantity, OperationLog{ItemID: itemID, Delta: delta.Int64()})
	}

	token, err := service.bearerToken(ctx, operationChangeQuantity)
	if err != nil {
		return service.failedResult(), err
	}

	prior := item
	optimistic := item
	optimistic.Quantity = Quantity(updated)
	service.view.upsertAt(epoch, optimistic)

	if err := service.remote.AddOrIncrement(ctx, token, item.ProductID, item.UnitPriceCents, delta); err != nil {
		service.view.restoreAt(epoch, itemID, &prior)
		service.invalidateOnUnauthorized(ctx, err)
		service.logOperation(ctx, OperationLog{Operation: operationChangeQuantity, ItemID: itemID, Delta: delta.Int64(), Error: err})
		return service.failedResult(), WrapError(operationChangeQuantity, errorSubjectRemote, errorCodeCall, err)
	}
	return service.reconcile(ctx, operationChangeQuantity, epoch, token, OperationLog{ItemID: itemID, Delta: delta.Int64()})
}

// RemoveItem deletes a line. Removing a line that is already gone, locally
// or remotely, is a successful no-op.
func (service *Service) RemoveItem(ctx context.Context, itemID ItemID) (MutationResult, error) {
	if !service.guard.tryAcquire(itemID.String()) {
		return service.ignoredResult(ctx, operationRemoveItem, OperationLog{ItemID: itemID})
	}
	defer service.guard.release(itemID.String())

	snapshot, epoch := service.view.current()
	item, present := snapshot.ItemByID(itemID)
	if !present {
		return service.ignoredResult(ctx, operationRemoveItem, OperationLog{ItemID: itemID})
	}

	token, err := service.bearerToken(ctx, operationRemoveItem)
	if err != nil {
		return service.failedResult(), err
	}

	prior := item
	service.view.removeAt(epoch, itemID)

	if err := service.remote.DeleteItem(ctx, token, itemID); err != nil && !errors.Is(err, ErrItemNotFound) {
		service.view.restoreAt(epoch, itemID, &prior)
		service.invalidateOnUnauthorized(ctx, err)
		service.logOperation(ctx, OperationLog{Operation: operationRemoveItem, ItemID: itemID, Error: err})
		return service.failedResult(), WrapError(operationRemoveItem, errorSubjectRemote, errorCodeCall, err)
	}
	return service.reconcile(ctx, operationRemoveItem, epoch, token, OperationLog{ItemID: itemID})
}

// Clear empties the cart: optimistic clear, concurrent delete fan-out, then
// an all-or-nothing commit. On any hard failure the view is reconciled from
// a fresh fetch, never from the captured prior state, because some deletes
// may have succeeded server-side.
func (service *Service) Clear(ctx context.Context) (MutationResult, error) {
	priorState, epoch := service.view.current()
	if priorState.IsEmpty() {
		return service.ignoredResult(ctx, operationClear, OperationLog{})
	}
	itemIDs := priorState.ItemIDs()
	guardKeys := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		guardKeys = append(guardKeys, id.String())
	}
	if !service.guard.tryAcquireAll(guardKeys) {
		return service.ignoredResult(ctx, operationClear, OperationLog{})
	}
	defer service.guard.releaseAll(guardKeys)

	token, err := service.bearerToken(ctx, operationClear)
	if err != nil {
		return service.failedResult(), err
	}

	service.view.replaceAt(epoch, EmptySnapshot())

	outcomes := service.remote.DeleteAll(ctx, token, itemIDs)
	var failures []error
	for _, outcome := range outcomes {
		if outcome.Err != nil && !errors.Is(outcome.Err, ErrItemNotFound) {
			failures = append(failures, fmt.Errorf("item %s: %w", outcome.ItemID, outcome.Err))
		}
	}
	if len(failures) == 0 {
		service.logOperation(ctx, OperationLog{Operation: operationClear})
		return MutationResult{Status: MutationApplied, Snapshot: service.view.snapshotNow()}, nil
	}

	aggregated := errors.Join(failures...)
	service.invalidateOnUnauthorized(ctx, aggregated)
	service.logOperation(ctx, OperationLog{Operation: operationClear, Error: aggregated})

	fresh, fetchErr := service.remote.FetchSnapshot(ctx, token)
	if fetchErr != nil {
		// Cannot learn what remains server-side; fall back to the captured
		// prior state so the user at least sees a known cart again.
		service.view.replaceAt(epoch, priorState)
		return service.failedResult(), WrapError(operationClear, errorSubjectSnapshot, errorCodeFetch, errors.Join(aggregated, fetchErr))
	}
	service.view.replaceAt(epoch, fresh)
	return MutationResult{Status: MutationFailed, Snapshot: service.view.snapshotNow()}, WrapError(operationClear, errorSubjectRemote, errorCodeCall, aggregated)
}

// reconcile replaces the view with a fresh authoritative snapshot after a
// successful mutation. The optimistic value is never trusted as final: the
// server may clamp quantities or combine duplicate lines.
func (service *Service) reconcile(ctx context.Context, operation string, epoch uint64, token string, entry OperationLog) (MutationResult, error) {
	fresh, err := service.remote.FetchSnapshot(ctx, token)
	if err != nil {
		// The mutation itself committed remotely, so the optimistic value
		// stays; the next successful refresh reconciles.
		service.invalidateOnUnauthorized(ctx, err)
		entry.Operation = operation
		entry.Error = err
		service.logOperation(ctx, entry)
		return MutationResult{Status: MutationApplied, Snapshot: service.view.snapshotNow()},
			WrapError(operation, errorSubjectSnapshot, errorCodeFetch, err)
	}
	if !service.view.replaceAt(epoch, fresh) {
		return service.failedResult(), WrapError(operation, errorSubjectView, errorCodeClosed, ErrViewClosed)
	}
	entry.Operation = operation
	service.logOperation(ctx, entry)
	return MutationResult{Status: MutationApplied, Snapshot: fresh}, nil
}

// bearerToken reads the credential, short-circuiting locally when absent.
func (service *Service) bearerToken(ctx context.Context, operation string) (string, error) {
	token, available := service.tokens.CurrentToken(ctx)
	if !available {
		err := WrapError(operation, errorSubjectToken, errorCodeMissing, ErrUnauthorized)
		service.logOperation(ctx, OperationLog{Operation: operation, Error: err})
		return "", err
	}
	return token, nil
}

func (service *Service) invalidateOnUnauthorized(ctx context.Context, err error) {
	if errors.Is(err, ErrUnauthorized) {
		_ = service.tokens.Invalidate(ctx)
	}
}

func (service *Service) ignoredResult(ctx context.Context, operation string, entry OperationLog) (MutationResult, error) {
	entry.Operation = operation
	entry.Status = operationStatusIgnored
	service.logOperation(ctx, entry)
	return MutationResult{Status: MutationIgnored, Snapshot: service.view.snapshotNow()}, nil
}

func (service *Service) failedResult() MutationResult {
	return MutationResult{Status: MutationFailed, Snapshot: service.view.snapshotNow()}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	entry.AtUnixUTC = service.nowFn()
	service.logger.LogOperation(ctx, entry)
}
